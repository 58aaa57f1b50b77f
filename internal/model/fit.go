package model

// ModelKind names a fitted regression.
type ModelKind string

const (
	ModelOLS   ModelKind = "ols"
	ModelLag   ModelKind = "spatial_lag"
	ModelError ModelKind = "spatial_error"
)

// Coefficient is one estimated term of a regression.
type Coefficient struct {
	Name      string  `json:"name"`
	Estimate  float64 `json:"estimate"`
	StdError  float64 `json:"std_error"`
	Statistic float64 `json:"statistic"` // t for OLS, z for ML fits
	PValue    float64 `json:"p_value"`
}

// SpatialParam is the autocorrelation coefficient of a spatial model
// (rho for lag, lambda for error) with its tests.
type SpatialParam struct {
	Name     string  `json:"name"`
	Estimate float64 `json:"estimate"`
	StdError float64 `json:"std_error"`
	Z        float64 `json:"z"`
	PValue   float64 `json:"p_value"`
	// LR is the likelihood-ratio statistic against OLS, chi-square with one df.
	LR       float64 `json:"lr"`
	LRPValue float64 `json:"lr_p_value"`
}

// FitResult is the read-only outcome of one model fit.
type FitResult struct {
	Kind         ModelKind     `json:"kind"`
	Response     string        `json:"response"`
	N            int           `json:"n"`
	Coefficients []Coefficient `json:"coefficients"`
	Sigma2       float64       `json:"sigma2"`
	LogLik       float64       `json:"log_lik"`
	AIC          float64       `json:"aic"`

	// OLS only.
	RSquared    float64 `json:"r_squared,omitempty"`
	AdjRSquared float64 `json:"adj_r_squared,omitempty"`
	FStat       float64 `json:"f_stat,omitempty"`
	FPValue     float64 `json:"f_p_value,omitempty"`

	// Spatial models only.
	Spatial *SpatialParam `json:"spatial,omitempty"`
}

// Coef returns the named coefficient, or false when absent.
func (f *FitResult) Coef(name string) (Coefficient, bool) {
	for _, c := range f.Coefficients {
		if c.Name == name {
			return c, true
		}
	}
	return Coefficient{}, false
}

// MoranResult is a global Moran's I test on one column.
type MoranResult struct {
	Column   string  `json:"column"`
	N        int     `json:"n"`
	I        float64 `json:"i"`
	Expected float64 `json:"expected"`
	Variance float64 `json:"variance"`
	Z        float64 `json:"z"`
	PValue   float64 `json:"p_value"`

	Permutations int     `json:"permutations"`
	PermPValue   float64 `json:"perm_p_value"`

	// Constant is set when the column has no variance; I is reported as 0.
	Constant bool `json:"constant"`
}
