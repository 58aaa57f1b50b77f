// Package regress fits ordinary least squares and maximum-likelihood
// spatial lag and spatial error models of one response on a design matrix.
package regress

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sells-group/accessmap/internal/model"
)

// Data is a response vector with its design matrix. Column 0 of X is the
// intercept when Names[0] is "(Intercept)".
type Data struct {
	Response string
	Y        []float64
	X        *mat.Dense
	Names    []string
}

// NewData builds Data with an intercept and one predictor.
func NewData(response string, y []float64, predictor string, x []float64) (*Data, error) {
	if len(y) != len(x) {
		return nil, eris.Errorf("regress: %d responses for %d predictor values", len(y), len(x))
	}
	n := len(y)
	X := mat.NewDense(max(n, 1), 2, nil)
	for i := range n {
		X.Set(i, 0, 1)
		X.Set(i, 1, x[i])
	}
	return &Data{Response: response, Y: y, X: X, Names: []string{"(Intercept)", predictor}}, nil
}

func (d *Data) dims() (n, p int) {
	return len(d.Y), len(d.Names)
}

func (d *Data) check(extra int) error {
	n, p := d.dims()
	if r, c := d.X.Dims(); (n > 0 && r != n) || c != p {
		return eris.Errorf("regress: design matrix is %dx%d, want %dx%d", r, c, n, p)
	}
	if n < p+extra {
		return eris.Errorf("regress: %d observations for %d parameters", n, p+extra)
	}
	return nil
}

// leastSquares returns β minimising |y - Xβ|² and the residuals.
func leastSquares(X *mat.Dense, y []float64) ([]float64, []float64, error) {
	_, p := X.Dims()
	yv := mat.NewVecDense(len(y), y)

	var beta mat.VecDense
	if err := beta.SolveVec(X, yv); err != nil {
		return nil, nil, eris.Wrap(err, "regress: least squares")
	}

	var fit mat.VecDense
	fit.MulVec(X, &beta)
	res := make([]float64, len(y))
	for i := range y {
		res[i] = y[i] - fit.AtVec(i)
	}

	out := make([]float64, p)
	for j := range p {
		out[j] = beta.AtVec(j)
	}
	return out, res, nil
}

func sumSquares(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return s
}

// gaussLogLik is the maximised normal log-likelihood for residual sum of
// squares sse over n observations plus an optional log-Jacobian term.
func gaussLogLik(n int, sse, logDet float64) float64 {
	fn := float64(n)
	return -fn/2*(math.Log(2*math.Pi)+math.Log(sse/fn)+1) + logDet
}

func twoSidedNormal(z float64) float64 {
	return 2 * distuv.UnitNormal.Survival(math.Abs(z))
}

// OLS fits y = Xβ + ε by least squares.
func OLS(d *Data) (*model.FitResult, error) {
	if err := d.check(1); err != nil {
		return nil, err
	}
	n, p := d.dims()

	beta, res, err := leastSquares(d.X, d.Y)
	if err != nil {
		return nil, err
	}
	sse := sumSquares(res)
	df := float64(n - p)
	s2 := sse / df

	var xtx, xtxInv mat.Dense
	xtx.Mul(d.X.T(), d.X)
	if err := xtxInv.Inverse(&xtx); err != nil {
		return nil, eris.Wrap(err, "regress: singular design matrix")
	}

	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	coefs := make([]model.Coefficient, p)
	for j := range p {
		se := math.Sqrt(s2 * xtxInv.At(j, j))
		t := beta[j] / se
		coefs[j] = model.Coefficient{
			Name:      d.Names[j],
			Estimate:  beta[j],
			StdError:  se,
			Statistic: t,
			PValue:    2 * tdist.Survival(math.Abs(t)),
		}
	}

	ybar := stat.Mean(d.Y, nil)
	var sst float64
	for _, v := range d.Y {
		sst += (v - ybar) * (v - ybar)
	}

	r := &model.FitResult{
		Kind:         model.ModelOLS,
		Response:     d.Response,
		N:            n,
		Coefficients: coefs,
		Sigma2:       s2,
		LogLik:       gaussLogLik(n, sse, 0),
	}
	r.AIC = -2*r.LogLik + 2*float64(p+1)
	if sst > 0 {
		r.RSquared = 1 - sse/sst
		r.AdjRSquared = 1 - (1-r.RSquared)*float64(n-1)/df
	}
	if p > 1 && sse > 0 {
		r.FStat = ((sst - sse) / float64(p-1)) / s2
		r.FPValue = distuv.F{D1: float64(p - 1), D2: df}.Survival(r.FStat)
	}
	return r, nil
}
