package regress

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/accessmap/internal/geo/geotest"
	"github.com/sells-group/accessmap/internal/model"
	"github.com/sells-group/accessmap/internal/weights"
)

func gridWeights(t *testing.T, side int) *weights.Weights {
	t.Helper()
	w, err := weights.Queen(geotest.GridRegions(side, side, 1), weights.Options{})
	require.NoError(t, err)
	return w
}

// solve iterates y = a·W·y + b to its fixed point.
func solve(w *weights.Weights, a float64, b []float64) []float64 {
	y := append([]float64(nil), b...)
	for range 500 {
		wy := w.Lag(y)
		for i := range y {
			y[i] = a*wy[i] + b[i]
		}
	}
	return y
}

func predictor(rng *rand.Rand, n int) []float64 {
	x := make([]float64, n)
	for i := range x {
		x[i] = 10 * rng.Float64()
	}
	return x
}

func lagData(t *testing.T, w *weights.Weights, rho, sigma float64) *Data {
	t.Helper()
	rng := rand.New(rand.NewPCG(7, 11))
	x := predictor(rng, w.N())
	b := make([]float64, len(x))
	for i := range x {
		b[i] = 2 + 3*x[i] + sigma*rng.NormFloat64()
	}
	d, err := NewData("y", solve(w, rho, b), "x", x)
	require.NoError(t, err)
	return d
}

func errorData(t *testing.T, w *weights.Weights, lambda, sigma float64) *Data {
	t.Helper()
	rng := rand.New(rand.NewPCG(3, 5))
	x := predictor(rng, w.N())
	eps := make([]float64, len(x))
	for i := range eps {
		eps[i] = sigma * rng.NormFloat64()
	}
	u := solve(w, lambda, eps)
	y := make([]float64, len(x))
	for i := range y {
		y[i] = 2 + 3*x[i] + u[i]
	}
	d, err := NewData("y", y, "x", x)
	require.NoError(t, err)
	return d
}

func TestOLS_ExactLine(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5, 6}
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = 2 + 3*v
	}
	d, err := NewData("y", y, "x", x)
	require.NoError(t, err)

	fit, err := OLS(d)
	require.NoError(t, err)
	assert.Equal(t, model.ModelOLS, fit.Kind)
	assert.Equal(t, 6, fit.N)

	b0, ok := fit.Coef("(Intercept)")
	require.True(t, ok)
	assert.InDelta(t, 2.0, b0.Estimate, 1e-9)
	b1, ok := fit.Coef("x")
	require.True(t, ok)
	assert.InDelta(t, 3.0, b1.Estimate, 1e-9)
	assert.InDelta(t, 1.0, fit.RSquared, 1e-9)
}

func TestOLS_NoisyFit(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	x := predictor(rng, 200)
	y := make([]float64, len(x))
	for i := range x {
		y[i] = 1 - 0.5*x[i] + rng.NormFloat64()
	}
	d, err := NewData("y", y, "x", x)
	require.NoError(t, err)

	fit, err := OLS(d)
	require.NoError(t, err)
	b1, _ := fit.Coef("x")
	assert.InDelta(t, -0.5, b1.Estimate, 0.1)
	assert.Less(t, b1.PValue, 1e-6)
	assert.Greater(t, b1.StdError, 0.0)
	assert.Greater(t, fit.FStat, 0.0)
	assert.Less(t, fit.FPValue, 1e-6)
	assert.InDelta(t, 1.0, fit.Sigma2, 0.3)
	assert.Less(t, fit.AdjRSquared, fit.RSquared)
}

func TestOLS_TooFewObservations(t *testing.T) {
	d, err := NewData("y", []float64{1, 2}, "x", []float64{1, 2})
	require.NoError(t, err)
	_, err = OLS(d)
	assert.Error(t, err)
}

func TestNewData_LengthMismatch(t *testing.T) {
	_, err := NewData("y", []float64{1, 2, 3}, "x", []float64{1, 2})
	assert.Error(t, err)
}

func TestLag_RecoversRho(t *testing.T) {
	w := gridWeights(t, 15)
	d := lagData(t, w, 0.5, 0.01)

	fit, err := Lag(d, w)
	require.NoError(t, err)
	require.NotNil(t, fit.Spatial)
	assert.Equal(t, model.ModelLag, fit.Kind)
	assert.Equal(t, "rho", fit.Spatial.Name)
	assert.InDelta(t, 0.5, fit.Spatial.Estimate, 0.05)
	assert.Greater(t, fit.Spatial.StdError, 0.0)
	assert.Less(t, fit.Spatial.LRPValue, 0.01)

	b1, _ := fit.Coef("x")
	assert.InDelta(t, 3.0, b1.Estimate, 0.05)
}

func TestLag_BeatsOLSOnLagData(t *testing.T) {
	w := gridWeights(t, 15)
	d := lagData(t, w, 0.5, 0.01)

	ols, err := OLS(d)
	require.NoError(t, err)
	lag, err := Lag(d, w)
	require.NoError(t, err)
	assert.Less(t, lag.AIC, ols.AIC)

	rows := CompareAIC(ols, lag, nil)
	require.Len(t, rows, 2)
	assert.Equal(t, model.ModelLag, rows[0].Kind)
	assert.True(t, rows[0].Best)
	assert.False(t, rows[1].Best)
	assert.Zero(t, rows[0].Delta)
	assert.Greater(t, rows[1].Delta, 0.0)
}

func TestError_RecoversLambda(t *testing.T) {
	w := gridWeights(t, 20)
	d := errorData(t, w, 0.5, 1)

	fit, err := Error(d, w)
	require.NoError(t, err)
	require.NotNil(t, fit.Spatial)
	assert.Equal(t, model.ModelError, fit.Kind)
	assert.Equal(t, "lambda", fit.Spatial.Name)
	assert.InDelta(t, 0.5, fit.Spatial.Estimate, 0.25)
	assert.Greater(t, fit.Spatial.StdError, 0.0)

	b1, _ := fit.Coef("x")
	assert.InDelta(t, 3.0, b1.Estimate, 0.2)
}

func TestSpatial_ConstantResponseFailsToConverge(t *testing.T) {
	for _, c := range []float64{4, 0.3, 0.1} {
		w := gridWeights(t, 5)
		y := make([]float64, w.N())
		x := make([]float64, w.N())
		for i := range y {
			y[i] = c
			x[i] = float64(i % 3)
		}
		d, err := NewData("y", y, "x", x)
		require.NoError(t, err)

		_, err = Lag(d, w)
		require.Error(t, err)
		assert.True(t, model.IsConvergence(err), "c=%v", c)

		_, err = Error(d, w)
		require.Error(t, err)
		assert.True(t, model.IsConvergence(err), "c=%v", c)
	}
}

func TestSpatial_WeightsSizeMismatch(t *testing.T) {
	w := gridWeights(t, 3)
	d := lagData(t, gridWeights(t, 4), 0.3, 0.1)
	_, err := Lag(d, w)
	assert.Error(t, err)
	assert.False(t, model.IsConvergence(err))
}

func TestCompareAIC_Empty(t *testing.T) {
	assert.Empty(t, CompareAIC())
}

func TestLag_IndependentDataGivesSmallRho(t *testing.T) {
	w := gridWeights(t, 15)
	d := lagData(t, w, 0, 1)

	fit, err := Lag(d, w)
	require.NoError(t, err)
	assert.InDelta(t, 0, fit.Spatial.Estimate, 0.2)
}
