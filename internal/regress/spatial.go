package regress

import (
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sells-group/accessmap/internal/model"
	"github.com/sells-group/accessmap/internal/weights"
)

// gridPoints is the size of the coarse scan that seeds the optimiser.
const gridPoints = 199

// boundaryTol is how close (as a fraction of the interval) an estimate may
// come to the stationarity bounds before it is treated as a boundary solution.
const boundaryTol = 1e-6

// spatialProblem carries what both spatial models share.
type spatialProblem struct {
	d      *Data
	w      *weights.Weights
	eig    []float64
	lo, hi float64
}

func newSpatialProblem(d *Data, w *weights.Weights, kind model.ModelKind) (*spatialProblem, error) {
	if err := d.check(2); err != nil {
		return nil, err
	}
	if w.N() != len(d.Y) {
		return nil, eris.Errorf("regress: weights cover %d regions, data has %d", w.N(), len(d.Y))
	}
	if lo, hi := floats.Min(d.Y), floats.Max(d.Y); hi-lo <= 1e-12*math.Max(1, math.Abs(stat.Mean(d.Y, nil))) {
		return nil, &model.ModelConvergenceError{Model: kind, Reason: "response has no variance"}
	}
	eig, err := w.Eigenvalues()
	if err != nil {
		return nil, &model.ModelConvergenceError{Model: kind, Reason: "eigenvalues", Err: err}
	}
	lmin, lmax := eig[0], eig[len(eig)-1]
	if lmin >= 0 || lmax <= 0 {
		return nil, &model.ModelConvergenceError{Model: kind, Reason: "weights have no negative and positive eigenvalues"}
	}
	return &spatialProblem{d: d, w: w, eig: eig, lo: 1 / lmin, hi: 1 / lmax}, nil
}

// logDet is ln|I - aW| = Σ ln(1 - aλ_i).
func (sp *spatialProblem) logDet(a float64) float64 {
	var s float64
	for _, l := range sp.eig {
		s += math.Log(1 - a*l)
	}
	return s
}

func (sp *spatialProblem) toParam(t float64) float64 {
	return sp.lo + (sp.hi-sp.lo)/(1+math.Exp(-t))
}

func (sp *spatialProblem) fromParam(a float64) float64 {
	u := (a - sp.lo) / (sp.hi - sp.lo)
	return math.Log(u / (1 - u))
}

// maximise finds the parameter in (lo, hi) maximising the concentrated
// log-likelihood ll: a coarse scan followed by Nelder-Mead on the logit scale.
func (sp *spatialProblem) maximise(kind model.ModelKind, ll func(a float64) float64) (float64, error) {
	best, bestLL := 0.0, math.Inf(-1)
	for k := 1; k <= gridPoints; k++ {
		a := sp.lo + (sp.hi-sp.lo)*float64(k)/float64(gridPoints+1)
		if v := ll(a); v > bestLL {
			best, bestLL = a, v
		}
	}
	if math.IsInf(bestLL, -1) || math.IsNaN(bestLL) {
		return 0, &model.ModelConvergenceError{Model: kind, Reason: "log-likelihood is not finite on the parameter interval"}
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			v := ll(sp.toParam(x[0]))
			if math.IsNaN(v) {
				return math.Inf(1)
			}
			return -v
		},
	}
	res, err := optimize.Minimize(problem, []float64{sp.fromParam(best)}, nil, &optimize.NelderMead{})
	if err != nil {
		return 0, &model.ModelConvergenceError{Model: kind, Reason: "optimiser failed", Err: err}
	}
	a := sp.toParam(res.X[0])
	if -res.F < bestLL {
		a = best
	}

	span := sp.hi - sp.lo
	if a-sp.lo < boundaryTol*span || sp.hi-a < boundaryTol*span {
		return 0, &model.ModelConvergenceError{Model: kind, Reason: "estimate on the boundary of the parameter space"}
	}
	zap.L().Debug("spatial parameter estimated",
		zap.String("component", "regress"),
		zap.String("model", string(kind)),
		zap.Float64("estimate", a),
		zap.Int("evaluations", res.Stats.FuncEvaluations),
	)
	return a, nil
}

// spatialInverse returns W(I - aW)^{-1}.
func (sp *spatialProblem) spatialInverse(a float64) (*mat.Dense, error) {
	n := sp.w.N()
	W := sp.w.Dense()
	A := mat.NewDense(n, n, nil)
	for i := range n {
		A.Set(i, i, 1)
	}
	var aW mat.Dense
	aW.Scale(a, W)
	A.Sub(A, &aW)

	var inv mat.Dense
	if err := inv.Inverse(A); err != nil {
		return nil, eris.Wrap(err, "regress: invert I - aW")
	}
	var out mat.Dense
	out.Mul(W, &inv)
	return &out, nil
}

func trace(m mat.Matrix) float64 {
	r, _ := m.Dims()
	var s float64
	for i := range r {
		s += m.At(i, i)
	}
	return s
}

// traceProducts returns tr(M·M) and tr(Mᵀ·M).
func traceProducts(m *mat.Dense) (float64, float64) {
	r, c := m.Dims()
	var mm, mtm float64
	for i := range r {
		for j := range c {
			mij := m.At(i, j)
			mm += mij * m.At(j, i)
			mtm += mij * mij
		}
	}
	return mm, mtm
}

func spatialResult(kind model.ModelKind, d *Data, beta []float64, cov *mat.Dense, paramName string, a, sigma2, ll, llOLS float64) *model.FitResult {
	n, p := d.dims()
	coefs := make([]model.Coefficient, p)
	for j := range p {
		se := math.Sqrt(cov.At(j, j))
		z := beta[j] / se
		coefs[j] = model.Coefficient{
			Name: d.Names[j], Estimate: beta[j], StdError: se, Statistic: z, PValue: twoSidedNormal(z),
		}
	}

	se := math.Sqrt(cov.At(p, p))
	z := a / se
	lr := 2 * (ll - llOLS)
	if lr < 0 {
		lr = 0
	}
	r := &model.FitResult{
		Kind:         kind,
		Response:     d.Response,
		N:            n,
		Coefficients: coefs,
		Sigma2:       sigma2,
		LogLik:       ll,
		Spatial: &model.SpatialParam{
			Name:     paramName,
			Estimate: a,
			StdError: se,
			Z:        z,
			PValue:   twoSidedNormal(z),
			LR:       lr,
			LRPValue: distuv.ChiSquared{K: 1}.Survival(lr),
		},
	}
	r.AIC = -2*ll + 2*float64(p+2)
	return r
}

// Lag fits the spatial lag model y = ρWy + Xβ + ε by maximum likelihood.
func Lag(d *Data, w *weights.Weights) (*model.FitResult, error) {
	sp, err := newSpatialProblem(d, w, model.ModelLag)
	if err != nil {
		return nil, err
	}
	n, p := d.dims()

	beta0, e0, err := leastSquares(d.X, d.Y)
	if err != nil {
		return nil, err
	}
	wy := w.Lag(d.Y)
	betaL, eL, err := leastSquares(d.X, wy)
	if err != nil {
		return nil, err
	}

	sse := func(rho float64) float64 {
		var s float64
		for i := range e0 {
			r := e0[i] - rho*eL[i]
			s += r * r
		}
		return s
	}
	if sse(0) <= 0 && sse(0.5) <= 0 {
		return nil, &model.ModelConvergenceError{Model: model.ModelLag, Reason: "residual variance is zero"}
	}
	ll := func(rho float64) float64 {
		return gaussLogLik(n, sse(rho), sp.logDet(rho))
	}

	rho, err := sp.maximise(model.ModelLag, ll)
	if err != nil {
		return nil, err
	}

	beta := make([]float64, p)
	for j := range p {
		beta[j] = beta0[j] - rho*betaL[j]
	}
	sigma2 := sse(rho) / float64(n)

	// Information matrix over (β, ρ, σ²).
	WA, err := sp.spatialInverse(rho)
	if err != nil {
		return nil, &model.ModelConvergenceError{Model: model.ModelLag, Reason: "information matrix", Err: err}
	}
	var xb, wxb mat.VecDense
	xb.MulVec(d.X, mat.NewVecDense(p, beta))
	wxb.MulVec(WA, &xb)
	trMM, trMtM := traceProducts(WA)

	k := p + 2
	info := mat.NewSymDense(k, nil)
	var xtx mat.Dense
	xtx.Mul(d.X.T(), d.X)
	var xtwxb mat.VecDense
	xtwxb.MulVec(d.X.T(), &wxb)
	for i := range p {
		for j := i; j < p; j++ {
			info.SetSym(i, j, xtx.At(i, j)/sigma2)
		}
		info.SetSym(i, p, xtwxb.AtVec(i)/sigma2)
	}
	info.SetSym(p, p, trMM+trMtM+mat.Dot(&wxb, &wxb)/sigma2)
	info.SetSym(p, p+1, trace(WA)/sigma2)
	info.SetSym(p+1, p+1, float64(n)/(2*sigma2*sigma2))

	var cov mat.Dense
	if err := cov.Inverse(info); err != nil {
		return nil, &model.ModelConvergenceError{Model: model.ModelLag, Reason: "singular information matrix", Err: err}
	}

	llOLS := gaussLogLik(n, sse(0), 0)
	return spatialResult(model.ModelLag, d, beta, &cov, "rho", rho, sigma2, ll(rho), llOLS), nil
}

// filtered returns y - aWy and X - aWX.
func filtered(d *Data, w *weights.Weights, a float64) ([]float64, *mat.Dense) {
	n, p := d.dims()
	wy := w.Lag(d.Y)
	ys := make([]float64, n)
	for i := range n {
		ys[i] = d.Y[i] - a*wy[i]
	}
	Xs := mat.NewDense(n, p, nil)
	col := make([]float64, n)
	for j := range p {
		mat.Col(col, j, d.X)
		wc := w.Lag(col)
		for i := range n {
			Xs.Set(i, j, col[i]-a*wc[i])
		}
	}
	return ys, Xs
}

// Error fits the spatial error model y = Xβ + u, u = λWu + ε by maximum
// likelihood.
func Error(d *Data, w *weights.Weights) (*model.FitResult, error) {
	sp, err := newSpatialProblem(d, w, model.ModelError)
	if err != nil {
		return nil, err
	}
	n, p := d.dims()

	var solveErr error
	sse := func(lambda float64) float64 {
		ys, Xs := filtered(d, w, lambda)
		_, res, err := leastSquares(Xs, ys)
		if err != nil {
			solveErr = err
			return math.NaN()
		}
		return sumSquares(res)
	}
	if s := sse(0); s <= 0 {
		return nil, &model.ModelConvergenceError{Model: model.ModelError, Reason: "residual variance is zero"}
	}
	ll := func(lambda float64) float64 {
		s := sse(lambda)
		if s <= 0 || math.IsNaN(s) {
			return math.Inf(-1)
		}
		return gaussLogLik(n, s, sp.logDet(lambda))
	}

	lambda, err := sp.maximise(model.ModelError, ll)
	if err != nil {
		if solveErr != nil {
			return nil, &model.ModelConvergenceError{Model: model.ModelError, Reason: "least squares", Err: solveErr}
		}
		return nil, err
	}

	ys, Xs := filtered(d, w, lambda)
	beta, res, err := leastSquares(Xs, ys)
	if err != nil {
		return nil, err
	}
	sigma2 := sumSquares(res) / float64(n)

	var xtx, xtxInv mat.Dense
	xtx.Mul(Xs.T(), Xs)
	if err := xtxInv.Inverse(&xtx); err != nil {
		return nil, &model.ModelConvergenceError{Model: model.ModelError, Reason: "singular filtered design", Err: err}
	}

	WB, err := sp.spatialInverse(lambda)
	if err != nil {
		return nil, &model.ModelConvergenceError{Model: model.ModelError, Reason: "information matrix", Err: err}
	}
	trMM, trMtM := traceProducts(WB)
	// β is asymptotically independent of (λ, σ²); invert the 2×2 block.
	a11 := trMM + trMtM
	a12 := trace(WB) / sigma2
	a22 := float64(n) / (2 * sigma2 * sigma2)
	det := a11*a22 - a12*a12
	if det <= 0 {
		return nil, &model.ModelConvergenceError{Model: model.ModelError, Reason: "singular information matrix"}
	}

	cov := mat.NewDense(p+1, p+1, nil)
	for i := range p {
		for j := range p {
			cov.Set(i, j, sigma2*xtxInv.At(i, j))
		}
	}
	cov.Set(p, p, a22/det)

	_, resOLS, err := leastSquares(d.X, d.Y)
	if err != nil {
		return nil, err
	}
	llOLS := gaussLogLik(n, sumSquares(resOLS), 0)
	return spatialResult(model.ModelError, d, beta, cov, "lambda", lambda, sigma2, ll(lambda), llOLS), nil
}
