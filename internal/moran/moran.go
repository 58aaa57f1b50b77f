// Package moran computes global Moran's I with the randomisation variance
// and an optional seeded permutation test.
package moran

import (
	"math"
	"math/rand/v2"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sells-group/accessmap/internal/model"
	"github.com/sells-group/accessmap/internal/weights"
)

// Options controls the permutation test. Permutations <= 0 skips it.
type Options struct {
	Permutations int
	Seed         uint64
}

// Test computes Moran's I of x over w.
func Test(column string, x []float64, w *weights.Weights, opts Options) (*model.MoranResult, error) {
	n := len(x)
	if n != w.N() {
		return nil, eris.Errorf("moran: %s has %d values, weights cover %d regions", column, n, w.N())
	}
	if n < 4 {
		return nil, eris.Errorf("moran: %s needs at least 4 values, got %d", column, n)
	}

	fn := float64(n)
	res := &model.MoranResult{Column: column, N: n, Expected: -1 / (fn - 1)}

	mean := stat.Mean(x, nil)
	if constant(x, mean) {
		res.Constant = true
		res.PValue = 1
		res.PermPValue = 1
		zap.L().Warn("moran: column has no variance",
			zap.String("component", "moran"),
			zap.String("column", column),
		)
		return res, nil
	}

	z := make([]float64, n)
	var m2, m4 float64
	for i, v := range x {
		z[i] = v - mean
		m2 += z[i] * z[i]
		m4 += z[i] * z[i] * z[i] * z[i]
	}
	sums := w.Sums()
	if sums.S0 == 0 {
		return nil, eris.Errorf("moran: weights for %s have no links", column)
	}
	res.I = statistic(z, m2, sums.S0, w)

	// Cliff and Ord variance under randomisation.
	b2 := fn * m4 / (m2 * m2)
	s0sq := sums.S0 * sums.S0
	num := fn*((fn*fn-3*fn+3)*sums.S1-fn*sums.S2+3*s0sq) -
		b2*((fn*fn-fn)*sums.S1-2*fn*sums.S2+6*s0sq)
	den := (fn - 1) * (fn - 2) * (fn - 3) * s0sq
	res.Variance = num/den - res.Expected*res.Expected
	if res.Variance > 0 {
		res.Z = (res.I - res.Expected) / math.Sqrt(res.Variance)
		res.PValue = 2 * distuv.UnitNormal.Survival(math.Abs(res.Z))
	} else {
		res.PValue = 1
	}

	if opts.Permutations > 0 {
		res.Permutations = opts.Permutations
		res.PermPValue = permute(z, m2, sums.S0, w, res.I, res.Expected, opts)
	}

	zap.L().Debug("moran's I computed",
		zap.String("component", "moran"),
		zap.String("column", column),
		zap.Float64("i", res.I),
		zap.Float64("z", res.Z),
		zap.Float64("p", res.PValue),
	)
	return res, nil
}

// constant reports whether every value lies within rounding noise of the
// mean. Centring a constant like 0.3 leaves tiny nonzero residues.
func constant(x []float64, mean float64) bool {
	tol := 1e-12 * math.Max(1, math.Abs(mean))
	for _, v := range x {
		if math.Abs(v-mean) > tol {
			return false
		}
	}
	return true
}

// statistic returns (n/S0)·z'Wz/z'z for centred z.
func statistic(z []float64, m2, s0 float64, w *weights.Weights) float64 {
	lag := w.Lag(z)
	var cross float64
	for i := range z {
		cross += z[i] * lag[i]
	}
	return float64(len(z)) / s0 * cross / m2
}

// permute returns the two-sided pseudo p-value (count+1)/(perms+1), where
// count is the number of shuffles at least as far from E[I] as observed.
func permute(z []float64, m2, s0 float64, w *weights.Weights, observed, expected float64, opts Options) float64 {
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	shuffled := append([]float64(nil), z...)
	dev := math.Abs(observed - expected)

	var count int
	for range opts.Permutations {
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		if math.Abs(statistic(shuffled, m2, s0, w)-expected) >= dev {
			count++
		}
	}
	return float64(count+1) / float64(opts.Permutations+1)
}
