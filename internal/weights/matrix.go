package weights

import (
	"math"
	"slices"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
)

// Dense returns the row-standardised n×n weights matrix.
func (w *Weights) Dense() *mat.Dense {
	n := w.N()
	d := mat.NewDense(n, n, nil)
	for i, nb := range w.Neighbors {
		if len(nb) == 0 {
			continue
		}
		v := 1 / float64(len(nb))
		for _, j := range nb {
			d.Set(i, j, v)
		}
	}
	return d
}

// Symmetric returns D^{-1/2} C D^{-1/2}, where C is the binary contiguity
// matrix and D its row sums. It is similar to the row-standardised matrix
// and so shares its eigenvalues.
func (w *Weights) Symmetric() *mat.SymDense {
	n := w.N()
	s := mat.NewSymDense(n, nil)
	for i, nb := range w.Neighbors {
		for _, j := range nb {
			if j < i {
				continue
			}
			v := 1 / math.Sqrt(float64(len(nb))*float64(len(w.Neighbors[j])))
			s.SetSym(i, j, v)
		}
	}
	return s
}

// Eigenvalues returns the eigenvalues of the row-standardised matrix in
// ascending order.
func (w *Weights) Eigenvalues() ([]float64, error) {
	var es mat.EigenSym
	if ok := es.Factorize(w.Symmetric(), false); !ok {
		return nil, eris.New("weights: eigen decomposition failed")
	}
	vals := es.Values(nil)
	slices.Sort(vals)
	return vals, nil
}

// Sums holds the S0, S1 and S2 constants of the weights.
type Sums struct {
	S0, S1, S2 float64
}

// Sums computes S0 = Σw_ij, S1 = ½Σ(w_ij+w_ji)² and S2 = Σ(w_i.+w_.i)².
func (w *Weights) Sums() Sums {
	n := w.N()
	colSum := make([]float64, n)
	rowSum := make([]float64, n)
	var s Sums
	for i, nb := range w.Neighbors {
		for _, j := range nb {
			wij := w.Weight(i, j)
			wji := w.Weight(j, i)
			s.S0 += wij
			s.S1 += (wij + wji) * (wij + wji)
			rowSum[i] += wij
			colSum[j] += wij
		}
	}
	s.S1 /= 2
	for i := range n {
		s.S2 += (rowSum[i] + colSum[i]) * (rowSum[i] + colSum[i])
	}
	return s
}

// Summary describes the neighbour distribution.
type Summary struct {
	N             int
	Links         int
	MeanNeighbors float64
	MinNeighbors  int
	MaxNeighbors  int
	Islands       []string
}

// Summarize reports neighbour counts.
func (w *Weights) Summarize() Summary {
	s := Summary{N: w.N(), Links: w.Links(), Islands: w.Islands()}
	if s.N == 0 {
		return s
	}
	s.MinNeighbors = math.MaxInt
	for _, nb := range w.Neighbors {
		s.MinNeighbors = min(s.MinNeighbors, len(nb))
		s.MaxNeighbors = max(s.MaxNeighbors, len(nb))
	}
	s.MeanNeighbors = float64(s.Links) / float64(s.N)
	return s
}
