// Package weights builds queen-contiguity spatial weights over region
// polygons.
package weights

import (
	"cmp"
	"math"
	"slices"

	sf "github.com/peterstace/simplefeatures/geom"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/accessmap/internal/geo"
	"github.com/sells-group/accessmap/internal/model"
)

// Options configures Queen.
type Options struct {
	// Precision is the vertex snapping grid in working CRS units.
	Precision float64
	// ZeroPolicy permits regions without neighbours (all-zero rows).
	ZeroPolicy bool
}

// Weights is a symmetric binary contiguity structure, row-standardised on
// access.
type Weights struct {
	IDs        []string
	Neighbors  [][]int
	ZeroPolicy bool

	index map[string]int
}

type vertexKey struct{ x, y int64 }

// Queen links two regions when they share at least one vertex after
// snapping coordinates to opts.Precision, or when their boundaries touch
// elsewhere (a vertex of one lying on an edge of the other).
func Queen(regions []model.Region, opts Options) (*Weights, error) {
	if opts.Precision <= 0 {
		opts.Precision = 1e-6
	}

	byVertex := make(map[vertexKey][]int)
	for i, r := range regions {
		if r.Geometry == nil {
			continue
		}
		seen := make(map[vertexKey]bool)
		flat := r.Geometry.FlatCoords()
		stride := r.Geometry.Stride()
		for k := 0; k+1 < len(flat); k += stride {
			key := vertexKey{
				x: int64(math.Round(flat[k] / opts.Precision)),
				y: int64(math.Round(flat[k+1] / opts.Precision)),
			}
			if !seen[key] {
				seen[key] = true
				byVertex[key] = append(byVertex[key], i)
			}
		}
	}

	sets := make([]map[int]bool, len(regions))
	for i := range sets {
		sets[i] = make(map[int]bool)
	}
	for _, members := range byVertex {
		for _, a := range members {
			for _, b := range members {
				if a != b {
					sets[a][b] = true
				}
			}
		}
	}

	if err := linkTouching(regions, sets, opts.Precision); err != nil {
		return nil, err
	}

	ids := make([]string, len(regions))
	for i, r := range regions {
		ids[i] = r.GEOID
	}
	nb := make([][]int, len(regions))
	for i, s := range sets {
		for j := range s {
			nb[i] = append(nb[i], j)
		}
		slices.Sort(nb[i])
	}

	w := newWeights(ids, nb, opts.ZeroPolicy)
	if err := w.checkIslands(); err != nil {
		return nil, err
	}
	zap.L().Debug("built queen contiguity",
		zap.String("component", "weights"),
		zap.Int("regions", w.N()),
		zap.Int("links", w.Links()),
	)
	return w, nil
}

type extent struct {
	i                      int
	minX, minY, maxX, maxY float64
}

// linkTouching joins pairs the vertex pass missed whose bounds overlap and
// whose geometries intersect, such as T-junctions along a shared edge.
func linkTouching(regions []model.Region, sets []map[int]bool, precision float64) error {
	var boxes []extent
	for i, r := range regions {
		if r.Geometry == nil || r.Geometry.Empty() {
			continue
		}
		b := r.Geometry.Bounds()
		boxes = append(boxes, extent{
			i: i, minX: b.Min(0) - precision, minY: b.Min(1) - precision,
			maxX: b.Max(0) + precision, maxY: b.Max(1) + precision,
		})
	}
	slices.SortFunc(boxes, func(a, b extent) int { return cmp.Compare(a.minX, b.minX) })

	shapes := make(map[int]sf.Geometry)
	shape := func(i int) (sf.Geometry, error) {
		if g, ok := shapes[i]; ok {
			return g, nil
		}
		g, err := geo.Simple(regions[i].Geometry)
		if err != nil {
			return sf.Geometry{}, eris.Wrapf(err, "weights: region %s", regions[i].GEOID)
		}
		shapes[i] = g
		return g, nil
	}

	var added int
	for a := range boxes {
		for b := a + 1; b < len(boxes) && boxes[b].minX <= boxes[a].maxX; b++ {
			p, q := boxes[a], boxes[b]
			if sets[p.i][q.i] || p.minY > q.maxY || q.minY > p.maxY {
				continue
			}
			gp, err := shape(p.i)
			if err != nil {
				return err
			}
			gq, err := shape(q.i)
			if err != nil {
				return err
			}
			if sf.Intersects(gp, gq) {
				sets[p.i][q.i] = true
				sets[q.i][p.i] = true
				added++
			}
		}
	}
	if added > 0 {
		zap.L().Debug("linked regions touching without a shared vertex",
			zap.String("component", "weights"),
			zap.Int("pairs", added),
		)
	}
	return nil
}

func newWeights(ids []string, nb [][]int, zeroPolicy bool) *Weights {
	idx := make(map[string]int, len(ids))
	for i, id := range ids {
		idx[id] = i
	}
	return &Weights{IDs: ids, Neighbors: nb, ZeroPolicy: zeroPolicy, index: idx}
}

func (w *Weights) checkIslands() error {
	if w.ZeroPolicy {
		return nil
	}
	if islands := w.Islands(); len(islands) > 0 {
		return eris.Errorf("weights: %d islands without neighbours (%v); enable zero policy to allow them",
			len(islands), islands)
	}
	return nil
}

// N is the number of regions.
func (w *Weights) N() int { return len(w.IDs) }

// Links is the number of directed neighbour pairs.
func (w *Weights) Links() int {
	var n int
	for _, nb := range w.Neighbors {
		n += len(nb)
	}
	return n
}

// Islands lists regions without neighbours.
func (w *Weights) Islands() []string {
	var out []string
	for i, nb := range w.Neighbors {
		if len(nb) == 0 {
			out = append(out, w.IDs[i])
		}
	}
	return out
}

// Weight returns the row-standardised weight w_ij.
func (w *Weights) Weight(i, j int) float64 {
	nb := w.Neighbors[i]
	if _, ok := slices.BinarySearch(nb, j); !ok {
		return 0
	}
	return 1 / float64(len(nb))
}

// Subset restricts the structure to ids (in that order) and re-standardises.
func (w *Weights) Subset(ids []string) (*Weights, error) {
	pos := make(map[int]int, len(ids))
	for k, id := range ids {
		i, ok := w.index[id]
		if !ok {
			return nil, eris.Errorf("weights: unknown region %q", id)
		}
		pos[i] = k
	}

	nb := make([][]int, len(ids))
	for k, id := range ids {
		for _, j := range w.Neighbors[w.index[id]] {
			if kj, ok := pos[j]; ok {
				nb[k] = append(nb[k], kj)
			}
		}
		slices.Sort(nb[k])
	}

	sub := newWeights(slices.Clone(ids), nb, w.ZeroPolicy)
	if err := sub.checkIslands(); err != nil {
		return nil, err
	}
	return sub, nil
}

// Lag returns Wx.
func (w *Weights) Lag(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, nb := range w.Neighbors {
		if len(nb) == 0 {
			continue
		}
		var s float64
		for _, j := range nb {
			s += x[j]
		}
		out[i] = s / float64(len(nb))
	}
	return out
}
