package geo

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"
)

// ReadShapefile reads every record of a point or polygon shapefile.
// Records with null or malformed shapes are skipped and counted in the log.
func ReadShapefile(path string, fields []string) ([]Feature, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	wanted := keep(fields)
	type column struct {
		idx  int
		name string
	}
	var cols []column
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		if wanted(name) {
			cols = append(cols, column{idx: i, name: name})
		}
	}

	var out []Feature
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		g := shapeToGeom(shape)
		if g == nil {
			skipped++
			continue
		}

		attrs := make(map[string]string, len(cols))
		for _, c := range cols {
			val := strings.TrimRight(reader.Attribute(c.idx), "\x00")
			attrs[c.name] = strings.TrimSpace(val)
		}
		out = append(out, Feature{Geometry: g, Attrs: attrs})
	}

	if skipped > 0 {
		zap.L().Warn("geo: skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped),
		)
	}
	return out, nil
}

func shapeToGeom(s shp.Shape) geom.T {
	switch shape := s.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{shape.X, shape.Y})
	case *shp.Polygon:
		if mp := PolygonToMultiPolygon(shape); mp != nil {
			return mp
		}
	}
	return nil
}

// PolygonToMultiPolygon converts a shapefile polygon to a MultiPolygon.
// Shapefile outer rings run clockwise and holes counter-clockwise; each
// hole is attached to the outer ring that contains it.
func PolygonToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var shells [][][]float64
	var holes [][]float64
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 4 {
			zap.L().Debug("geo: skipping degenerate ring", zap.Int32("part", i))
			continue
		}

		ring := make([]float64, 0, 2*(end-start))
		for j := start; j < end; j++ {
			ring = append(ring, p.Points[j].X, p.Points[j].Y)
		}
		if !xy.IsRingCounterClockwise(geom.XY, ring) {
			shells = append(shells, [][]float64{ring})
		} else {
			holes = append(holes, ring)
		}
	}

	// A layer written with the opposite winding has no clockwise rings.
	if len(shells) == 0 {
		for _, h := range holes {
			shells = append(shells, [][]float64{h})
		}
		holes = nil
	}

	for _, h := range holes {
		owner := 0
		for k, s := range shells {
			if xy.IsPointInRing(geom.XY, geom.Coord{h[0], h[1]}, s[0]) {
				owner = k
				break
			}
		}
		shells[owner] = append(shells[owner], h)
	}

	mp := geom.NewMultiPolygon(geom.XY)
	for _, rings := range shells {
		var flat []float64
		var ends []int
		for _, r := range rings {
			flat = append(flat, r...)
			ends = append(ends, len(flat))
		}
		if err := mp.Push(geom.NewPolygonFlat(geom.XY, flat, ends)); err != nil {
			zap.L().Debug("geo: skipping malformed polygon part", zap.Error(err))
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
