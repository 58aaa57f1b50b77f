package access

import (
	"math"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/accessmap/internal/model"
)

// Disk approximates the circle of the given radius around center with a
// closed counter-clockwise ring of segments vertices.
func Disk(center *geom.Point, radius float64, segments int) *geom.Polygon {
	cx, cy := center.X(), center.Y()
	flat := make([]float64, 0, 2*(segments+1))
	for k := range segments {
		a := 2 * math.Pi * float64(k) / float64(segments)
		flat = append(flat, cx+radius*math.Cos(a), cy+radius*math.Sin(a))
	}
	flat = append(flat, flat[0], flat[1])
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}).SetSRID(center.SRID())
}

// Buffers returns one disk per qualifying store. radius is in working CRS units.
func Buffers(stores []model.Store, radius float64, segments int) []model.Buffer {
	var out []model.Buffer
	for _, s := range stores {
		if !s.Qualifies || s.Location == nil {
			continue
		}
		out = append(out, model.Buffer{
			StoreID: s.ID,
			Polygon: Disk(s.Location, radius, segments),
		})
	}
	return out
}
