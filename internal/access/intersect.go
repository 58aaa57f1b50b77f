package access

import (
	sf "github.com/peterstace/simplefeatures/geom"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/accessmap/internal/geo"
	"github.com/sells-group/accessmap/internal/model"
)

// CountIntersections returns, per region, the number of buffers whose disk
// intersects the region. Touching boundaries count.
func CountIntersections(regions []model.Region, buffers []model.Buffer) ([]int, error) {
	disks := make([]sf.Geometry, len(buffers))
	for k, b := range buffers {
		g, err := geo.Simple(b.Polygon)
		if err != nil {
			return nil, eris.Wrapf(err, "access: buffer for store %s", b.StoreID)
		}
		disks[k] = g
	}

	counts := make([]int, len(regions))
	for i, r := range regions {
		if r.Geometry == nil {
			continue
		}
		rb := r.Geometry.Bounds()
		var region sf.Geometry
		converted := false
		for k, b := range buffers {
			if !boundsOverlap(rb, b.Polygon.Bounds()) {
				continue
			}
			if !converted {
				g, err := geo.Simple(r.Geometry)
				if err != nil {
					return nil, eris.Wrapf(err, "access: region %s", r.GEOID)
				}
				region, converted = g, true
			}
			if sf.Intersects(region, disks[k]) {
				counts[i]++
			}
		}
	}
	return counts, nil
}

// PolygonsIntersect reports whether two polygons share at least one point.
// Holes are respected.
func PolygonsIntersect(a, b *geom.Polygon) (bool, error) {
	if a.Empty() || b.Empty() || !boundsOverlap(a.Bounds(), b.Bounds()) {
		return false, nil
	}
	return geo.Intersects(a, b)
}

func boundsOverlap(a, b *geom.Bounds) bool {
	return a.Min(0) <= b.Max(0) && b.Min(0) <= a.Max(0) &&
		a.Min(1) <= b.Max(1) && b.Min(1) <= a.Max(1)
}
