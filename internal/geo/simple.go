package geo

import (
	sf "github.com/peterstace/simplefeatures/geom"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
)

// Simple converts g into a simplefeatures geometry through WKB so that
// topological predicates can run on it. Rings are taken as drawn; TIGER
// and store layers are not re-validated.
func Simple(g geom.T) (sf.Geometry, error) {
	b, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return sf.Geometry{}, eris.Wrapf(err, "geo: encode %T as wkb", g)
	}
	out, err := sf.UnmarshalWKB(b, sf.NoValidate{})
	if err != nil {
		return sf.Geometry{}, eris.Wrapf(err, "geo: decode %T wkb", g)
	}
	return out, nil
}

// Intersects reports whether a and b share at least one point, boundaries
// included.
func Intersects(a, b geom.T) (bool, error) {
	sa, err := Simple(a)
	if err != nil {
		return false, err
	}
	sb, err := Simple(b)
	if err != nil {
		return false, err
	}
	return sf.Intersects(sa, sb), nil
}
