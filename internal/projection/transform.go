package projection

import (
	"math"

	"github.com/golang/geo/s2"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// earthRadiusMetres is the mean Earth radius used to turn s2 angles into metres.
const earthRadiusMetres = 6371008.8

// Transformer converts coordinates from a source CRS to a target CRS,
// passing through geographic longitude/latitude.
type Transformer struct {
	From *CRS
	To   *CRS
}

// NewTransformer looks up both EPSG codes and returns a Transformer.
func NewTransformer(fromEPSG, toEPSG int) (*Transformer, error) {
	from, err := Lookup(fromEPSG)
	if err != nil {
		return nil, err
	}
	to, err := Lookup(toEPSG)
	if err != nil {
		return nil, err
	}
	return &Transformer{From: from, To: to}, nil
}

// Apply transforms a single coordinate pair.
func (t *Transformer) Apply(x, y float64) (float64, float64, error) {
	if t.From.EPSG == t.To.EPSG {
		return x, y, nil
	}
	lon, lat, err := t.From.Inverse(x, y)
	if err != nil {
		return 0, 0, err
	}
	return t.To.Forward(lon, lat)
}

// Project returns a reprojected copy of g. Only XY-prefixed layouts are
// supported; extra ordinates (Z, M) are carried through unchanged.
func (t *Transformer) Project(g geom.T) (geom.T, error) {
	var out geom.T
	srid := t.To.EPSG
	switch v := g.(type) {
	case *geom.Point:
		out = v.Clone().SetSRID(srid)
	case *geom.MultiPoint:
		out = v.Clone().SetSRID(srid)
	case *geom.LineString:
		out = v.Clone().SetSRID(srid)
	case *geom.MultiLineString:
		out = v.Clone().SetSRID(srid)
	case *geom.Polygon:
		out = v.Clone().SetSRID(srid)
	case *geom.MultiPolygon:
		out = v.Clone().SetSRID(srid)
	default:
		return nil, eris.Errorf("projection: unsupported geometry %T", g)
	}

	flat := out.FlatCoords()
	stride := out.Stride()
	for i := 0; i+1 < len(flat); i += stride {
		x, y, err := t.Apply(flat[i], flat[i+1])
		if err != nil {
			return nil, eris.Wrapf(err, "projection: coordinate (%v, %v) to EPSG:%d", flat[i], flat[i+1], t.To.EPSG)
		}
		if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
			return nil, eris.Errorf("projection: coordinate (%v, %v) is outside EPSG:%d", flat[i], flat[i+1], t.To.EPSG)
		}
		flat[i], flat[i+1] = x, y
	}

	return out, nil
}

// RoundTripError projects lon/lat into crs and back and returns the
// great-circle distance between the original and recovered points in metres.
func RoundTripError(crs *CRS, lon, lat float64) (float64, error) {
	x, y, err := crs.Forward(lon, lat)
	if err != nil {
		return 0, err
	}
	lon2, lat2, err := crs.Inverse(x, y)
	if err != nil {
		return 0, err
	}
	a := s2.LatLngFromDegrees(lat, lon)
	b := s2.LatLngFromDegrees(lat2, lon2)
	d := a.Distance(b).Radians() * earthRadiusMetres
	if math.IsNaN(d) {
		return 0, eris.Errorf("projection: EPSG:%d round trip of (%f, %f) is undefined", crs.EPSG, lon, lat)
	}
	return d, nil
}

// CheckRoundTrip samples the vertices of g (geographic coordinates) and fails
// when any round trip through crs drifts further than tolMetres.
func CheckRoundTrip(crs *CRS, g geom.T, tolMetres float64) error {
	flat := g.FlatCoords()
	stride := g.Stride()
	if stride == 0 {
		return nil
	}
	n := len(flat) / stride
	step := 1
	if n > 64 {
		step = n / 64
	}
	for i := 0; i < n; i += step {
		lon, lat := flat[i*stride], flat[i*stride+1]
		d, err := RoundTripError(crs, lon, lat)
		if err != nil {
			return err
		}
		if d > tolMetres {
			return eris.Errorf("projection: EPSG:%d round trip error %.3fm at (%f, %f) exceeds %.3fm",
				crs.EPSG, d, lon, lat, tolMetres)
		}
	}
	return nil
}

// ProjectChecked verifies the round trip through the target CRS (geographic
// sources only; tolMetres <= 0 disables the check) and then projects g.
func (t *Transformer) ProjectChecked(g geom.T, tolMetres float64) (geom.T, error) {
	if tolMetres > 0 && t.From.Geographic() && !t.To.Geographic() {
		if err := CheckRoundTrip(t.To, g, tolMetres); err != nil {
			return nil, err
		}
	}
	return t.Project(g)
}
