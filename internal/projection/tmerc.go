package projection

import (
	"fmt"
	"sync"

	"github.com/go-spatial/proj/core"
	_ "github.com/go-spatial/proj/operations" // registers tmerc
	"github.com/go-spatial/proj/support"
	"github.com/rotisserie/eris"
)

// tmerc is a Transverse Mercator zone evaluated by go-spatial/proj. The proj
// string carries the geodetic part in metres; false origins are applied here
// so that foot-based zones share one code path.
type tmerc struct {
	def    string
	fe, fn float64 // metres

	once sync.Once
	conv core.IConvertLPToXY
	err  error
}

func newTmerc(ellps string, lat0Deg, lon0Deg, k0, feMetres, fnMetres float64) *tmerc {
	return &tmerc{
		def: fmt.Sprintf("+proj=tmerc +ellps=%s +lat_0=%.12f +lon_0=%.12f +k_0=%.9f +x_0=0 +y_0=0 +units=m",
			ellps, lat0Deg, lon0Deg, k0),
		fe: feMetres,
		fn: fnMetres,
	}
}

func (t *tmerc) converter() (core.IConvertLPToXY, error) {
	t.once.Do(func() {
		ps, err := support.NewProjString(t.def)
		if err != nil {
			t.err = eris.Wrapf(err, "projection: parse %q", t.def)
			return
		}
		_, op, err := core.NewSystem(ps)
		if err != nil {
			t.err = eris.Wrapf(err, "projection: build %q", t.def)
			return
		}
		conv, ok := op.(core.IConvertLPToXY)
		if !ok {
			t.err = eris.Errorf("projection: %q is not a forward projection", t.def)
			return
		}
		t.conv = conv
	})
	return t.conv, t.err
}

// forward projects geographic degrees to easting/northing in metres.
func (t *tmerc) forward(lonDeg, latDeg float64) (x, y float64, err error) {
	conv, err := t.converter()
	if err != nil {
		return 0, 0, err
	}
	xy, err := conv.Forward(&core.CoordLP{Lam: support.DDToR(lonDeg), Phi: support.DDToR(latDeg)})
	if err != nil {
		return 0, 0, eris.Wrapf(err, "projection: forward (%f, %f)", lonDeg, latDeg)
	}
	return xy.X + t.fe, xy.Y + t.fn, nil
}

// inverse maps easting/northing in metres back to geographic degrees.
func (t *tmerc) inverse(x, y float64) (lonDeg, latDeg float64, err error) {
	conv, err := t.converter()
	if err != nil {
		return 0, 0, err
	}
	lp, err := conv.Inverse(&core.CoordXY{X: x - t.fe, Y: y - t.fn})
	if err != nil {
		return 0, 0, eris.Wrapf(err, "projection: inverse (%f, %f)", x, y)
	}
	return support.RToDD(lp.Lam), support.RToDD(lp.Phi), nil
}
