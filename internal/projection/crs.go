// Package projection reprojects go-geom geometries between geographic
// coordinates and the planar coordinate reference systems the analysis
// measures distances in.
package projection

import (
	"sort"

	"github.com/rotisserie/eris"
)

// Linear units, in metres.
const (
	UnitMetre      = 1.0
	UnitUSSurveyFt = 1200.0 / 3937.0

	metresPerMile = 1609.344
)

// CRS is a coordinate reference system identified by its EPSG code.
type CRS struct {
	EPSG int
	Name string
	// Unit is the size of one linear unit in metres; zero for geographic CRSs.
	Unit float64
	tm   *tmerc
}

// Geographic reports whether coordinates are longitude/latitude degrees.
func (c *CRS) Geographic() bool { return c.tm == nil }

// UnitsPerMile returns one statute mile expressed in the CRS's linear unit.
func (c *CRS) UnitsPerMile() (float64, error) {
	if c.Geographic() {
		return 0, eris.Errorf("projection: EPSG:%d is geographic and has no linear unit", c.EPSG)
	}
	return metresPerMile / c.Unit, nil
}

// Forward maps longitude/latitude degrees to CRS coordinates.
func (c *CRS) Forward(lon, lat float64) (x, y float64, err error) {
	if c.tm == nil {
		return lon, lat, nil
	}
	x, y, err = c.tm.forward(lon, lat)
	if err != nil {
		return 0, 0, err
	}
	return x / c.Unit, y / c.Unit, nil
}

// Inverse maps CRS coordinates to longitude/latitude degrees.
func (c *CRS) Inverse(x, y float64) (lon, lat float64, err error) {
	if c.tm == nil {
		return x, y, nil
	}
	return c.tm.inverse(x*c.Unit, y*c.Unit)
}

var registry = map[int]*CRS{
	4326: {EPSG: 4326, Name: "WGS 84"},
	4269: {EPSG: 4269, Name: "NAD83"},
	3435: {
		EPSG: 3435,
		Name: "NAD83 / Illinois East (ftUS)",
		Unit: UnitUSSurveyFt,
		tm:   newTmerc("GRS80", 36+40.0/60, -(88 + 20.0/60), 0.999975, 300000, 0),
	},
	3436: {
		EPSG: 3436,
		Name: "NAD83 / Illinois West (ftUS)",
		Unit: UnitUSSurveyFt,
		tm:   newTmerc("GRS80", 36+40.0/60, -90.1666666666667, 0.999941177, 700000, 0),
	},
	26916: {
		EPSG: 26916,
		Name: "NAD83 / UTM zone 16N",
		Unit: UnitMetre,
		tm:   newTmerc("GRS80", 0, -87, 0.9996, 500000, 0),
	},
	32616: {
		EPSG: 32616,
		Name: "WGS 84 / UTM zone 16N",
		Unit: UnitMetre,
		tm:   newTmerc("WGS84", 0, -87, 0.9996, 500000, 0),
	},
}

// Lookup returns the registered CRS for an EPSG code.
func Lookup(epsg int) (*CRS, error) {
	c, ok := registry[epsg]
	if !ok {
		return nil, eris.Errorf("projection: unsupported EPSG:%d (supported: %v)", epsg, Supported())
	}
	return c, nil
}

// Supported lists the registered EPSG codes in ascending order.
func Supported() []int {
	codes := make([]int, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}
