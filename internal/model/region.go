package model

import (
	"github.com/twpayne/go-geom"
)

// Region is one areal analysis unit (a census tract).
type Region struct {
	GEOID    string             `json:"geoid"`
	Name     string             `json:"name"`
	Geometry *geom.MultiPolygon `json:"-"`

	// Fraction is the demographic percentage; valid only when HasFraction.
	Fraction    float64 `json:"fraction"`
	HasFraction bool    `json:"has_fraction"`

	// AccessCount is the number of qualifying store buffers intersecting the region.
	AccessCount int `json:"access_count"`
}

// Store is a point location with a name and a status attribute.
type Store struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Status   string      `json:"status"`
	Location *geom.Point `json:"-"`

	// Qualifies is set by the filter step.
	Qualifies bool `json:"qualifies"`
}

// Buffer is the fixed-radius disk around a qualifying store.
type Buffer struct {
	StoreID string
	Polygon *geom.Polygon
}

// Demographics maps a region identifier to its demographic percentage.
// Identifiers present with a missing value are not stored.
type Demographics map[string]float64

// RegionIndex returns a GEOID → slice index lookup.
func RegionIndex(regions []Region) map[string]int {
	idx := make(map[string]int, len(regions))
	for i, r := range regions {
		idx[r.GEOID] = i
	}
	return idx
}
