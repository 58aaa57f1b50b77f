// Package geo reads vector layers (ESRI shapefiles and GeoJSON) into go-geom
// geometries with a flat string attribute table.
package geo

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Feature is one record of a vector layer.
type Feature struct {
	Geometry geom.T
	Attrs    map[string]string
}

// Attr returns the attribute value for name, matching case-insensitively.
func (f Feature) Attr(name string) string {
	if v, ok := f.Attrs[name]; ok {
		return v
	}
	for k, v := range f.Attrs {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// Read dispatches on the file extension. fields limits the attributes kept;
// nil keeps all of them.
func Read(path string, fields []string) ([]Feature, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return ReadShapefile(path, fields)
	case ".geojson", ".json":
		return ReadGeoJSON(path, fields)
	default:
		return nil, eris.Errorf("geo: unsupported vector format %q", filepath.Ext(path))
	}
}

func keep(fields []string) func(string) bool {
	if fields == nil {
		return func(string) bool { return true }
	}
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[strings.ToLower(f)] = true
	}
	return func(name string) bool { return set[strings.ToLower(name)] }
}
