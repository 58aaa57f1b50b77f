package geo

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// ReadGeoJSON reads a FeatureCollection. Polygons are promoted to
// MultiPolygons; non-string properties are formatted with fmt.
func ReadGeoJSON(path string, fields []string) ([]Feature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: read %s", path)
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrapf(err, "geo: parse geojson %s", path)
	}

	wanted := keep(fields)
	out := make([]Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		g := f.Geometry
		if p, ok := g.(*geom.Polygon); ok {
			mp := geom.NewMultiPolygon(p.Layout()).SetSRID(p.SRID())
			if err := mp.Push(p); err != nil {
				return nil, eris.Wrap(err, "geo: promote polygon")
			}
			g = mp
		}

		attrs := make(map[string]string, len(f.Properties))
		for k, v := range f.Properties {
			if !wanted(k) || v == nil {
				continue
			}
			switch tv := v.(type) {
			case string:
				attrs[k] = tv
			case float64:
				attrs[k] = formatNumber(tv)
			default:
				attrs[k] = fmt.Sprint(tv)
			}
		}
		if f.ID != "" {
			if _, ok := attrs["id"]; !ok && wanted("id") {
				attrs["id"] = f.ID
			}
		}
		out = append(out, Feature{Geometry: g, Attrs: attrs})
	}
	return out, nil
}

// WriteGeoJSON writes features as a FeatureCollection.
func WriteGeoJSON(path string, features []*geojson.Feature) error {
	fc := geojson.FeatureCollection{Features: features}
	data, err := json.MarshalIndent(&fc, "", "  ")
	if err != nil {
		return eris.Wrap(err, "geo: encode geojson")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "geo: write %s", path)
	}
	return nil
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}
