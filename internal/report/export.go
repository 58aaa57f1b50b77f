package report

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/accessmap/internal/geo"
	"github.com/sells-group/accessmap/internal/model"
	"github.com/sells-group/accessmap/internal/projection"
)

var tableHeader = []string{"GEOID", "NAME", "FRACTION", "ACCESS_COUNT"}

// WriteXLSX writes the joined region table to a single-sheet workbook.
// Missing fractions are left blank.
func WriteXLSX(path, sheetName string, regions []model.Region) error {
	if sheetName == "" {
		sheetName = "regions"
	}
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range tableHeader {
		header.AddCell().SetString(h)
	}
	for _, r := range regions {
		row := sheet.AddRow()
		row.AddCell().SetString(r.GEOID)
		row.AddCell().SetString(r.Name)
		frac := row.AddCell()
		if r.HasFraction {
			frac.SetFloat(r.Fraction)
		}
		row.AddCell().SetInt(r.AccessCount)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}

// WriteGeoJSON reprojects regions from the working CRS to WGS84 and writes
// them as a FeatureCollection keyed by GEOID.
func WriteGeoJSON(path string, workingEPSG int, regions []model.Region) error {
	tr, err := projection.NewTransformer(workingEPSG, 4326)
	if err != nil {
		return eris.Wrap(err, "report: geojson transformer")
	}

	features := make([]*geojson.Feature, 0, len(regions))
	for _, r := range regions {
		if r.Geometry == nil {
			continue
		}
		g, err := tr.Project(r.Geometry)
		if err != nil {
			return eris.Wrapf(err, "report: reproject %s", r.GEOID)
		}
		props := map[string]interface{}{
			"name":         r.Name,
			"access_count": r.AccessCount,
			"fraction":     nil,
		}
		if r.HasFraction {
			props["fraction"] = r.Fraction
		}
		features = append(features, &geojson.Feature{ID: r.GEOID, Geometry: g, Properties: props})
	}
	return geo.WriteGeoJSON(path, features)
}
