// Package geotest writes small shapefile and GeoJSON fixtures for tests.
package geotest

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/accessmap/internal/model"
)

// Record is one fixture row: rings (first outer, clockwise) or a single
// point, plus attribute values in field order.
type Record struct {
	Rings [][][2]float64
	Point [2]float64
	Attrs []string
}

// Square returns a clockwise closed ring for the axis-aligned square with
// lower-left corner (x, y) and the given side.
func Square(x, y, side float64) [][2]float64 {
	return [][2]float64{
		{x, y}, {x, y + side}, {x + side, y + side}, {x + side, y}, {x, y},
	}
}

// WritePolygons writes a polygon shapefile under dir and returns the .shp path.
func WritePolygons(tb testing.TB, dir, name string, fields []string, records []Record) string {
	tb.Helper()
	path := filepath.Join(dir, name+".shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(tb, err)
	defer w.Close()

	require.NoError(tb, w.SetFields(stringFields(fields)))
	for i, rec := range records {
		parts := make([][]shp.Point, 0, len(rec.Rings))
		for _, ring := range rec.Rings {
			pts := make([]shp.Point, len(ring))
			for k, c := range ring {
				pts[k] = shp.Point{X: c[0], Y: c[1]}
			}
			parts = append(parts, pts)
		}
		poly := shp.Polygon(*shp.NewPolyLine(parts))
		w.Write(&poly)
		writeAttrs(tb, w, i, rec.Attrs)
	}
	return path
}

// WritePoints writes a point shapefile under dir and returns the .shp path.
func WritePoints(tb testing.TB, dir, name string, fields []string, records []Record) string {
	tb.Helper()
	path := filepath.Join(dir, name+".shp")
	w, err := shp.Create(path, shp.POINT)
	require.NoError(tb, err)
	defer w.Close()

	require.NoError(tb, w.SetFields(stringFields(fields)))
	for i, rec := range records {
		w.Write(&shp.Point{X: rec.Point[0], Y: rec.Point[1]})
		writeAttrs(tb, w, i, rec.Attrs)
	}
	return path
}

// WriteFile writes content to dir/name and returns the path.
func WriteFile(tb testing.TB, dir, name, content string) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	require.NoError(tb, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func stringFields(names []string) []shp.Field {
	out := make([]shp.Field, len(names))
	for i, n := range names {
		out[i] = shp.StringField(n, 64)
	}
	return out
}

func writeAttrs(tb testing.TB, w *shp.Writer, row int, attrs []string) {
	tb.Helper()
	for j, v := range attrs {
		require.NoError(tb, w.WriteAttribute(row, j, v))
	}
}

// GridRegions returns rows×cols square regions of the given side, row-major
// from the origin, with GEOIDs "r{row}c{col}".
func GridRegions(rows, cols int, side float64) []model.Region {
	out := make([]model.Region, 0, rows*cols)
	for r := range rows {
		for c := range cols {
			x, y := float64(c)*side, float64(r)*side
			flat := []float64{x, y, x, y + side, x + side, y + side, x + side, y, x, y}
			mp := geom.NewMultiPolygonFlat(geom.XY, flat, [][]int{{len(flat)}})
			out = append(out, model.Region{
				GEOID:    fmt.Sprintf("r%dc%d", r, c),
				Name:     fmt.Sprintf("cell %d,%d", r, c),
				Geometry: mp,
			})
		}
	}
	return out
}
