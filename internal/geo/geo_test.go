package geo

import (
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/accessmap/internal/geo/geotest"
)

func TestReadShapefile_Polygons(t *testing.T) {
	dir := t.TempDir()
	path := geotest.WritePolygons(t, dir, "tracts", []string{"GEOID", "NAMELSAD", "ALAND"}, []geotest.Record{
		{Rings: [][][2]float64{geotest.Square(0, 0, 1)}, Attrs: []string{"17031010100", "Census Tract 101", "100"}},
		{Rings: [][][2]float64{geotest.Square(1, 0, 1)}, Attrs: []string{"17031010200", "Census Tract 102", "200"}},
	})

	features, err := ReadShapefile(path, []string{"GEOID", "NAMELSAD"})
	require.NoError(t, err)
	require.Len(t, features, 2)

	assert.Equal(t, "17031010100", features[0].Attr("GEOID"))
	assert.Equal(t, "Census Tract 102", features[1].Attr("namelsad"))
	assert.NotContains(t, features[0].Attrs, "ALAND")

	mp, ok := features[0].Geometry.(*geom.MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, 1, mp.NumPolygons())
	assert.Equal(t, 1, mp.Polygon(0).NumLinearRings())
}

func TestReadShapefile_Points(t *testing.T) {
	dir := t.TempDir()
	path := geotest.WritePoints(t, dir, "stores", []string{"STORE NAME", "Status"}, []geotest.Record{
		{Point: [2]float64{-87.63, 41.88}, Attrs: []string{"MARIANO'S", "OPEN"}},
	})

	features, err := Read(path, nil)
	require.NoError(t, err)
	require.Len(t, features, 1)

	pt, ok := features[0].Geometry.(*geom.Point)
	require.True(t, ok)
	assert.InDelta(t, -87.63, pt.X(), 1e-12)
	assert.Equal(t, "MARIANO'S", features[0].Attr("STORE NAME"))
	assert.Equal(t, "OPEN", features[0].Attr("Status"))
}

func TestReadShapefile_Missing(t *testing.T) {
	_, err := ReadShapefile(filepath.Join(t.TempDir(), "none.shp"), nil)
	assert.Error(t, err)
}

func TestPolygonToMultiPolygon_Hole(t *testing.T) {
	outer := shp.Polygon(*shp.NewPolyLine([][]shp.Point{
		// clockwise shell
		{{X: 0, Y: 0}, {X: 0, Y: 10}, {X: 10, Y: 10}, {X: 10, Y: 0}, {X: 0, Y: 0}},
		// counter-clockwise hole
		{{X: 4, Y: 4}, {X: 6, Y: 4}, {X: 6, Y: 6}, {X: 4, Y: 6}, {X: 4, Y: 4}},
		// second clockwise shell
		{{X: 20, Y: 0}, {X: 20, Y: 1}, {X: 21, Y: 1}, {X: 21, Y: 0}, {X: 20, Y: 0}},
	}))

	mp := PolygonToMultiPolygon(&outer)
	require.NotNil(t, mp)
	require.Equal(t, 2, mp.NumPolygons())
	assert.Equal(t, 2, mp.Polygon(0).NumLinearRings())
	assert.Equal(t, 1, mp.Polygon(1).NumLinearRings())
}

func TestPolygonToMultiPolygon_Empty(t *testing.T) {
	assert.Nil(t, PolygonToMultiPolygon(&shp.Polygon{}))
	assert.Nil(t, PolygonToMultiPolygon(nil))
}

func TestReadGeoJSON(t *testing.T) {
	dir := t.TempDir()
	path := geotest.WriteFile(t, dir, "tracts.geojson", `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "id": "a",
     "properties": {"GEOID": "17031010100", "NAME": "Tract 101", "POP": 4120},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]}},
    {"type": "Feature",
     "properties": {"GEOID": 17031010200, "NAME": "Tract 102"},
     "geometry": {"type": "MultiPolygon", "coordinates": [[[[1,0],[2,0],[2,1],[1,1],[1,0]]]]}},
    {"type": "Feature", "properties": {"GEOID": "x"}, "geometry": null}
  ]
}`)

	features, err := Read(path, []string{"GEOID", "NAME"})
	require.NoError(t, err)
	require.Len(t, features, 2)

	_, ok := features[0].Geometry.(*geom.MultiPolygon)
	assert.True(t, ok, "polygon promoted to multipolygon")
	assert.Equal(t, "17031010200", features[1].Attr("GEOID"))
	assert.NotContains(t, features[0].Attrs, "POP")
}

func TestRead_UnsupportedExtension(t *testing.T) {
	_, err := Read("tracts.kml", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported vector format")
}

func TestWriteGeoJSON_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.geojson")
	poly := geom.NewPolygonFlat(geom.XY, []float64{0, 0, 1, 0, 1, 1, 0, 0}, []int{8})
	require.NoError(t, WriteGeoJSON(path, []*geojson.Feature{{
		Geometry:   poly,
		Properties: map[string]any{"GEOID": "1", "access_count": 2},
	}}))

	features, err := ReadGeoJSON(path, nil)
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, "2", features[0].Attr("access_count"))
}

func TestIntersects(t *testing.T) {
	square := func(x, y float64) *geom.Polygon {
		return geom.NewPolygonFlat(geom.XY, []float64{x, y, x, y + 1, x + 1, y + 1, x + 1, y, x, y}, []int{10})
	}
	tests := []struct {
		name string
		a, b geom.T
		want bool
	}{
		{name: "overlap", a: square(0, 0), b: square(0.5, 0.5), want: true},
		{name: "shared edge", a: square(0, 0), b: square(1, 0), want: true},
		{name: "corner", a: square(0, 0), b: square(1, 1), want: true},
		{name: "apart", a: square(0, 0), b: square(3, 0), want: false},
		{name: "multipolygon", a: geom.NewMultiPolygonFlat(geom.XY, square(5, 5).FlatCoords(), [][]int{{10}}), b: square(5.5, 5.5), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Intersects(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
