package report

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/accessmap/internal/geo"
	"github.com/sells-group/accessmap/internal/geo/geotest"
	"github.com/sells-group/accessmap/internal/model"
	"github.com/sells-group/accessmap/internal/regress"
	"github.com/sells-group/accessmap/internal/weights"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func sampleReport() *Report {
	ols := &model.FitResult{
		Kind: model.ModelOLS, Response: "access_count", N: 9,
		Coefficients: []model.Coefficient{
			{Name: "(Intercept)", Estimate: 1.5, StdError: 0.2, Statistic: 7.5, PValue: 1e-6},
			{Name: "fraction", Estimate: 0.1, StdError: 0.05, Statistic: 2, PValue: 0.08},
		},
		LogLik: -10, AIC: 26, RSquared: 0.4, AdjRSquared: 0.3, FStat: 4, FPValue: 0.08,
	}
	lag := &model.FitResult{
		Kind: model.ModelLag, Response: "access_count", N: 9,
		Coefficients: ols.Coefficients,
		LogLik:       -8, AIC: 24,
		Spatial: &model.SpatialParam{Name: "rho", Estimate: 0.4, StdError: 0.1, Z: 4, PValue: 6e-5, LR: 4, LRPValue: 0.045},
	}
	return &Report{
		Summary: Summary{
			RunID: "run-1", Regions: 10, Stores: 5, Qualifying: 2, DemographicRows: 10,
			Matched: 10, Analysed: 9, DroppedMissing: []string{"17031990000"},
			Response: "access_count", Predictor: "fraction",
		},
		Weights: weights.Summary{N: 9, Links: 40, MeanNeighbors: 4.44, MinNeighbors: 3, MaxNeighbors: 8},
		Fits:    []*model.FitResult{ols, lag},
		AIC:     regress.CompareAIC(ols, lag),
		Moran: []*model.MoranResult{
			{Column: "access_count", N: 9, I: 0.3, Expected: -0.125, Z: 2.1, PValue: 0.03, Permutations: 99, PermPValue: 0.04},
			{Column: "fraction", N: 9, Expected: -0.125, PValue: 1, Constant: true},
		},
	}
}

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	Print(&buf, sampleReport())
	out := buf.String()

	assert.Contains(t, out, "DATA SUMMARY")
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "dropped (missing demographic value): 1: 17031990000")
	assert.Contains(t, out, "QUEEN CONTIGUITY")
	assert.Contains(t, out, "OLS (n=9")
	assert.Contains(t, out, "SPATIAL LAG (n=9")
	assert.Contains(t, out, "rho")
	assert.Contains(t, out, "LR test vs OLS")
	assert.Contains(t, out, "<0.0001")
	assert.Contains(t, out, "(constant)")
	assert.Contains(t, out, "MORAN I")
}

func TestWriteAIC_MarksBest(t *testing.T) {
	var buf bytes.Buffer
	WriteAIC(&buf, sampleReport().AIC)
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 4)
	assert.Contains(t, string(lines[2]), "spatial lag")
	assert.Contains(t, string(lines[2]), "*")
	assert.NotContains(t, string(lines[3]), "*")
}

func TestBreaks(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		k      int
		maxLen int
	}{
		{name: "uniform", values: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, k: 5, maxLen: 4},
		{name: "many zeros", values: []float64{0, 0, 0, 0, 0, 0, 1, 1, 2, 5}, k: 5, maxLen: 4},
		{name: "constant", values: []float64{3, 3, 3}, k: 5, maxLen: 0},
		{name: "with missing", values: []float64{math.NaN(), 1, 2, 3, 4}, k: 4, maxLen: 3},
		{name: "empty", values: nil, k: 5, maxLen: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Breaks(tt.values, tt.k)
			assert.LessOrEqual(t, len(b), tt.maxLen)
			assert.IsIncreasing(t, b)
		})
	}
}

func TestClass(t *testing.T) {
	breaks := []float64{1, 3}
	assert.Equal(t, 0, Class(0, breaks))
	assert.Equal(t, 0, Class(1, breaks))
	assert.Equal(t, 1, Class(2, breaks))
	assert.Equal(t, 2, Class(10, breaks))
}

func TestSaveChoropleth(t *testing.T) {
	regions := geotest.GridRegions(3, 3, 100)
	values := []float64{0, 1, 2, 3, 4, 5, 6, 7, math.NaN()}
	path := filepath.Join(t.TempDir(), "map.png")

	err := SaveChoropleth(path, regions, values, MapOptions{Title: "access", Classes: 4})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, pngMagic))
}

func TestChoropleth_Errors(t *testing.T) {
	_, err := Choropleth(nil, nil, MapOptions{})
	assert.Error(t, err)

	_, err = Choropleth(geotest.GridRegions(1, 2, 1), []float64{1}, MapOptions{})
	assert.Error(t, err)
}

func TestSaveScatter(t *testing.T) {
	x := []float64{1, 2, 3, 4}
	y := []float64{2, 4, 5, 8}
	fit := &model.FitResult{Coefficients: []model.Coefficient{
		{Name: "(Intercept)", Estimate: 0},
		{Name: "fraction", Estimate: 1.9},
	}}
	path := filepath.Join(t.TempDir(), "scatter.png")

	require.NoError(t, SaveScatter(path, "fraction", "access_count", x, y, fit))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, pngMagic))

	assert.Error(t, SaveScatter(path, "x", "y", x, y[:2], nil))
}

func TestWriteXLSX(t *testing.T) {
	regions := []model.Region{
		{GEOID: "17031010100", Name: "Tract 101", Fraction: 12.5, HasFraction: true, AccessCount: 2},
		{GEOID: "17031010200", Name: "Tract 102", AccessCount: 0},
	}
	path := filepath.Join(t.TempDir(), "regions.xlsx")
	require.NoError(t, WriteXLSX(path, "", regions))

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	sheet := f.Sheets[0]
	assert.Equal(t, "regions", sheet.Name)
	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, "GEOID", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "17031010100", sheet.Rows[1].Cells[0].String())
	assert.Equal(t, "12.5", sheet.Rows[1].Cells[2].String())
	assert.Equal(t, "2", sheet.Rows[1].Cells[3].String())
	assert.Equal(t, "17031010200", sheet.Rows[2].Cells[0].String())
}

func TestWriteGeoJSON_ReprojectsToWGS84(t *testing.T) {
	// A 2000 ft square near the Chicago Loop in Illinois East feet.
	x, y := 1175844.4, 1898954.9
	flat := []float64{x, y, x, y + 2000, x + 2000, y + 2000, x + 2000, y, x, y}
	mp := geom.NewMultiPolygonFlat(geom.XY, flat, [][]int{{len(flat)}}).SetSRID(3435)
	regions := []model.Region{{GEOID: "17031839100", Name: "Tract 8391", Geometry: mp, AccessCount: 3}}

	path := filepath.Join(t.TempDir(), "regions.geojson")
	require.NoError(t, WriteGeoJSON(path, 3435, regions))

	features, err := geo.ReadGeoJSON(path, nil)
	require.NoError(t, err)
	require.Len(t, features, 1)
	assert.Equal(t, "17031839100", features[0].Attr("id"))
	assert.Equal(t, "3", features[0].Attr("access_count"))

	coords := features[0].Geometry.FlatCoords()
	assert.InDelta(t, -87.6298, coords[0], 1e-3)
	assert.InDelta(t, 41.8781, coords[1], 1e-3)
}

func TestWriteGeoJSON_UnknownCRS(t *testing.T) {
	err := WriteGeoJSON(filepath.Join(t.TempDir(), "x.geojson"), 99999, nil)
	assert.Error(t, err)
}
