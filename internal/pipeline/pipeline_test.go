package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/accessmap/internal/config"
	"github.com/sells-group/accessmap/internal/geo/geotest"
	"github.com/sells-group/accessmap/internal/model"
	"github.com/sells-group/accessmap/internal/report"
)

// Two-mile cells in Illinois East feet; buffers are one mile.
const cell = 10560.0

type fixture struct {
	dir    string
	tracts string
	stores string
	acs    string
}

func gridTracts(t *testing.T, dir string, rows, cols int) string {
	t.Helper()
	var recs []geotest.Record
	for r := range rows {
		for c := range cols {
			recs = append(recs, geotest.Record{
				Rings: [][][2]float64{geotest.Square(float64(c)*cell, float64(r)*cell, cell)},
				Attrs: []string{fmt.Sprintf("r%dc%d", r, c), fmt.Sprintf("Cell %d-%d", r, c)},
			})
		}
	}
	return geotest.WritePolygons(t, dir, "tracts", []string{"GEOID", "NAME"}, recs)
}

// storeAt places a store 30% into cell (r, c) so its buffer reaches the
// cell, its left and lower neighbours and the lower-left diagonal.
func storeAt(name, status string, r, c int) string {
	x := (float64(c) + 0.3) * cell
	y := (float64(r) + 0.3) * cell
	return fmt.Sprintf("%s,%s,%f,%f", name, status, y, x)
}

func newFixture(t *testing.T, skipACS ...string) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{dir: dir, tracts: gridTracts(t, dir, 5, 5)}

	lines := []string{
		"STORE NAME,Status,LATITUDE,LONGITUDE",
		storeAt("H MART NILES", "OPEN", 1, 1),
		storeAt("MITSUWA MARKETPLACE", "OPEN", 1, 2),
		storeAt("H MART CHICAGO", "OPEN", 3, 3),
		storeAt("CORNER DELI", "OPEN", 4, 4),
		storeAt("H MART OLD", "CLOSED", 4, 0),
	}
	f.stores = geotest.WriteFile(t, dir, "stores.csv", strings.Join(lines, "\n")+"\n")

	skip := make(map[string]bool)
	for _, id := range skipACS {
		skip[id] = true
	}
	var acs strings.Builder
	acs.WriteString("GEOID,value\n")
	for r := range 5 {
		for c := range 5 {
			id := fmt.Sprintf("r%dc%d", r, c)
			if skip[id] {
				continue
			}
			fmt.Fprintf(&acs, "%s,%.1f\n", id, float64((r*5+c)*37%23)+0.5)
		}
	}
	f.acs = geotest.WriteFile(t, dir, "acs.csv", acs.String())
	return f
}

func testConfig(f fixture) *config.Config {
	return &config.Config{
		Tracts: config.TractsConfig{Path: f.tracts, SourceCRS: 3435, IDField: "GEOID", NameField: "NAME"},
		Stores: config.StoresConfig{
			Path: f.stores, SourceCRS: 3435,
			NameField: "STORE NAME", StatusField: "Status", LatField: "LATITUDE", LonField: "LONGITUDE",
		},
		ACS: config.ACSConfig{Path: f.acs, Variable: "DP05_0067PE"},
		Analysis: config.AnalysisConfig{
			WorkingCRS:      3435,
			BufferMiles:     1,
			BufferSegments:  32,
			Keywords:        []string{"H MART", "MITSUWA"},
			OpenStatus:      "OPEN",
			ZeroCountPolicy: config.ZeroCountFill,
		},
		Weights: config.WeightsConfig{Precision: 1e-6},
		Moran:   config.MoranConfig{Permutations: 49, Seed: 7},
		Report: config.ReportConfig{
			MapPath:     filepath.Join(f.dir, "access.png"),
			XLSXPath:    filepath.Join(f.dir, "regions.xlsx"),
			GeoJSONPath: filepath.Join(f.dir, "regions.geojson"),
			ScatterPath: filepath.Join(f.dir, "scatter.png"),
			Classes:     4,
		},
	}
}

func countsByID(regions []model.Region) map[string]int {
	out := make(map[string]int, len(regions))
	for _, r := range regions {
		out[r.GEOID] = r.AccessCount
	}
	return out
}

func TestRun_EndToEnd(t *testing.T) {
	f := newFixture(t, "r4c4")
	p := New(testConfig(f), nil, nil)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, res.Run.ID)

	assert.Len(t, res.Regions, 25)
	assert.Len(t, res.Analysed, 24)
	assert.Equal(t, []string{"r4c4"}, res.DroppedMissing)
	assert.Equal(t, 3, res.Qualifying)
	assert.Len(t, res.Stores, 5)

	counts := countsByID(res.Regions)
	want := map[string]int{
		"r0c0": 1, "r0c1": 2, "r0c2": 1,
		"r1c0": 1, "r1c1": 2, "r1c2": 1,
		"r2c2": 1, "r2c3": 1, "r3c2": 1, "r3c3": 1,
	}
	for id, n := range counts {
		assert.Equal(t, want[id], n, "count for %s", id)
	}

	require.NotNil(t, res.OLS)
	require.NotNil(t, res.Lag)
	require.NotNil(t, res.Error)
	assert.Equal(t, 24, res.OLS.N)
	assert.Equal(t, 24, res.Weights.N())
	require.Len(t, res.Moran, 2)
	assert.Equal(t, ResponseColumn, res.Moran[0].Column)
	assert.Equal(t, PredictorColumn, res.Moran[1].Column)

	for _, name := range []string{"load_tracts", "load_stores", "load_demographics", "buffer", "intersect", "merge", "weights", "fit", "moran", "outputs"} {
		ph, ok := res.Run.Phase(name)
		require.True(t, ok, name)
		assert.Equal(t, model.PhaseStatusComplete, ph.Status, name)
	}

	for _, path := range []string{"access.png", "regions.xlsx", "regions.geojson", "scatter.png"} {
		info, err := os.Stat(filepath.Join(f.dir, path))
		require.NoError(t, err, path)
		assert.Positive(t, info.Size(), path)
	}

	var buf bytes.Buffer
	report.Print(&buf, res.Report())
	out := buf.String()
	assert.Contains(t, out, res.Run.ID)
	assert.Contains(t, out, "r4c4")
	assert.Contains(t, out, "SPATIAL ERROR")
	assert.Contains(t, out, "MORAN I")
}

func TestRun_ZeroCountDrop(t *testing.T) {
	f := newFixture(t)
	cfg := testConfig(f)
	cfg.Analysis.ZeroCountPolicy = config.ZeroCountDrop
	cfg.Weights.ZeroPolicy = true
	cfg.Report = config.ReportConfig{}

	res, err := New(cfg, nil, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Regions, 10)
	assert.Len(t, res.Merge.DroppedZero, 15)
	for _, r := range res.Regions {
		assert.Positive(t, r.AccessCount)
	}
}

func TestRun_MissingStoreLayer(t *testing.T) {
	f := newFixture(t)
	cfg := testConfig(f)
	cfg.Stores.Path = filepath.Join(f.dir, "nope.shp")

	res, err := New(cfg, nil, nil).Run(context.Background())
	require.Error(t, err)
	assert.True(t, model.IsSourceLoad(err))

	ph, ok := res.Run.Phase("load_stores")
	require.True(t, ok)
	assert.Equal(t, model.PhaseStatusFailed, ph.Status)
	_, ok = res.Run.Phase("fit")
	assert.False(t, ok)
}

func TestRun_NoMatchingKeys(t *testing.T) {
	f := newFixture(t)
	f.acs = geotest.WriteFile(t, f.dir, "other.csv", "GEOID,value\n17031010100,3.5\n")
	cfg := testConfig(f)

	_, err := New(cfg, nil, nil).Run(context.Background())
	require.Error(t, err)
	assert.True(t, model.IsJoinKeyMismatch(err))
}

func TestRun_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(testConfig(f), nil, nil).Run(ctx)
	assert.Error(t, err)
}

func TestRun_NoTractPathNeedsFetcher(t *testing.T) {
	f := newFixture(t)
	cfg := testConfig(f)
	cfg.Tracts.Path = ""

	_, err := New(cfg, nil, nil).Run(context.Background())
	require.Error(t, err)
	assert.True(t, model.IsSourceLoad(err))
}
