package acs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/accessmap/internal/config"
	"github.com/sells-group/accessmap/internal/fetcher"
	"github.com/sells-group/accessmap/internal/model"
	"github.com/sells-group/accessmap/internal/store"
)

const cookResponse = `[["NAME","DP05_0067PE","state","county","tract"],
["Census Tract 101, Cook County, Illinois","12.5","17","031","010100"],
["Census Tract 102.01, Cook County, Illinois","3.0","17","031","010201"],
["Census Tract 9900, Cook County, Illinois","-666666666","17","031","990000"],
["Census Tract 103, Cook County, Illinois",null,"17","031","010300"]]`

func testConfig(baseURL string) config.ACSConfig {
	return config.ACSConfig{
		BaseURL:  baseURL,
		Dataset:  "acs/acs5/profile",
		Year:     2019,
		Variable: "DP05_0067PE",
		State:    "17",
		County:   "031",
	}
}

func testFetcher() *fetcher.HTTPFetcher {
	return fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:   "test-agent",
		Timeout:     5 * time.Second,
		MaxRetries:  1,
		BaseBackoff: time.Millisecond,
	})
}

func TestQueryURL(t *testing.T) {
	u, err := QueryURL(testConfig("https://api.census.gov/data"))
	require.NoError(t, err)
	assert.Equal(t,
		"https://api.census.gov/data/2019/acs/acs5/profile?for=tract%3A%2A&get=NAME%2CDP05_0067PE&in=state%3A17&in=county%3A031",
		u)
}

func TestQueryURL_NoCounty(t *testing.T) {
	cfg := testConfig("https://api.census.gov/data/")
	cfg.County = ""
	u, err := QueryURL(cfg)
	require.NoError(t, err)
	assert.NotContains(t, u, "county")
	assert.Contains(t, u, "/data/2019/acs/acs5/profile?")
}

func TestQueryURL_MissingVariable(t *testing.T) {
	cfg := testConfig("https://api.census.gov/data")
	cfg.Variable = ""
	_, err := QueryURL(cfg)
	assert.Error(t, err)
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/2019/acs/acs5/profile", r.URL.Path)
		assert.Equal(t, "NAME,DP05_0067PE", r.URL.Query().Get("get"))
		assert.Equal(t, "tract:*", r.URL.Query().Get("for"))
		assert.Equal(t, []string{"state:17", "county:031"}, r.URL.Query()["in"])
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		w.Write([]byte(cookResponse)) //nolint:errcheck
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL + "/data")
	cfg.APIKey = "secret"
	c := NewClient(testFetcher(), nil, cfg, time.Hour)

	demo, err := c.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, demo, 2)
	assert.InDelta(t, 12.5, demo["17031010100"], 1e-12)
	assert.InDelta(t, 3.0, demo["17031010201"], 1e-12)
	assert.NotContains(t, demo, "17031990000")
	assert.NotContains(t, demo, "17031010300")
}

func TestFetch_UsesCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(cookResponse)) //nolint:errcheck
	}))
	defer srv.Close()

	cache, err := store.NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer cache.Close() //nolint:errcheck
	require.NoError(t, cache.Migrate(context.Background()))

	cfg := testConfig(srv.URL + "/data")
	cfg.APIKey = "secret"
	c := NewClient(testFetcher(), cache, cfg, time.Hour)

	first, err := c.Fetch(context.Background())
	require.NoError(t, err)
	second, err := c.Fetch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), hits.Load())

	// The cache key never carries the API key.
	key, err := QueryURL(cfg)
	require.NoError(t, err)
	assert.NotContains(t, key, "secret")
	data, err := cache.GetResponse(context.Background(), key)
	require.NoError(t, err)
	assert.NotNil(t, data)
}

func TestFetch_UnreadableCacheEntryIsReplaced(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(cookResponse)) //nolint:errcheck
	}))
	defer srv.Close()

	ctx := context.Background()
	cache, err := store.NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer cache.Close() //nolint:errcheck
	require.NoError(t, cache.Migrate(ctx))

	cfg := testConfig(srv.URL + "/data")
	key, err := QueryURL(cfg)
	require.NoError(t, err)
	require.NoError(t, cache.SetResponse(ctx, key, []byte("<html>maintenance</html>"), time.Hour))

	c := NewClient(testFetcher(), cache, cfg, time.Hour)
	demo, err := c.Fetch(ctx)
	require.NoError(t, err)
	assert.Len(t, demo, 2)
	assert.Equal(t, int32(1), hits.Load())

	data, err := cache.GetResponse(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, cookResponse, string(data))

	_, err = c.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetch_HTTPErrorIsSourceLoadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(testFetcher(), nil, testConfig(srv.URL+"/data"), time.Hour)
	_, err := c.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, model.IsSourceLoad(err))
}

func TestParse_MissingVariableColumn(t *testing.T) {
	_, err := Parse([]byte(`[["NAME","state","county","tract"]]`), "DP05_0067PE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DP05_0067PE")
}

func TestParse_InvalidJSON(t *testing.T) {
	_, err := Parse([]byte(`<html>error</html>`), "DP05_0067PE")
	assert.Error(t, err)
}

func TestLoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "asian_pct.csv")
	require.NoError(t, os.WriteFile(path, []byte("GEOID,pct\n17031010100,12.5\n17031010201,n/a\n17031010300,-999999999\n17031010400, 7\n"), 0o644))

	demo, err := LoadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, model.Demographics{"17031010100": 12.5, "17031010400": 7}, demo)
}

func TestReadCSV_NonFiniteValuesAreMissing(t *testing.T) {
	in := "GEOID,value\n17031010100,NaN\n17031010200,Inf\n17031010300,+Inf\n17031010400,-Inf\n17031010500,nan\n17031010600,4.5\n"
	demo, err := readCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, model.Demographics{"17031010600": 4.5}, demo)
}

func TestParse_NonFiniteValuesAreMissing(t *testing.T) {
	body := `[["NAME","DP05_0067PE","state","county","tract"],
["a","NaN","17","031","010100"],
["b","Infinity","17","031","010200"],
["c","2.5","17","031","010300"]]`
	demo, err := Parse([]byte(body), "DP05_0067PE")
	require.NoError(t, err)
	assert.Equal(t, model.Demographics{"17031010300": 2.5}, demo)
}

func TestLoadCSV_Missing(t *testing.T) {
	_, err := LoadCSV(filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
	assert.True(t, model.IsSourceLoad(err))
}
