package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

const acsKey = "https://api.census.gov/data/2019/acs/acs5/profile?for=tract%3A%2A&get=NAME%2CDP05_0067PE&in=state%3A17&in=county%3A031"

func TestSQLite_GetResponse_Miss(t *testing.T) {
	s := newTestSQLite(t)
	data, err := s.GetResponse(context.Background(), acsKey)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestSQLite_SetThenGet(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	body := []byte(`[["NAME","DP05_0067PE","state","county","tract"]]`)
	require.NoError(t, s.SetResponse(ctx, acsKey, body, time.Hour))

	got, err := s.GetResponse(ctx, acsKey)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestSQLite_SetOverwrites(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.SetResponse(ctx, acsKey, []byte("old"), time.Hour))
	require.NoError(t, s.SetResponse(ctx, acsKey, []byte("new"), time.Hour))

	got, err := s.GetResponse(ctx, acsKey)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)
}

func TestSQLite_ExpiredEntries(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.SetResponse(ctx, "stale", []byte("x"), -time.Hour))
	require.NoError(t, s.SetResponse(ctx, "fresh", []byte("y"), time.Hour))

	got, err := s.GetResponse(ctx, "stale")
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := s.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err = s.GetResponse(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, []byte("y"), got)
}
