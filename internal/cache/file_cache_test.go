package cache

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scene struct {
	Date  string   `json:"date"`
	Items []string `json:"items"`
}

func TestFileCacheRoundTrip(t *testing.T) {
	fc := NewFileCache[[]scene](filepath.Join(t.TempDir(), "catalog"), 0)

	key := fc.GenerateKey("Sentinel2", [4]float64{1, 2, 3, 4}, "2020-01-01")
	assert.Len(t, key, 40)
	assert.Equal(t, key, fc.GenerateKey("Sentinel2", [4]float64{1, 2, 3, 4}, "2020-01-01"))
	assert.NotEqual(t, key, fc.GenerateKey("Landsat8", [4]float64{1, 2, 3, 4}, "2020-01-01"))

	_, ok := fc.Get(key)
	assert.False(t, ok)

	want := []scene{{Date: "2020-01-05", Items: []string{"a", "b"}}}
	require.NoError(t, fc.Set(key, want))

	got, ok := fc.Get(key)
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, err := os.Stat(filepath.Join(fc.Dir(), key+".json.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestFileCacheRejectsTamperedEntries(t *testing.T) {
	fc := NewFileCache[[]scene](t.TempDir(), 0)
	require.NoError(t, fc.Set("k", []scene{{Date: "2020-01-05"}}))

	path := filepath.Join(fc.Dir(), "k.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	tampered := strings.Replace(string(data), "2020-01-05", "2020-01-06", 1)
	require.NotEqual(t, string(data), tampered)
	require.NoError(t, os.WriteFile(path, []byte(tampered), 0644))

	_, ok := fc.Get("k")
	assert.False(t, ok)
}

func TestFileCacheExpiry(t *testing.T) {
	fc := NewFileCache[int](t.TempDir(), time.Hour)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fc.now = func() time.Time { return now }

	require.NoError(t, fc.Set("k", 7))
	v, ok := fc.Get("k")
	require.True(t, ok)
	assert.Equal(t, 7, v)

	now = now.Add(2 * time.Hour)
	_, ok = fc.Get("k")
	assert.False(t, ok)

	require.NoError(t, fc.Clear())
	entries, err := os.ReadDir(fc.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
