package properties

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wgast.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 80.0, cfg.Acquisition.MinValidPercent)
	assert.Equal(t, 7, cfg.Dataset.SplitIndex)
	assert.Len(t, cfg.Sensors, 3)
	assert.Equal(t, 2e-4, cfg.Training.Options.LearningRate)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
dates:
  start: "2020-01-01"
  end: "2020-12-31"
acquisition:
  min_valid_percent: 70
  tolerance_days: 1
  workers: 4
  retry_delay: 2s
sensors:
  - name: Sentinel2
    scale: 20
    multiband: true
    schedule: {initial: 9, step: 6}
  - name: MODIS
    resample: true
    schedule: {initial: 3, step: 2}
training:
  options:
    epochs: 5
    patch_size: [16, 16]
`)
	t.Setenv("WGAST_ACQUISITION_WORKERS", "8")
	t.Setenv("WGAST_DATASET_SPLIT_INDEX", "3")
	t.Setenv("WGAST_REGION_BOUNDS", "2.0,48.0,2.5,48.25")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "2020-01-01", cfg.Dates.Start)
	assert.Equal(t, 70.0, cfg.Acquisition.MinValidPercent)
	assert.Equal(t, 1, cfg.Acquisition.ToleranceDays)
	assert.Equal(t, 8, cfg.Acquisition.Workers, "environment wins over the file")
	assert.Equal(t, 2*time.Second, cfg.Acquisition.RetryDelay)
	assert.Equal(t, 10, cfg.Acquisition.Retries, "unset keys keep their default")
	assert.Equal(t, 3, cfg.Dataset.SplitIndex)
	assert.Equal(t, []float64{2.0, 48.0, 2.5, 48.25}, cfg.Region.Bounds)

	require.Len(t, cfg.Sensors, 2, "sensors from the file replace the defaults")
	assert.Equal(t, 20.0, cfg.Sensors[0].Scale)
	assert.Equal(t, 9, cfg.Sensors[0].Schedule.Initial)

	assert.Equal(t, 5, cfg.Training.Options.Epochs)
	assert.Equal(t, [2]int{16, 16}, cfg.Training.Options.PatchSize)
	assert.Equal(t, 32, cfg.Training.Options.BatchSize)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"threshold above 100", "acquisition: {min_valid_percent: 150}", "MinValidPercent"},
		{"bad date", "dates: {start: 2020/01/01}", "Start"},
		{"end before start", "dates: {start: \"2021-01-01\", end: \"2020-01-01\"}", "before start date"},
		{"unknown sensor", "sensors: [{name: Sentinel1, schedule: {initial: 3, step: 2}}]", "Name"},
		{"zero window", "sensors: [{name: Sentinel2, schedule: {initial: 0, step: 2}}]", "Initial"},
		{"duplicate sensor", "sensors: [{name: Sentinel2, schedule: {initial: 3, step: 2}}, {name: Sentinel2, schedule: {initial: 3, step: 2}}]", "configured twice"},
		{"missing reference", "sensors: [{name: MODIS, schedule: {initial: 3, step: 2}}]", "triple reference Sentinel2"},
		{"bad bbox", "region: {bbox: [1, 2, 3]}", "bbox of 4 values"},
		{"bad method", "triple: {method: cubic}", "Method"},
		{"malformed yaml", "acquisition: [", "failed to load config from file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadRejectsInvalidEnv(t *testing.T) {
	t.Setenv("WGAST_ACQUISITION_WORKERS", "many")
	_, err := Load("")
	assert.ErrorContains(t, err, "failed to load config from env")
}

func TestResolve(t *testing.T) {
	t.Setenv("ROOT_PATH", "/srv/wgast")
	assert.Equal(t, "/srv/wgast/data/raw", Resolve("data/raw"))
	assert.Equal(t, "/tmp/raw", Resolve("/tmp/raw"))
	assert.Equal(t, "", Resolve(""))

	t.Setenv("ROOT_PATH", "")
	assert.Equal(t, "data/raw", Resolve("data/raw"))
}

func TestLoadEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("WGAST_DOTENV_PROBE=loaded\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("WGAST_DOTENV_PROBE") })

	LoadEnv(filepath.Join(t.TempDir(), "missing.env"), path)
	assert.Equal(t, "loaded", os.Getenv("WGAST_DOTENV_PROBE"))
}
