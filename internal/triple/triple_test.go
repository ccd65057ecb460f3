package triple

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Devyash0601/WGAST-test/internal/gapfill"
	"github.com/Devyash0601/WGAST-test/internal/raster"
	"github.com/Devyash0601/WGAST-test/internal/source"
	"github.com/Devyash0601/WGAST-test/internal/temporal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scene struct {
	r   *raster.Raster
	geo raster.GeoRef
}

type memStore struct {
	mu    sync.Mutex
	raw   map[string]scene
	saved map[string]scene
}

func newMemStore() *memStore {
	return &memStore{raw: make(map[string]scene), saved: make(map[string]scene)}
}

func key(sensor source.Sensor, date time.Time) string {
	return sensor.Prefix() + "_" + temporal.FormatCompact(date)
}

func (m *memStore) put(sensor source.Sensor, date time.Time, r *raster.Raster, geo raster.GeoRef) {
	m.raw[key(sensor, date)] = scene{r: r, geo: geo}
}

func (m *memStore) Load(sensor source.Sensor, date time.Time) (*raster.Raster, raster.GeoRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.raw[key(sensor, date)]
	if !ok {
		return nil, raster.GeoRef{}, fmt.Errorf("%s: %w", key(sensor, date), errNotFound)
	}
	return s.r, s.geo, nil
}

func (m *memStore) Save(sensor source.Sensor, date time.Time, r *raster.Raster, geo raster.GeoRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[key(sensor, date)] = scene{r: r, geo: geo}
	return nil
}

var errNotFound = errors.New("not found")

var (
	sentinelGeo = raster.GeoRef{Transform: [6]float64{600000, 10, 0, 5300000, 0, -10}, Projection: "EPSG:32631"}
	modisGeo    = raster.GeoRef{Transform: [6]float64{600000, 20, 0, 5300000, 0, -20}, Projection: "EPSG:32631"}
)

func filled(t *testing.T, rows, cols, bands int, value float64, mask *raster.Mask) *raster.Raster {
	t.Helper()
	data := make([][]float64, bands)
	for b := range data {
		data[b] = make([]float64, rows*cols)
		for i := range data[b] {
			data[b][i] = value + float64(b)
		}
	}
	r, err := raster.NewFromSlices(rows, cols, data, mask)
	require.NoError(t, err)
	return r
}

func smallSensors() []SensorConfig {
	return []SensorConfig{
		{Sensor: source.MODIS, Schedule: gapfill.Schedule{Initial: 3, Step: 2}, Resample: true},
		{Sensor: source.Landsat8, Schedule: gapfill.Schedule{Initial: 3, Step: 2}, Multiband: true},
		{Sensor: source.Sentinel2, Schedule: gapfill.Schedule{Initial: 3, Step: 2}, Multiband: true},
	}
}

func newBuilder(store Store) *Builder {
	return &Builder{
		Store: store,
		Config: Config{
			Reference:   source.Sentinel2,
			Sensors:     smallSensors(),
			Concurrency: 2,
		},
	}
}

func date(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := temporal.ParseDate(s)
	require.NoError(t, err)
	return d
}

func populate(t *testing.T, store *memStore, d time.Time) {
	store.put(source.Sentinel2, d, filled(t, 4, 4, 3, 1, raster.ParseMask("1111", "1011", "1111", "1111")), sentinelGeo)
	store.put(source.Landsat8, d, filled(t, 2, 2, 4, 5, raster.ParseMask("11", "10")), sentinelGeo)
	store.put(source.MODIS, d, filled(t, 2, 2, 2, 300, nil), modisGeo)
}

func TestRunBuildsAlignedTriples(t *testing.T) {
	store := newMemStore()
	dates := []time.Time{date(t, "2020-01-11"), date(t, "2020-01-01")}
	for _, d := range dates {
		populate(t, store, d)
	}

	var (
		mu       sync.Mutex
		previews []string
	)
	b := newBuilder(store)
	b.Config.RequireComplete = true
	b.Config.DatesPath = filepath.Join(t.TempDir(), "triple_dates.json")
	b.Preview = func(sensor source.Sensor, d time.Time, _ *raster.Raster) error {
		mu.Lock()
		defer mu.Unlock()
		previews = append(previews, key(sensor, d))
		return nil
	}

	result, err := b.Run(context.Background(), dates)
	require.NoError(t, err)

	assert.Equal(t, []time.Time{date(t, "2020-01-01"), date(t, "2020-01-11")}, result.Built)
	assert.Empty(t, result.Excluded)
	assert.Len(t, store.saved, 6)
	assert.Len(t, previews, 6)

	m := store.saved["M_20200101"]
	rows, cols := m.r.Dims()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 4, cols)
	assert.Equal(t, 2, m.r.NumBands())
	assert.True(t, m.r.Mask.AllValid())
	assert.Equal(t, sentinelGeo, m.geo)
	assert.InDelta(t, 300.0, m.r.Bands[0].At(2, 3), 1e-9)
	assert.InDelta(t, 301.0, m.r.Bands[1].At(0, 0), 1e-9)

	s := store.saved["S_20200101"]
	assert.True(t, s.r.Mask.AllValid())
	assert.InDelta(t, 3.0, s.r.Bands[2].At(1, 1), 1e-9)

	l := store.saved["L_20200111"]
	rows, cols = l.r.Dims()
	assert.Equal(t, 2, rows, "Landsat keeps its own grid")
	assert.Equal(t, 2, cols)
	assert.InDelta(t, 8.0, l.r.Bands[3].At(1, 1), 1e-9)

	report := result.Reports[0]
	assert.Equal(t, 1, report.Fill[source.Sentinel2].Filled)
	assert.Equal(t, 1, report.Fill[source.Landsat8].Filled)
	assert.Equal(t, 0, report.Fill[source.MODIS].Passes)

	saved, err := temporal.LoadDates(b.Config.DatesPath)
	require.NoError(t, err)
	assert.Equal(t, result.Built, saved)
}

func TestRunExcludesIncompleteDates(t *testing.T) {
	store := newMemStore()
	good, bad := date(t, "2020-01-01"), date(t, "2020-01-11")
	populate(t, store, good)
	populate(t, store, bad)
	store.put(source.Landsat8, bad, filled(t, 2, 2, 4, 5, raster.NewMaskFilled(2, 2, false)), sentinelGeo)

	b := newBuilder(store)
	b.Config.RequireComplete = true

	result, err := b.Run(context.Background(), []time.Time{good, bad})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{good}, result.Built)
	require.Len(t, result.Excluded, 1)
	assert.Equal(t, bad, result.Excluded[0].Date)
	assert.Contains(t, result.Excluded[0].Reason, "Landsat8 has 4 invalid pixels")
	assert.Equal(t, 4, result.Excluded[0].Fill[source.Landsat8].Remaining)

	_, saved := store.saved["S_20200111"]
	assert.False(t, saved, "no member of an excluded date is written")
	assert.Len(t, store.saved, 3)
}

func TestRunKeepsIncompleteDatesWhenAllowed(t *testing.T) {
	store := newMemStore()
	d := date(t, "2020-01-01")
	populate(t, store, d)
	store.put(source.Landsat8, d, filled(t, 2, 2, 4, 5, raster.NewMaskFilled(2, 2, false)), sentinelGeo)

	result, err := newBuilder(store).Run(context.Background(), []time.Time{d})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{d}, result.Built)
	assert.Zero(t, store.saved["L_20200101"].r.Mask.Count())
}

func TestRunAbortsOnLoadFailure(t *testing.T) {
	store := newMemStore()
	d := date(t, "2020-01-01")
	populate(t, store, d)
	delete(store.raw, "M_20200101")

	_, err := newBuilder(store).Run(context.Background(), []time.Time{d})
	require.Error(t, err)
	assert.ErrorIs(t, err, errNotFound)
	assert.ErrorContains(t, err, "failed to load MODIS")
}

func TestProcessRescalesGeoWithoutReferenceGeo(t *testing.T) {
	store := newMemStore()
	d := date(t, "2020-01-01")
	populate(t, store, d)
	store.put(source.Sentinel2, d, filled(t, 4, 4, 3, 1, nil), raster.GeoRef{})

	members, err := newBuilder(store).Process(d)
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, source.Sentinel2, members[0].Sensor, "reference is processed first")

	for _, m := range members {
		if m.Sensor != source.MODIS {
			continue
		}
		assert.Equal(t, [6]float64{600000, 10, 0, 5300000, 0, -10}, m.Geo.Transform, "own geo at the reference pixel size")
		assert.Equal(t, modisGeo.Projection, m.Geo.Projection)
		assert.False(t, math.IsNaN(m.Raster.Bands[0].At(0, 0)))
	}
	assert.Empty(t, store.saved, "Process never writes")
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"no sensors", Config{Reference: source.Sentinel2}, "no sensors configured"},
		{"unknown reference", Config{Reference: source.Sentinel2, Sensors: smallSensors()[:2]}, "is not configured"},
		{
			"resampled reference",
			Config{Reference: source.MODIS, Sensors: smallSensors()},
			"cannot be resampled",
		},
		{
			"bad schedule",
			Config{Reference: source.Sentinel2, Sensors: []SensorConfig{{Sensor: source.Sentinel2}}},
			"Sentinel2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &Builder{Store: newMemStore(), Config: tt.cfg}
			_, err := b.Run(context.Background(), nil)
			assert.ErrorContains(t, err, tt.want)
		})
	}

	b := &Builder{Store: newMemStore(), Config: Config{Reference: source.Sentinel2, Sensors: []SensorConfig{{Sensor: source.Sentinel2}}}}
	_, err := b.Run(context.Background(), nil)
	assert.ErrorIs(t, err, gapfill.ErrInvalidSchedule)
}
