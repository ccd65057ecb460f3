package source

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Devyash0601/WGAST-test/internal/raster"
	"github.com/Devyash0601/WGAST-test/internal/temporal"
)

type sceneKey struct {
	sensor Sensor
	date   time.Time
}

// Memory is an in-memory ImageSource. Scenes are registered with Add and exported through a
// RasterWriter.
type Memory struct {
	Writer RasterWriter

	mu      sync.Mutex
	scenes  map[sceneKey]memoryScene
	fail    map[sceneKey]error
	exports []string
}

type memoryScene struct {
	raster     *raster.Raster
	geo        raster.GeoRef
	cloudCover float64
}

var _ ImageSource = (*Memory)(nil)

func NewMemory(writer RasterWriter) *Memory {
	return &Memory{
		Writer: writer,
		scenes: make(map[sceneKey]memoryScene),
		fail:   make(map[sceneKey]error),
	}
}

// Add registers a scene. cloudCover is in percent and drives MinValidPercent filtering.
func (m *Memory) Add(sensor Sensor, date time.Time, r *raster.Raster, geo raster.GeoRef, cloudCover float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scenes[sceneKey{sensor, temporal.Day(date)}] = memoryScene{raster: r, geo: geo, cloudCover: cloudCover}
}

// FailExport makes every export of the scene return err.
func (m *Memory) FailExport(sensor Sensor, date time.Time, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[sceneKey{sensor, temporal.Day(date)}] = err
}

// Exports lists the paths written so far, in export order.
func (m *Memory) Exports() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.exports...)
}

func (m *Memory) Query(ctx context.Context, q Query) ([]Scene, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	start, end := temporal.Day(q.Start), temporal.Day(q.End)
	scenes := []Scene{}
	for key, s := range m.scenes {
		if key.sensor != q.Sensor || key.date.Before(start) || key.date.After(end) {
			continue
		}
		if q.MinValidPercent > 0 && 100-s.cloudCover < q.MinValidPercent {
			continue
		}
		scenes = append(scenes, Scene{
			Sensor:     key.sensor,
			Collection: q.collection(),
			Date:       key.date,
			ItemIDs:    []string{fmt.Sprintf("%s_%s", key.sensor, temporal.FormatCompact(key.date))},
			CloudCover: s.cloudCover,
		})
	}
	sortScenes(scenes)
	return scenes, nil
}

func (m *Memory) Count(ctx context.Context, q Query) (int, error) {
	scenes, err := m.Query(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(scenes), nil
}

func (m *Memory) Export(ctx context.Context, scene Scene, spec ExportSpec) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := sceneKey{scene.Sensor, temporal.Day(scene.Date)}

	m.mu.Lock()
	s, ok := m.scenes[key]
	failure := m.fail[key]
	m.mu.Unlock()

	if failure != nil {
		return "", &AcquisitionError{Sensor: scene.Sensor, Date: scene.Date, Err: failure}
	}
	if !ok {
		return "", &AcquisitionError{Sensor: scene.Sensor, Date: scene.Date, Err: ErrImageNotFound}
	}
	if m.Writer == nil {
		return "", &AcquisitionError{Sensor: scene.Sensor, Date: scene.Date, Err: fmt.Errorf("no raster writer configured")}
	}
	if err := m.Writer.WriteRaster(spec.Path, s.raster, s.geo); err != nil {
		return "", &AcquisitionError{Sensor: scene.Sensor, Date: scene.Date, Err: err}
	}

	m.mu.Lock()
	m.exports = append(m.exports, spec.Path)
	m.mu.Unlock()
	return spec.Path, nil
}

func sortScenes(scenes []Scene) {
	sort.Slice(scenes, func(i, j int) bool { return scenes[i].Date.Before(scenes[j].Date) })
}
