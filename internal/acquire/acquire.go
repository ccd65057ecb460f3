// Package acquire downloads the scenes of every sensor for the dates all sensors share.
package acquire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Devyash0601/WGAST-test/internal/source"
	"github.com/Devyash0601/WGAST-test/internal/temporal"
	"github.com/gammazero/workerpool"
	"github.com/schollz/progressbar/v3"
)

// Layout gives the local path of an exported scene.
type Layout interface {
	RawPath(sensor source.Sensor, date time.Time) string
}

// Inspector measures the valid share of an exported file, in percent.
type Inspector interface {
	ValidPercent(path string) (float64, error)
}

type SensorConfig struct {
	Sensor     source.Sensor
	Collection string
	// Scale is the export resolution in metres; zero uses the sensor native resolution.
	Scale float64
}

type Config struct {
	// Sensors are matched against the first one, the anchor, when ToleranceDays > 0.
	Sensors         []SensorConfig
	Region          source.Region
	Start           time.Time
	End             time.Time
	MinValidPercent float64
	ToleranceDays   int
	Workers         int
	CommonDatesPath string
	// InvalidImagesPath lists exported files rejected by the pixel check; they are never
	// requested again.
	InvalidImagesPath string
	ShowProgress      bool
}

type Acquirer struct {
	Source    source.ImageSource
	Layout    Layout
	Inspector Inspector
	Logger    *slog.Logger
	Config    Config
}

// Result summarises an acquisition run.
type Result struct {
	Before map[source.Sensor]int
	After  map[source.Sensor]int
	// CommonDates are the dates every sensor offers after filtering.
	CommonDates []time.Time
	// Acquired are the common dates exported successfully for every sensor; they are the dates
	// persisted for the next stage.
	Acquired []time.Time
	Exported int
	Reused   int
	Invalid  []string
}

type job struct {
	sensor SensorConfig
	date   time.Time
	scene  source.Scene
}

func (a *Acquirer) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// Run counts, filters, intersects and exports. Failed exports exclude their date and are
// returned joined; the dates that succeeded are still saved.
func (a *Acquirer) Run(ctx context.Context) (*Result, error) {
	cfg := a.Config
	if len(cfg.Sensors) == 0 {
		return nil, fmt.Errorf("no sensors configured")
	}
	log := a.logger()

	result := &Result{
		Before: make(map[source.Sensor]int),
		After:  make(map[source.Sensor]int),
	}

	scenes := make([][]source.Scene, len(cfg.Sensors))
	dates := make([][]time.Time, len(cfg.Sensors))
	for i, sc := range cfg.Sensors {
		q := source.Query{
			Sensor:     sc.Sensor,
			Collection: sc.Collection,
			Region:     cfg.Region,
			Start:      cfg.Start,
			End:        cfg.End,
		}
		before, err := a.Source.Count(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("failed to count %s images: %w", sc.Sensor, err)
		}

		q.MinValidPercent = cfg.MinValidPercent
		found, err := a.Source.Query(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("failed to query %s images: %w", sc.Sensor, err)
		}

		result.Before[sc.Sensor] = before
		result.After[sc.Sensor] = len(found)
		scenes[i] = found
		for _, s := range found {
			dates[i] = append(dates[i], s.Date)
		}
		log.Info("images found", "sensor", sc.Sensor, "before_filter", before, "after_filter", len(found))
	}

	result.CommonDates = temporal.IntersectWithin(cfg.ToleranceDays, dates[0], dates[1:]...)
	log.Info("common dates", "count", len(result.CommonDates), "tolerance_days", cfg.ToleranceDays)

	jobs := a.plan(scenes, result.CommonDates)

	invalid, err := loadInvalid(cfg.InvalidImagesPath)
	if err != nil {
		return nil, err
	}

	failed, errs := a.export(ctx, jobs, invalid, result)

	if cfg.InvalidImagesPath != "" && len(result.Invalid) > 0 {
		if err := saveInvalid(cfg.InvalidImagesPath, invalid); err != nil {
			errs = append(errs, err)
		}
	}

	result.Acquired = []time.Time{}
	for _, d := range result.CommonDates {
		if _, bad := failed[d]; !bad {
			result.Acquired = append(result.Acquired, d)
		}
	}
	log.Info("acquisition finished", "acquired_dates", len(result.Acquired), "excluded_dates", len(failed),
		"exported", result.Exported, "reused", result.Reused, "invalid", len(result.Invalid))

	if cfg.CommonDatesPath != "" {
		if err := temporal.SaveDates(cfg.CommonDatesPath, result.Acquired); err != nil {
			errs = append(errs, fmt.Errorf("failed to save common dates: %w", err))
		}
	}

	return result, errors.Join(errs...)
}

// plan picks, for every common date and sensor, the scene to export. With a tolerance the
// nearest scene of the sensor is used and saved under the common date.
func (a *Acquirer) plan(scenes [][]source.Scene, common []time.Time) []job {
	var jobs []job
	for _, date := range common {
		for i, sc := range a.Config.Sensors {
			best, ok := nearestScene(scenes[i], date, a.Config.ToleranceDays)
			if !ok {
				continue
			}
			jobs = append(jobs, job{sensor: sc, date: date, scene: best})
		}
	}
	return jobs
}

func nearestScene(scenes []source.Scene, date time.Time, tolerance int) (source.Scene, bool) {
	var (
		best     source.Scene
		bestDays = -1
	)
	for _, s := range scenes {
		days := temporal.DaysBetween(date, s.Date)
		if days < 0 {
			days = -days
		}
		if days > tolerance {
			continue
		}
		if bestDays < 0 || days < bestDays {
			best, bestDays = s, days
		}
	}
	return best, bestDays >= 0
}

func (a *Acquirer) export(ctx context.Context, jobs []job, invalid map[string]struct{}, result *Result) (map[time.Time]struct{}, []error) {
	cfg := a.Config
	log := a.logger()

	workers := max(cfg.Workers, 1)
	wp := workerpool.New(workers)

	var bar *progressbar.ProgressBar
	if cfg.ShowProgress {
		bar = progressbar.Default(int64(len(jobs)), "Exporting images")
	} else {
		bar = progressbar.DefaultSilent(int64(len(jobs)), "Exporting images")
	}

	var (
		mu     sync.Mutex
		failed = make(map[time.Time]struct{})
		errs   []error
	)
	fail := func(date time.Time, err error) {
		mu.Lock()
		defer mu.Unlock()
		failed[date] = struct{}{}
		if err != nil {
			errs = append(errs, err)
		}
	}

	for _, j := range jobs {
		wp.Submit(func() {
			defer bar.Add(1)
			path := a.Layout.RawPath(j.sensor.Sensor, j.date)
			name := filepath.Base(filepath.Dir(path)) + "/" + filepath.Base(path)

			mu.Lock()
			_, skip := invalid[name]
			mu.Unlock()
			if skip {
				fail(j.date, nil)
				return
			}

			if _, err := os.Stat(path); err == nil {
				mu.Lock()
				result.Reused++
				mu.Unlock()
				return
			}

			if ctx.Err() != nil {
				fail(j.date, &source.AcquisitionError{Sensor: j.sensor.Sensor, Date: j.date, Err: ctx.Err()})
				return
			}

			_, err := a.Source.Export(ctx, j.scene, source.ExportSpec{Region: cfg.Region, Scale: j.sensor.Scale, Path: path})
			if err != nil {
				var acqErr *source.AcquisitionError
				if !errors.As(err, &acqErr) {
					err = &source.AcquisitionError{Sensor: j.sensor.Sensor, Date: j.date, Err: err}
				}
				log.Error("export failed", "sensor", j.sensor.Sensor, "date", temporal.Format(j.date), "error", err)
				fail(j.date, err)
				return
			}

			if a.Inspector != nil && cfg.MinValidPercent > 0 {
				pct, err := a.Inspector.ValidPercent(path)
				if err != nil {
					fail(j.date, &source.AcquisitionError{Sensor: j.sensor.Sensor, Date: j.date, Err: err})
					return
				}
				if pct < cfg.MinValidPercent {
					log.Warn("image below pixel threshold", "sensor", j.sensor.Sensor, "date", temporal.Format(j.date),
						"valid_percent", pct, "threshold", cfg.MinValidPercent)
					os.Remove(path)
					mu.Lock()
					invalid[name] = struct{}{}
					result.Invalid = append(result.Invalid, name)
					mu.Unlock()
					fail(j.date, nil)
					return
				}
			}

			mu.Lock()
			result.Exported++
			mu.Unlock()
		})
	}
	wp.StopWait()
	bar.Finish()

	sort.Strings(result.Invalid)
	return failed, errs
}

func loadInvalid(path string) (map[string]struct{}, error) {
	invalid := make(map[string]struct{})
	if path == "" {
		return invalid, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return invalid, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("invalid JSON in %s: %w", path, err)
	}
	for _, n := range names {
		invalid[n] = struct{}{}
	}
	return invalid, nil
}

func saveInvalid(path string, invalid map[string]struct{}) error {
	names := make([]string, 0, len(invalid))
	for n := range invalid {
		names = append(names, n)
	}
	sort.Strings(names)

	data, err := json.MarshalIndent(names, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal invalid images: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
