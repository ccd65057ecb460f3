// Package triple turns the exported scenes of one date into an aligned MODIS, Landsat 8 and
// Sentinel-2 triple: gaps are filled, coarse sensors are resampled onto the reference grid and
// every member is saved with its mask.
package triple

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Devyash0601/WGAST-test/internal/gapfill"
	"github.com/Devyash0601/WGAST-test/internal/raster"
	"github.com/Devyash0601/WGAST-test/internal/resample"
	"github.com/Devyash0601/WGAST-test/internal/source"
	"github.com/Devyash0601/WGAST-test/internal/temporal"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// Store loads exported scenes and saves triple members with their masks.
type Store interface {
	Load(sensor source.Sensor, date time.Time) (*raster.Raster, raster.GeoRef, error)
	Save(sensor source.Sensor, date time.Time, r *raster.Raster, geo raster.GeoRef) error
}

type SensorConfig struct {
	Sensor   source.Sensor
	Schedule gapfill.Schedule
	// Multiband fills all bands with one shared mask; otherwise bands are filled one by one.
	Multiband bool
	// Resample brings the sensor onto the reference grid after filling.
	Resample bool
}

// DefaultSensors mirrors the processing of the reference tutorials: MODIS is filled band by
// band and upsampled, Landsat 8 and Sentinel-2 are filled as multiband stacks with wider
// windows.
var DefaultSensors = []SensorConfig{
	{Sensor: source.Sentinel2, Schedule: gapfill.Schedule{Initial: 15, Step: 15}, Multiband: true},
	{Sensor: source.Landsat8, Schedule: gapfill.Schedule{Initial: 5, Step: 5}, Multiband: true},
	{Sensor: source.MODIS, Schedule: gapfill.Schedule{Initial: 3, Step: 2}, Resample: true},
}

type Config struct {
	// Reference is the sensor whose grid resampled sensors are aligned to. It must be one of
	// Sensors and must not itself be resampled.
	Reference source.Sensor
	Sensors   []SensorConfig
	Method    resample.Method
	// RequireComplete excludes dates where gap filling left invalid pixels.
	RequireComplete bool
	Concurrency     int
	// DatesPath receives the dates whose triple was saved.
	DatesPath    string
	ShowProgress bool
}

// Member is one processed sensor raster of a triple.
type Member struct {
	Sensor source.Sensor
	Raster *raster.Raster
	Geo    raster.GeoRef
	Fill   gapfill.Report
}

// DateReport describes the processing of one date.
type DateReport struct {
	Date     time.Time
	Fill     map[source.Sensor]gapfill.Report
	Excluded bool
	Reason   string
}

type Result struct {
	Built    []time.Time
	Excluded []DateReport
	Reports  []DateReport
}

// PreviewFunc receives every saved member, e.g. to render a quicklook.
type PreviewFunc func(sensor source.Sensor, date time.Time, r *raster.Raster) error

type Builder struct {
	Store   Store
	Logger  *slog.Logger
	Config  Config
	Preview PreviewFunc
}

func (b *Builder) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

func (b *Builder) validate() error {
	if len(b.Config.Sensors) == 0 {
		return fmt.Errorf("no sensors configured")
	}
	found := false
	for _, sc := range b.Config.Sensors {
		if err := sc.Schedule.Validate(); err != nil {
			return fmt.Errorf("%s: %w", sc.Sensor, err)
		}
		if sc.Sensor == b.Config.Reference {
			found = true
			if sc.Resample {
				return fmt.Errorf("reference sensor %s cannot be resampled", sc.Sensor)
			}
		}
	}
	if !found {
		return fmt.Errorf("reference sensor %q is not configured", b.Config.Reference)
	}
	return nil
}

// Run processes every date. Load, shape and save failures abort the run; incomplete gap
// filling only excludes the date when RequireComplete is set.
func (b *Builder) Run(ctx context.Context, dates []time.Time) (*Result, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	log := b.logger()

	var bar *progressbar.ProgressBar
	if b.Config.ShowProgress {
		bar = progressbar.Default(int64(len(dates)), "Building triples")
	} else {
		bar = progressbar.DefaultSilent(int64(len(dates)), "Building triples")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(b.Config.Concurrency, 1))

	var (
		mu      sync.Mutex
		reports []DateReport
	)
	for _, date := range dates {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			report, err := b.buildDate(date)
			if err != nil {
				return fmt.Errorf("triple %s: %w", temporal.Format(date), err)
			}
			if report.Excluded {
				log.Warn("date excluded", "date", temporal.Format(date), "reason", report.Reason)
			}
			mu.Lock()
			reports = append(reports, report)
			mu.Unlock()
			bar.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	bar.Finish()

	sort.Slice(reports, func(i, j int) bool { return reports[i].Date.Before(reports[j].Date) })
	result := &Result{Built: []time.Time{}, Reports: reports}
	for _, r := range reports {
		if r.Excluded {
			result.Excluded = append(result.Excluded, r)
			continue
		}
		result.Built = append(result.Built, r.Date)
	}
	log.Info("triples built", "built", len(result.Built), "excluded", len(result.Excluded))

	if b.Config.DatesPath != "" {
		if err := temporal.SaveDates(b.Config.DatesPath, result.Built); err != nil {
			return result, fmt.Errorf("failed to save triple dates: %w", err)
		}
	}
	return result, nil
}

// Process loads, fills and aligns the members of one date without saving them.
func (b *Builder) Process(date time.Time) ([]Member, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	return b.process(date)
}

func (b *Builder) process(date time.Time) ([]Member, error) {
	ordered := make([]SensorConfig, 0, len(b.Config.Sensors))
	for _, sc := range b.Config.Sensors {
		if sc.Sensor == b.Config.Reference {
			ordered = append([]SensorConfig{sc}, ordered...)
			continue
		}
		ordered = append(ordered, sc)
	}

	var (
		members []Member
		ref     Member
	)
	for _, sc := range ordered {
		r, geo, err := b.Store.Load(sc.Sensor, date)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", sc.Sensor, err)
		}

		var (
			filled *raster.Raster
			report gapfill.Report
		)
		if sc.Multiband {
			filled, report, err = gapfill.FillMultiband(r, sc.Schedule)
		} else {
			filled, report, err = gapfill.Fill(r, sc.Schedule)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to fill %s: %w", sc.Sensor, err)
		}

		if sc.Resample {
			rows, cols := filled.Dims()
			refRows, refCols := ref.Raster.Dims()
			filled, err = resample.ResizeLike(filled, ref.Raster, b.Config.Method)
			if err != nil {
				return nil, fmt.Errorf("failed to resample %s: %w", sc.Sensor, err)
			}
			if ref.Geo.IsZero() {
				geo = geo.Rescaled(rows, cols, refRows, refCols)
			} else {
				geo = ref.Geo
			}
		}

		m := Member{Sensor: sc.Sensor, Raster: filled, Geo: geo, Fill: report}
		if sc.Sensor == b.Config.Reference {
			ref = m
		}
		members = append(members, m)
	}
	return members, nil
}

func (b *Builder) buildDate(date time.Time) (DateReport, error) {
	members, err := b.process(date)
	if err != nil {
		return DateReport{}, err
	}

	report := DateReport{Date: date, Fill: make(map[source.Sensor]gapfill.Report, len(members))}
	for _, m := range members {
		report.Fill[m.Sensor] = m.Fill
		if b.Config.RequireComplete && !m.Raster.Mask.AllValid() && !report.Excluded {
			report.Excluded = true
			report.Reason = fmt.Sprintf("%s has %d invalid pixels after gap filling (window %d)",
				m.Sensor, m.Raster.Mask.Len()-m.Raster.Mask.Count(), m.Fill.FinalWindow)
		}
	}
	if report.Excluded {
		return report, nil
	}

	for _, m := range members {
		if err := b.Store.Save(m.Sensor, date, m.Raster, m.Geo); err != nil {
			return DateReport{}, fmt.Errorf("failed to save %s: %w", m.Sensor, err)
		}
		if b.Preview != nil {
			if err := b.Preview(m.Sensor, date, m.Raster); err != nil {
				b.logger().Warn("preview failed", "sensor", m.Sensor, "date", temporal.Format(date), "error", err)
			}
		}
	}
	return report, nil
}
