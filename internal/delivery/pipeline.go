// Package delivery runs the pipeline stages from the loaded configuration and reports their
// outcome through logs, metrics and notifications.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Devyash0601/WGAST-test/internal/acquire"
	"github.com/Devyash0601/WGAST-test/internal/cache"
	"github.com/Devyash0601/WGAST-test/internal/dataset"
	"github.com/Devyash0601/WGAST-test/internal/geotiff"
	"github.com/Devyash0601/WGAST-test/internal/metrics"
	"github.com/Devyash0601/WGAST-test/internal/notification"
	"github.com/Devyash0601/WGAST-test/internal/preview"
	"github.com/Devyash0601/WGAST-test/internal/properties"
	"github.com/Devyash0601/WGAST-test/internal/source"
	"github.com/Devyash0601/WGAST-test/internal/temporal"
	"github.com/Devyash0601/WGAST-test/internal/training"
	"github.com/Devyash0601/WGAST-test/internal/triple"
)

const (
	StageAcquire = "acquire"
	StageTriple  = "triple"
	StageDataset = "dataset"
	StageTrain   = "train"
	StageAll     = "all"
)

// Stages lists the stages in execution order.
var Stages = []string{StageAcquire, StageTriple, StageDataset, StageTrain}

type Pipeline struct {
	Config   *properties.Config
	Logger   *slog.Logger
	Notifier *notification.Discord
	Metrics  *metrics.Recorder
	// Source overrides the Copernicus client, Trainer the gRPC trainer.
	Source       source.ImageSource
	Trainer      training.Trainer
	ShowProgress bool
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Pipeline) store() geotiff.Store {
	return geotiff.Store{
		RawDir:    properties.Resolve(p.Config.Paths.Raw),
		TripleDir: properties.Resolve(p.Config.Paths.Triple),
	}
}

// Run executes one stage, or every stage in order for StageAll. Each stage is timed, recorded in
// the metrics textfile and announced on Discord when notifications are enabled.
func (p *Pipeline) Run(ctx context.Context, stage string) error {
	stages := []string{stage}
	if stage == StageAll {
		stages = Stages
	}
	for _, s := range stages {
		if err := p.runStage(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) runStage(ctx context.Context, stage string) error {
	log := p.logger().With("stage", stage)
	log.Info("stage started")
	start := time.Now()

	var summary string
	var err error
	switch stage {
	case StageAcquire:
		var res *acquire.Result
		res, err = p.Acquire(ctx)
		if res != nil {
			summary = fmt.Sprintf("Acquisition finished: %d common dates, %d acquired, %d exported, %d reused, %d invalid",
				len(res.CommonDates), len(res.Acquired), res.Exported, res.Reused, len(res.Invalid))
		}
	case StageTriple:
		var res *triple.Result
		res, err = p.BuildTriples(ctx)
		if res != nil {
			summary = fmt.Sprintf("Triples built: %d dates saved, %d excluded", len(res.Built), len(res.Excluded))
		}
	case StageDataset:
		var res *dataset.Result
		res, err = p.AssembleDataset(ctx)
		if res != nil {
			summary = fmt.Sprintf("Dataset assembled (run %s): %d train and %d test pairs, %d folders written, %d failed",
				res.RunID, res.Train, res.Test, len(res.Written), len(res.Failed))
		}
	case StageTrain:
		var res *training.Result
		res, err = p.Train(ctx)
		if res != nil {
			summary = fmt.Sprintf("Training run %s reached epoch %d/%d", res.RunID, res.FinalEpoch, p.Config.Training.Options.Epochs)
			if res.Test != nil {
				summary += fmt.Sprintf("\nTest metrics: %v", res.Test.Metrics)
			}
		}
	default:
		return fmt.Errorf("unknown stage %q, expected one of %s or %s", stage, strings.Join(Stages, ", "), StageAll)
	}

	elapsed := time.Since(start)
	if p.Metrics != nil {
		p.Metrics.ObserveStage(stage, elapsed, err)
		if werr := p.Metrics.WriteTextfile(properties.Resolve(p.Config.Metrics.Textfile)); werr != nil {
			log.Warn("failed to write metrics textfile", "error", werr)
		}
	}

	if err != nil {
		log.Error("stage failed", "duration", elapsed.Round(time.Millisecond), "error", err)
		p.notifyError(ctx, fmt.Sprintf("Stage %s failed: %s", stage, err.Error()))
		return fmt.Errorf("stage %s: %w", stage, err)
	}
	log.Info("stage finished", "duration", elapsed.Round(time.Millisecond))
	p.notifySuccess(ctx, summary)
	return nil
}

func (p *Pipeline) notifyError(ctx context.Context, message string) {
	if p.Notifier != nil && p.Config.Notifications.Enabled {
		p.Notifier.NotifyError(ctx, message)
	}
}

func (p *Pipeline) notifySuccess(ctx context.Context, message string) {
	if p.Notifier != nil && p.Config.Notifications.Enabled {
		p.Notifier.NotifySuccess(ctx, message)
	}
}

func (p *Pipeline) imageSource() (source.ImageSource, error) {
	if p.Source != nil {
		return p.Source, nil
	}
	var scenes source.SceneCache
	if fc := p.sceneCache(); fc != nil {
		scenes = fc
	}
	cfg, err := copernicusConfig(p.Config, scenes)
	if err != nil {
		return nil, err
	}
	return source.NewCopernicus(cfg, p.logger())
}

func (p *Pipeline) sceneCache() *cache.FileCache[[]source.Scene] {
	dir := p.Config.Paths.Cache
	if dir == "" {
		return nil
	}
	return cache.NewFileCache[[]source.Scene](properties.Resolve(dir), p.Config.Acquisition.CacheTTL)
}

// ClearCache removes the cached catalog searches and returns the cache folder.
func (p *Pipeline) ClearCache() (string, error) {
	fc := p.sceneCache()
	if fc == nil {
		return "", fmt.Errorf("catalog cache is not configured")
	}
	if err := fc.Clear(); err != nil {
		return fc.Dir(), err
	}
	p.logger().Info("catalog cache cleared", "dir", fc.Dir())
	return fc.Dir(), nil
}

// PreviewTriple renders PNG quicklooks of the saved triple of date and returns their paths.
func (p *Pipeline) PreviewTriple(date time.Time) ([]string, error) {
	dir := p.Config.Paths.Preview
	if dir == "" {
		return nil, fmt.Errorf("preview folder is not configured")
	}
	renderer := preview.NewRenderer(properties.Resolve(dir))
	store := p.store()

	var paths []string
	for _, sensor := range source.Sensors {
		r, _, err := store.LoadTriple(sensor, date)
		if err != nil {
			return paths, fmt.Errorf("failed to load %s triple of %s: %w", sensor, temporal.Format(date), err)
		}
		if err := renderer.Render(sensor, date, r); err != nil {
			return paths, err
		}
		paths = append(paths, renderer.Path(sensor, date))
	}
	return paths, nil
}

// Acquire exports the scenes of every sensor for their common dates.
func (p *Pipeline) Acquire(ctx context.Context) (*acquire.Result, error) {
	cfg := p.Config
	roi, err := region(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load region: %w", err)
	}
	if lat, lon, err := roi.Centroid(); err == nil {
		p.logger().Info("region loaded", "lat", lat, "lon", lon, "bbox", roi.BBox())
	}
	start, end, err := dateRange(cfg)
	if err != nil {
		return nil, err
	}
	sensors, err := acquireSensors(cfg)
	if err != nil {
		return nil, err
	}
	src, err := p.imageSource()
	if err != nil {
		return nil, err
	}

	store := p.store()
	a := &acquire.Acquirer{
		Source:    src,
		Layout:    store,
		Inspector: store,
		Logger:    p.logger(),
		Config: acquire.Config{
			Sensors:           sensors,
			Region:            roi,
			Start:             start,
			End:               end,
			MinValidPercent:   cfg.Acquisition.MinValidPercent,
			ToleranceDays:     cfg.Acquisition.ToleranceDays,
			Workers:           cfg.Acquisition.Workers,
			CommonDatesPath:   properties.Resolve(cfg.Paths.CommonDates),
			InvalidImagesPath: properties.Resolve(cfg.Paths.InvalidImages),
			ShowProgress:      p.ShowProgress,
		},
	}
	res, err := a.Run(ctx)
	if p.Metrics != nil {
		p.Metrics.ObserveAcquisition(res)
	}
	return res, err
}

// BuildTriples gap-fills and aligns the scenes of every common date.
func (p *Pipeline) BuildTriples(ctx context.Context) (*triple.Result, error) {
	tc, err := tripleConfig(p.Config)
	if err != nil {
		return nil, err
	}
	tc.ShowProgress = p.ShowProgress

	dates, err := temporal.LoadDates(properties.Resolve(p.Config.Paths.CommonDates))
	if err != nil {
		return nil, fmt.Errorf("failed to load common dates: %w", err)
	}

	b := &triple.Builder{Store: p.store(), Logger: p.logger(), Config: tc}
	if dir := p.Config.Paths.Preview; dir != "" {
		b.Preview = preview.NewRenderer(properties.Resolve(dir)).Render
	}
	res, err := b.Run(ctx, dates)
	if p.Metrics != nil {
		p.Metrics.ObserveTriples(res)
	}
	return res, err
}

// AssembleDataset pairs the triple dates and writes the train and test folders.
func (p *Pipeline) AssembleDataset(ctx context.Context) (*dataset.Result, error) {
	cfg := p.Config
	t1, err := p.loadDates(cfg.Dataset.T1Dates)
	if err != nil {
		return nil, err
	}
	t2, err := p.loadDates(cfg.Dataset.T2Dates)
	if err != nil {
		return nil, err
	}

	pairs, report, err := dataset.PlanPairs(t1, t2, properties.Resolve(cfg.Paths.Pairs), p.logger())
	if p.Metrics != nil {
		p.Metrics.ObservePairs(report)
	}
	if err != nil {
		return nil, err
	}

	a := &dataset.Assembler{
		Logger: p.logger(),
		Config: dataset.Config{
			TripleDir:    properties.Resolve(cfg.Paths.Triple),
			OutDir:       properties.Resolve(cfg.Paths.Dataset),
			Naming:       dataset.PrefixNaming{},
			Strict:       cfg.Dataset.Strict,
			ReportPath:   properties.Resolve(cfg.Paths.AssemblyReport),
			ShowProgress: p.ShowProgress,
		},
	}
	res, err := a.Assemble(ctx, pairs, cfg.Dataset.SplitIndex)
	if p.Metrics != nil {
		p.Metrics.ObserveDataset(res)
	}
	return res, err
}

// loadDates reads a date list, defaulting to the saved triple dates.
func (p *Pipeline) loadDates(path string) ([]time.Time, error) {
	if path == "" {
		path = p.Config.Paths.TripleDates
	}
	dates, err := temporal.LoadDates(properties.Resolve(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load dates from %s: %w", path, err)
	}
	return dates, nil
}

// Train runs the resumable training loop against the trainer sidecar.
func (p *Pipeline) Train(ctx context.Context) (*training.Result, error) {
	cfg := p.Config.Training
	trainer := p.Trainer
	if trainer == nil {
		client, err := training.NewGRPCTrainer(cfg.Address, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to trainer: %w", err)
		}
		defer client.Close()
		trainer = client
	}

	opts := cfg.Options
	opts.TrainDir = properties.Resolve(opts.TrainDir)
	opts.TestDir = properties.Resolve(opts.TestDir)
	opts.SaveDir = properties.Resolve(opts.SaveDir)

	r := &training.Runner{
		Trainer:      trainer,
		Logger:       p.logger(),
		Options:      opts,
		SkipTest:     cfg.SkipTest,
		ShowProgress: p.ShowProgress,
	}
	res, err := r.Run(ctx)
	if p.Metrics != nil {
		p.Metrics.ObserveTraining(res)
	}
	return res, err
}
