// Package metrics collects the per-stage counts of a pipeline run and exposes them in the
// node-exporter textfile format.
package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/Devyash0601/WGAST-test/internal/acquire"
	"github.com/Devyash0601/WGAST-test/internal/dataset"
	"github.com/Devyash0601/WGAST-test/internal/temporal"
	"github.com/Devyash0601/WGAST-test/internal/training"
	"github.com/Devyash0601/WGAST-test/internal/triple"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wgast"

type Recorder struct {
	registry *prometheus.Registry

	images        *prometheus.GaugeVec
	commonDates   prometheus.Gauge
	exports       *prometheus.CounterVec
	triples       *prometheus.CounterVec
	pixels        *prometheus.CounterVec
	pairs         *prometheus.GaugeVec
	folders       *prometheus.CounterVec
	epochs        prometheus.Counter
	loss          prometheus.Gauge
	stageDuration *prometheus.GaugeVec
	stageErrors   *prometheus.CounterVec
	lastRun       *prometheus.GaugeVec
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		images: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "images",
			Help:      "Scenes per sensor before and after the pixel-availability filter.",
		}, []string{"sensor", "filter"}),
		commonDates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "common_dates",
			Help:      "Dates shared by every sensor.",
		}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Scene exports by outcome.",
		}, []string{"outcome"}),
		triples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "triples_total",
			Help:      "Triple dates by outcome.",
		}, []string{"outcome"}),
		pixels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gapfill_pixels_total",
			Help:      "Pixels filled and left invalid by the focal-mean gap filler.",
		}, []string{"sensor", "state"}),
		pairs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pairs",
			Help:      "Temporal pairs kept and dropped.",
		}, []string{"state"}),
		folders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_folders_total",
			Help:      "Sample folders by group and status.",
		}, []string{"group", "status"}),
		epochs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_epochs_total",
			Help:      "Training epochs completed in this run.",
		}),
		loss: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "training_loss",
			Help:      "Loss of the last completed epoch.",
		}),
		stageDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of the last run of each stage.",
		}, []string{"stage"}),
		stageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Failed stage runs.",
		}, []string{"stage"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_last_run_timestamp_seconds",
			Help:      "Unix time the stage last finished.",
		}, []string{"stage"}),
	}
	r.registry.MustRegister(
		r.images, r.commonDates, r.exports, r.triples, r.pixels, r.pairs,
		r.folders, r.epochs, r.loss, r.stageDuration, r.stageErrors, r.lastRun,
	)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) ObserveAcquisition(res *acquire.Result) {
	if res == nil {
		return
	}
	for sensor, n := range res.Before {
		r.images.WithLabelValues(string(sensor), "before").Set(float64(n))
	}
	for sensor, n := range res.After {
		r.images.WithLabelValues(string(sensor), "after").Set(float64(n))
	}
	r.commonDates.Set(float64(len(res.CommonDates)))
	r.exports.WithLabelValues("exported").Add(float64(res.Exported))
	r.exports.WithLabelValues("reused").Add(float64(res.Reused))
	r.exports.WithLabelValues("invalid").Add(float64(len(res.Invalid)))
}

func (r *Recorder) ObserveTriples(res *triple.Result) {
	if res == nil {
		return
	}
	r.triples.WithLabelValues("built").Add(float64(len(res.Built)))
	r.triples.WithLabelValues("excluded").Add(float64(len(res.Excluded)))
	for _, report := range res.Reports {
		for sensor, fill := range report.Fill {
			r.pixels.WithLabelValues(string(sensor), "filled").Add(float64(fill.Filled))
			r.pixels.WithLabelValues(string(sensor), "remaining").Add(float64(fill.Remaining))
		}
	}
}

func (r *Recorder) ObservePairs(report temporal.PairReport) {
	r.pairs.WithLabelValues("kept").Set(float64(report.Kept))
	r.pairs.WithLabelValues("dropped").Set(float64(len(report.Dropped)))
}

func (r *Recorder) ObserveDataset(res *dataset.Result) {
	if res == nil {
		return
	}
	for _, row := range res.Rows {
		r.folders.WithLabelValues(row.Group, row.Status).Inc()
	}
}

func (r *Recorder) ObserveTraining(res *training.Result) {
	if res == nil {
		return
	}
	r.epochs.Add(float64(len(res.Losses)))
	if n := len(res.Losses); n > 0 {
		r.loss.Set(res.Losses[n-1])
	}
}

// ObserveStage records how long a stage took and whether it failed.
func (r *Recorder) ObserveStage(stage string, elapsed time.Duration, err error) {
	r.stageDuration.WithLabelValues(stage).Set(elapsed.Seconds())
	r.lastRun.WithLabelValues(stage).SetToCurrentTime()
	if err != nil {
		r.stageErrors.WithLabelValues(stage).Inc()
	}
}

// WriteTextfile atomically writes every metric to path. An empty path is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return err
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
