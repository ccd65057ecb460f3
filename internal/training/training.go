// Package training drives an external fusion-model trainer through a resumable epoch loop
// followed by a test pass.
package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
)

var ErrNoTrainer = errors.New("no trainer configured")

const CheckpointFile = "checkpoint.json"

// Options are forwarded to the trainer as they are.
type Options struct {
	LearningRate float64 `yaml:"learning_rate" split_words:"true" validate:"gt=0"`
	BatchSize    int     `yaml:"batch_size" split_words:"true" validate:"gte=1"`
	Epochs       int     `yaml:"epochs" split_words:"true" validate:"gte=0"`
	NumWorkers   int     `yaml:"num_workers" split_words:"true" validate:"gte=0"`
	ImageSize    [2]int  `yaml:"image_size" split_words:"true"`
	PatchSize    [2]int  `yaml:"patch_size" split_words:"true"`
	PatchStride  int     `yaml:"patch_stride" split_words:"true" validate:"gte=1"`
	TestPatch    int     `yaml:"test_patch" split_words:"true" validate:"gte=1"`
	Seed         int64   `yaml:"seed" split_words:"true"`
	TrainDir     string  `yaml:"train_dir" split_words:"true"`
	TestDir      string  `yaml:"test_dir" split_words:"true"`
	SaveDir      string  `yaml:"save_dir" split_words:"true"`
}

// DefaultOptions are the settings WGAST was trained with.
var DefaultOptions = Options{
	LearningRate: 2e-4,
	BatchSize:    32,
	Epochs:       110,
	NumWorkers:   1,
	ImageSize:    [2]int{400, 400},
	PatchSize:    [2]int{32, 32},
	PatchStride:  8,
	TestPatch:    32,
	Seed:         2024,
	TrainDir:     "data/Tdivision/train",
	TestDir:      "data/Tdivision/test",
	SaveDir:      "data/Tdivision",
}

// EpochResult is what the trainer reports after one epoch.
type EpochResult struct {
	Loss          float64
	ModelPath     string
	OptimizerPath string
}

// TestResult holds the evaluation metrics of the test pass.
type TestResult struct {
	Metrics map[string]float64
}

// Trainer is the external model. Epochs are 1-based.
type Trainer interface {
	Restore(ctx context.Context, ckpt Checkpoint, opts Options) error
	TrainEpoch(ctx context.Context, runID string, epoch int, opts Options) (EpochResult, error)
	Test(ctx context.Context, runID string, opts Options) (TestResult, error)
}

type Runner struct {
	Trainer Trainer
	Logger  *slog.Logger
	Options Options
	// SkipTest disables the test pass after training.
	SkipTest     bool
	ShowProgress bool
}

// Result summarises a training run.
type Result struct {
	RunID        string
	Resumed      bool
	StartEpoch   int
	FinalEpoch   int
	Losses       []float64
	Test         *TestResult
	TrainingTime time.Duration
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// CheckpointPath is the checkpoint location inside SaveDir.
func (r *Runner) CheckpointPath() string {
	return filepath.Join(r.Options.SaveDir, CheckpointFile)
}

// Run resumes from the checkpoint when one exists, trains the remaining epochs saving a
// checkpoint after each of them, and finally runs the test pass.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	if r.Trainer == nil {
		return nil, ErrNoTrainer
	}
	log := r.logger()
	opts := r.Options
	path := r.CheckpointPath()

	ckpt, err := LoadCheckpoint(path)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	if ckpt != nil {
		log.Info("checkpoint found, resuming training", "run_id", ckpt.RunID, "epoch", ckpt.Epoch)
		if err := r.Trainer.Restore(ctx, *ckpt, opts); err != nil {
			return nil, fmt.Errorf("failed to restore checkpoint: %w", err)
		}
		result.Resumed = true
		result.RunID = ckpt.RunID
		result.StartEpoch = ckpt.Epoch
	} else {
		log.Info("no checkpoint found, starting training from scratch")
		ckpt = &Checkpoint{}
	}
	if result.RunID == "" {
		result.RunID = uuid.NewString()
		ckpt.RunID = result.RunID
	}
	result.FinalEpoch = result.StartEpoch

	remaining := max(opts.Epochs-result.StartEpoch, 0)
	var bar *progressbar.ProgressBar
	if r.ShowProgress {
		bar = progressbar.Default(int64(remaining), "Training")
	} else {
		bar = progressbar.DefaultSilent(int64(remaining), "Training")
	}

	start := time.Now()
	for epoch := result.StartEpoch; epoch < opts.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		res, err := r.Trainer.TrainEpoch(ctx, result.RunID, epoch+1, opts)
		if err != nil {
			return result, fmt.Errorf("epoch %d/%d failed: %w", epoch+1, opts.Epochs, err)
		}

		ckpt.Epoch = epoch + 1
		ckpt.ModelPath = res.ModelPath
		ckpt.OptimizerPath = res.OptimizerPath
		ckpt.Loss = res.Loss
		ckpt.UpdatedAt = time.Now().UTC()
		if err := SaveCheckpoint(path, ckpt); err != nil {
			return result, err
		}

		result.FinalEpoch = epoch + 1
		result.Losses = append(result.Losses, res.Loss)
		log.Info("checkpoint saved", "epoch", epoch+1, "epochs", opts.Epochs, "loss", res.Loss)
		bar.Add(1)
	}
	bar.Finish()
	result.TrainingTime = time.Since(start)
	if remaining > 0 {
		log.Info("training completed", "run_id", result.RunID, "duration", result.TrainingTime.Round(time.Millisecond))
	}

	if r.SkipTest {
		return result, nil
	}
	test, err := r.Trainer.Test(ctx, result.RunID, opts)
	if err != nil {
		return result, fmt.Errorf("test pass failed: %w", err)
	}
	result.Test = &test
	log.Info("testing completed", "metrics", test.Metrics)
	return result, nil
}
