package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Devyash0601/WGAST-test/internal/source"
	"github.com/Devyash0601/WGAST-test/internal/temporal"
	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
)

const (
	TrainDir = "train"
	TestDir  = "test"

	partialSuffix = ".partial"
)

// DefaultSlots are the sensors copied for t1 (index 0) and t2 (index 1). Sentinel-2 at t2 is
// the prediction target and stays out of the sample.
var DefaultSlots = [][]source.Sensor{
	{source.MODIS, source.Landsat8, source.Sentinel2},
	{source.MODIS, source.Landsat8},
}

// DefaultLabels are the sensor names used in sample file names.
var DefaultLabels = map[source.Sensor]string{
	source.MODIS:     "MODIS",
	source.Landsat8:  "Landsat",
	source.Sentinel2: "Sentinel",
}

// Split divides pairs at index, clamped to [0, len(pairs)].
func Split(pairs []temporal.Pair, index int) (train, test []temporal.Pair) {
	index = max(0, min(index, len(pairs)))
	return pairs[:index], pairs[index:]
}

type Config struct {
	// TripleDir holds the saved triples.
	TripleDir string
	// OutDir receives train/pair_i and test/pair_i.
	OutDir string
	Naming Naming
	Slots  [][]source.Sensor
	Labels map[source.Sensor]string
	// Strict refuses to write anything when a file of any pair is missing. Otherwise only the
	// affected pairs are skipped.
	Strict       bool
	ReportPath   string
	ShowProgress bool
}

type Assembler struct {
	Logger *slog.Logger
	Config Config
}

// Result summarises an assembly run.
type Result struct {
	RunID   string
	Train   int
	Test    int
	Written []string
	Failed  []string
	Rows    []ReportRow
}

type sample struct {
	group string
	index int
	pair  temporal.Pair
}

func (s sample) folder() string {
	return filepath.Join(s.group, fmt.Sprintf("pair_%d", s.index))
}

func (s sample) name() string {
	return fmt.Sprintf("%s/pair_%d (%s)", s.group, s.index, s.pair)
}

func (a *Assembler) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

func (a *Assembler) slots() [][]source.Sensor {
	if len(a.Config.Slots) > 0 {
		return a.Config.Slots
	}
	return DefaultSlots
}

func (a *Assembler) label(sensor source.Sensor) string {
	if l, ok := a.Config.Labels[sensor]; ok {
		return l
	}
	if l, ok := DefaultLabels[sensor]; ok {
		return l
	}
	return string(sensor)
}

// Assemble splits pairs at splitIndex and writes one folder per pair. Every folder is staged in
// a .partial directory and renamed once complete, so a failing pair never leaves a folder
// behind. Folders of earlier runs that this run does not produce are removed first. Failed
// pairs are returned as joined *IntegrityError values.
func (a *Assembler) Assemble(ctx context.Context, pairs []temporal.Pair, splitIndex int) (*Result, error) {
	cfg := a.Config
	if cfg.OutDir == "" {
		return nil, fmt.Errorf("output directory is not configured")
	}
	log := a.logger()
	slots := a.slots()
	if len(slots) > 2 {
		return nil, fmt.Errorf("%d sensor slots configured, a pair has only 2 dates", len(slots))
	}

	train, test := Split(pairs, splitIndex)
	var samples []sample
	for i, p := range train {
		samples = append(samples, sample{group: TrainDir, index: i, pair: p})
	}
	for i, p := range test {
		samples = append(samples, sample{group: TestDir, index: i, pair: p})
	}

	manifests := make([]*Manifest, len(slots))
	var missing []string
	for idx, sensors := range slots {
		m, err := BuildManifest(cfg.TripleDir, slotDates(pairs, idx), sensors, cfg.Naming)
		var integrityErr *IntegrityError
		if err != nil && !errors.As(err, &integrityErr) {
			return nil, err
		}
		missing = append(missing, m.Missing()...)
		manifests[idx] = m
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		missing = dedupe(missing)
		if cfg.Strict {
			return nil, &IntegrityError{Missing: missing}
		}
		log.Warn("manifest incomplete", "missing", len(missing))
	}

	for _, group := range []string{TrainDir, TestDir} {
		if err := os.MkdirAll(filepath.Join(cfg.OutDir, group), 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s folder: %w", group, err)
		}
	}
	if err := a.pruneStale(samples); err != nil {
		return nil, err
	}

	result := &Result{RunID: uuid.NewString(), Train: len(train), Test: len(test)}

	var bar *progressbar.ProgressBar
	if cfg.ShowProgress {
		bar = progressbar.Default(int64(len(samples)), "Assembling pairs")
	} else {
		bar = progressbar.DefaultSilent(int64(len(samples)), "Assembling pairs")
	}

	var errs []error
	for _, s := range samples {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		files, err := a.assemblePair(manifests, s)
		row := ReportRow{
			RunID:     result.RunID,
			Group:     s.group,
			Folder:    s.folder(),
			T1:        temporal.Format(s.pair.T1),
			T2:        temporal.Format(s.pair.T2),
			Files:     files,
			Status:    StatusWritten,
			CreatedAt: time.Now().UTC(),
		}
		if err != nil {
			log.Error("pair aborted", "pair", s.name(), "error", err)
			row.Status = StatusFailed
			row.Files = 0
			row.Error = err.Error()
			result.Failed = append(result.Failed, s.folder())
			errs = append(errs, err)
		} else {
			result.Written = append(result.Written, s.folder())
		}
		result.Rows = append(result.Rows, row)
		bar.Add(1)
	}
	bar.Finish()

	log.Info("dataset assembled", "run_id", result.RunID, "train", result.Train, "test", result.Test,
		"written", len(result.Written), "failed", len(result.Failed))

	if cfg.ReportPath != "" {
		if err := WriteReport(cfg.ReportPath, result.Rows); err != nil {
			errs = append(errs, err)
		}
	}
	return result, errors.Join(errs...)
}

// assemblePair copies every member of the pair into a staging folder and renames it into
// place. It returns the number of files written.
func (a *Assembler) assemblePair(manifests []*Manifest, s sample) (int, error) {
	dates := []time.Time{s.pair.T1, s.pair.T2}
	var (
		copies  [][2]string
		missing []string
	)
	for idx, sensors := range a.slots() {
		for _, sensor := range sensors {
			e, ok := manifests[idx].Lookup(sensor, dates[idx])
			if !ok {
				missing = append(missing, fmt.Sprintf("%s %s", sensor, temporal.Format(dates[idx])))
				continue
			}
			compact := temporal.FormatCompact(e.Date)
			copies = append(copies,
				[2]string{e.Raster, fmt.Sprintf("%02d_%s_%s%s", idx, a.label(sensor), compact, filepath.Ext(e.Raster))},
				[2]string{e.Mask, fmt.Sprintf("%02d_%s_mask_%s%s", idx, a.label(sensor), compact, filepath.Ext(e.Mask))},
			)
		}
	}

	final := filepath.Join(a.Config.OutDir, s.folder())
	staging := final + partialSuffix
	// A failed pair must not leave the folder of an earlier run behind.
	fail := func(err error) (int, error) {
		os.RemoveAll(staging)
		os.RemoveAll(final)
		return 0, err
	}
	if len(missing) > 0 {
		return fail(&IntegrityError{Pair: s.name(), Missing: missing})
	}

	if err := os.RemoveAll(staging); err != nil {
		return fail(fmt.Errorf("failed to clear %s: %w", staging, err))
	}
	if err := os.MkdirAll(staging, 0755); err != nil {
		return fail(fmt.Errorf("failed to create %s: %w", staging, err))
	}

	for _, c := range copies {
		if err := copyFile(c[0], filepath.Join(staging, c[1])); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fail(&IntegrityError{Pair: s.name(), Missing: []string{c[0]}})
			}
			return fail(err)
		}
	}

	if err := os.RemoveAll(final); err != nil {
		return fail(fmt.Errorf("failed to replace %s: %w", final, err))
	}
	if err := os.Rename(staging, final); err != nil {
		return fail(fmt.Errorf("failed to finalize %s: %w", final, err))
	}
	return len(copies), nil
}

// pruneStale removes pair folders under train/ and test/ that none of samples will write, along
// with leftover staging folders.
func (a *Assembler) pruneStale(samples []sample) error {
	keep := make(map[string]struct{}, len(samples))
	for _, s := range samples {
		keep[s.folder()] = struct{}{}
	}
	for _, group := range []string{TrainDir, TestDir} {
		entries, err := os.ReadDir(filepath.Join(a.Config.OutDir, group))
		if err != nil {
			return fmt.Errorf("failed to list %s folder: %w", group, err)
		}
		for _, e := range entries {
			if !e.IsDir() || !strings.HasPrefix(e.Name(), "pair_") {
				continue
			}
			folder := filepath.Join(group, e.Name())
			if _, ok := keep[folder]; ok {
				continue
			}
			if err := os.RemoveAll(filepath.Join(a.Config.OutDir, folder)); err != nil {
				return fmt.Errorf("failed to remove stale %s: %w", folder, err)
			}
			a.logger().Debug("removed stale pair folder", "folder", folder)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}

// slotDates are the distinct dates used at position idx of the pairs.
func slotDates(pairs []temporal.Pair, idx int) []time.Time {
	seen := make(map[time.Time]struct{})
	var dates []time.Time
	for _, p := range pairs {
		d := temporal.Day(p.T1)
		if idx == 1 {
			d = temporal.Day(p.T2)
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		dates = append(dates, d)
	}
	return temporal.SortDates(dates, true)
}
