// Package gapfill replaces invalid (cloud, no-data) pixels with the mean of the valid pixels
// around them, growing the averaging window pass after pass until the raster is complete or
// the window reaches its ceiling.
package gapfill

import (
	"errors"
	"fmt"
	"math"

	"github.com/Devyash0601/WGAST-test/internal/raster"
	"gonum.org/v1/gonum/mat"
)

var ErrInvalidSchedule = errors.New("invalid window schedule")

// Schedule is the window growth plan: the first pass uses an Initial x Initial window, each
// following pass grows it by Step. Max caps the window size; zero derives the cap from the
// raster extent.
type Schedule struct {
	Initial int `yaml:"initial" validate:"gte=1"`
	Step    int `yaml:"step" validate:"gte=1"`
	Max     int `yaml:"max" validate:"gte=0"`
}

// DefaultSchedule is used for single-band rasters when no schedule is configured.
var DefaultSchedule = Schedule{Initial: 3, Step: 2}

func (s Schedule) Validate() error {
	if s.Initial < 1 {
		return fmt.Errorf("%w: initial window %d", ErrInvalidSchedule, s.Initial)
	}
	if s.Step < 1 {
		return fmt.Errorf("%w: step %d", ErrInvalidSchedule, s.Step)
	}
	if s.Max < 0 {
		return fmt.Errorf("%w: max window %d", ErrInvalidSchedule, s.Max)
	}
	return nil
}

// ceiling is the largest window a pass may use. A window of 2*max(rows, cols)+1 centred on any
// pixel covers the whole raster.
func (s Schedule) ceiling(rows, cols int) int {
	if s.Max > 0 {
		return s.Max
	}
	return 2*max(rows, cols) + 1
}

// Report describes a fill run.
type Report struct {
	Passes      int
	Filled      int
	Remaining   int
	FinalWindow int
	// ValidPerPass is the valid pixel count before the first pass followed by the count after
	// every pass.
	ValidPerPass []int
}

// Complete reports whether every pixel ended up valid.
func (r Report) Complete() bool {
	return r.Remaining == 0
}

// FillBand fills one band in place using its mask, which is updated in place too.
func FillBand(band *mat.Dense, mask *raster.Mask, schedule Schedule) (Report, error) {
	if err := schedule.Validate(); err != nil {
		return Report{}, err
	}
	rows, cols := band.Dims()
	mr, mc := mask.Dims()
	if mr != rows || mc != cols {
		return Report{}, fmt.Errorf("%w: mask %dx%d, band %dx%d", raster.ErrShapeMismatch, mr, mc, rows, cols)
	}
	return run([]*mat.Dense{band}, mask, schedule), nil
}

// Fill is the single-band variant: every band of r is filled on its own with its own copy of
// the mask. The returned raster's mask keeps a pixel valid only if it was filled in every band.
// r is not modified.
func Fill(r *raster.Raster, schedule Schedule) (*raster.Raster, Report, error) {
	if err := r.Validate(); err != nil {
		return nil, Report{}, err
	}
	if err := schedule.Validate(); err != nil {
		return nil, Report{}, err
	}

	out := r.Clone()
	before := r.Mask.Count()
	rows, cols := r.Dims()
	combined := raster.NewMaskFilled(rows, cols, true)

	var report Report
	for _, band := range out.Bands {
		mask := r.Mask.Clone()
		bandReport := run([]*mat.Dense{band}, mask, schedule)
		if bandReport.Passes > report.Passes {
			report.Passes = bandReport.Passes
			report.FinalWindow = bandReport.FinalWindow
			report.ValidPerPass = bandReport.ValidPerPass
		}
		if err := combined.And(mask); err != nil {
			return nil, Report{}, err
		}
	}
	out.Mask = combined

	report.Filled = combined.Count() - before
	report.Remaining = combined.Len() - combined.Count()
	return out, report, nil
}

// FillMultiband fills all bands of r together: they share the mask and the window schedule,
// so a pixel becomes valid in every band during the same pass. r is not modified.
func FillMultiband(r *raster.Raster, schedule Schedule) (*raster.Raster, Report, error) {
	if err := r.Validate(); err != nil {
		return nil, Report{}, err
	}
	if err := schedule.Validate(); err != nil {
		return nil, Report{}, err
	}
	out := r.Clone()
	report := run(out.Bands, out.Mask, schedule)
	return out, report, nil
}

// run performs the passes. Every pass reads from the state left by the previous pass, so pixels
// filled during a pass only contribute from the next one on. A NaN or infinite value is a gap
// even when the mask marks it valid.
func run(bands []*mat.Dense, mask *raster.Mask, schedule Schedule) Report {
	rows, cols := mask.Dims()
	total := rows * cols
	ceiling := schedule.ceiling(rows, cols)
	invalidateNonFinite(bands, mask)

	valid := mask.Count()
	report := Report{ValidPerPass: []int{valid}}
	start := valid

	window := schedule.Initial
	for valid < total && valid > 0 && window <= ceiling {
		counts := countTable(mask)
		sums := make([]*summedArea, len(bands))
		for i, b := range bands {
			sums[i] = sumTable(b, mask)
		}

		radius := window / 2
		var filled [][2]int
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				if mask.Valid(y, x) {
					continue
				}
				y0, y1 := max(0, y-radius), min(rows-1, y+radius)
				x0, x1 := max(0, x-radius), min(cols-1, x+radius)
				n := counts.query(y0, x0, y1, x1)
				if n == 0 {
					continue
				}
				for i, b := range bands {
					b.Set(y, x, sums[i].query(y0, x0, y1, x1)/n)
				}
				filled = append(filled, [2]int{y, x})
			}
		}
		for _, p := range filled {
			mask.Set(p[0], p[1], true)
		}

		valid += len(filled)
		report.Passes++
		report.FinalWindow = window
		report.ValidPerPass = append(report.ValidPerPass, valid)
		window += schedule.Step
	}

	report.Filled = valid - start
	report.Remaining = total - valid
	return report
}

func invalidateNonFinite(bands []*mat.Dense, mask *raster.Mask) {
	rows, cols := mask.Dims()
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if !mask.Valid(y, x) {
				continue
			}
			for _, b := range bands {
				if v := b.At(y, x); math.IsNaN(v) || math.IsInf(v, 0) {
					mask.Set(y, x, false)
					break
				}
			}
		}
	}
}
