// Package resample rescales rasters onto another grid, used to bring coarse sensors (MODIS,
// 1 km) onto the Sentinel-2 grid so the three sensors are pixel aligned.
package resample

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Devyash0601/WGAST-test/internal/raster"
	"gonum.org/v1/gonum/mat"
)

var ErrInvalidSize = errors.New("invalid target size")

type Method int

const (
	Bilinear Method = iota
	Nearest
)

func (m Method) String() string {
	switch m {
	case Bilinear:
		return "bilinear"
	case Nearest:
		return "nearest"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// ParseMethod accepts "bilinear" and "nearest", case-insensitively.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "bilinear":
		return Bilinear, nil
	case "nearest":
		return Nearest, nil
	}
	return 0, fmt.Errorf("unknown resampling method %q", s)
}

// tap is one source pixel contributing to an output pixel.
type tap struct {
	index  int
	weight float64
}

// Resize returns r resized to rows x cols. The input is never modified.
//
// Bilinear output pixels are valid only when every source pixel with a non-zero weight is
// valid. Their value is the weighted mean of the valid contributors, or NaN when there is none.
// Nearest copies both the value and the validity of the nearest source pixel.
func Resize(r *raster.Raster, rows, cols int, method Method) (*raster.Raster, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, rows, cols)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	inRows, inCols := r.Dims()
	if inRows == rows && inCols == cols {
		return r.Clone(), nil
	}

	var ys, xs [][]tap
	switch method {
	case Bilinear:
		ys, xs = linearTaps(inRows, rows), linearTaps(inCols, cols)
	case Nearest:
		ys, xs = nearestTaps(inRows, rows), nearestTaps(inCols, cols)
	default:
		return nil, fmt.Errorf("unsupported resampling method %s", method)
	}

	mask := raster.NewMask(rows, cols)
	bands := make([]*mat.Dense, len(r.Bands))
	for i := range bands {
		bands[i] = mat.NewDense(rows, cols, nil)
	}

	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			valid := true
			weightSum := 0.0
			for _, ty := range ys[y] {
				for _, tx := range xs[x] {
					if r.Mask.Valid(ty.index, tx.index) {
						weightSum += ty.weight * tx.weight
					} else {
						valid = false
					}
				}
			}
			mask.Set(y, x, valid)

			for i, band := range r.Bands {
				if weightSum == 0 {
					bands[i].Set(y, x, math.NaN())
					continue
				}
				v := 0.0
				for _, ty := range ys[y] {
					for _, tx := range xs[x] {
						if r.Mask.Valid(ty.index, tx.index) {
							v += ty.weight * tx.weight * band.At(ty.index, tx.index)
						}
					}
				}
				bands[i].Set(y, x, v/weightSum)
			}
		}
	}
	return raster.New(bands, mask)
}

// linearTaps maps every output index to at most two source indices using pixel-centre
// alignment: source = (out+0.5)*in/outSize - 0.5, clamped to the source extent. Zero weights
// are omitted so they never affect validity.
func linearTaps(in, out int) [][]tap {
	scale := float64(in) / float64(out)
	taps := make([][]tap, out)
	for o := range taps {
		src := (float64(o)+0.5)*scale - 0.5
		src = math.Max(0, math.Min(src, float64(in-1)))
		i0 := int(math.Floor(src))
		frac := src - float64(i0)
		if frac == 0 || i0+1 >= in {
			taps[o] = []tap{{index: i0, weight: 1}}
			continue
		}
		taps[o] = []tap{
			{index: i0, weight: 1 - frac},
			{index: i0 + 1, weight: frac},
		}
	}
	return taps
}

func nearestTaps(in, out int) [][]tap {
	scale := float64(in) / float64(out)
	taps := make([][]tap, out)
	for o := range taps {
		i := int(math.Floor((float64(o) + 0.5) * scale))
		i = min(max(i, 0), in-1)
		taps[o] = []tap{{index: i, weight: 1}}
	}
	return taps
}

// ResizeLike resizes r onto the grid of ref.
func ResizeLike(r, ref *raster.Raster, method Method) (*raster.Raster, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	rows, cols := ref.Dims()
	return Resize(r, rows, cols, method)
}
