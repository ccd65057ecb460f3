// Package raster holds the in-memory representation of satellite rasters: one or more
// equally shaped bands backed by gonum matrices plus a validity mask.
package raster

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrShapeMismatch = errors.New("raster shape mismatch")
	ErrEmpty         = errors.New("raster has no bands")
	ErrUnsorted      = errors.New("series is not sorted by date")
	ErrDuplicateDate = errors.New("series contains a duplicate date")
)

// Raster is a stack of bands sharing one spatial grid and one validity mask.
type Raster struct {
	Bands []*mat.Dense
	Mask  *Mask
}

// New builds a raster and checks that every band and the mask share a shape.
func New(bands []*mat.Dense, mask *Mask) (*Raster, error) {
	r := &Raster{Bands: bands, Mask: mask}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewFromSlices builds a raster from row-major band buffers. A nil mask marks every pixel valid.
func NewFromSlices(rows, cols int, bands [][]float64, mask *Mask) (*Raster, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("%w: invalid size %dx%d", ErrShapeMismatch, rows, cols)
	}
	dense := make([]*mat.Dense, len(bands))
	for i, data := range bands {
		if len(data) != rows*cols {
			return nil, fmt.Errorf("%w: band %d has %d values, want %d", ErrShapeMismatch, i, len(data), rows*cols)
		}
		dense[i] = mat.NewDense(rows, cols, data)
	}
	if mask == nil {
		mask = NewMaskFilled(rows, cols, true)
	}
	return New(dense, mask)
}

// Validate enforces the raster invariants: at least one band, equal band shapes, mask shape
// equal to band shape.
func (r *Raster) Validate() error {
	if r == nil || len(r.Bands) == 0 {
		return ErrEmpty
	}
	rows, cols := r.Bands[0].Dims()
	for i, b := range r.Bands[1:] {
		br, bc := b.Dims()
		if br != rows || bc != cols {
			return fmt.Errorf("%w: band %d is %dx%d, band 0 is %dx%d", ErrShapeMismatch, i+1, br, bc, rows, cols)
		}
	}
	if r.Mask == nil {
		return fmt.Errorf("%w: missing mask", ErrShapeMismatch)
	}
	mr, mc := r.Mask.Dims()
	if mr != rows || mc != cols {
		return fmt.Errorf("%w: mask is %dx%d, bands are %dx%d", ErrShapeMismatch, mr, mc, rows, cols)
	}
	return nil
}

func (r *Raster) Dims() (rows, cols int) {
	return r.Bands[0].Dims()
}

func (r *Raster) NumBands() int {
	return len(r.Bands)
}

// Clone returns a deep copy.
func (r *Raster) Clone() *Raster {
	bands := make([]*mat.Dense, len(r.Bands))
	for i, b := range r.Bands {
		bands[i] = mat.DenseCopyOf(b)
	}
	return &Raster{Bands: bands, Mask: r.Mask.Clone()}
}

// MaskFromNoData marks a pixel invalid when any band holds NaN, ±Inf or the nodata value.
func MaskFromNoData(bands []*mat.Dense, nodata float64, hasNoData bool) (*Mask, error) {
	if len(bands) == 0 {
		return nil, ErrEmpty
	}
	rows, cols := bands[0].Dims()
	m := NewMaskFilled(rows, cols, true)
	for _, b := range bands {
		br, bc := b.Dims()
		if br != rows || bc != cols {
			return nil, fmt.Errorf("%w: band is %dx%d, want %dx%d", ErrShapeMismatch, br, bc, rows, cols)
		}
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				v := b.At(y, x)
				if math.IsNaN(v) || math.IsInf(v, 0) || (hasNoData && v == nodata) {
					m.Set(y, x, false)
				}
			}
		}
	}
	return m, nil
}

// GeoRef places a raster on the ground: a GDAL-style affine geotransform and a WKT
// projection. The zero value means "not georeferenced".
type GeoRef struct {
	Transform  [6]float64
	Projection string
}

// IsZero reports whether g carries no georeferencing.
func (g GeoRef) IsZero() bool {
	return g.Transform == [6]float64{} && g.Projection == ""
}

// Rescaled returns g with its pixel size adjusted for a grid resized from (rows, cols) to
// (newRows, newCols) over the same extent.
func (g GeoRef) Rescaled(rows, cols, newRows, newCols int) GeoRef {
	out := g
	sx := float64(cols) / float64(newCols)
	sy := float64(rows) / float64(newRows)
	out.Transform[1] *= sx
	out.Transform[2] *= sy
	out.Transform[4] *= sx
	out.Transform[5] *= sy
	return out
}

// Timestamped is a raster with its acquisition date (date only, UTC).
type Timestamped struct {
	Date   time.Time
	Raster *Raster
}

// Series is the ordered sequence of rasters of one sensor.
type Series []Timestamped

// Sort orders the series by date ascending.
func (s Series) Sort() {
	sort.SliceStable(s, func(i, j int) bool { return s[i].Date.Before(s[j].Date) })
}

// Validate checks ascending order and date uniqueness.
func (s Series) Validate() error {
	for i := 1; i < len(s); i++ {
		if s[i].Date.Equal(s[i-1].Date) {
			return fmt.Errorf("%w: %s", ErrDuplicateDate, s[i].Date.Format(time.DateOnly))
		}
		if s[i].Date.Before(s[i-1].Date) {
			return fmt.Errorf("%w: %s after %s", ErrUnsorted, s[i].Date.Format(time.DateOnly), s[i-1].Date.Format(time.DateOnly))
		}
	}
	return nil
}

func (s Series) Dates() []time.Time {
	dates := make([]time.Time, len(s))
	for i, t := range s {
		dates[i] = t.Date
	}
	return dates
}
