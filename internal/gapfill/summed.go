package gapfill

import (
	"github.com/Devyash0601/WGAST-test/internal/raster"
	"gonum.org/v1/gonum/mat"
)

// summedArea is an integral image: table[(y+1)*(cols+1)+(x+1)] holds the sum of every cell
// above and left of (y, x), inclusive. Any rectangle sum is then four lookups.
type summedArea struct {
	cols  int
	table []float64
}

func newSummedArea(rows, cols int, at func(y, x int) float64) *summedArea {
	stride := cols + 1
	s := &summedArea{cols: cols, table: make([]float64, (rows+1)*stride)}
	for y := 0; y < rows; y++ {
		rowSum := 0.0
		for x := 0; x < cols; x++ {
			rowSum += at(y, x)
			s.table[(y+1)*stride+x+1] = s.table[y*stride+x+1] + rowSum
		}
	}
	return s
}

// query sums the rectangle [y0, y1] x [x0, x1], bounds inclusive.
func (s *summedArea) query(y0, x0, y1, x1 int) float64 {
	stride := s.cols + 1
	return s.table[(y1+1)*stride+x1+1] -
		s.table[y0*stride+x1+1] -
		s.table[(y1+1)*stride+x0] +
		s.table[y0*stride+x0]
}

// countTable counts valid pixels.
func countTable(mask *raster.Mask) *summedArea {
	rows, cols := mask.Dims()
	return newSummedArea(rows, cols, func(y, x int) float64 {
		if mask.Valid(y, x) {
			return 1
		}
		return 0
	})
}

// sumTable sums band values over valid pixels only.
func sumTable(band *mat.Dense, mask *raster.Mask) *summedArea {
	rows, cols := band.Dims()
	return newSummedArea(rows, cols, func(y, x int) float64 {
		if mask.Valid(y, x) {
			return band.At(y, x)
		}
		return 0
	})
}
