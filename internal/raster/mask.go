package raster

import (
	"fmt"
	"strings"
)

// Mask is a row-major boolean validity grid. true means the pixel was observed.
type Mask struct {
	rows, cols int
	valid      []bool
}

// NewMask returns a mask with every pixel invalid.
func NewMask(rows, cols int) *Mask {
	return &Mask{rows: rows, cols: cols, valid: make([]bool, rows*cols)}
}

func NewMaskFilled(rows, cols int, valid bool) *Mask {
	m := NewMask(rows, cols)
	if valid {
		for i := range m.valid {
			m.valid[i] = true
		}
	}
	return m
}

// MaskFromValues builds a mask from numeric values; non-zero means valid.
func MaskFromValues(rows, cols int, values []float64) (*Mask, error) {
	if len(values) != rows*cols {
		return nil, fmt.Errorf("%w: %d mask values for %dx%d", ErrShapeMismatch, len(values), rows, cols)
	}
	m := NewMask(rows, cols)
	for i, v := range values {
		m.valid[i] = v != 0
	}
	return m, nil
}

// ParseMask reads a mask from rows of '1' (valid) and '0' (invalid) characters.
func ParseMask(lines ...string) *Mask {
	cols := 0
	if len(lines) > 0 {
		cols = len(strings.TrimSpace(lines[0]))
	}
	m := NewMask(len(lines), cols)
	for y, line := range lines {
		for x, ch := range strings.TrimSpace(line) {
			m.Set(y, x, ch == '1')
		}
	}
	return m
}

func (m *Mask) Dims() (rows, cols int) {
	return m.rows, m.cols
}

func (m *Mask) Valid(row, col int) bool {
	return m.valid[row*m.cols+col]
}

func (m *Mask) Set(row, col int, valid bool) {
	m.valid[row*m.cols+col] = valid
}

// Count returns the number of valid pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.valid {
		if v {
			n++
		}
	}
	return n
}

func (m *Mask) Len() int {
	return len(m.valid)
}

// ValidPercent is the share of valid pixels in [0, 100].
func (m *Mask) ValidPercent() float64 {
	if len(m.valid) == 0 {
		return 0
	}
	return 100 * float64(m.Count()) / float64(len(m.valid))
}

func (m *Mask) AllValid() bool {
	return m.Count() == len(m.valid)
}

func (m *Mask) Clone() *Mask {
	valid := make([]bool, len(m.valid))
	copy(valid, m.valid)
	return &Mask{rows: m.rows, cols: m.cols, valid: valid}
}

// And keeps a pixel valid only if it is valid in both masks.
func (m *Mask) And(other *Mask) error {
	if other.rows != m.rows || other.cols != m.cols {
		return fmt.Errorf("%w: mask %dx%d and %dx%d", ErrShapeMismatch, m.rows, m.cols, other.rows, other.cols)
	}
	for i, v := range other.valid {
		m.valid[i] = m.valid[i] && v
	}
	return nil
}

// Contains reports whether every pixel valid in other is also valid in m.
func (m *Mask) Contains(other *Mask) bool {
	if other.rows != m.rows || other.cols != m.cols {
		return false
	}
	for i, v := range other.valid {
		if v && !m.valid[i] {
			return false
		}
	}
	return true
}

// Values returns the mask as 1/0 floats, row-major, for writing to disk.
func (m *Mask) Values() []float64 {
	out := make([]float64, len(m.valid))
	for i, v := range m.valid {
		if v {
			out[i] = 1
		}
	}
	return out
}
