package resample

import (
	"math"
	"testing"

	"github.com/Devyash0601/WGAST-test/internal/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func ramp(t *testing.T, rows, cols, bands int, mask *raster.Mask) *raster.Raster {
	t.Helper()
	data := make([][]float64, bands)
	for b := range data {
		data[b] = make([]float64, rows*cols)
		for i := range data[b] {
			data[b][i] = float64(i*(b+1)) + 0.5
		}
	}
	r, err := raster.NewFromSlices(rows, cols, data, mask)
	require.NoError(t, err)
	return r
}

func TestResizeShape(t *testing.T) {
	in := ramp(t, 7, 5, 2, nil)
	for _, method := range []Method{Bilinear, Nearest} {
		for _, size := range [][2]int{{1, 1}, {3, 9}, {14, 10}, {100, 3}, {7, 5}} {
			out, err := Resize(in, size[0], size[1], method)
			require.NoError(t, err)
			rows, cols := out.Dims()
			assert.Equal(t, size[0], rows, "%s %v", method, size)
			assert.Equal(t, size[1], cols, "%s %v", method, size)
			mr, mc := out.Mask.Dims()
			assert.Equal(t, [2]int{rows, cols}, [2]int{mr, mc})
			assert.Equal(t, 2, out.NumBands())
		}
	}
}

func TestResizeSameShapeIsIdentity(t *testing.T) {
	mask := raster.ParseMask("1110", "0111", "1111")
	in := ramp(t, 3, 4, 2, mask)

	out, err := Resize(in, 3, 4, Bilinear)
	require.NoError(t, err)
	for i := range in.Bands {
		assert.True(t, mat.EqualApprox(in.Bands[i], out.Bands[i], 1e-12))
	}
	assert.True(t, out.Mask.Contains(in.Mask) && in.Mask.Contains(out.Mask))

	out.Bands[0].Set(0, 0, -1)
	assert.NotEqual(t, -1.0, in.Bands[0].At(0, 0))
}

func TestResizeIdentityAlongOneAxis(t *testing.T) {
	in := ramp(t, 3, 4, 1, nil)
	out, err := Resize(in, 6, 4, Bilinear)
	require.NoError(t, err)
	// rows 0 and 5 clamp onto the source edges, columns map one to one.
	for x := 0; x < 4; x++ {
		assert.InDelta(t, in.Bands[0].At(0, x), out.Bands[0].At(0, x), 1e-12)
		assert.InDelta(t, in.Bands[0].At(2, x), out.Bands[0].At(5, x), 1e-12)
	}
}

func TestBilinearDownsampleAveragesBlocks(t *testing.T) {
	in, err := raster.NewFromSlices(4, 4, [][]float64{{
		1, 3, 10, 10,
		5, 7, 10, 10,
		0, 0, 2, 2,
		0, 4, 2, 2,
	}}, nil)
	require.NoError(t, err)

	out, err := Resize(in, 2, 2, Bilinear)
	require.NoError(t, err)
	assert.InDelta(t, 4, out.Bands[0].At(0, 0), 1e-12)
	assert.InDelta(t, 10, out.Bands[0].At(0, 1), 1e-12)
	assert.InDelta(t, 1, out.Bands[0].At(1, 0), 1e-12)
	assert.InDelta(t, 2, out.Bands[0].At(1, 1), 1e-12)
	assert.True(t, out.Mask.AllValid())
}

func TestBilinearMaskIsStrict(t *testing.T) {
	in, err := raster.NewFromSlices(2, 2, [][]float64{{math.NaN(), 8, 8, 8}}, raster.ParseMask("01", "11"))
	require.NoError(t, err)

	out, err := Resize(in, 4, 4, Bilinear)
	require.NoError(t, err)

	want := raster.ParseMask(
		"0001",
		"0001",
		"0001",
		"1111",
	)
	assert.True(t, want.Contains(out.Mask) && out.Mask.Contains(want), "mask mismatch")
	assert.Equal(t, 7, out.Mask.Count())

	// invalid neighbours never leak into values
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			if y == 0 && x == 0 {
				assert.True(t, math.IsNaN(out.Bands[0].At(y, x)))
				continue
			}
			assert.InDelta(t, 8, out.Bands[0].At(y, x), 1e-12, "pixel (%d,%d)", y, x)
		}
	}
}

func TestNearestCopiesValuesAndMask(t *testing.T) {
	in, err := raster.NewFromSlices(2, 2, [][]float64{{1, 2, 3, 4}}, raster.ParseMask("10", "11"))
	require.NoError(t, err)

	out, err := Resize(in, 4, 4, Nearest)
	require.NoError(t, err)

	want := mat.NewDense(4, 4, []float64{
		1, 1, math.NaN(), math.NaN(),
		1, 1, math.NaN(), math.NaN(),
		3, 3, 4, 4,
		3, 3, 4, 4,
	})
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			w := want.At(y, x)
			if math.IsNaN(w) {
				assert.False(t, out.Mask.Valid(y, x))
				continue
			}
			assert.True(t, out.Mask.Valid(y, x))
			assert.Equal(t, w, out.Bands[0].At(y, x))
		}
	}
}

func TestResizeRejectsInvalidInput(t *testing.T) {
	in := ramp(t, 2, 2, 1, nil)
	for _, size := range [][2]int{{0, 3}, {3, 0}, {-1, -1}} {
		_, err := Resize(in, size[0], size[1], Bilinear)
		assert.ErrorIs(t, err, ErrInvalidSize)
	}

	bad := &raster.Raster{Bands: in.Bands, Mask: raster.NewMask(3, 3)}
	_, err := Resize(bad, 4, 4, Bilinear)
	assert.ErrorIs(t, err, raster.ErrShapeMismatch)

	_, err = Resize(in, 4, 4, Method(9))
	assert.Error(t, err)
}

func TestResizeLike(t *testing.T) {
	coarse := ramp(t, 2, 3, 1, nil)
	fine := ramp(t, 8, 12, 3, nil)

	out, err := ResizeLike(coarse, fine, Bilinear)
	require.NoError(t, err)
	rows, cols := out.Dims()
	assert.Equal(t, 8, rows)
	assert.Equal(t, 12, cols)
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("Nearest")
	require.NoError(t, err)
	assert.Equal(t, Nearest, m)

	m, err = ParseMethod("")
	require.NoError(t, err)
	assert.Equal(t, Bilinear, m)

	_, err = ParseMethod("cubic")
	assert.Error(t, err)
}
