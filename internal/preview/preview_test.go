package preview

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Devyash0601/WGAST-test/internal/properties"
	"github.com/Devyash0601/WGAST-test/internal/raster"
	"github.com/Devyash0601/WGAST-test/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(t *testing.T) *raster.Raster {
	t.Helper()
	mask := raster.ParseMask(
		"11",
		"10",
	)
	r, err := raster.NewFromSlices(2, 2, [][]float64{
		{0.1, 0.3, 0.5, 9},
		{1, 2, 3, 4},
	}, mask)
	require.NoError(t, err)
	return r
}

func at(img image.Image, x, y int) color.RGBA {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

func TestStretchIgnoresInvalidPixels(t *testing.T) {
	lo, hi, err := Stretch(sample(t), 0)
	require.NoError(t, err)
	assert.Equal(t, 0.1, lo)
	assert.Equal(t, 0.5, hi)

	empty, err := raster.NewFromSlices(1, 1, [][]float64{{1}}, raster.NewMaskFilled(1, 1, false))
	require.NoError(t, err)
	_, _, err = Stretch(empty, 0)
	assert.ErrorIs(t, err, ErrNoValidPixels)
}

func TestImage(t *testing.T) {
	frame := properties.ColorMap["Landsat8"]
	img, err := Image(sample(t), 0, 2, 1, frame, "L")
	require.NoError(t, err)

	assert.Equal(t, image.Rect(0, 0, 2*2+2, 2*2+2+captionHeight), img.Bounds())
	assert.Equal(t, color.RGBA{frame.R, frame.G, frame.B, 255}, at(img, 0, 0), "frame")
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, at(img, 1, 1), "minimum is black")
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, at(img, 2, 2))
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, at(img, 1, 3), "maximum is white")
	invalid := properties.ColorMap["unknown"]
	assert.Equal(t, color.RGBA{invalid.R, invalid.G, invalid.B, 255}, at(img, 3, 3), "invalid pixel")
}

func TestRenderWritesPNG(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "preview")
	p := NewRenderer(dir)
	p.Band = 5
	date := time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC)

	require.NoError(t, p.Render(source.Landsat8, date, sample(t)))

	path := filepath.Join(dir, "L_20200131.png")
	assert.Equal(t, path, p.Path(source.Landsat8, date))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, format, err := image.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 2*2+8, cfg.Width)
}
