// Package preview renders quicklook PNGs of triple members: one band stretched to grey levels
// inside a frame in the sensor colour.
package preview

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/Devyash0601/WGAST-test/internal/properties"
	"github.com/Devyash0601/WGAST-test/internal/raster"
	"github.com/Devyash0601/WGAST-test/internal/source"
	"github.com/Devyash0601/WGAST-test/internal/temporal"
	"github.com/fogleman/gg"
	"gonum.org/v1/gonum/floats"
)

const captionHeight = 18

var ErrNoValidPixels = errors.New("band has no valid pixels")

type Renderer struct {
	Dir string
	// Band is the zero-based band drawn; out-of-range values fall back to band 0.
	Band int
	// Scale is the side in image pixels of one raster pixel.
	Scale  int
	Border int
}

func NewRenderer(dir string) *Renderer {
	return &Renderer{Dir: dir, Scale: 2, Border: 4}
}

func (p *Renderer) Path(sensor source.Sensor, date time.Time) string {
	return filepath.Join(p.Dir, fmt.Sprintf("%s_%s.png", sensor.Prefix(), temporal.FormatCompact(date)))
}

// Render writes the quicklook of r. Its signature matches triple.PreviewFunc.
func (p *Renderer) Render(sensor source.Sensor, date time.Time, r *raster.Raster) error {
	band := p.Band
	if band < 0 || band >= r.NumBands() {
		band = 0
	}
	caption := fmt.Sprintf("%s %s band %d", sensor.Prefix(), temporal.Format(date), band+1)
	img, err := Image(r, band, max(p.Scale, 1), max(p.Border, 0), frameColor(sensor), caption)
	if err != nil {
		return fmt.Errorf("failed to render preview of %s %s: %w", sensor, temporal.Format(date), err)
	}

	if err := os.MkdirAll(p.Dir, os.ModePerm); err != nil {
		return fmt.Errorf("failed to create preview folder: %w", err)
	}
	return gg.SavePNG(p.Path(sensor, date), img)
}

func frameColor(sensor source.Sensor) properties.Color {
	if c, ok := properties.ColorMap[string(sensor)]; ok {
		return c
	}
	return properties.ColorMap["unknown"]
}

// Stretch returns the minimum and maximum of band over the valid pixels.
func Stretch(r *raster.Raster, band int) (lo, hi float64, err error) {
	rows, cols := r.Dims()
	values := make([]float64, 0, rows*cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if r.Mask.Valid(y, x) {
				values = append(values, r.Bands[band].At(y, x))
			}
		}
	}
	if len(values) == 0 {
		return 0, 0, ErrNoValidPixels
	}
	return floats.Min(values), floats.Max(values), nil
}

// Image draws band of r with a linear grey stretch. Invalid pixels take the "unknown" colour.
func Image(r *raster.Raster, band, scale, border int, frame properties.Color, caption string) (image.Image, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	lo, hi, err := Stretch(r, band)
	if err != nil {
		return nil, err
	}
	rows, cols := r.Dims()
	width := cols*scale + 2*border
	height := rows*scale + 2*border + captionHeight

	dc := gg.NewContext(width, height)
	dc.SetRGB255(int(frame.R), int(frame.G), int(frame.B))
	dc.Clear()

	invalid := properties.ColorMap["unknown"]
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if r.Mask.Valid(y, x) {
				gray := 0.5
				if hi > lo {
					gray = (r.Bands[band].At(y, x) - lo) / (hi - lo)
				}
				dc.SetRGB(gray, gray, gray)
			} else {
				dc.SetRGB255(int(invalid.R), int(invalid.G), int(invalid.B))
			}
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					dc.SetPixel(border+x*scale+dx, border+y*scale+dy)
				}
			}
		}
	}

	dc.SetRGB(1, 1, 1)
	dc.DrawStringAnchored(caption, float64(border), float64(height-captionHeight/2), 0, 0.5)
	return dc.Image(), nil
}
