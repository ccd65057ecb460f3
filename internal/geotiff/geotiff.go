// Package geotiff reads and writes rasters and validity masks as GeoTIFF files through GDAL.
package geotiff

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/Devyash0601/WGAST-test/internal/raster"
	"github.com/airbusgeo/godal"
	"gonum.org/v1/gonum/mat"
)

// DefaultNoData is written for invalid pixels of data rasters.
const DefaultNoData = -9999.0

var registerOnce sync.Once

func register() {
	registerOnce.Do(godal.RegisterAll)
}

var mu sync.Mutex

// ExecuteWithMutex serialises GDAL dataset access across goroutines.
func ExecuteWithMutex(fn func() error) error {
	mu.Lock()
	defer mu.Unlock()
	return fn()
}

func ignoreWarnings(ec godal.ErrorCategory, code int, msg string) error {
	if ec == godal.CE_Warning {
		return nil
	}
	return fmt.Errorf("gdal error %d: %s", code, msg)
}

// Image is a decoded GeoTIFF.
type Image struct {
	Raster    *raster.Raster
	Geo       raster.GeoRef
	NoData    float64
	HasNoData bool
}

// Read loads every band of the file. A pixel is invalid when any band holds NaN, an infinite
// value or the band nodata value.
func Read(path string) (*Image, error) {
	register()
	var img *Image
	err := ExecuteWithMutex(func() error {
		ds, err := godal.Open(path, godal.ErrLogger(ignoreWarnings))
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer ds.Close()

		width, height := ds.Structure().SizeX, ds.Structure().SizeY
		if width == 0 || height == 0 {
			return fmt.Errorf("failed to read %s: %w", path, raster.ErrEmpty)
		}

		bands := make([]*mat.Dense, 0, ds.Structure().NBands)
		var nodata float64
		var hasNoData bool
		for i, band := range ds.Bands() {
			data := make([]float64, width*height)
			if err := band.Read(0, 0, data, width, height); err != nil {
				return fmt.Errorf("failed to read band %d of %s: %w", i+1, path, err)
			}
			if nd, ok := band.NoData(); ok && !hasNoData {
				nodata, hasNoData = nd, true
			}
			bands = append(bands, mat.NewDense(height, width, data))
		}

		mask, err := raster.MaskFromNoData(bands, nodata, hasNoData)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		r, err := raster.New(bands, mask)
		if err != nil {
			return err
		}

		transform, err := ds.GeoTransform()
		if err != nil {
			transform = [6]float64{}
		}
		img = &Image{
			Raster:    r,
			Geo:       raster.GeoRef{Transform: transform, Projection: ds.Projection()},
			NoData:    nodata,
			HasNoData: hasNoData,
		}
		return nil
	})
	return img, err
}

// ReadMask loads a single-band mask file; non-zero pixels are valid.
func ReadMask(path string) (*raster.Mask, error) {
	img, err := Read(path)
	if err != nil {
		return nil, err
	}
	rows, cols := img.Raster.Dims()
	return raster.MaskFromValues(rows, cols, img.Raster.Bands[0].RawMatrix().Data)
}

// ValidPercent returns the share of valid pixels of the file, in [0, 100].
func ValidPercent(path string) (float64, error) {
	img, err := Read(path)
	if err != nil {
		return 0, err
	}
	return img.Raster.Mask.ValidPercent(), nil
}

// Write stores r as a Float32 GeoTIFF. Invalid pixels are written as DefaultNoData.
func Write(path string, r *raster.Raster, geo raster.GeoRef) error {
	if err := r.Validate(); err != nil {
		return err
	}
	rows, cols := r.Dims()
	buffers := make([][]float32, len(r.Bands))
	for i, band := range r.Bands {
		buf := make([]float32, rows*cols)
		for y := 0; y < rows; y++ {
			for x := 0; x < cols; x++ {
				v := band.At(y, x)
				if !r.Mask.Valid(y, x) || math.IsNaN(v) || math.IsInf(v, 0) {
					v = DefaultNoData
				}
				buf[y*cols+x] = float32(v)
			}
		}
		buffers[i] = buf
	}
	return create(path, godal.Float32, len(buffers), rows, cols, geo, true, func(i int, band godal.Band) error {
		return band.Write(0, 0, buffers[i], cols, rows)
	})
}

// WriteMask stores mask as a single-band Byte GeoTIFF of ones and zeros.
func WriteMask(path string, mask *raster.Mask, geo raster.GeoRef) error {
	rows, cols := mask.Dims()
	if rows == 0 || cols == 0 {
		return fmt.Errorf("failed to write %s: %w", path, raster.ErrEmpty)
	}
	buf := make([]uint8, rows*cols)
	for i, v := range mask.Values() {
		buf[i] = uint8(v)
	}
	return create(path, godal.Byte, 1, rows, cols, geo, false, func(_ int, band godal.Band) error {
		return band.Write(0, 0, buf, cols, rows)
	})
}

// create writes through a temporary file renamed into place, so readers never see a partial
// GeoTIFF.
func create(path string, dtype godal.DataType, nBands, rows, cols int, geo raster.GeoRef, nodata bool, fill func(int, godal.Band) error) error {
	register()
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	tmpFile := path + ".tmp"

	err := ExecuteWithMutex(func() error {
		ds, err := godal.Create(godal.GTiff, tmpFile, nBands, dtype, cols, rows,
			godal.CreationOption("COMPRESS=LZW", "TILED=YES"), godal.ErrLogger(ignoreWarnings))
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}

		if !geo.IsZero() {
			if err := ds.SetGeoTransform(geo.Transform); err != nil {
				ds.Close()
				return fmt.Errorf("failed to set geotransform of %s: %w", path, err)
			}
			if geo.Projection != "" {
				if err := ds.SetProjection(geo.Projection); err != nil {
					ds.Close()
					return fmt.Errorf("failed to set projection of %s: %w", path, err)
				}
			}
		}

		for i, band := range ds.Bands() {
			if nodata {
				if err := band.SetNoData(DefaultNoData); err != nil {
					ds.Close()
					return fmt.Errorf("failed to set nodata of %s: %w", path, err)
				}
			}
			if err := fill(i, band); err != nil {
				ds.Close()
				return fmt.Errorf("failed to write band %d of %s: %w", i+1, path, err)
			}
		}
		if err := ds.Close(); err != nil {
			return fmt.Errorf("failed to close %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		os.Remove(tmpFile)
		return err
	}

	if err := os.Rename(tmpFile, path); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("failed to rename %s: %w", tmpFile, err)
	}
	return nil
}
