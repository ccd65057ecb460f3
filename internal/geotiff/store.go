package geotiff

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/Devyash0601/WGAST-test/internal/raster"
	"github.com/Devyash0601/WGAST-test/internal/source"
	"github.com/Devyash0601/WGAST-test/internal/temporal"
)

// Store maps the pipeline file layout onto GeoTIFF files:
//
//	<RawDir>/<Sensor>/<YYYYMMDD>.tif            exported scenes
//	<TripleDir>/<P>_<YYYYMMDD>.tif              cleaned, aligned rasters (P = S, L or M)
//	<TripleDir>/<P>_mask_<YYYYMMDD>.tif         their validity masks
type Store struct {
	RawDir    string
	TripleDir string
}

func (s Store) RawPath(sensor source.Sensor, date time.Time) string {
	return filepath.Join(s.RawDir, string(sensor), temporal.FormatCompact(date)+".tif")
}

func (s Store) TriplePath(sensor source.Sensor, date time.Time) string {
	return filepath.Join(s.TripleDir, fmt.Sprintf("%s_%s.tif", sensor.Prefix(), temporal.FormatCompact(date)))
}

func (s Store) TripleMaskPath(sensor source.Sensor, date time.Time) string {
	return filepath.Join(s.TripleDir, fmt.Sprintf("%s_mask_%s.tif", sensor.Prefix(), temporal.FormatCompact(date)))
}

// Load reads an exported scene.
func (s Store) Load(sensor source.Sensor, date time.Time) (*raster.Raster, raster.GeoRef, error) {
	img, err := Read(s.RawPath(sensor, date))
	if err != nil {
		return nil, raster.GeoRef{}, err
	}
	return img.Raster, img.Geo, nil
}

// Save writes a triple member and its mask.
func (s Store) Save(sensor source.Sensor, date time.Time, r *raster.Raster, geo raster.GeoRef) error {
	if err := Write(s.TriplePath(sensor, date), r, geo); err != nil {
		return err
	}
	return WriteMask(s.TripleMaskPath(sensor, date), r.Mask, geo)
}

// LoadTriple reads a saved triple member with the mask stored next to it.
func (s Store) LoadTriple(sensor source.Sensor, date time.Time) (*raster.Raster, raster.GeoRef, error) {
	img, err := Read(s.TriplePath(sensor, date))
	if err != nil {
		return nil, raster.GeoRef{}, err
	}
	mask, err := ReadMask(s.TripleMaskPath(sensor, date))
	if err != nil {
		return nil, raster.GeoRef{}, err
	}
	r, err := raster.New(img.Raster.Bands, mask)
	if err != nil {
		return nil, raster.GeoRef{}, err
	}
	return r, img.Geo, nil
}

// ValidPercent reports the valid share of an exported file.
func (s Store) ValidPercent(path string) (float64, error) {
	return ValidPercent(path)
}

// WriteRaster lets the store act as the writer of in-memory image sources.
func (s Store) WriteRaster(path string, r *raster.Raster, geo raster.GeoRef) error {
	return Write(path, r, geo)
}

var _ source.RasterWriter = Store{}
