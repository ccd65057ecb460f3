// Package source talks to remote imagery providers. The pipeline only needs three things from
// a provider: the scenes available for a query, how many there are, and an export of one scene
// to a local GeoTIFF.
package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Devyash0601/WGAST-test/internal/raster"
)

var (
	ErrImageNotFound = errors.New("image not found")
	ErrUnauthorized  = errors.New("unauthorized access, check your client ID and secret")
)

// Query selects the scenes of one sensor over a region and date range. MinValidPercent is the
// pixel quality threshold in [0, 100]: scenes with less valid area are filtered out.
type Query struct {
	Sensor          Sensor
	Collection      string
	Region          Region
	Start           time.Time
	End             time.Time
	MinValidPercent float64
}

func (q Query) collection() string {
	if q.Collection != "" {
		return q.Collection
	}
	return q.Sensor.Collection()
}

// Scene is one acquisition day of a sensor. Several catalog items of the same day (tiles,
// orbits) are merged into one scene and mosaicked at export time.
type Scene struct {
	Sensor     Sensor    `json:"sensor"`
	Collection string    `json:"collection,omitempty"`
	Date       time.Time `json:"date"`
	ItemIDs    []string  `json:"item_ids"`
	CloudCover float64   `json:"cloud_cover"`
}

func (s Scene) collection() string {
	if s.Collection != "" {
		return s.Collection
	}
	return s.Sensor.Collection()
}

func (s Scene) String() string {
	return fmt.Sprintf("%s %s", s.Sensor, s.Date.Format(time.DateOnly))
}

// ExportSpec describes where and how a scene is exported.
type ExportSpec struct {
	Region Region
	// Scale is the ground resolution in metres.
	Scale float64
	Path  string
}

// ImageSource is a remote imagery provider.
type ImageSource interface {
	// Query lists the scenes matching q, one per acquisition day, sorted by date.
	Query(ctx context.Context, q Query) ([]Scene, error)
	// Count returns the number of scenes Query would return.
	Count(ctx context.Context, q Query) (int, error)
	// Export writes the scene as a GeoTIFF at spec.Path and returns the path written.
	Export(ctx context.Context, scene Scene, spec ExportSpec) (string, error)
}

// RasterWriter persists a raster as a GeoTIFF.
type RasterWriter interface {
	WriteRaster(path string, r *raster.Raster, geo raster.GeoRef) error
}

// AcquisitionError reports a failure to obtain one scene. It is fatal for that date only.
type AcquisitionError struct {
	Sensor Sensor
	Date   time.Time
	Err    error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquisition of %s on %s failed: %v", e.Sensor, e.Date.Format(time.DateOnly), e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}
