package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// MaxExportPixels is the largest width or height the Process API accepts.
const MaxExportPixels = 2500

const metresPerDegree = 111_000.0

var ErrEmptyRegion = errors.New("region has no area")

// Region is the area of interest, in WGS84 longitude/latitude.
type Region struct {
	Geometry orb.Geometry
}

// NewBBoxRegion builds a rectangular region from [minLon, minLat, maxLon, maxLat].
func NewBBoxRegion(minLon, minLat, maxLon, maxLat float64) (Region, error) {
	if minLon >= maxLon || minLat >= maxLat {
		return Region{}, fmt.Errorf("%w: bbox [%g %g %g %g]", ErrEmptyRegion, minLon, minLat, maxLon, maxLat)
	}
	b := orb.Bound{Min: orb.Point{minLon, minLat}, Max: orb.Point{maxLon, maxLat}}
	return Region{Geometry: b.ToPolygon()}, nil
}

// LoadRegion reads a region from a GeoJSON file holding a FeatureCollection, a Feature or a
// bare geometry. The polygons of every feature are merged.
func LoadRegion(path string) (Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Region{}, fmt.Errorf("failed to read region file: %w", err)
	}
	return ParseRegion(data)
}

func ParseRegion(data []byte) (Region, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return Region{}, fmt.Errorf("error decoding GeoJSON: %w", err)
	}

	var geometry orb.Geometry
	switch probe.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return Region{}, fmt.Errorf("error decoding GeoJSON: %w", err)
		}
		var polygons orb.MultiPolygon
		for _, f := range fc.Features {
			polygons = appendPolygons(polygons, f.Geometry)
		}
		if len(polygons) == 1 {
			geometry = polygons[0]
		} else {
			geometry = polygons
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return Region{}, fmt.Errorf("error decoding GeoJSON: %w", err)
		}
		geometry = f.Geometry
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return Region{}, fmt.Errorf("error decoding GeoJSON: %w", err)
		}
		geometry = g.Coordinates
	}

	if geometry == nil || math.Abs(planar.Area(geometry)) == 0 {
		return Region{}, fmt.Errorf("%w: no polygon found", ErrEmptyRegion)
	}
	return Region{Geometry: geometry}, nil
}

func appendPolygons(dst orb.MultiPolygon, g orb.Geometry) orb.MultiPolygon {
	switch v := g.(type) {
	case orb.Polygon:
		return append(dst, v)
	case orb.MultiPolygon:
		return append(dst, v...)
	case orb.Bound:
		return append(dst, v.ToPolygon())
	}
	return dst
}

// Bound is the bounding box of the region.
func (r Region) Bound() orb.Bound {
	return r.Geometry.Bound()
}

// BBox is the bounding box as [minLon, minLat, maxLon, maxLat].
func (r Region) BBox() [4]float64 {
	b := r.Bound()
	return [4]float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}
}

// Centroid returns latitude and longitude of the region centroid.
func (r Region) Centroid() (float64, float64, error) {
	centroid, area := planar.CentroidArea(r.Geometry)
	if area <= 0 {
		return 0, 0, errors.New("error getting centroid")
	}
	return centroid.Lat(), centroid.Lon(), nil
}

// GeoJSON returns the region geometry as a GeoJSON geometry object.
func (r Region) GeoJSON() (json.RawMessage, error) {
	return geojson.NewGeometry(r.Geometry).MarshalJSON()
}

func calculatePixels(distance, resolution float64) int {
	pixels := distance * (metresPerDegree / resolution)
	if pixels < 1 {
		return 1
	}
	return min(int(pixels), MaxExportPixels)
}

// PixelSize returns the export grid size for a ground resolution in metres.
func (r Region) PixelSize(resolution float64) (width, height int) {
	b := r.Bound()
	return calculatePixels(b.Max.Lon()-b.Min.Lon(), resolution), calculatePixels(b.Max.Lat()-b.Min.Lat(), resolution)
}
