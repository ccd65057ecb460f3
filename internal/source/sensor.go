package source

import (
	"fmt"
	"strings"
)

// Sensor identifies one of the three fused satellite products.
type Sensor string

const (
	Sentinel2 Sensor = "Sentinel2"
	Landsat8  Sensor = "Landsat8"
	MODIS     Sensor = "MODIS"
)

// Sensors lists the fused sensors from finest to coarsest resolution.
var Sensors = []Sensor{Sentinel2, Landsat8, MODIS}

// ParseSensor accepts the sensor name or its one-letter prefix, case-insensitively.
func ParseSensor(s string) (Sensor, error) {
	for _, sensor := range Sensors {
		if strings.EqualFold(s, string(sensor)) || strings.EqualFold(s, sensor.Prefix()) {
			return sensor, nil
		}
	}
	return "", fmt.Errorf("unknown sensor %q", s)
}

// Prefix is the one-letter code used in triple file names (S_20200101.tif).
func (s Sensor) Prefix() string {
	switch s {
	case Sentinel2:
		return "S"
	case Landsat8:
		return "L"
	case MODIS:
		return "M"
	}
	return string(s)
}

// Collection is the default catalog collection of the sensor.
func (s Sensor) Collection() string {
	switch s {
	case Sentinel2:
		return "sentinel-2-l2a"
	case Landsat8:
		return "landsat-ot-l2"
	case MODIS:
		return "modis"
	}
	return ""
}

// Scale is the native ground sampling distance in metres.
func (s Sensor) Scale() float64 {
	switch s {
	case Sentinel2:
		return 10
	case Landsat8:
		return 30
	case MODIS:
		return 1000
	}
	return 0
}

// HasCloudCover reports whether catalog items of the sensor carry eo:cloud_cover.
func (s Sensor) HasCloudCover() bool {
	return s == Sentinel2 || s == Landsat8
}

// Bands are the output bands of the export evalscript, in order.
func (s Sensor) Bands() []string {
	switch s {
	case Sentinel2:
		return []string{"NDVI", "NDWI", "NDBI"}
	case Landsat8:
		return []string{"LST", "NDVI", "NDWI", "NDBI"}
	case MODIS:
		return []string{"NDVI", "NDWI"}
	}
	return nil
}

// Evalscript returns the processing script producing Bands. Pixels outside the data footprint
// are written as NaN so they read back as invalid.
func (s Sensor) Evalscript() string {
	switch s {
	case Sentinel2:
		return sentinel2Evalscript
	case Landsat8:
		return landsat8Evalscript
	case MODIS:
		return modisEvalscript
	}
	return ""
}

const sentinel2Evalscript = `//VERSION=3
function setup() {
  return {
    input: ["B03", "B04", "B08", "B11", "SCL", "dataMask"],
    output: { id: "default", bands: 3, sampleType: SampleType.FLOAT32 },
  };
}

function index(a, b) {
  return a + b === 0 ? NaN : (a - b) / (a + b);
}

function evaluatePixel(s) {
  if (s.dataMask === 0 || [3, 8, 9, 10].includes(s.SCL)) {
    return [NaN, NaN, NaN];
  }
  return [index(s.B08, s.B04), index(s.B03, s.B08), index(s.B11, s.B08)];
}
`

const landsat8Evalscript = `//VERSION=3
function setup() {
  return {
    input: ["B03", "B04", "B05", "B06", "B10", "BQA", "dataMask"],
    output: { id: "default", bands: 4, sampleType: SampleType.FLOAT32 },
  };
}

function index(a, b) {
  return a + b === 0 ? NaN : (a - b) / (a + b);
}

function evaluatePixel(s) {
  var cloud = (s.BQA >> 3) & 1;
  if (s.dataMask === 0 || cloud === 1) {
    return [NaN, NaN, NaN, NaN];
  }
  return [s.B10, index(s.B05, s.B04), index(s.B03, s.B05), index(s.B06, s.B05)];
}
`

const modisEvalscript = `//VERSION=3
function setup() {
  return {
    input: ["B01", "B02", "B04", "dataMask"],
    output: { id: "default", bands: 2, sampleType: SampleType.FLOAT32 },
  };
}

function index(a, b) {
  return a + b === 0 ? NaN : (a - b) / (a + b);
}

function evaluatePixel(s) {
  if (s.dataMask === 0) {
    return [NaN, NaN];
  }
  return [index(s.B02, s.B01), index(s.B04, s.B02)];
}
`
