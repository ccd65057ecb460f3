package delivery

import (
	"fmt"
	"time"

	"github.com/Devyash0601/WGAST-test/internal/acquire"
	"github.com/Devyash0601/WGAST-test/internal/properties"
	"github.com/Devyash0601/WGAST-test/internal/resample"
	"github.com/Devyash0601/WGAST-test/internal/source"
	"github.com/Devyash0601/WGAST-test/internal/temporal"
	"github.com/Devyash0601/WGAST-test/internal/triple"
)

// region loads the GeoJSON ROI when one is configured, the bounding box otherwise.
func region(cfg *properties.Config) (source.Region, error) {
	if cfg.Region.GeoJSON != "" {
		return source.LoadRegion(properties.Resolve(cfg.Region.GeoJSON))
	}
	b := cfg.Region.Bounds
	if len(b) != 4 {
		return source.Region{}, fmt.Errorf("region bbox needs 4 values, got %d", len(b))
	}
	return source.NewBBoxRegion(b[0], b[1], b[2], b[3])
}

func dateRange(cfg *properties.Config) (start, end time.Time, err error) {
	if start, err = temporal.ParseDate(cfg.Dates.Start); err != nil {
		return
	}
	end, err = temporal.ParseDate(cfg.Dates.End)
	return
}

func acquireSensors(cfg *properties.Config) ([]acquire.SensorConfig, error) {
	out := make([]acquire.SensorConfig, 0, len(cfg.Sensors))
	for _, s := range cfg.Sensors {
		sensor, err := source.ParseSensor(s.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, acquire.SensorConfig{Sensor: sensor, Collection: s.Collection, Scale: s.Scale})
	}
	return out, nil
}

func tripleConfig(cfg *properties.Config) (triple.Config, error) {
	reference, err := source.ParseSensor(cfg.Triple.Reference)
	if err != nil {
		return triple.Config{}, err
	}
	method, err := resample.ParseMethod(cfg.Triple.Method)
	if err != nil {
		return triple.Config{}, err
	}

	sensors := make([]triple.SensorConfig, 0, len(cfg.Sensors))
	for _, s := range cfg.Sensors {
		sensor, err := source.ParseSensor(s.Name)
		if err != nil {
			return triple.Config{}, err
		}
		sensors = append(sensors, triple.SensorConfig{
			Sensor:    sensor,
			Schedule:  s.Schedule,
			Multiband: s.Multiband,
			Resample:  s.Resample,
		})
	}

	return triple.Config{
		Reference:       reference,
		Sensors:         sensors,
		Method:          method,
		RequireComplete: cfg.Triple.RequireComplete,
		Concurrency:     cfg.Triple.Concurrency,
		DatesPath:       properties.Resolve(cfg.Paths.TripleDates),
	}, nil
}

func copernicusConfig(cfg *properties.Config, cache source.SceneCache) (source.CopernicusConfig, error) {
	creds, err := source.ParseCredentials(properties.CopernicusClientIDs(), properties.CopernicusClientSecrets())
	if err != nil {
		return source.CopernicusConfig{}, err
	}
	return source.CopernicusConfig{
		BaseURL:           cfg.Acquisition.BaseURL,
		TokenURL:          properties.CopernicusTokenURL(),
		Credentials:       creds,
		Retries:           cfg.Acquisition.Retries,
		RetryDelay:        cfg.Acquisition.RetryDelay,
		RequestsPerMinute: int(cfg.Acquisition.RequestsPerMinute),
		Cache:             cache,
	}, nil
}
