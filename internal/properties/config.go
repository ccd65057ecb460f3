package properties

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Devyash0601/WGAST-test/internal/gapfill"
	"github.com/Devyash0601/WGAST-test/internal/training"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix prefixes every environment override, e.g. WGAST_ACQUISITION_MIN_VALID_PERCENT.
const EnvPrefix = "WGAST"

// Config is the pipeline configuration. Values come from Default, then the YAML file, then
// WGAST_* environment variables.
type Config struct {
	Paths         PathsConfig         `yaml:"paths" split_words:"true"`
	Region        RegionConfig        `yaml:"region" split_words:"true"`
	Dates         DatesConfig         `yaml:"dates" split_words:"true"`
	Acquisition   AcquisitionConfig   `yaml:"acquisition" split_words:"true"`
	Sensors       []SensorConfig      `yaml:"sensors" ignored:"true" validate:"min=1,dive"`
	Triple        TripleConfig        `yaml:"triple" split_words:"true"`
	Dataset       DatasetConfig       `yaml:"dataset" split_words:"true"`
	Training      TrainingConfig      `yaml:"training" split_words:"true"`
	Notifications NotificationsConfig `yaml:"notifications" split_words:"true"`
	Metrics       MetricsConfig       `yaml:"metrics" split_words:"true"`
}

type PathsConfig struct {
	Raw     string `yaml:"raw" split_words:"true" validate:"required"`
	Triple  string `yaml:"triple" split_words:"true" validate:"required"`
	Dataset string `yaml:"dataset" split_words:"true" validate:"required"`
	Cache   string `yaml:"cache" split_words:"true"`
	// Preview enables quicklook PNGs of every triple member when set.
	Preview        string `yaml:"preview" split_words:"true"`
	CommonDates    string `yaml:"common_dates" split_words:"true" validate:"required"`
	TripleDates    string `yaml:"triple_dates" split_words:"true" validate:"required"`
	Pairs          string `yaml:"pairs" split_words:"true" validate:"required"`
	InvalidImages  string `yaml:"invalid_images" split_words:"true"`
	AssemblyReport string `yaml:"assembly_report" split_words:"true"`
}

type RegionConfig struct {
	// Bounds is min lon, min lat, max lon, max lat.
	Bounds  []float64 `yaml:"bbox" split_words:"true"`
	GeoJSON string    `yaml:"geojson" split_words:"true"`
}

type DatesConfig struct {
	Start string `yaml:"start" split_words:"true" validate:"required,datetime=2006-01-02"`
	End   string `yaml:"end" split_words:"true" validate:"required,datetime=2006-01-02"`
}

type AcquisitionConfig struct {
	MinValidPercent   float64       `yaml:"min_valid_percent" split_words:"true" validate:"gte=0,lte=100"`
	ToleranceDays     int           `yaml:"tolerance_days" split_words:"true" validate:"gte=0"`
	Workers           int           `yaml:"workers" split_words:"true" validate:"gte=1"`
	RequestsPerMinute float64       `yaml:"requests_per_minute" split_words:"true" validate:"gte=0"`
	Retries           int           `yaml:"retries" split_words:"true" validate:"gte=1"`
	RetryDelay        time.Duration `yaml:"retry_delay" split_words:"true" validate:"gte=0"`
	CacheTTL          time.Duration `yaml:"cache_ttl" split_words:"true" validate:"gte=0"`
	BaseURL           string        `yaml:"base_url" split_words:"true" validate:"omitempty,url"`
}

type SensorConfig struct {
	Name       string           `yaml:"name" validate:"required,oneof=Sentinel2 Landsat8 MODIS"`
	Collection string           `yaml:"collection"`
	Scale      float64          `yaml:"scale" validate:"gte=0"`
	Schedule   gapfill.Schedule `yaml:"schedule"`
	Multiband  bool             `yaml:"multiband"`
	Resample   bool             `yaml:"resample"`
}

type TripleConfig struct {
	Reference       string `yaml:"reference" split_words:"true" validate:"required,oneof=Sentinel2 Landsat8 MODIS"`
	Method          string `yaml:"method" split_words:"true" validate:"omitempty,oneof=bilinear nearest"`
	RequireComplete bool   `yaml:"require_complete" split_words:"true"`
	Concurrency     int    `yaml:"concurrency" split_words:"true" validate:"gte=1"`
}

type DatasetConfig struct {
	SplitIndex int  `yaml:"split_index" split_words:"true" validate:"gte=0"`
	Strict     bool `yaml:"strict" split_words:"true"`
	// T1Dates and T2Dates are the date lists paired into (t1, t2); both default to the triple
	// dates.
	T1Dates string `yaml:"t1_dates" split_words:"true"`
	T2Dates string `yaml:"t2_dates" split_words:"true"`
}

type TrainingConfig struct {
	Options  training.Options `yaml:"options" split_words:"true"`
	Address  string           `yaml:"address" split_words:"true" validate:"required"`
	Timeout  time.Duration    `yaml:"timeout" split_words:"true" validate:"gte=0"`
	SkipTest bool             `yaml:"skip_test" split_words:"true"`
}

type NotificationsConfig struct {
	Enabled bool `yaml:"enabled" split_words:"true"`
}

type MetricsConfig struct {
	// Textfile is written in the node-exporter textfile format after every stage.
	Textfile string `yaml:"textfile" split_words:"true"`
}

// Default mirrors the settings of the WGAST study area and training run.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			Raw:            "data/raw",
			Triple:         "data/Triple/MODIS_Landsat8_Sentinel2",
			Dataset:        "data/Tdivision",
			Cache:          "data/cache",
			CommonDates:    "data/common_dates.json",
			TripleDates:    "data/Triple/MODIS_Landsat8_Sentinel2/dates.json",
			Pairs:          "data/pairs.json",
			InvalidImages:  "data/invalid_images.json",
			AssemblyReport: "data/Tdivision/assembly_report.csv",
		},
		Region: RegionConfig{Bounds: []float64{85.23, 23.32, 85.35, 23.38}},
		Dates:  DatesConfig{Start: "2013-01-01", End: "2025-08-31"},
		Acquisition: AcquisitionConfig{
			MinValidPercent: 80,
			Workers:         1,
			Retries:         10,
			RetryDelay:      5 * time.Second,
			CacheTTL:        24 * time.Hour,
		},
		Sensors: []SensorConfig{
			{Name: "Sentinel2", Scale: 10, Schedule: gapfill.Schedule{Initial: 15, Step: 15}, Multiband: true},
			{Name: "Landsat8", Scale: 30, Schedule: gapfill.Schedule{Initial: 5, Step: 5}, Multiband: true},
			{Name: "MODIS", Scale: 1000, Schedule: gapfill.Schedule{Initial: 3, Step: 2}, Resample: true},
		},
		Triple: TripleConfig{
			Reference:   "Sentinel2",
			Method:      "bilinear",
			Concurrency: 1,
		},
		Dataset: DatasetConfig{SplitIndex: 7},
		Training: TrainingConfig{
			Options: training.DefaultOptions,
			Address: "localhost:50051",
			Timeout: 6 * time.Hour,
		},
	}
}

// LoadEnv loads .env files the way the CLI expects them: the working directory first, then its
// parents. Missing files are not an error.
func LoadEnv(candidates ...string) {
	if len(candidates) == 0 {
		candidates = []string{".env", "../.env", "../../.env"}
	}
	for _, path := range candidates {
		if err := godotenv.Load(path); err == nil {
			return
		}
	}
}

// Load builds the configuration from the defaults, the YAML file at path (skipped when empty or
// missing) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			// sensors listed in the file replace the defaults instead of merging index by index
			cfg.Sensors = nil
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to load config from file: %w", err)
			}
			if cfg.Sensors == nil {
				cfg.Sensors = Default().Sensors
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

var validate = validator.New()

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Region.GeoJSON == "" && len(c.Region.Bounds) != 4 {
		return fmt.Errorf("region needs a geojson file or a bbox of 4 values, got %d", len(c.Region.Bounds))
	}
	start, _ := time.Parse(time.DateOnly, c.Dates.Start)
	end, _ := time.Parse(time.DateOnly, c.Dates.End)
	if end.Before(start) {
		return fmt.Errorf("end date %s is before start date %s", c.Dates.End, c.Dates.Start)
	}

	seen := make(map[string]bool)
	reference := false
	for _, s := range c.Sensors {
		if seen[s.Name] {
			return fmt.Errorf("sensor %s is configured twice", s.Name)
		}
		seen[s.Name] = true
		if err := s.Schedule.Validate(); err != nil {
			return fmt.Errorf("sensor %s: %w", s.Name, err)
		}
		if s.Name == c.Triple.Reference {
			reference = true
		}
	}
	if !reference {
		return fmt.Errorf("triple reference %s is not among the configured sensors", c.Triple.Reference)
	}
	return nil
}
