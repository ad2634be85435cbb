package appconf

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

type Environment string

const (
	Development Environment = "development"
	Test        Environment = "test"
	Production  Environment = "production"
)

// AlertSource selects where the alert evaluator reads trip updates from.
type AlertSource string

const (
	AlertSourceFeed  AlertSource = "feed"
	AlertSourceCache AlertSource = "cache"
)

type Config struct {
	Port      int         `yaml:"port" validate:"min=1,max=65535"`
	Env       Environment `yaml:"env" validate:"oneof=development test production"`
	Verbose   bool        `yaml:"verbose"`
	RateLimit int         `yaml:"rate_limit" validate:"min=0"`

	Feed     FeedConfig     `yaml:"feed"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Cache    CacheConfig    `yaml:"cache"`
	Static   StaticConfig   `yaml:"static"`
	Arrivals ArrivalsConfig `yaml:"arrivals"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Model    ModelConfig    `yaml:"model"`
}

type FeedConfig struct {
	VehiclePositionsURL string        `yaml:"vehicle_positions_url" validate:"omitempty,url"`
	TripUpdatesURL      string        `yaml:"trip_updates_url" validate:"omitempty,url"`
	AuthHeaderKey       string        `yaml:"auth_header_key"`
	AuthHeaderValue     string        `yaml:"auth_header_value"`
	Timeout             time.Duration `yaml:"timeout" validate:"gt=0"`
}

// Headers returns the auth header as a map, empty when either half is unset.
func (f FeedConfig) Headers() map[string]string {
	headers := map[string]string{}
	if f.AuthHeaderKey != "" && f.AuthHeaderValue != "" {
		headers[f.AuthHeaderKey] = f.AuthHeaderValue
	}
	return headers
}

type ScheduleConfig struct {
	VehiclePositionsInterval time.Duration `yaml:"vehicle_positions_interval" validate:"gt=0"`
	TripUpdatesInterval      time.Duration `yaml:"trip_updates_interval" validate:"gt=0"`
	AlertsInterval           time.Duration `yaml:"alerts_interval" validate:"gt=0"`
	IngestTimeout            time.Duration `yaml:"ingest_timeout" validate:"gt=0"`
	AlertsTimeout            time.Duration `yaml:"alerts_timeout" validate:"gt=0"`
}

type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl" validate:"gt=0"`
	MaxEntries int           `yaml:"max_entries" validate:"min=1"`
}

type StaticConfig struct {
	// Source is a local zip path or an http(s) URL. Empty skips the import.
	Source          string `yaml:"source"`
	DBPath          string `yaml:"db_path" validate:"required"`
	AuthHeaderKey   string `yaml:"auth_header_key"`
	AuthHeaderValue string `yaml:"auth_header_value"`
}

type ArrivalsConfig struct {
	MaxResults int    `yaml:"max_results" validate:"min=1,max=500"`
	Timezone   string `yaml:"timezone" validate:"required"`
}

type AlertsConfig struct {
	DBPath   string        `yaml:"db_path" validate:"required"`
	Cooldown time.Duration `yaml:"cooldown" validate:"gt=0"`
	Source   AlertSource   `yaml:"source" validate:"oneof=feed cache"`
}

type ModelConfig struct {
	Path string `yaml:"path"`
}

// Defaults returns the configuration used when no file or override sets a value.
func Defaults() Config {
	return Config{
		Port:      4000,
		Env:       Development,
		RateLimit: 100,
		Feed: FeedConfig{
			Timeout: 10 * time.Second,
		},
		Schedule: ScheduleConfig{
			VehiclePositionsInterval: 10 * time.Second,
			TripUpdatesInterval:      10 * time.Second,
			AlertsInterval:           60 * time.Second,
			IngestTimeout:            10 * time.Second,
			AlertsTimeout:            30 * time.Second,
		},
		Cache: CacheConfig{
			TTL:        600 * time.Second,
			MaxEntries: 100_000,
		},
		Static: StaticConfig{
			DBPath: "gtfs.db",
		},
		Arrivals: ArrivalsConfig{
			MaxResults: 50,
			Timezone:   "UTC",
		},
		Alerts: AlertsConfig{
			DBPath:   "alerts.db",
			Cooldown: 15 * time.Minute,
			Source:   AlertSourceFeed,
		},
		Model: ModelConfig{
			Path: "ml/models/delay_predictor_v1.yaml",
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and the cross-field rules the tags cannot express.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := time.LoadLocation(c.Arrivals.Timezone); err != nil {
		return fmt.Errorf("invalid configuration: arrivals.timezone: %w", err)
	}
	return nil
}

// Location returns the configured arrivals timezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Arrivals.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) IsProduction() bool {
	return c.Env == Production
}
