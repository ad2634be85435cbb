package appconf

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadFromFile reads a YAML config file over Defaults and validates it.
// A missing file is an error; use Defaults directly to run without one.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	if _, err := os.Stat(path); err != nil {
		return Config{}, fmt.Errorf("failed to stat config file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envOverride maps an environment variable onto a config field.
type envOverride struct {
	name  string
	apply func(c *Config, v string) error
}

var envOverrides = []envOverride{
	{"PORT", func(c *Config, v string) error { return setInt(&c.Port, v) }},
	{"APP_ENV", func(c *Config, v string) error { c.Env = Environment(v); return nil }},
	{"VERBOSE", func(c *Config, v string) error { return setBool(&c.Verbose, v) }},
	{"RATE_LIMIT", func(c *Config, v string) error { return setInt(&c.RateLimit, v) }},
	{"VEHICLE_POSITIONS_URL", func(c *Config, v string) error { c.Feed.VehiclePositionsURL = v; return nil }},
	{"TRIP_UPDATES_URL", func(c *Config, v string) error { c.Feed.TripUpdatesURL = v; return nil }},
	{"FEED_AUTH_HEADER_KEY", func(c *Config, v string) error { c.Feed.AuthHeaderKey = v; return nil }},
	{"FEED_AUTH_HEADER_VALUE", func(c *Config, v string) error { c.Feed.AuthHeaderValue = v; return nil }},
	{"FEED_TIMEOUT", func(c *Config, v string) error { return setDuration(&c.Feed.Timeout, v) }},
	{"GTFS_STATIC_SOURCE", func(c *Config, v string) error { c.Static.Source = v; return nil }},
	{"GTFS_DB_PATH", func(c *Config, v string) error { c.Static.DBPath = v; return nil }},
	{"ALERTS_DB_PATH", func(c *Config, v string) error { c.Alerts.DBPath = v; return nil }},
	{"ALERTS_SOURCE", func(c *Config, v string) error { c.Alerts.Source = AlertSource(v); return nil }},
	{"MODEL_PATH", func(c *Config, v string) error { c.Model.Path = v; return nil }},
	{"CACHE_TTL", func(c *Config, v string) error { return setDuration(&c.Cache.TTL, v) }},
	{"ARRIVALS_TIMEZONE", func(c *Config, v string) error { c.Arrivals.Timezone = v; return nil }},
}

// ApplyEnv overrides fields from environment variables read through lookup
// (os.LookupEnv in production) and revalidates the result.
func ApplyEnv(cfg Config, lookup func(string) (string, bool)) (Config, error) {
	var errs []error
	for _, o := range envOverrides {
		v, ok := lookup(o.name)
		if !ok || v == "" {
			continue
		}
		if err := o.apply(&cfg, v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", o.name, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, fmt.Errorf("invalid environment override: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
