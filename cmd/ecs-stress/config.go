package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/plus3/strata/jobs"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Duration       time.Duration `toml:"duration" yaml:"duration"`
	Entities       int           `toml:"entities" yaml:"entities"`
	Components     int           `toml:"components" yaml:"components"`
	Systems        int           `toml:"systems" yaml:"systems"`
	Seed           int64         `toml:"seed" yaml:"seed"`
	ChurnPerTick   int           `toml:"churn_per_tick" yaml:"churn_per_tick"`
	Profile        string        `toml:"profile" yaml:"profile"`
	GCPauseMetrics bool          `toml:"gc_pause_metrics" yaml:"gc_pause_metrics"`
	ReportInterval time.Duration `toml:"report_interval" yaml:"report_interval"`

	Logging LoggingConfig `toml:"logging" yaml:"logging"`
	Jobs    jobs.Config   `toml:"jobs" yaml:"jobs"`
}

type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

var profileModes = []string{"", "cpu", "mem", "block", "mutex", "trace", "goroutine"}

// Load reads a toml or yaml file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := defaults()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("config %s: unsupported format %q", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Duration:       10 * time.Second,
		Entities:       10000,
		Components:     64,
		Systems:        24,
		Seed:           1,
		ChurnPerTick:   32,
		ReportInterval: time.Second,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Jobs: jobs.DefaultConfig(),
	}
}

// Validate reports every problem with the configuration.
func (c *Config) Validate() error {
	var err error
	if c.Duration <= 0 {
		err = multierr.Append(err, fmt.Errorf("duration must be positive (got %s)", c.Duration))
	}
	if c.Entities < 0 {
		err = multierr.Append(err, fmt.Errorf("entities must not be negative (got %d)", c.Entities))
	}
	if c.Components < 1 || c.Components > maxGeneratedComps {
		err = multierr.Append(err, fmt.Errorf("components must be between 1 and %d (got %d)", maxGeneratedComps, c.Components))
	}
	if c.Systems < 0 {
		err = multierr.Append(err, fmt.Errorf("systems must not be negative (got %d)", c.Systems))
	}
	if c.ChurnPerTick < 0 {
		err = multierr.Append(err, fmt.Errorf("churn_per_tick must not be negative (got %d)", c.ChurnPerTick))
	}
	if c.ReportInterval <= 0 {
		err = multierr.Append(err, fmt.Errorf("report_interval must be positive (got %s)", c.ReportInterval))
	}
	if !slices.Contains(profileModes, c.Profile) {
		err = multierr.Append(err, fmt.Errorf("unknown profile mode %q", c.Profile))
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		err = multierr.Append(err, fmt.Errorf("logging.format must be json or console (got %q)", c.Logging.Format))
	}
	return multierr.Append(err, c.Jobs.Validate())
}

