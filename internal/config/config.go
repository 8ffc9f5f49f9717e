// Package config loads the watts.yaml configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/watts/internal/archive"
	"github.com/felixgeelhaar/watts/internal/database"
	"github.com/felixgeelhaar/watts/internal/errors"
	"github.com/felixgeelhaar/watts/internal/telemetry"
)

const (
	// EnvConfig overrides the configuration file location.
	EnvConfig = "WATTS_CONFIG"

	// DefaultFile is looked up in the working directory.
	DefaultFile = "watts.yaml"
)

// Config represents the WATTS configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Run      RunConfig      `yaml:"run"`
	Archive  archive.Config `yaml:"archive,omitempty"`

	Telemetry telemetry.Config `yaml:"telemetry"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "text", "json"
}

type RunConfig struct {
	ShowStdout  bool `yaml:"show_stdout"`
	ShowStderr  bool `yaml:"show_stderr"`
	KeepWorkdir bool `yaml:"keep_workdir"`
	Checkpoints bool `yaml:"checkpoints"`

	// MetricsFile receives run metrics in the Prometheus text format.
	MetricsFile string `yaml:"metrics_file,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: database.DefaultPath},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Run:      RunConfig{Checkpoints: true},

		Telemetry: telemetry.DefaultConfig(),
	}
}

// Path resolves the configuration file: the explicit path if given, then
// $WATTS_CONFIG, then ./watts.yaml.
func Path(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(EnvConfig); env != "" {
		return env
	}
	return DefaultFile
}

// Load reads the configuration at path over the defaults. A missing file
// yields the defaults unless the path was given explicitly.
func Load(path string, explicit bool) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return nil, errors.Wrap(errors.ErrCodeConfigInvalid, fmt.Sprintf("failed to read config %s", path), err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigInvalid, fmt.Sprintf("failed to parse config %s", path), err).
			WithSuggestion("Run 'watts config view' to see the expected layout")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		c.Database.Path = database.DefaultPath
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return errors.New(errors.ErrCodeConfigInvalid, fmt.Sprintf("unknown log format %q", c.Logging.Format)).
			WithSuggestion("Use 'text' or 'json'")
	}
	if c.Archive.Enabled() {
		if err := c.Archive.Validate(); err != nil {
			return errors.Wrap(errors.ErrCodeConfigInvalid, "invalid archive configuration", err)
		}
	}
	if err := c.Telemetry.Validate(); err != nil {
		return errors.Wrap(errors.ErrCodeConfigInvalid, "invalid telemetry configuration", err)
	}
	return nil
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
