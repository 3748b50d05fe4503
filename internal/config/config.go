// Package config loads the plains build configuration.
//
// Configuration is layered: defaults, then the YAML file (plains.yaml),
// then PLAINS_* environment variables, then explicit overrides from CLI
// flags.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/plains/internal/logging"
	"github.com/fyrsmithlabs/plains/internal/telemetry"
)

// Config holds the complete plains configuration.
type Config struct {
	Source      string           `koanf:"source"`
	Destination string           `koanf:"destination"`
	Mode        Mode             `koanf:"mode"`
	Logging     logging.Config   `koanf:"logging"`
	Telemetry   telemetry.Config `koanf:"telemetry"`
	HTTP        HTTPConfig       `koanf:"http"`
	Tasks       []map[string]any `koanf:"tasks"`
}

// HTTPConfig holds the status server configuration. Port 0 disables it.
type HTTPConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// TaskSpec is one entry of the tasks list.
type TaskSpec struct {
	Name     string
	Kind     string
	Settings map[string]any
}

// Default returns the configuration used before any source is applied.
func Default() *Config {
	return &Config{
		Source:      "src",
		Destination: "dist",
		Mode:        ModeProduction,
		Logging:     *logging.NewDefaultConfig(),
		Telemetry:   *telemetry.NewDefaultConfig(),
		HTTP: HTTPConfig{
			Host:            "127.0.0.1",
			ShutdownTimeout: Duration(5 * time.Second),
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.Destination == "" {
		return errors.New("destination is required")
	}
	if !c.Mode.Valid() {
		return fmt.Errorf("invalid mode %q (must be %s or %s)", c.Mode, ModeProduction, ModeDevelopment)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http port: %d (must be 0-65535)", c.HTTP.Port)
	}
	if c.HTTP.Port > 0 && c.HTTP.ShutdownTimeout.Duration() <= 0 {
		return errors.New("http shutdown timeout must be positive")
	}
	if _, err := c.TaskSpecs(); err != nil {
		return err
	}
	return nil
}

// TaskSpecs returns the configured tasks. A task without a name is named
// after its kind; names must be unique.
func (c *Config) TaskSpecs() ([]TaskSpec, error) {
	specs := make([]TaskSpec, 0, len(c.Tasks))
	seen := make(map[string]int, len(c.Tasks))
	for i, raw := range c.Tasks {
		kind, _ := raw["kind"].(string)
		if kind == "" {
			return nil, fmt.Errorf("tasks[%d]: kind is required", i)
		}
		name, _ := raw["name"].(string)
		if name == "" {
			name = kind
		}
		if prev, dup := seen[name]; dup {
			return nil, fmt.Errorf("tasks[%d]: duplicate task name %q (also tasks[%d])", i, name, prev)
		}
		seen[name] = i

		settings := make(map[string]any, len(raw))
		for k, v := range raw {
			settings[k] = v
		}
		specs = append(specs, TaskSpec{Name: name, Kind: kind, Settings: settings})
	}
	return specs, nil
}
