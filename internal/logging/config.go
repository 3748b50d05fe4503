package logging

import (
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"
)

// Formats accepted by Config.Format.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config holds logging configuration.
type Config struct {
	Level  zapcore.Level `koanf:"level"`
	Format string        `koanf:"format"`
	Output OutputConfig  `koanf:"output"`

	// Sampling thins repetitive Trace to Warn entries.
	Sampling SamplingConfig `koanf:"sampling"`

	// Caller annotates entries with the calling file and line.
	Caller bool `koanf:"caller"`

	// StacktraceLevel attaches stack traces at and above this level.
	// Debug or below disables them.
	StacktraceLevel zapcore.Level `koanf:"stacktrace_level"`

	// Fields are added to every entry.
	Fields map[string]string `koanf:"fields"`
}

// OutputConfig selects the sinks.
type OutputConfig struct {
	Console bool `koanf:"console"`
	OTEL    bool `koanf:"otel"`
}

// SamplingConfig configures per-level sampling.
type SamplingConfig struct {
	Enabled bool                                  `koanf:"enabled"`
	Tick    time.Duration                         `koanf:"tick"`
	Levels  map[zapcore.Level]LevelSamplingConfig `koanf:"levels"`
}

// LevelSamplingConfig keeps the first Initial entries per tick for a
// message, then every Thereafter-th.
type LevelSamplingConfig struct {
	Initial    int `koanf:"initial"`
	Thereafter int `koanf:"thereafter"`
}

// NewDefaultConfig returns config suited to an interactive build.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  zapcore.InfoLevel,
		Format: FormatConsole,
		Output: OutputConfig{Console: true},
		Sampling: SamplingConfig{
			Tick: time.Second,
			Levels: map[zapcore.Level]LevelSamplingConfig{
				TraceLevel:         {Initial: 1},
				zapcore.DebugLevel: {Initial: 10},
				zapcore.InfoLevel:  {Initial: 100, Thereafter: 10},
				zapcore.WarnLevel:  {Initial: 100, Thereafter: 100},
			},
		},
		StacktraceLevel: zapcore.FatalLevel,
	}
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	switch c.Format {
	case FormatConsole, FormatJSON:
	default:
		return fmt.Errorf("format must be %q or %q, got %q", FormatJSON, FormatConsole, c.Format)
	}
	if !c.Output.Console && !c.Output.OTEL {
		return fmt.Errorf("at least one output must be enabled (console or otel)")
	}
	if c.Sampling.Enabled && c.Sampling.Tick <= 0 {
		return fmt.Errorf("sampling tick must be > 0 when sampling enabled")
	}
	for k, v := range c.Fields {
		if k == "" {
			return fmt.Errorf("field key cannot be empty")
		}
		if v == "" {
			return fmt.Errorf("field %q has empty value", k)
		}
	}
	return nil
}
