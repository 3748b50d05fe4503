package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, zapcore.InfoLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.True(t, cfg.Output.Console)
	assert.False(t, cfg.Output.OTEL)
	assert.False(t, cfg.Sampling.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"invalid format", func(c *Config) { c.Format = "xml" }, "format must be"},
		{"no output", func(c *Config) { c.Output.Console = false }, "at least one output"},
		{"zero tick", func(c *Config) { c.Sampling.Enabled = true; c.Sampling.Tick = 0 }, "sampling tick"},
		{"empty field key", func(c *Config) { c.Fields = map[string]string{"": "x"} }, "field key"},
		{"empty field value", func(c *Config) { c.Fields = map[string]string{"k": ""} }, "empty value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.errMsg)
			}
		})
	}
}
