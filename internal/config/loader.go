package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"

	"github.com/fyrsmithlabs/plains/internal/logging"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap/zapcore"
)

const (
	// DefaultFile is read from the working directory when no path is given.
	DefaultFile = "plains.yaml"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "PLAINS_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Load loads configuration from the YAML file at path, then environment
// variables, then overrides (keyed by dotted koanf path, e.g. "logging.level").
//
// Configuration precedence (highest to lowest):
//  1. overrides (CLI flags)
//  2. Environment variables (PLAINS_SOURCE, PLAINS_LOGGING_LEVEL, etc.)
//  3. YAML config file
//  4. Defaults
//
// An empty path reads plains.yaml from the working directory when present.
// An explicit path must exist.
//
// # Environment Variable Mapping
//
// The prefix is stripped and the first underscore becomes the section
// separator:
//
//	PLAINS_SOURCE              -> source
//	PLAINS_LOGGING_LEVEL       -> logging.level
//	PLAINS_HTTP_SHUTDOWN_TIMEOUT -> http.shutdown_timeout
func Load(path string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	content, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}
	if content != nil {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	for key, value := range overrides {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("failed to apply override %s: %w", key, err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				levelHook,
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			Result:           cfg,
			WeaklyTypedInput: true,
			TagName:          "koanf",
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// envKey maps PLAINS_LOGGING_LEVEL to logging.level.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, found := strings.Cut(lower, "_")
	if !found {
		return lower
	}
	return section + "." + field
}

// readConfigFile returns the file content, or nil when path is empty and
// the default file does not exist.
func readConfigFile(path string) ([]byte, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	// Open once and validate through the descriptor.
	f, err := os.Open(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// levelHook decodes level names, including the custom trace level.
func levelHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(zapcore.Level(0)) {
		return data, nil
	}
	return logging.LevelFromString(data.(string))
}
