package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fyrsmithlabs/plains/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plains.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "src", cfg.Source)
	assert.Equal(t, "dist", cfg.Destination)
	assert.Equal(t, ModeProduction, cfg.Mode)
	assert.Equal(t, zapcore.InfoLevel, cfg.Logging.Level)
	assert.Equal(t, 5*time.Second, cfg.HTTP.ShutdownTimeout.Duration())
	assert.Empty(t, cfg.Tasks)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
source: assets
destination: public
mode: development
logging:
  level: trace
  format: json
http:
  port: 8089
  shutdown_timeout: 2s
tasks:
  - kind: clean
  - name: styles
    kind: copy
    entries: ["**/*.css"]
    output: "styles/{name}{ext}"
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "assets", cfg.Source)
	assert.Equal(t, "public", cfg.Destination)
	assert.Equal(t, ModeDevelopment, cfg.Mode)
	assert.Equal(t, logging.TraceLevel, cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 8089, cfg.HTTP.Port)
	assert.Equal(t, 2*time.Second, cfg.HTTP.ShutdownTimeout.Duration())

	specs, err := cfg.TaskSpecs()
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "clean", specs[0].Name)
	assert.Equal(t, "styles", specs[1].Name)
	assert.Equal(t, "copy", specs[1].Kind)
	assert.Equal(t, "styles/{name}{ext}", specs[1].Settings["output"])
}

func TestLoad_Precedence(t *testing.T) {
	path := writeConfig(t, "source: from-file\ndestination: out\nlogging:\n  level: warn\n")
	t.Setenv("PLAINS_SOURCE", "from-env")
	t.Setenv("PLAINS_LOGGING_LEVEL", "debug")

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Source)
	assert.Equal(t, "out", cfg.Destination)
	assert.Equal(t, zapcore.DebugLevel, cfg.Logging.Level)

	cfg, err = Load(path, map[string]any{"source": "from-flag", "mode": "development"})
	require.NoError(t, err)
	assert.Equal(t, "from-flag", cfg.Source)
	assert.Equal(t, ModeDevelopment, cfg.Mode)
}

func TestLoad_EnvNestedKey(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PLAINS_HTTP_SHUTDOWN_TIMEOUT", "750ms")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, cfg.HTTP.ShutdownTimeout.Duration())
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantErr string
	}{
		{
			name:    "explicit path missing",
			path:    func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") },
			wantErr: "failed to open config file",
		},
		{
			name:    "path is a directory",
			path:    func(t *testing.T) string { return t.TempDir() },
			wantErr: "is a directory",
		},
		{
			name:    "malformed yaml",
			path:    func(t *testing.T) string { return writeConfig(t, "source: [unterminated\n") },
			wantErr: "failed to parse config file",
		},
		{
			name: "too large",
			path: func(t *testing.T) string {
				return writeConfig(t, "# "+strings.Repeat("x", maxConfigFileSize)+"\n")
			},
			wantErr: "too large",
		},
		{
			name:    "invalid mode",
			path:    func(t *testing.T) string { return writeConfig(t, "mode: staging\n") },
			wantErr: "invalid mode",
		},
		{
			name:    "invalid level",
			path:    func(t *testing.T) string { return writeConfig(t, "logging:\n  level: loud\n") },
			wantErr: "failed to unmarshal config",
		},
		{
			name:    "task without kind",
			path:    func(t *testing.T) string { return writeConfig(t, "tasks:\n  - name: orphan\n") },
			wantErr: "kind is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path(t), nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "source", envKey("PLAINS_SOURCE"))
	assert.Equal(t, "logging.level", envKey("PLAINS_LOGGING_LEVEL"))
	assert.Equal(t, "http.shutdown_timeout", envKey("PLAINS_HTTP_SHUTDOWN_TIMEOUT"))
}
