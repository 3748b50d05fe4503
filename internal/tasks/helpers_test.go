package tasks

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fyrsmithlabs/plains/internal/entry"
	"github.com/fyrsmithlabs/plains/internal/logging"
	"github.com/fyrsmithlabs/plains/internal/orchestrator"
	"github.com/fyrsmithlabs/plains/internal/store"
	"github.com/fyrsmithlabs/plains/internal/task"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	deps   task.Deps
	src    string
	dist   string
	logger *logging.TestLogger
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	base := t.TempDir()
	f := &fixture{
		src:    filepath.Join(base, "src"),
		dist:   filepath.Join(base, "dist"),
		logger: logging.NewTestLogger(),
	}
	require.NoError(t, os.MkdirAll(f.src, 0o755))
	for name, content := range files {
		f.write(t, name, content)
	}

	reg := entry.NewRegistry()
	require.NoError(t, reg.SetSource(f.src))
	require.NoError(t, reg.SetDestination(f.dist))

	f.deps = task.Deps{
		Engine:  orchestrator.NewEngine(),
		Entries: reg,
		Store:   store.New(),
		Logger:  f.logger.Logger,
	}
	return f
}

func (f *fixture) write(t *testing.T, name, content string) {
	t.Helper()
	p := filepath.Join(f.src, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func (f *fixture) register(t *testing.T, kind, name string, cfg map[string]any) *task.Task {
	t.Helper()
	if name == "" {
		name = kind
	}
	if cfg != nil {
		f.deps.Store.Set(store.NamespaceTasks, name, cfg)
	}
	tk, err := Register(f.deps, kind, name)
	require.NoError(t, err)
	return tk
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}
