package tasks

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/fyrsmithlabs/plains/internal/store"
	"github.com/fyrsmithlabs/plains/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifest_TOML(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "a", "img/b.png": "b"})
	f.deps.Store.Set(store.NamespaceGlobal, store.KeyMode, "production")
	f.register(t, "copy", "assets", map[string]any{"entries": []any{"**/*"}})
	f.register(t, "manifest", "", nil)

	require.NoError(t, f.deps.Engine.Publish(context.Background(), "assets,manifest"))

	var doc Manifest
	_, err := toml.DecodeFile(filepath.Join(f.dist, "manifest.toml"), &doc)
	require.NoError(t, err)

	assert.Equal(t, "production", doc.Mode)
	assert.Equal(t, f.src, doc.Source)
	require.Len(t, doc.Tasks, 1)
	assert.Equal(t, "assets", doc.Tasks[0].Name)
	assert.Equal(t, []string{"a.txt", "img/b.png"}, doc.Tasks[0].Outputs)
}

func TestManifest_JSONAndTaskFilter(t *testing.T) {
	f := newFixture(t, map[string]string{"a.txt": "a", "b.css": "b"})
	f.register(t, "copy", "text", map[string]any{"entries": []any{"*.txt"}})
	f.register(t, "copy", "styles", map[string]any{"entries": []any{"*.css"}})
	f.register(t, "manifest", "", map[string]any{
		"format": "json",
		"output": "meta/assets.json",
		"tasks":  []any{"styles"},
	})

	require.NoError(t, f.deps.Engine.Publish(context.Background(), "text.styles,manifest"))

	b, err := os.ReadFile(filepath.Join(f.dist, "meta", "assets.json"))
	require.NoError(t, err)
	var doc Manifest
	require.NoError(t, json.Unmarshal(b, &doc))
	require.Len(t, doc.Tasks, 1)
	assert.Equal(t, "styles", doc.Tasks[0].Name)
	assert.Equal(t, []string{"b.css"}, doc.Tasks[0].Outputs)
}

func TestManifest_InvalidFormat(t *testing.T) {
	f := newFixture(t, nil)
	f.deps.Store.Set(store.NamespaceTasks, "manifest", map[string]any{"format": "yaml"})
	_, err := Register(f.deps, "manifest", "")
	assert.ErrorIs(t, err, task.ErrInvalidConfig)
}

func TestManifest_OutputMustStayUnderDestination(t *testing.T) {
	for _, output := range []string{"../x.toml", "meta/../../x.toml", "."} {
		t.Run(output, func(t *testing.T) {
			f := newFixture(t, nil)
			f.deps.Store.Set(store.NamespaceTasks, "manifest", map[string]any{"output": output})
			_, err := Register(f.deps, "manifest", "")
			require.ErrorIs(t, err, task.ErrInvalidConfig)
			assert.Contains(t, err.Error(), "output")
		})
	}
}
