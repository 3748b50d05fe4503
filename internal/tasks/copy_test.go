package tasks

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopy_MirrorsEntries(t *testing.T) {
	f := newFixture(t, map[string]string{
		"fonts/a.woff":     "a",
		"fonts/sub/b.woff": "b",
		"readme.txt":       "skip",
	})
	tk := f.register(t, "copy", "fonts", map[string]any{"entries": []any{"fonts/**/*.woff"}})

	require.NoError(t, f.deps.Engine.Publish(context.Background(), "fonts"))

	assert.Equal(t, "a", readFile(t, filepath.Join(f.dist, "fonts", "a.woff")))
	assert.Equal(t, "b", readFile(t, filepath.Join(f.dist, "fonts", "sub", "b.woff")))
	assert.NoFileExists(t, filepath.Join(f.dist, "readme.txt"))
	assert.ElementsMatch(t, []string{
		filepath.Join(f.dist, "fonts", "a.woff"),
		filepath.Join(f.dist, "fonts", "sub", "b.woff"),
	}, tk.Outputs())
}

func TestCopy_OutputTemplate(t *testing.T) {
	f := newFixture(t, map[string]string{"styles/main.css": "body{}"})
	f.register(t, "copy", "", map[string]any{
		"entries": []any{"styles/main.css"},
		"output":  "{name}.min.{ext}",
	})

	require.NoError(t, f.deps.Engine.Publish(context.Background(), "copy"))
	assert.Equal(t, "body{}", readFile(t, filepath.Join(f.dist, "styles", "main.min.css")))
}
