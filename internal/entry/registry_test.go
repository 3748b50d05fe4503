package entry

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/fyrsmithlabs/plains/internal/ignore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestTree creates src with the given files and returns a registry
// rooted at src with destination dist.
func newTestTree(t *testing.T, files ...string) (*Registry, string, string) {
	t.Helper()
	base := t.TempDir()
	src := filepath.Join(base, "src")
	dist := filepath.Join(base, "dist")
	for _, f := range files {
		p := filepath.Join(src, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(f), 0o644))
	}
	require.NoError(t, os.MkdirAll(src, 0o755))

	r := NewRegistry()
	require.NoError(t, r.SetSource(src))
	require.NoError(t, r.SetDestination(dist))
	return r, src, dist
}

func sources(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Source
	}
	return out
}

func TestRegistry_RootsUndefined(t *testing.T) {
	r := NewRegistry()

	_, err := r.Source()
	assert.ErrorIs(t, err, ErrRootUndefined)

	_, err = r.Destination()
	assert.ErrorIs(t, err, ErrDestinationUndefined)
}

func TestRegistry_SetSource(t *testing.T) {
	r := NewRegistry()

	err := r.SetSource(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, r.SetSource(dir))
	require.NoError(t, r.SetSource(dir), "same root is a no-op")

	err = r.SetSource(t.TempDir())
	assert.ErrorIs(t, err, ErrRootAlreadyDefined)

	got, err := r.Source()
	require.NoError(t, err)
	assert.Equal(t, dir, got)
}

func TestRegistry_SetDestinationCreatesDirectory(t *testing.T) {
	r := NewRegistry()
	dist := filepath.Join(t.TempDir(), "out", "dist")

	require.NoError(t, r.SetDestination(dist))

	info, err := os.Stat(dist)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	err = r.SetDestination(t.TempDir())
	assert.ErrorIs(t, err, ErrRootAlreadyDefined)
}

func TestRegistry_CreateStack(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	assert.True(t, r.CreateStack(ctx, "styles"))
	assert.False(t, r.CreateStack(ctx, "styles"))
	assert.Equal(t, []string{"styles"}, r.Stacks())

	entries, err := r.Stack("styles")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRegistry_UnknownStack(t *testing.T) {
	r, _, _ := newTestTree(t, "a.scss")
	ctx := context.Background()

	_, err := r.Insert(ctx, "nope", "a.scss")
	assert.ErrorIs(t, err, ErrUnknownStack)

	_, err = r.Stack("nope")
	assert.ErrorIs(t, err, ErrUnknownStack)

	_, err = r.Remove("nope", "a.scss")
	assert.ErrorIs(t, err, ErrUnknownStack)

	assert.Empty(t, r.Stacks(), "failed insert never creates a stack")
}

func TestRegistry_InsertDedupWithinBatch(t *testing.T) {
	r, src, _ := newTestTree(t, "a.scss")
	ctx := context.Background()
	r.CreateStack(ctx, "styles")

	admitted, err := r.Insert(ctx, "styles", "a.scss", "a.scss")
	require.NoError(t, err)
	require.Len(t, admitted, 1)
	assert.Equal(t, filepath.Join(src, "a.scss"), admitted[0].Source)

	stack, err := r.Stack("styles")
	require.NoError(t, err)
	assert.Len(t, stack, 1)
}

func TestRegistry_InsertDedupAcrossCalls(t *testing.T) {
	r, src, _ := newTestTree(t, "a.scss", "b.scss")
	ctx := context.Background()
	r.CreateStack(ctx, "styles")

	_, err := r.Insert(ctx, "styles", "a.scss")
	require.NoError(t, err)
	admitted, err := r.Insert(ctx, "styles", filepath.Join(src, "a.scss"), "*.scss")
	require.NoError(t, err)

	assert.Equal(t, []string{filepath.Join(src, "b.scss")}, sources(admitted))

	stack, err := r.Stack("styles")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(src, "a.scss"),
		filepath.Join(src, "b.scss"),
	}, sources(stack))
}

func TestRegistry_InsertGlob(t *testing.T) {
	r, src, _ := newTestTree(t,
		"styles/main.scss",
		"styles/partials/_vars.scss",
		"scripts/app.js",
	)
	ctx := context.Background()
	r.CreateStack(ctx, "styles")

	admitted, err := r.Insert(ctx, "styles", "styles/**/*.scss")
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		filepath.Join(src, "styles", "main.scss"),
		filepath.Join(src, "styles", "partials", "_vars.scss"),
	}, sources(admitted))
}

func TestRegistry_InsertSkipsMissingAndOutside(t *testing.T) {
	r, src, _ := newTestTree(t, "a.scss")
	ctx := context.Background()
	r.CreateStack(ctx, "styles")

	outside := filepath.Join(filepath.Dir(src), "outside.scss")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o644))

	admitted, err := r.Insert(ctx, "styles",
		"missing.scss",
		"../outside.scss",
		outside,
		"styles",
		"a.scss",
	)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(src, "a.scss")}, sources(admitted))
}

func TestRegistry_InsertLiteralNameWithGlobMeta(t *testing.T) {
	r, src, _ := newTestTree(t, "icon[1].svg", "icon1.svg")
	ctx := context.Background()
	r.CreateStack(ctx, "icons")
	r.CreateStack(ctx, "abs")

	admitted, err := r.Insert(ctx, "icons", "icon[1].svg")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(src, "icon[1].svg")}, sources(admitted))

	admitted, err = r.Insert(ctx, "abs", filepath.Join(src, "icon[1].svg"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(src, "icon[1].svg")}, sources(admitted))

	admitted, err = r.Insert(ctx, "icons", "icon?.svg")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(src, "icon1.svg")}, sources(admitted))
}

// cancelAfter reports no error for the first n Err calls and
// context.Canceled afterwards.
type cancelAfter struct {
	context.Context
	n int
}

func (c *cancelAfter) Err() error {
	if c.n > 0 {
		c.n--
		return nil
	}
	return context.Canceled
}

func TestRegistry_InsertFailedBatchLeavesStackUnchanged(t *testing.T) {
	r, src, _ := newTestTree(t, "a.scss", "b.scss")
	r.CreateStack(context.Background(), "styles")

	_, err := r.Insert(&cancelAfter{Context: context.Background(), n: 1}, "styles", "a.scss", "b.scss")
	require.ErrorIs(t, err, context.Canceled)

	stack, err := r.Stack("styles")
	require.NoError(t, err)
	assert.Empty(t, stack)

	admitted, err := r.Insert(context.Background(), "styles", "a.scss", "b.scss")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(src, "a.scss"),
		filepath.Join(src, "b.scss"),
	}, sources(admitted))
}

func TestRegistry_InsertSkipsDestinationInsideSource(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "dist"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.css"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "dist", "a.css"), []byte("a"), 0o644))

	r := NewRegistry()
	require.NoError(t, r.SetSource(src))
	require.NoError(t, r.SetDestination(filepath.Join(src, "dist")))

	ctx := context.Background()
	r.CreateStack(ctx, "css")
	admitted, err := r.Insert(ctx, "css", "**/*.css")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(src, "a.css")}, sources(admitted))
}

func TestRegistry_InsertInvalidPattern(t *testing.T) {
	r, _, _ := newTestTree(t, "a.scss")
	ctx := context.Background()
	r.CreateStack(ctx, "styles")

	_, err := r.Insert(ctx, "styles", "a.scss", "[unterminated")
	assert.ErrorIs(t, err, ErrInvalidPattern)

	stack, _ := r.Stack("styles")
	assert.Empty(t, stack, "nothing admitted when a pattern is malformed")
}

func TestRegistry_InsertRequiresRoots(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()
	r.CreateStack(ctx, "styles")

	_, err := r.Insert(ctx, "styles", "a.scss")
	assert.ErrorIs(t, err, ErrRootUndefined)

	require.NoError(t, r.SetSource(t.TempDir()))
	_, err = r.Insert(ctx, "styles", "a.scss")
	assert.ErrorIs(t, err, ErrDestinationUndefined)
}

func TestRegistry_DestinationMapping(t *testing.T) {
	r, src, dist := newTestTree(t, "styles/main.scss")
	ctx := context.Background()
	r.CreateStack(ctx, "styles")

	admitted, err := r.Insert(ctx, "styles", "styles/main.scss")
	require.NoError(t, err)
	require.Len(t, admitted, 1)

	e := admitted[0]
	assert.Equal(t, src, e.Root)
	assert.Equal(t, filepath.Join("styles", "main.scss"), e.Relative)
	assert.Equal(t, filepath.Join(dist, "styles"), e.DestinationDir)

	out, err := r.DestinationPath(e, "{name}.css")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dist, "styles", "main.css"), out)
}

func TestRegistry_RootLevelEntryMapsToDestination(t *testing.T) {
	r, _, dist := newTestTree(t, "index.html")
	ctx := context.Background()
	r.CreateStack(ctx, "pages")

	admitted, err := r.Insert(ctx, "pages", "index.html")
	require.NoError(t, err)
	require.Len(t, admitted, 1)
	assert.Equal(t, dist, admitted[0].DestinationDir)
}

func TestRegistry_Remove(t *testing.T) {
	r, src, _ := newTestTree(t, "a.scss", "b.scss")
	ctx := context.Background()
	r.CreateStack(ctx, "styles")
	_, err := r.Insert(ctx, "styles", "*.scss")
	require.NoError(t, err)

	n, err := r.Remove("styles", "a.scss", "missing.scss")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stack, _ := r.Stack("styles")
	assert.Equal(t, []string{filepath.Join(src, "b.scss")}, sources(stack))

	admitted, err := r.Insert(ctx, "styles", "a.scss")
	require.NoError(t, err)
	assert.Len(t, admitted, 1, "removed entries can be re-admitted")
}

func TestRegistry_ConcurrentInsert(t *testing.T) {
	r, _, _ := newTestTree(t, "a.js", "b.js", "c.js")
	ctx := context.Background()
	r.CreateStack(ctx, "scripts")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Insert(ctx, "scripts", "*.js", "a.js")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stack, err := r.Stack("scripts")
	require.NoError(t, err)
	assert.Len(t, stack, 3)
}

func TestRegistry_InsertSkipsIgnored(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "src")
	for _, f := range []string{"a.css", "b.draft.css", "vendor/c.css"} {
		p := filepath.Join(src, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(f), 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(src, ignore.File), []byte("*.draft.css\nvendor/\n"), 0o644))

	m, err := ignore.Load(src)
	require.NoError(t, err)
	r := NewRegistry(WithIgnore(m))
	require.NoError(t, r.SetSource(src))
	require.NoError(t, r.SetDestination(filepath.Join(base, "dist")))

	ctx := context.Background()
	r.CreateStack(ctx, "all")
	admitted, err := r.Insert(ctx, "all", "**/*", "b.draft.css")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(src, "a.css")}, sources(admitted))

	assert.True(t, r.Ignored(filepath.Join("vendor", "c.css")))
	assert.False(t, r.Ignored("a.css"))
}
