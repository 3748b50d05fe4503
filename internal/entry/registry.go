package entry

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fyrsmithlabs/plains/internal/ignore"
	"github.com/fyrsmithlabs/plains/internal/logging"
	"go.uber.org/zap"
)

// Registry owns the named stacks and the source/destination roots.
type Registry struct {
	mu          sync.RWMutex
	source      string
	destination string
	stacks      map[string]*stack
	ignore      *ignore.Matcher
	logger      *logging.Logger
}

// stack keeps entries with an index on source path for dedup.
type stack struct {
	entries []Entry
	index   map[string]struct{}
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the diagnostic logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// WithIgnore excludes paths matched by m from every stack.
func WithIgnore(m *ignore.Matcher) Option {
	return func(r *Registry) {
		r.ignore = m
	}
}

// NewRegistry creates a registry with no roots defined.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		stacks: make(map[string]*stack),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetSource defines the absolute source root. The directory must exist.
// Redefining it with a different path fails with ErrRootAlreadyDefined.
func (r *Registry) SetSource(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving source root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("source root %s: %w", abs, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source root %s is not a directory", abs)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.source != "" && r.source != abs {
		return fmt.Errorf("%w: source is %s", ErrRootAlreadyDefined, r.source)
	}
	r.source = abs
	return nil
}

// SetDestination defines the absolute destination root, creating it when
// missing. Redefining it with a different path fails with ErrRootAlreadyDefined.
func (r *Registry) SetDestination(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving destination root: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destination != "" && r.destination != abs {
		return fmt.Errorf("%w: destination is %s", ErrRootAlreadyDefined, r.destination)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("creating destination root %s: %w", abs, err)
	}
	r.destination = abs
	return nil
}

// Source returns the configured source root.
func (r *Registry) Source() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.source == "" {
		return "", ErrRootUndefined
	}
	return r.source, nil
}

// Destination returns the configured destination root.
func (r *Registry) Destination() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.destination == "" {
		return "", ErrDestinationUndefined
	}
	return r.destination, nil
}

// CreateStack creates an empty stack if absent. It reports whether the stack
// was created; an existing stack is left untouched and logged.
func (r *Registry) CreateStack(ctx context.Context, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stacks[name]; ok {
		r.logger.Debug(ctx, "stack already exists", zap.String("stack", name))
		return false
	}
	r.stacks[name] = &stack{index: make(map[string]struct{})}
	return true
}

// Stack returns a copy of the entries in the named stack.
func (r *Registry) Stack(name string) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.stacks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStack, name)
	}
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

// Stacks lists every stack name, sorted.
func (r *Registry) Stacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stacks))
	for name := range r.stacks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Insert resolves each input against the source root and merges the
// resulting files into the named stack.
//
// Inputs are literal paths or doublestar patterns, relative to the source
// root or absolute under it. Paths that do not exist, are not regular files,
// lie outside the source root, inside the destination root or match the
// ignore rules are skipped.
// Files already in the stack or repeated within the batch are admitted once.
// A failed batch leaves the stack unchanged.
// The newly admitted entries are returned.
func (r *Registry) Insert(ctx context.Context, name string, inputs ...string) ([]Entry, error) {
	for _, in := range inputs {
		if !doublestar.ValidatePattern(filepath.ToSlash(in)) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, in)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stacks[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStack, name)
	}
	if r.source == "" {
		return nil, ErrRootUndefined
	}
	if r.destination == "" {
		return nil, ErrDestinationUndefined
	}

	fsys := os.DirFS(r.source)
	var admitted []Entry
	batch := make(map[string]struct{})
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rels, err := r.resolve(ctx, fsys, in)
		if err != nil {
			return nil, err
		}
		for _, rel := range rels {
			src := filepath.Join(r.source, filepath.FromSlash(rel))
			if _, dup := s.index[src]; dup {
				continue
			}
			if _, dup := batch[src]; dup {
				continue
			}
			if r.ignore.Match(rel) {
				r.logger.Trace(ctx, "skipping ignored file", zap.String("path", rel))
				continue
			}
			if r.insideDestination(src) {
				r.logger.Trace(ctx, "skipping file inside destination", zap.String("path", src))
				continue
			}
			relative := filepath.FromSlash(rel)
			batch[src] = struct{}{}
			admitted = append(admitted, Entry{
				Source:         src,
				Root:           r.source,
				Relative:       relative,
				DestinationDir: filepath.Join(r.destination, filepath.Dir(relative)),
			})
		}
	}

	for src := range batch {
		s.index[src] = struct{}{}
	}
	if len(admitted) > 0 {
		s.entries = append(admitted, s.entries...)
	}
	r.logger.Debug(ctx, "entries inserted",
		zap.String("stack", name),
		zap.Int("admitted", len(admitted)),
		zap.Int("total", len(s.entries)))
	return admitted, nil
}

// Ignored reports whether rel, relative to the source root, is excluded by
// the ignore rules.
func (r *Registry) Ignored(rel string) bool {
	return r.ignore.Match(rel)
}

// Remove drops the given paths (relative to the source root or absolute)
// from the named stack and returns how many entries were removed.
func (r *Registry) Remove(name string, paths ...string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stacks[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownStack, name)
	}

	drop := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(r.source, p)
		}
		drop[filepath.Clean(p)] = struct{}{}
	}

	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if _, ok := drop[e.Source]; ok {
			delete(s.index, e.Source)
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return removed, nil
}

// DestinationPath computes the output path of e; see the package level
// DestinationPath for template rules.
func (r *Registry) DestinationPath(e Entry, template string) (string, error) {
	return DestinationPath(e, template)
}

// resolve expands one input into slash-separated paths relative to the
// source root. Callers hold r.mu.
func (r *Registry) resolve(ctx context.Context, fsys fs.FS, input string) ([]string, error) {
	pattern := input
	if filepath.IsAbs(input) {
		rel, err := filepath.Rel(r.source, input)
		if err != nil || escapes(rel) {
			r.logger.Debug(ctx, "skipping path outside source root", zap.String("path", input))
			return nil, nil
		}
		pattern = rel
	}

	pattern = path.Clean(filepath.ToSlash(pattern))
	if escapes(pattern) {
		r.logger.Debug(ctx, "skipping path outside source root", zap.String("path", input))
		return nil, nil
	}

	// An existing file wins over a glob reading of its name, so literal
	// names like icon[1].svg are admitted as is.
	if info, err := fs.Stat(fsys, pattern); err == nil && info.Mode().IsRegular() {
		return []string{pattern}, nil
	}
	if !hasMeta(pattern) {
		r.logger.Trace(ctx, "skipping missing path", zap.String("path", input))
		return nil, nil
	}

	matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPattern, input, err)
	}
	sort.Strings(matches)
	return matches, nil
}

// insideDestination reports whether p lies under the destination root.
func (r *Registry) insideDestination(p string) bool {
	rel, err := filepath.Rel(r.destination, p)
	return err == nil && !escapes(filepath.ToSlash(rel))
}

// escapes reports whether a cleaned slash path climbs above its base.
func escapes(rel string) bool {
	rel = filepath.ToSlash(rel)
	return rel == ".." || strings.HasPrefix(rel, "../")
}

// hasMeta reports whether p contains doublestar metacharacters.
func hasMeta(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}
