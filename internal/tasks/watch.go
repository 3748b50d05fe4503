package tasks

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/fyrsmithlabs/plains/internal/task"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Store keys written by the watch kind under its own namespace.
const (
	KeyWatching = "watching"
	KeyRebuilds = "rebuilds"
)

// WatchOptions configures the watch kind.
type WatchOptions struct {
	// Publish is the hook expression republished on change.
	Publish string `mapstructure:"publish"`

	// Paths are doublestar patterns, relative to the source root, that
	// trigger a rebuild.
	Paths []string `mapstructure:"paths"`

	// Interval is the minimum time between rebuilds. Changes arriving
	// sooner are coalesced into the next one.
	Interval time.Duration `mapstructure:"interval"`

	// Timeout ends the watch. Zero watches until the context is done.
	Timeout time.Duration `mapstructure:"timeout"`
}

type watch struct {
	opts WatchOptions
}

// NewWatch builds a watch task.
func NewWatch(t *task.Task) (task.Publisher, error) {
	w := &watch{opts: WatchOptions{
		Paths:    []string{"**"},
		Interval: 250 * time.Millisecond,
	}}
	if err := t.DecodeOptions(&w.opts); err != nil {
		return nil, err
	}
	if strings.TrimSpace(w.opts.Publish) == "" {
		return nil, fmt.Errorf("%w: %s: publish expression is required", task.ErrInvalidConfig, t.Name())
	}
	for _, p := range w.opts.Paths {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: watch path %q", task.ErrInvalidConfig, p)
		}
	}
	if w.opts.Interval <= 0 {
		return nil, fmt.Errorf("%w: %s: interval must be positive", task.ErrInvalidConfig, t.Name())
	}
	return w, nil
}

// Publish watches the source tree until the timeout or ctx ends. Rebuild
// failures are logged and do not end the watch.
func (w *watch) Publish(ctx context.Context, t *task.Task) error {
	src, err := t.Registry().Source()
	if err != nil {
		return err
	}
	dest, err := t.Registry().Destination()
	if err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	if err := addTree(fw, src, dest); err != nil {
		return err
	}

	if w.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.opts.Timeout)
		defer cancel()
	}

	t.Store().Set(t.Name(), KeyWatching, true)
	defer t.Store().Set(t.Name(), KeyWatching, false)
	t.Logger().Info(ctx, "watching for changes",
		zap.String("source", src),
		zap.String("publish", w.opts.Publish))

	limiter := rate.NewLimiter(rate.Every(w.opts.Interval), 1)
	pending := make(map[string]struct{})
	var (
		fire     <-chan time.Time
		rebuilds int
	)

	for {
		select {
		case <-ctx.Done():
			t.Logger().Info(ctx, "watch stopped", zap.Int("rebuilds", rebuilds))
			return nil

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			t.Logger().Warn(ctx, "watcher error", zap.Error(err))

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			rel, relevant := w.relevant(ctx, t, fw, src, dest, ev)
			if !relevant {
				continue
			}
			pending[rel] = struct{}{}
			if fire == nil {
				fire = time.After(limiter.Reserve().Delay())
			}

		case <-fire:
			fire = nil
			changed := drain(pending)
			rebuilds++
			t.Store().Set(t.Name(), KeyRebuilds, rebuilds)
			w.rebuild(ctx, t, changed)
		}
	}
}

// relevant handles bookkeeping for ev and reports whether it should
// trigger a rebuild.
func (w *watch) relevant(ctx context.Context, t *task.Task, fw *fsnotify.Watcher, src, dest string, ev fsnotify.Event) (string, bool) {
	if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
		return "", false
	}
	rel, err := filepath.Rel(src, ev.Name)
	if err != nil || strings.HasPrefix(filepath.ToSlash(rel), "../") {
		return "", false
	}
	if within(dest, ev.Name) || t.Registry().Ignored(rel) {
		return "", false
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := addTree(fw, ev.Name, dest); err != nil {
				t.Logger().Warn(ctx, "watching new directory", zap.Error(err))
			}
			return "", false
		}
	}

	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		for _, stack := range t.Registry().Stacks() {
			if n, _ := t.Registry().Remove(stack, ev.Name); n > 0 {
				t.Logger().Debug(ctx, "entry removed", zap.String("stack", stack), zap.String("path", rel))
			}
		}
	}

	slash := filepath.ToSlash(rel)
	for _, p := range w.opts.Paths {
		if ok, _ := doublestar.Match(p, slash); ok {
			return slash, true
		}
	}
	return "", false
}

func (w *watch) rebuild(ctx context.Context, t *task.Task, changed []string) {
	t.Logger().Info(ctx, "change detected",
		zap.Strings("files", changed),
		zap.String("publish", w.opts.Publish))

	if err := t.Engine().Publish(ctx, w.opts.Publish); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		t.Logger().Error(ctx, "rebuild failed", zap.Error(err))
		return
	}
	t.Logger().Info(ctx, "rebuild completed")
}

// addTree watches root and every directory below it except dest.
func addTree(fw *fsnotify.Watcher, root, dest string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if within(dest, path) || (path != root && strings.HasPrefix(d.Name(), ".")) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// within reports whether p is dir or lies below it.
func within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, "../"))
}

func drain(pending map[string]struct{}) []string {
	out := make([]string, 0, len(pending))
	for k := range pending {
		out = append(out, k)
		delete(pending, k)
	}
	sort.Strings(out)
	return out
}
