package tasks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fyrsmithlabs/plains/internal/task"
	"go.uber.org/zap"
)

// CleanOptions configures the clean kind.
type CleanOptions struct {
	// Paths are doublestar patterns relative to the destination root. Empty
	// removes everything under it.
	Paths []string `mapstructure:"paths"`
}

type clean struct {
	opts CleanOptions
}

// NewClean builds a clean task.
func NewClean(t *task.Task) (task.Publisher, error) {
	c := &clean{}
	if err := t.DecodeOptions(&c.opts); err != nil {
		return nil, err
	}
	for _, p := range c.opts.Paths {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("%w: clean path %q", task.ErrInvalidConfig, p)
		}
	}
	return c, nil
}

func (c *clean) Publish(ctx context.Context, t *task.Task) error {
	dest, err := t.Registry().Destination()
	if err != nil {
		return err
	}

	targets, err := c.targets(dest)
	if err != nil {
		return err
	}
	for _, target := range targets {
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("removing %s: %w", target, err)
		}
	}
	t.Logger().Info(ctx, "destination cleaned",
		zap.String("destination", dest),
		zap.Int("removed", len(targets)))
	return nil
}

// targets lists the absolute paths to remove. The root itself is kept.
func (c *clean) targets(dest string) ([]string, error) {
	if len(c.opts.Paths) == 0 {
		dirents, err := os.ReadDir(dest)
		if err != nil {
			return nil, fmt.Errorf("reading destination: %w", err)
		}
		out := make([]string, 0, len(dirents))
		for _, d := range dirents {
			out = append(out, filepath.Join(dest, d.Name()))
		}
		return out, nil
	}

	fsys := os.DirFS(dest)
	var out []string
	for _, p := range c.opts.Paths {
		matches, err := doublestar.Glob(fsys, p)
		if err != nil {
			return nil, fmt.Errorf("matching %q: %w", p, err)
		}
		for _, m := range matches {
			if m == "." {
				continue
			}
			out = append(out, filepath.Join(dest, filepath.FromSlash(m)))
		}
	}
	return out, nil
}
