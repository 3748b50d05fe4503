package tasks

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fyrsmithlabs/plains/internal/entry"
	"github.com/fyrsmithlabs/plains/internal/task"
	"go.uber.org/zap"
)

// CopyOptions configures the copy kind.
type CopyOptions struct {
	// Output is the destination filename template ({name}, {ext}).
	Output string `mapstructure:"output"`
}

type copyTask struct {
	opts CopyOptions
}

// NewCopy builds a copy task.
func NewCopy(t *task.Task) (task.Publisher, error) {
	c := &copyTask{}
	if err := t.DecodeOptions(&c.opts); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *copyTask) Publish(ctx context.Context, t *task.Task) error {
	entries, err := t.Entries()
	if err != nil {
		return err
	}
	err = t.ForEachEntry(ctx, entries, func(ctx context.Context, e entry.Entry) error {
		out, err := t.Registry().DestinationPath(e, c.opts.Output)
		if err != nil {
			return err
		}
		if err := copyFile(e.Source, out); err != nil {
			return task.EntryError{File: e.Source, Message: err.Error()}
		}
		t.RecordOutput(out)
		return nil
	})
	t.Logger().Info(ctx, "entries copied", zap.Int("entries", len(entries)), zap.Int("written", len(t.Outputs())))
	return err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
