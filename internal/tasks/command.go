package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyrsmithlabs/plains/internal/entry"
	"github.com/fyrsmithlabs/plains/internal/task"
	"go.uber.org/zap"
)

// CommandOptions configures the command kind.
type CommandOptions struct {
	// Command is the argv template. A single element is split on spaces.
	// Placeholders: {src}, {dest}, {name}, {ext}, {dir}, {root}.
	Command []string `mapstructure:"command"`

	// Output is the destination filename template for {dest}.
	Output string `mapstructure:"output"`

	// Env is appended to the process environment.
	Env []string `mapstructure:"env"`

	// Timeout bounds a single invocation. Zero means no limit.
	Timeout time.Duration `mapstructure:"timeout"`
}

type command struct {
	opts CommandOptions
}

// NewCommand builds a command task.
func NewCommand(t *task.Task) (task.Publisher, error) {
	c := &command{}
	if err := t.DecodeOptions(&c.opts); err != nil {
		return nil, err
	}
	if len(c.opts.Command) == 1 {
		c.opts.Command = strings.Fields(c.opts.Command[0])
	}
	if len(c.opts.Command) == 0 {
		return nil, fmt.Errorf("%w: %s: command is required", task.ErrInvalidConfig, t.Name())
	}
	return c, nil
}

func (c *command) Publish(ctx context.Context, t *task.Task) error {
	entries, err := t.Entries()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		t.Logger().Debug(ctx, "no entries to compile")
		return nil
	}

	return t.ForEachEntry(ctx, entries, func(ctx context.Context, e entry.Entry) error {
		dest, err := t.Registry().DestinationPath(e, c.opts.Output)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
		if err := c.run(ctx, t, e, dest); err != nil {
			return err
		}
		t.RecordOutput(dest)
		return nil
	})
}

func (c *command) run(ctx context.Context, t *task.Task, e entry.Entry, dest string) error {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	argv := expand(c.opts.Command, e, dest)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = e.Root
	cmd.Env = append(os.Environ(), c.opts.Env...)

	start := time.Now()
	out, err := cmd.CombinedOutput()
	if err == nil {
		t.Logger().Debug(ctx, "entry compiled",
			zap.String("src", e.Relative),
			zap.String("dest", dest),
			zap.Duration("duration", time.Since(start)))
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ctx.Err() != nil {
			return task.EntryError{File: e.Source, Message: fmt.Sprintf("%s: %v", argv[0], ctx.Err())}
		}
		errs := task.ParseEntryErrors(e.Source, string(out))
		if len(errs) == 0 {
			errs = task.EntryErrors{{File: e.Source, Message: exitErr.Error()}}
		}
		return errs
	}
	return fmt.Errorf("running %s: %w", argv[0], err)
}

// expand substitutes entry placeholders in every argument.
func expand(argv []string, e entry.Entry, dest string) []string {
	r := strings.NewReplacer(
		"{src}", e.Source,
		"{dest}", dest,
		"{name}", e.Name(),
		"{ext}", e.Ext(),
		"{dir}", e.DestinationDir,
		"{root}", e.Root,
	)
	out := make([]string, len(argv))
	for i, a := range argv {
		out[i] = r.Replace(a)
	}
	return out
}
