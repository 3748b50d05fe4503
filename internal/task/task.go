package task

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/fyrsmithlabs/plains/internal/entry"
	"github.com/fyrsmithlabs/plains/internal/hooks"
	"github.com/fyrsmithlabs/plains/internal/logging"
	"github.com/fyrsmithlabs/plains/internal/orchestrator"
	"github.com/fyrsmithlabs/plains/internal/store"
	"go.uber.org/zap"
)

// KeyOutputs is the store key, under the task's own namespace, holding the
// paths the task wrote during the last run.
const KeyOutputs = "outputs"

// Deps are the shared collaborators every task is constructed with.
type Deps struct {
	Engine  *orchestrator.Engine
	Entries *entry.Registry
	Store   *store.Store
	Logger  *logging.Logger
}

// Config is the common part of a task's configuration. Kind specific
// settings are kept in Options and decoded with Task.DecodeOptions.
type Config struct {
	Name           string         `mapstructure:"name"`
	Kind           string         `mapstructure:"kind"`
	Hook           string         `mapstructure:"hook"`
	Entries        []string       `mapstructure:"entries"`
	TolerateErrors bool           `mapstructure:"tolerate_errors"`
	Parallel       int            `mapstructure:"parallel"`
	Options        map[string]any `mapstructure:",remain"`
}

// Publisher performs a task's work during the publish phase.
type Publisher interface {
	Publish(ctx context.Context, t *Task) error
}

// PrePublisher runs after the task's stack has been populated.
type PrePublisher interface {
	PrePublish(ctx context.Context, t *Task) error
}

// PostPublisher runs during the post_publish barrier.
type PostPublisher interface {
	PostPublish(ctx context.Context, t *Task) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, t *Task) error

// Publish implements Publisher.
func (f PublisherFunc) Publish(ctx context.Context, t *Task) error {
	return f(ctx, t)
}

// Factory builds the implementation of a task from its registered base.
type Factory func(t *Task) (Publisher, error)

// Task is a registered task instance.
type Task struct {
	config Config
	deps   Deps
	impl   Publisher
	sub    *orchestrator.Subscription
	logger *logging.Logger

	mu      sync.Mutex
	outputs []string
}

// Register creates the task named name (kind when empty), reads its config
// from the store and subscribes it to the engine.
func Register(deps Deps, kind, name string, factory Factory) (*Task, error) {
	if name == "" {
		name = kind
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if err := hooks.Hook(name).Validate(); err != nil {
		return nil, fmt.Errorf("task name: %w", err)
	}

	var cfg Config
	if err := deps.Store.Decode(store.NamespaceTasks, name, &cfg); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, name, err)
	}
	cfg.Name = name
	cfg.Kind = kind
	if cfg.Hook == "" {
		cfg.Hook = name
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = runtime.NumCPU()
	}

	t := &Task{
		config: cfg,
		deps:   deps,
		logger: deps.Logger.Named(name),
	}

	impl, err := factory(t)
	if err != nil {
		return nil, fmt.Errorf("building task %s: %w", name, err)
	}
	if impl == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoPublishHandler, name)
	}
	t.impl = impl

	handlers := orchestrator.Handlers{
		PrePublish: t.prePublish,
		Publish:    t.publish,
	}
	if _, ok := impl.(PostPublisher); ok {
		handlers.PostPublish = t.postPublish
	}

	sub, err := deps.Engine.Subscribe(name, hooks.Hook(cfg.Hook), handlers)
	if err != nil {
		return nil, err
	}
	t.sub = sub
	return t, nil
}

// Name returns the task name.
func (t *Task) Name() string { return t.config.Name }

// Kind returns the task kind.
func (t *Task) Kind() string { return t.config.Kind }

// Hook returns the hook the task is subscribed under.
func (t *Task) Hook() hooks.Hook { return hooks.Hook(t.config.Hook) }

// Config returns the decoded configuration.
func (t *Task) Config() Config { return t.config }

// Engine returns the orchestration engine.
func (t *Task) Engine() *orchestrator.Engine { return t.deps.Engine }

// Registry returns the entry registry.
func (t *Task) Registry() *entry.Registry { return t.deps.Entries }

// Store returns the shared store.
func (t *Task) Store() *store.Store { return t.deps.Store }

// Logger returns the task's named logger.
func (t *Task) Logger() *logging.Logger { return t.logger }

// Entries returns the entries in the task's stack.
func (t *Task) Entries() ([]entry.Entry, error) {
	return t.deps.Entries.Stack(t.config.Name)
}

// DecodeOptions decodes the kind specific options into out.
func (t *Task) DecodeOptions(out any) error {
	if len(t.config.Options) == 0 {
		return nil
	}
	if err := store.DecodeValue(t.config.Options, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, t.config.Name, err)
	}
	return nil
}

// RecordOutput appends paths to the task's outputs in the store.
func (t *Task) RecordOutput(paths ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outputs = append(t.outputs, paths...)
	t.deps.Store.Set(t.config.Name, KeyOutputs, append([]string(nil), t.outputs...))
}

// Outputs returns the paths recorded during the current run.
func (t *Task) Outputs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.outputs...)
}

func (t *Task) resetOutputs() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outputs = nil
	t.deps.Store.Delete(t.config.Name, KeyOutputs)
}

func (t *Task) prePublish(ctx context.Context, d *orchestrator.Deferred) {
	settle(d, t.runPrePublish(ctx))
}

func (t *Task) runPrePublish(ctx context.Context) error {
	t.deps.Entries.CreateStack(ctx, t.config.Name)
	if len(t.config.Entries) > 0 {
		admitted, err := t.deps.Entries.Insert(ctx, t.config.Name, t.config.Entries...)
		if err != nil {
			return err
		}
		t.logger.Debug(ctx, "entries resolved", zap.Int("admitted", len(admitted)))
	}
	if pre, ok := t.impl.(PrePublisher); ok {
		return pre.PrePublish(ctx, t)
	}
	return nil
}

func (t *Task) publish(ctx context.Context, d *orchestrator.Deferred) {
	t.resetOutputs()
	err := t.impl.Publish(ctx, t)
	if err != nil && t.config.TolerateErrors && tolerable(err) {
		for _, ee := range AsEntryErrors(err) {
			t.logger.Warn(ctx, "entry failed",
				zap.String("file", ee.File),
				zap.Int("line", ee.Line),
				zap.Int("column", ee.Column),
				zap.String("message", ee.Message))
		}
		err = nil
	}
	settle(d, err)
}

func (t *Task) postPublish(ctx context.Context, d *orchestrator.Deferred) {
	settle(d, t.impl.(PostPublisher).PostPublish(ctx, t))
}

func settle(d *orchestrator.Deferred, err error) {
	if err != nil {
		_ = d.Reject(err)
		return
	}
	_ = d.Resolve()
}
