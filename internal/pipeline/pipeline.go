// Package pipeline assembles a build from configuration.
//
// A Pipeline owns the shared collaborators (store, entry registry, engine,
// metrics registry, telemetry) and the tasks registered against them. The
// host calls Run with hook expressions; Run publishes them and then drives
// the post_publish barrier.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/fyrsmithlabs/plains/internal/config"
	"github.com/fyrsmithlabs/plains/internal/entry"
	plainshttp "github.com/fyrsmithlabs/plains/internal/http"
	"github.com/fyrsmithlabs/plains/internal/ignore"
	"github.com/fyrsmithlabs/plains/internal/logging"
	"github.com/fyrsmithlabs/plains/internal/orchestrator"
	"github.com/fyrsmithlabs/plains/internal/store"
	"github.com/fyrsmithlabs/plains/internal/task"
	"github.com/fyrsmithlabs/plains/internal/tasks"
	"github.com/fyrsmithlabs/plains/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Option configures a Pipeline.
type Option func(*options)

type options struct {
	logger       *logging.Logger
	telemetryOps []telemetry.Option
}

// WithLogger replaces the logger built from the logging config.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithTelemetryOptions passes options through to telemetry.New.
func WithTelemetryOptions(opts ...telemetry.Option) Option {
	return func(o *options) {
		o.telemetryOps = append(o.telemetryOps, opts...)
	}
}

// Pipeline is an assembled build.
type Pipeline struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	registry  *prometheus.Registry
	store     *store.Store
	entries   *entry.Registry
	engine    *orchestrator.Engine
	tasks     []*task.Task
	server    *plainshttp.Server

	closeOnce sync.Once
}

// New builds a pipeline from cfg and registers every configured task.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	tel, err := telemetry.New(ctx, &cfg.Telemetry, o.telemetryOps...)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	p, err := assemble(ctx, cfg, o, tel)
	if err != nil {
		if serr := tel.Shutdown(context.WithoutCancel(ctx)); serr != nil {
			err = multierr.Append(err, serr)
		}
		return nil, err
	}
	return p, nil
}

// assemble builds everything that depends on telemetry.
func assemble(ctx context.Context, cfg *config.Config, o *options, tel *telemetry.Telemetry) (*Pipeline, error) {
	var err error

	logger := o.logger
	if logger == nil {
		logger, err = logging.NewLogger(&cfg.Logging, tel.LoggerProvider())
		if err != nil {
			return nil, fmt.Errorf("initializing logger: %w", err)
		}
	}

	ignored, err := ignore.Load(cfg.Source)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	p := &Pipeline{
		cfg:       cfg,
		logger:    logger,
		telemetry: tel,
		registry:  reg,
		store:     store.New(),
		entries:   entry.NewRegistry(entry.WithLogger(logger.Named("entries")), entry.WithIgnore(ignored)),
	}
	p.engine = orchestrator.NewEngine(
		orchestrator.WithLogger(logger),
		orchestrator.WithTracer(tel.Tracer(orchestrator.TracerName)),
		orchestrator.WithMetrics(orchestrator.NewMetrics(reg)),
	)

	if err := p.entries.SetSource(cfg.Source); err != nil {
		return nil, err
	}
	if err := p.entries.SetDestination(cfg.Destination); err != nil {
		return nil, err
	}
	src, _ := p.entries.Source()
	dest, _ := p.entries.Destination()
	p.store.Merge(store.NamespaceGlobal, map[string]any{
		store.KeySource:      src,
		store.KeyDestination: dest,
		store.KeyMode:        string(cfg.Mode),
	})

	if err := p.registerTasks(); err != nil {
		return nil, err
	}

	if cfg.HTTP.Port > 0 {
		p.server, err = plainshttp.NewServer(logger, &plainshttp.Config{
			Host: cfg.HTTP.Host,
			Port: cfg.HTTP.Port,
		}, plainshttp.Deps{
			Entries:    p.entries,
			Engine:     p.engine,
			Health:     tel,
			Gatherer:   reg,
			Registerer: reg,
		})
		if err != nil {
			return nil, fmt.Errorf("initializing http server: %w", err)
		}
	}

	logger.Debug(ctx, "pipeline assembled",
		zap.String("source", src),
		zap.String("destination", dest),
		zap.String("mode", string(cfg.Mode)),
		zap.Int("tasks", len(p.tasks)),
	)
	return p, nil
}

// registerTasks seeds each task's settings into the store and registers it.
// tolerate_errors defaults from the mode when a task leaves it unset.
func (p *Pipeline) registerTasks() error {
	specs, err := p.cfg.TaskSpecs()
	if err != nil {
		return err
	}
	deps := task.Deps{
		Engine:  p.engine,
		Entries: p.entries,
		Store:   p.store,
		Logger:  p.logger.Named("task"),
	}
	for _, spec := range specs {
		if _, ok := spec.Settings["tolerate_errors"]; !ok {
			spec.Settings["tolerate_errors"] = p.cfg.Mode.TolerateErrors()
		}
		p.store.Set(store.NamespaceTasks, spec.Name, spec.Settings)

		t, err := tasks.Register(deps, spec.Kind, spec.Name)
		if err != nil {
			return fmt.Errorf("task %s: %w", spec.Name, err)
		}
		p.tasks = append(p.tasks, t)
	}
	return nil
}

// Run publishes exprs and then runs the post_publish barrier. The
// post_publish barrier runs even when publishing fails; both errors are
// returned combined. The status server, when configured, serves for the
// duration of the run.
func (p *Pipeline) Run(ctx context.Context, exprs ...string) error {
	if p.server != nil {
		stop := p.serve(ctx)
		defer stop()
	}

	err := p.engine.Publish(ctx, exprs...)
	if errors.Is(err, orchestrator.ErrMissingSubscription) || errors.Is(err, orchestrator.ErrPhaseBusy) {
		return err
	}
	// Cleanup runs on a context that survives cancellation of the run.
	postErr := p.engine.PostPublish(context.WithoutCancel(ctx))
	return multierr.Append(err, postErr)
}

// Prepare runs the pre_publish barrier and returns every stack's entries.
func (p *Pipeline) Prepare(ctx context.Context) (map[string][]entry.Entry, error) {
	if err := p.engine.Prepare(ctx); err != nil {
		return nil, err
	}
	out := make(map[string][]entry.Entry)
	for _, name := range p.entries.Stacks() {
		entries, err := p.entries.Stack(name)
		if err != nil {
			continue
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Relative < entries[j].Relative })
		out[name] = entries
	}
	return out, nil
}

func (p *Pipeline) serve(ctx context.Context) (stop func()) {
	errCh := make(chan error, 1)
	go func() {
		errCh <- p.server.Start()
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.HTTP.ShutdownTimeout.Duration())
		defer cancel()
		if err := p.server.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "http shutdown failed", zap.Error(err))
		}
		if err := <-errCh; err != nil {
			p.logger.Error(ctx, "http server failed", zap.Error(err))
		}
	}
}

// Close flushes telemetry and syncs the logger.
func (p *Pipeline) Close(ctx context.Context) error {
	var err error
	p.closeOnce.Do(func() {
		err = multierr.Append(p.telemetry.Shutdown(ctx), p.logger.Sync())
	})
	return err
}

// Engine returns the orchestration engine.
func (p *Pipeline) Engine() *orchestrator.Engine { return p.engine }

// Entries returns the entry registry.
func (p *Pipeline) Entries() *entry.Registry { return p.entries }

// Store returns the shared state store.
func (p *Pipeline) Store() *store.Store { return p.store }

// Logger returns the pipeline logger.
func (p *Pipeline) Logger() *logging.Logger { return p.logger }

// Gatherer returns the metrics registry.
func (p *Pipeline) Gatherer() prometheus.Gatherer { return p.registry }
