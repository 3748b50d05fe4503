package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fyrsmithlabs/plains/internal/hooks"
	"github.com/fyrsmithlabs/plains/internal/logging"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// TracerName is the instrumentation scope of engine spans.
const TracerName = "github.com/fyrsmithlabs/plains/internal/orchestrator"

// Engine holds subscriptions and drives the publish protocol.
type Engine struct {
	mu    sync.RWMutex
	subs  map[string]*Subscription
	order []string

	logger  *logging.Logger
	tracer  trace.Tracer
	metrics *Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithTracer sets the tracer used for publish and phase spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates an engine with no subscriptions.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		subs:   make(map[string]*Subscription),
		logger: logging.NewNop(),
		tracer: otel.Tracer(TracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subscribe registers a subscription. An empty hook defaults to name.
// Both must be usable in a hook expression.
func (e *Engine) Subscribe(name string, hook hooks.Hook, h Handlers) (*Subscription, error) {
	if err := hooks.Hook(name).Validate(); err != nil {
		return nil, fmt.Errorf("subscription name: %w", err)
	}
	if hook == "" {
		hook = hooks.Hook(name)
	}
	if err := hook.Validate(); err != nil {
		return nil, fmt.Errorf("subscription %s: %w", name, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.subs[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSubscription, name)
	}
	sub := newSubscription(name, hook, h)
	e.subs[name] = sub
	e.order = append(e.order, name)
	return sub, nil
}

// Subscription returns the named subscription.
func (e *Engine) Subscription(name string) (*Subscription, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sub, ok := e.subs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSubscription, name)
	}
	return sub, nil
}

// Subscriptions lists every subscription, sorted by name.
func (e *Engine) Subscriptions() []SubscriptionInfo {
	subs := e.all()
	out := make([]SubscriptionInfo, 0, len(subs))
	for _, sub := range subs {
		out = append(out, sub.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Resolve settles the pending deferred of the named subscription's phase.
func (e *Engine) Resolve(name string, phase Phase) error {
	d, err := e.pending(name, phase)
	if err != nil {
		return err
	}
	if err := d.Resolve(); err != nil {
		return fmt.Errorf("%w: %s %s", ErrPhaseNotActive, name, phase)
	}
	return nil
}

// Reject fails the pending deferred of the named subscription's phase.
func (e *Engine) Reject(name string, phase Phase, reason error) error {
	d, err := e.pending(name, phase)
	if err != nil {
		return err
	}
	if err := d.Reject(reason); err != nil {
		return fmt.Errorf("%w: %s %s", ErrPhaseNotActive, name, phase)
	}
	return nil
}

func (e *Engine) pending(name string, phase Phase) (*Deferred, error) {
	sub, err := e.Subscription(name)
	if err != nil {
		return nil, err
	}
	d := sub.Active(phase)
	if d == nil {
		return nil, fmt.Errorf("%w: %s %s", ErrPhaseNotActive, name, phase)
	}
	return d, nil
}

// Prepare runs the pre_publish phase of every subscription concurrently
// and waits for all of them to settle.
func (e *Engine) Prepare(ctx context.Context) error {
	return e.barrier(ctx, PhasePrePublish, "*", e.all())
}

// PostPublish runs the post_publish phase of every subscription
// concurrently and waits for all of them to settle.
func (e *Engine) PostPublish(ctx context.Context) error {
	return e.barrier(ctx, PhasePostPublish, "*", e.all())
}

// Publish runs the protocol for the given hook expressions.
//
// The expressions are normalized into compound hooks, every hook is
// checked for a subscription, the pre_publish barrier runs, and then each
// compound hook runs as one stage. A failed stage stops the queue.
func (e *Engine) Publish(ctx context.Context, exprs ...string) (err error) {
	queue := hooks.Parse(exprs...)

	runID := logging.RunIDFromContext(ctx)
	if runID == "" {
		runID = uuid.New().String()
		ctx = logging.WithRunID(ctx, runID)
	}

	ctx, span := e.tracer.Start(ctx, "orchestrator.publish")
	defer span.End()
	span.SetAttributes(
		attribute.String("run.id", runID),
		attribute.StringSlice("hooks", compoundStrings(queue)),
	)
	defer func() {
		e.metrics.published(err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	stages, err := e.plan(queue)
	if err != nil {
		e.logger.Error(ctx, "publish aborted", zap.Error(err))
		return err
	}

	start := time.Now()
	e.logger.Info(ctx, "publish started", zap.Strings("hooks", compoundStrings(queue)))

	if err := e.Prepare(ctx); err != nil {
		e.logger.Error(ctx, "pre_publish failed", zap.Error(err))
		return err
	}

	for _, st := range stages {
		if err := e.barrier(ctx, PhasePublish, st.hook.String(), st.subs); err != nil {
			e.logger.Error(ctx, "stage failed",
				zap.Stringer("hook", st.hook),
				zap.Error(err))
			return err
		}
	}

	e.logger.Info(ctx, "publish completed", zap.Duration("duration", time.Since(start)))
	return nil
}

// barrier drives phase on every subscription in subs and waits for all of
// them to settle. Rejections are combined once the whole set has settled.
func (e *Engine) barrier(ctx context.Context, phase Phase, label string, subs []*Subscription) error {
	ctx, span := e.tracer.Start(ctx, "orchestrator.stage")
	defer span.End()
	span.SetAttributes(
		attribute.String("phase", string(phase)),
		attribute.String("hook", label),
		attribute.Int("subscriptions", len(subs)),
	)

	var errs error
	deferreds := make([]*Deferred, 0, len(subs))
	for _, sub := range subs {
		d, err := e.run(ctx, sub, phase)
		if err != nil {
			errs = multierr.Append(errs, &PhaseError{Name: sub.name, Phase: phase, Err: err})
			continue
		}
		deferreds = append(deferreds, d)
	}

	for _, d := range deferreds {
		select {
		case <-d.Done():
		case <-ctx.Done():
			span.RecordError(ctx.Err())
			return ctx.Err()
		}
		if err := d.Err(); err != nil {
			errs = multierr.Append(errs, &PhaseError{Name: d.name, Phase: phase, Err: err})
		}
	}

	if errs != nil {
		span.RecordError(errs)
		span.SetStatus(codes.Error, "phase rejected")
	}
	return errs
}

// run activates phase on sub and starts its handler. A phase without a
// handler resolves immediately.
func (e *Engine) run(ctx context.Context, sub *Subscription, phase Phase) (*Deferred, error) {
	ctx = logging.WithPhase(logging.WithTask(ctx, sub.name), string(phase))

	d, err := sub.activate(phase, func(d *Deferred) {
		e.metrics.phaseSettled(d)
		if err := d.Err(); err != nil {
			e.logger.Warn(ctx, "phase rejected",
				zap.Duration("duration", d.Elapsed()),
				zap.Error(err))
			return
		}
		e.logger.Debug(ctx, "phase resolved", zap.Duration("duration", d.Elapsed()))
	})
	if err != nil {
		return nil, err
	}
	e.metrics.phaseStarted()

	handler := sub.handlers.For(phase)
	if handler == nil {
		_ = d.Resolve()
		return d, nil
	}

	e.logger.Trace(ctx, "phase started")
	go func() {
		defer func() {
			if r := recover(); r != nil {
				_ = d.Reject(fmt.Errorf("%w: %v", ErrHandlerPanic, r))
			}
		}()
		handler(ctx, d)
	}()
	return d, nil
}

func compoundStrings(queue []hooks.Compound) []string {
	out := make([]string, len(queue))
	for i, c := range queue {
		out[i] = c.String()
	}
	return out
}
