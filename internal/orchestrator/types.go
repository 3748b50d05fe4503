package orchestrator

import (
	"context"
)

// Phase identifies one slot of the subscription lifecycle.
type Phase string

const (
	// PhasePrePublish populates stacks before any publish work starts.
	PhasePrePublish Phase = "pre_publish"

	// PhasePublish performs the task's actual work.
	PhasePublish Phase = "publish"

	// PhasePostPublish is the cleanup barrier driven by the host.
	PhasePostPublish Phase = "post_publish"
)

// AllPhases returns all phases in lifecycle order.
func AllPhases() []Phase {
	return []Phase{PhasePrePublish, PhasePublish, PhasePostPublish}
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhasePrePublish, PhasePublish, PhasePostPublish:
		return true
	}
	return false
}

// State is the completion state of a Deferred.
type State string

const (
	StatePending  State = "pending"
	StateResolved State = "resolved"
	StateRejected State = "rejected"
)

// PhaseHandler runs one phase. It must settle d exactly once, either before
// returning or later from another goroutine.
type PhaseHandler func(ctx context.Context, d *Deferred)

// Handlers supplies the optional handler for each phase. A phase without a
// handler settles immediately when reached.
type Handlers struct {
	PrePublish  PhaseHandler
	Publish     PhaseHandler
	PostPublish PhaseHandler
}

// For returns the handler for phase, or nil.
func (h Handlers) For(phase Phase) PhaseHandler {
	switch phase {
	case PhasePrePublish:
		return h.PrePublish
	case PhasePublish:
		return h.Publish
	case PhasePostPublish:
		return h.PostPublish
	}
	return nil
}

// SubscriptionInfo is a read-only view of a subscription.
type SubscriptionInfo struct {
	Name     string  `json:"name"`
	Hook     string  `json:"hook"`
	Handlers []Phase `json:"handlers"`
	Active   []Phase `json:"active,omitempty"`
}
