package orchestrator

import (
	"fmt"
	"sync"

	"github.com/fyrsmithlabs/plains/internal/hooks"
)

// Subscription binds a named task to a hook and its phase handlers.
type Subscription struct {
	name     string
	hook     hooks.Hook
	handlers Handlers

	mu     sync.Mutex
	active map[Phase]*Deferred
}

func newSubscription(name string, hook hooks.Hook, h Handlers) *Subscription {
	return &Subscription{
		name:     name,
		hook:     hook,
		handlers: h,
		active:   make(map[Phase]*Deferred),
	}
}

// Name returns the unique subscription name.
func (s *Subscription) Name() string { return s.name }

// Hook returns the hook the subscription is grouped under.
func (s *Subscription) Hook() hooks.Hook { return s.hook }

// Has reports whether a handler is registered for phase.
func (s *Subscription) Has(phase Phase) bool {
	return s.handlers.For(phase) != nil
}

// Active returns the pending deferred for phase, or nil.
func (s *Subscription) Active(phase Phase) *Deferred {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[phase]
}

// Info returns a snapshot for listing.
func (s *Subscription) Info() SubscriptionInfo {
	info := SubscriptionInfo{Name: s.name, Hook: string(s.hook)}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range AllPhases() {
		if s.handlers.For(p) != nil {
			info.Handlers = append(info.Handlers, p)
		}
		if s.active[p] != nil {
			info.Active = append(info.Active, p)
		}
	}
	return info
}

// activate creates the deferred for phase. A phase whose previous
// activation is still pending cannot be driven again.
func (s *Subscription) activate(phase Phase, onSettle func(*Deferred)) (*Deferred, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[phase] != nil {
		return nil, fmt.Errorf("%w: %s %s", ErrPhaseBusy, s.name, phase)
	}
	d := newDeferred(s.name, phase, func(d *Deferred) {
		s.release(d)
		if onSettle != nil {
			onSettle(d)
		}
	})
	s.active[phase] = d
	return d, nil
}

// release clears the slot if d still owns it.
func (s *Subscription) release(d *Deferred) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[d.phase] == d {
		delete(s.active, d.phase)
	}
}
