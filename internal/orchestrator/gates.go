package orchestrator

import (
	"github.com/fyrsmithlabs/plains/internal/hooks"
)

// stage is one compound hook resolved to the subscriptions it drives.
type stage struct {
	hook hooks.Compound
	subs []*Subscription
}

// plan resolves every compound hook of queue against the current
// subscriptions. It fails on the first hook that no subscription is bound
// to, before any phase has been driven.
func (e *Engine) plan(queue []hooks.Compound) ([]stage, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	byHook := make(map[hooks.Hook][]*Subscription)
	for _, name := range e.order {
		sub := e.subs[name]
		byHook[sub.hook] = append(byHook[sub.hook], sub)
	}

	stages := make([]stage, 0, len(queue))
	for _, compound := range queue {
		st := stage{hook: compound}
		for _, h := range compound {
			subs, ok := byHook[h]
			if !ok {
				return nil, &MissingSubscriptionError{Hook: h}
			}
			st.subs = append(st.subs, subs...)
		}
		stages = append(stages, st)
	}
	return stages, nil
}

// all returns every subscription in registration order.
func (e *Engine) all() []*Subscription {
	e.mu.RLock()
	defer e.mu.RUnlock()
	subs := make([]*Subscription, 0, len(e.order))
	for _, name := range e.order {
		subs = append(subs, e.subs[name])
	}
	return subs
}
