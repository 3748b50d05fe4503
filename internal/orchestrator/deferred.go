package orchestrator

import (
	"sync"
	"time"
)

// Deferred is one in-flight phase activation. It settles at most once.
type Deferred struct {
	name    string
	phase   Phase
	started time.Time

	mu       sync.Mutex
	state    State
	err      error
	done     chan struct{}
	onSettle func(*Deferred)
}

func newDeferred(name string, phase Phase, onSettle func(*Deferred)) *Deferred {
	return &Deferred{
		name:     name,
		phase:    phase,
		started:  time.Now(),
		state:    StatePending,
		done:     make(chan struct{}),
		onSettle: onSettle,
	}
}

// Name returns the owning subscription name.
func (d *Deferred) Name() string { return d.name }

// Phase returns the phase this deferred belongs to.
func (d *Deferred) Phase() Phase { return d.phase }

// Resolve marks the phase as completed successfully.
func (d *Deferred) Resolve() error {
	return d.settle(StateResolved, nil)
}

// Reject marks the phase as failed with reason. A nil reason is recorded
// as ErrRejected.
func (d *Deferred) Reject(reason error) error {
	if reason == nil {
		reason = ErrRejected
	}
	return d.settle(StateRejected, reason)
}

func (d *Deferred) settle(state State, err error) error {
	d.mu.Lock()
	if d.state != StatePending {
		d.mu.Unlock()
		return ErrAlreadySettled
	}
	d.state = state
	d.err = err
	d.mu.Unlock()

	if d.onSettle != nil {
		d.onSettle(d)
	}
	close(d.done)
	return nil
}

// State returns the current completion state.
func (d *Deferred) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Err returns the rejection reason, or nil while pending or when resolved.
func (d *Deferred) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Done is closed once the deferred settles and its slot is released.
func (d *Deferred) Done() <-chan struct{} {
	return d.done
}

// Elapsed returns the time since activation.
func (d *Deferred) Elapsed() time.Duration {
	return time.Since(d.started)
}
