package orchestrator

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/plains/internal/hooks"
	"go.uber.org/multierr"
)

var (
	// ErrDuplicateSubscription is returned when a name is subscribed twice.
	ErrDuplicateSubscription = errors.New("duplicate subscription")

	// ErrUnknownSubscription is returned when settling a name never subscribed.
	ErrUnknownSubscription = errors.New("unknown subscription")

	// ErrPhaseNotActive is returned when settling a phase with no pending deferred.
	ErrPhaseNotActive = errors.New("phase not active")

	// ErrPhaseBusy is returned when a phase is driven while its previous
	// activation is still pending.
	ErrPhaseBusy = errors.New("phase already running")

	// ErrMissingSubscription is wrapped by *MissingSubscriptionError.
	ErrMissingSubscription = errors.New("missing subscription")

	// ErrAlreadySettled is returned by a second Resolve or Reject.
	ErrAlreadySettled = errors.New("deferred already settled")

	// ErrRejected is the reason recorded when Reject is given a nil error.
	ErrRejected = errors.New("rejected")

	// ErrHandlerPanic is the reason recorded when a handler panics.
	ErrHandlerPanic = errors.New("phase handler panicked")
)

// MissingSubscriptionError reports a hook referenced by a publish
// expression that no subscription is bound to.
type MissingSubscriptionError struct {
	Hook hooks.Hook
}

func (e *MissingSubscriptionError) Error() string {
	return fmt.Sprintf("%s: no subscription for hook %q", ErrMissingSubscription, e.Hook)
}

func (e *MissingSubscriptionError) Unwrap() error {
	return ErrMissingSubscription
}

// PhaseError is the rejection of one subscription phase.
type PhaseError struct {
	Name  string
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Name, e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Rejections returns every *PhaseError carried by err, in the order the
// engine recorded them.
func Rejections(err error) []*PhaseError {
	var out []*PhaseError
	for _, e := range multierr.Errors(err) {
		var pe *PhaseError
		if errors.As(e, &pe) {
			out = append(out, pe)
		}
	}
	return out
}
