package hooks

import (
	"errors"
	"fmt"
	"strings"
)

// Hook is a tag grouping task subscriptions that run together.
type Hook string

const (
	// Default is the hook published when the expression is empty.
	Default Hook = "default"

	stageSeparator = ","
	hookSeparator  = "."
)

// ErrInvalidHook is returned when a hook name cannot be used in an expression.
var ErrInvalidHook = errors.New("invalid hook")

// Validate checks that the hook can be referenced from an expression.
func (h Hook) Validate() error {
	s := string(h)
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidHook)
	}
	if s != strings.TrimSpace(s) {
		return fmt.Errorf("%w: %q has surrounding whitespace", ErrInvalidHook, s)
	}
	if strings.ContainsAny(s, stageSeparator+hookSeparator) {
		return fmt.Errorf("%w: %q contains a reserved separator (%q or %q)", ErrInvalidHook, s, stageSeparator, hookSeparator)
	}
	return nil
}

// String implements fmt.Stringer.
func (h Hook) String() string {
	return string(h)
}

// Compound is a set of hooks executed concurrently as a single stage.
type Compound []Hook

// String renders the compound hook in expression form.
func (c Compound) String() string {
	parts := make([]string, len(c))
	for i, h := range c {
		parts[i] = string(h)
	}
	return strings.Join(parts, hookSeparator)
}

// Parse normalizes expressions into an ordered queue of compound hooks.
//
// Each expression is split on commas. Blank segments are dropped and
// duplicate compound hooks keep their first position. Inside a compound
// hook duplicate members are collapsed. When nothing remains the queue is
// the single Default hook.
func Parse(exprs ...string) []Compound {
	var queue []Compound
	seen := make(map[string]bool)

	for _, expr := range exprs {
		for _, segment := range strings.Split(expr, stageSeparator) {
			compound := parseCompound(segment)
			if len(compound) == 0 {
				continue
			}
			key := compound.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			queue = append(queue, compound)
		}
	}

	if len(queue) == 0 {
		return []Compound{{Default}}
	}
	return queue
}

// parseCompound splits one dot-joined segment into its member hooks.
func parseCompound(segment string) Compound {
	var compound Compound
	members := make(map[Hook]bool)
	for _, part := range strings.Split(segment, hookSeparator) {
		h := Hook(strings.TrimSpace(part))
		if h == "" || members[h] {
			continue
		}
		members[h] = true
		compound = append(compound, h)
	}
	return compound
}

// Hooks returns every distinct hook referenced by the queue, in order.
func Hooks(queue []Compound) []Hook {
	var out []Hook
	seen := make(map[Hook]bool)
	for _, c := range queue {
		for _, h := range c {
			if !seen[h] {
				seen[h] = true
				out = append(out, h)
			}
		}
	}
	return out
}
