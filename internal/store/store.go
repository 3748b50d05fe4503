// Package store provides the shared state blackboard tasks use to exchange
// configuration and computed values.
//
// Values live under opaque namespaces (a task name, or one of the well-known
// namespaces below) as flat key/value pairs. Last write wins.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-viper/mapstructure/v2"
)

// Well-known namespaces.
const (
	// NamespaceGlobal holds boot-time settings shared by every task.
	NamespaceGlobal = "plains"

	// NamespaceTasks holds each task's configuration sub-tree keyed by task name.
	NamespaceTasks = "tasks"
)

// Global keys.
const (
	KeySource      = "source"
	KeyDestination = "destination"
	KeyMode        = "mode"
)

// ErrNotFound is returned by Decode when the key is absent.
var ErrNotFound = errors.New("key not found")

// Store is a namespaced key/value structure safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	data map[string]map[string]any
}

// New creates an empty store.
func New() *Store {
	return &Store{data: make(map[string]map[string]any)}
}

// Set writes value under namespace/key.
func (s *Store) Set(namespace, key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.data[namespace]
	if !ok {
		ns = make(map[string]any)
		s.data[namespace] = ns
	}
	ns[key] = value
}

// Merge writes every pair of values into namespace.
func (s *Store) Merge(namespace string, values map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ns, ok := s.data[namespace]
	if !ok {
		ns = make(map[string]any, len(values))
		s.data[namespace] = ns
	}
	for k, v := range values {
		ns[k] = v
	}
}

// Get reads namespace/key.
func (s *Store) Get(namespace, key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[namespace][key]
	return v, ok
}

// String reads namespace/key as a string, returning "" when absent or not a string.
func (s *Store) String(namespace, key string) string {
	v, _ := s.Get(namespace, key)
	str, _ := v.(string)
	return str
}

// Delete removes namespace/key.
func (s *Store) Delete(namespace, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[namespace], key)
}

// Namespace returns a shallow copy of every pair in namespace.
func (s *Store) Namespace(namespace string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.data[namespace]))
	for k, v := range s.data[namespace] {
		out[k] = v
	}
	return out
}

// Namespaces lists every namespace holding at least one key, sorted.
func (s *Store) Namespaces() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for ns, values := range s.data {
		if len(values) > 0 {
			out = append(out, ns)
		}
	}
	sort.Strings(out)
	return out
}

// Decode decodes namespace/key into out using mapstructure tags. Duration
// strings and comma separated slices are converted.
func (s *Store) Decode(namespace, key string, out any) error {
	v, ok := s.Get(namespace, key)
	if !ok {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, namespace, key)
	}
	return DecodeValue(v, out)
}

// DecodeValue decodes an arbitrary value into out the same way Decode does.
func DecodeValue(in, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("creating decoder: %w", err)
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("decoding value: %w", err)
	}
	return nil
}
