// Package tasks holds the built-in task kinds and the table the pipeline
// resolves configured kinds against.
package tasks

import (
	"errors"
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/plains/internal/task"
)

// ErrUnknownKind is returned when a configured kind has no factory.
var ErrUnknownKind = errors.New("unknown task kind")

// Kind describes one built-in task kind.
type Kind struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Factory     task.Factory `json:"-"`
}

var kinds = map[string]Kind{
	"clean": {
		Name:        "clean",
		Description: "remove destination contents or matching paths under it",
		Factory:     NewClean,
	},
	"copy": {
		Name:        "copy",
		Description: "copy stack entries to the destination",
		Factory:     NewCopy,
	},
	"command": {
		Name:        "command",
		Description: "run an external compiler once per stack entry",
		Factory:     NewCommand,
	},
	"watch": {
		Name:        "watch",
		Description: "republish a hook expression when source files change",
		Factory:     NewWatch,
	},
	"manifest": {
		Name:        "manifest",
		Description: "write the outputs recorded by every task",
		Factory:     NewManifest,
	},
}

// Lookup returns the factory registered for kind.
func Lookup(kind string) (task.Factory, error) {
	k, ok := kinds[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return k.Factory, nil
}

// Kinds lists the built-in kinds sorted by name.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Register looks up kind and registers a task with it.
func Register(deps task.Deps, kind, name string) (*task.Task, error) {
	factory, err := Lookup(kind)
	if err != nil {
		return nil, err
	}
	return task.Register(deps, kind, name, factory)
}
