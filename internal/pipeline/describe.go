package pipeline

import (
	"github.com/fyrsmithlabs/plains/internal/orchestrator"
)

// Description summarizes an assembled pipeline.
type Description struct {
	Source      string            `json:"source"`
	Destination string            `json:"destination"`
	Mode        string            `json:"mode"`
	Tasks       []TaskDescription `json:"tasks"`
}

// TaskDescription summarizes one registered task.
type TaskDescription struct {
	Name           string               `json:"name"`
	Kind           string               `json:"kind"`
	Hook           string               `json:"hook"`
	Entries        []string             `json:"entries,omitempty"`
	TolerateErrors bool                 `json:"tolerate_errors"`
	Phases         []orchestrator.Phase `json:"phases"`
}

// Describe lists the pipeline's roots and tasks in registration order.
func (p *Pipeline) Describe() Description {
	src, _ := p.entries.Source()
	dest, _ := p.entries.Destination()
	d := Description{
		Source:      src,
		Destination: dest,
		Mode:        string(p.cfg.Mode),
		Tasks:       make([]TaskDescription, 0, len(p.tasks)),
	}
	for _, t := range p.tasks {
		cfg := t.Config()
		td := TaskDescription{
			Name:           t.Name(),
			Kind:           t.Kind(),
			Hook:           string(t.Hook()),
			Entries:        cfg.Entries,
			TolerateErrors: cfg.TolerateErrors,
		}
		if sub, err := p.engine.Subscription(t.Name()); err == nil {
			td.Phases = sub.Info().Handlers
		}
		d.Tasks = append(d.Tasks, td)
	}
	return d
}
