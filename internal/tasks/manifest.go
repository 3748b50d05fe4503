package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fyrsmithlabs/plains/internal/entry"
	"github.com/fyrsmithlabs/plains/internal/store"
	"github.com/fyrsmithlabs/plains/internal/task"
	"go.uber.org/zap"
)

// Manifest formats.
const (
	FormatTOML = "toml"
	FormatJSON = "json"
)

// ManifestOptions configures the manifest kind.
type ManifestOptions struct {
	// Format is "toml" or "json".
	Format string `mapstructure:"format"`

	// Output is the manifest path relative to the destination root.
	// Defaults to manifest.<format>.
	Output string `mapstructure:"output"`

	// Tasks restricts the manifest to the named tasks. Empty includes
	// every task that recorded outputs.
	Tasks []string `mapstructure:"tasks"`
}

// Manifest is the document written by the manifest kind.
type Manifest struct {
	Generated   time.Time      `json:"generated" toml:"generated"`
	Mode        string         `json:"mode,omitempty" toml:"mode,omitempty"`
	Source      string         `json:"source" toml:"source"`
	Destination string         `json:"destination" toml:"destination"`
	Tasks       []ManifestTask `json:"tasks" toml:"tasks"`
}

// ManifestTask lists one task's outputs relative to the destination root.
type ManifestTask struct {
	Name    string   `json:"name" toml:"name"`
	Hook    string   `json:"hook" toml:"hook"`
	Outputs []string `json:"outputs" toml:"outputs"`
}

type manifest struct {
	opts ManifestOptions
}

// NewManifest builds a manifest task.
func NewManifest(t *task.Task) (task.Publisher, error) {
	m := &manifest{opts: ManifestOptions{Format: FormatTOML}}
	if err := t.DecodeOptions(&m.opts); err != nil {
		return nil, err
	}
	switch m.opts.Format {
	case FormatTOML, FormatJSON:
	default:
		return nil, fmt.Errorf("%w: %s: unsupported format %q", task.ErrInvalidConfig, t.Name(), m.opts.Format)
	}
	if m.opts.Output == "" {
		m.opts.Output = "manifest." + m.opts.Format
	}
	if _, err := entry.JoinWithin(".", m.opts.Output); err != nil {
		return nil, fmt.Errorf("%w: %s: output: %v", task.ErrInvalidConfig, t.Name(), err)
	}
	return m, nil
}

func (m *manifest) Publish(ctx context.Context, t *task.Task) error {
	doc, err := m.collect(t)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	switch m.opts.Format {
	case FormatJSON:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		err = enc.Encode(doc)
	default:
		err = toml.NewEncoder(&buf).Encode(doc)
	}
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	out, err := entry.JoinWithin(doc.Destination, m.opts.Output)
	if err != nil {
		return fmt.Errorf("manifest output: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("creating manifest directory: %w", err)
	}
	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	t.RecordOutput(out)
	t.Logger().Info(ctx, "manifest written", zap.String("path", out), zap.Int("tasks", len(doc.Tasks)))
	return nil
}

// collect gathers the recorded outputs of every selected task.
func (m *manifest) collect(t *task.Task) (*Manifest, error) {
	src, err := t.Registry().Source()
	if err != nil {
		return nil, err
	}
	dest, err := t.Registry().Destination()
	if err != nil {
		return nil, err
	}

	selected := make(map[string]bool, len(m.opts.Tasks))
	for _, name := range m.opts.Tasks {
		selected[name] = true
	}

	doc := &Manifest{
		Generated:   time.Now().UTC().Truncate(time.Second),
		Mode:        t.Store().String(store.NamespaceGlobal, store.KeyMode),
		Source:      src,
		Destination: dest,
		Tasks:       []ManifestTask{},
	}
	for _, info := range t.Engine().Subscriptions() {
		if info.Name == t.Name() || (len(selected) > 0 && !selected[info.Name]) {
			continue
		}
		var outputs []string
		if err := t.Store().Decode(info.Name, task.KeyOutputs, &outputs); err != nil || len(outputs) == 0 {
			continue
		}
		rel := make([]string, 0, len(outputs))
		for _, o := range outputs {
			r, err := filepath.Rel(dest, o)
			if err != nil {
				r = o
			}
			rel = append(rel, filepath.ToSlash(r))
		}
		sort.Strings(rel)
		doc.Tasks = append(doc.Tasks, ManifestTask{Name: info.Name, Hook: info.Hook, Outputs: rel})
	}
	return doc, nil
}
