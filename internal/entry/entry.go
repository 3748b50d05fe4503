package entry

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Errors for registry operations.
var (
	ErrUnknownStack         = errors.New("unknown stack")
	ErrInvalidEntry         = errors.New("invalid entry")
	ErrInvalidPattern       = errors.New("invalid pattern")
	ErrOutsideRoot          = errors.New("path outside root")
	ErrRootUndefined        = errors.New("source root undefined")
	ErrDestinationUndefined = errors.New("destination root undefined")
	ErrRootAlreadyDefined   = errors.New("root already defined")
)

// Entry is one resolved source file known to a stack.
type Entry struct {
	// Source is the absolute path of the file.
	Source string `json:"source" toml:"source"`

	// Root is the absolute source root Source was resolved under.
	Root string `json:"root" toml:"root"`

	// Relative is Source relative to Root.
	Relative string `json:"relative" toml:"relative"`

	// DestinationDir is the output directory mirroring Relative's directory
	// under the destination root.
	DestinationDir string `json:"destination_dir" toml:"destination_dir"`
}

// Validate reports whether e carries the fields needed for path mapping.
func (e Entry) Validate() error {
	if e.Source == "" {
		return fmt.Errorf("%w: missing source path", ErrInvalidEntry)
	}
	if e.DestinationDir == "" {
		return fmt.Errorf("%w: %s has no destination directory", ErrInvalidEntry, e.Source)
	}
	return nil
}

// Name returns the base filename without its extension.
func (e Entry) Name() string {
	base := filepath.Base(e.Source)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Ext returns the extension without the leading dot.
func (e Entry) Ext() string {
	return strings.TrimPrefix(filepath.Ext(e.Source), ".")
}

// DestinationPath computes the final output path for e.
//
// The template may reference {name} (base filename without extension) and
// {ext} (extension without dot). An empty template keeps the source base
// name. The result never leaves e.DestinationDir.
func DestinationPath(e Entry, template string) (string, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}

	filename := filepath.Base(e.Source)
	if template != "" {
		filename = strings.NewReplacer("{name}", e.Name(), "{ext}", e.Ext()).Replace(template)
	}

	out, err := JoinWithin(e.DestinationDir, filename)
	if err != nil {
		return "", fmt.Errorf("%w: template %q escapes %s", ErrInvalidEntry, template, e.DestinationDir)
	}
	return out, nil
}

// JoinWithin joins the slash-separated rel onto root. It fails with
// ErrOutsideRoot when the result is root itself or lies outside it.
func JoinWithin(root, rel string) (string, error) {
	out := filepath.Join(root, filepath.FromSlash(rel))
	r, err := filepath.Rel(root, out)
	if err != nil || r == "." || escapes(r) {
		return "", fmt.Errorf("%w: %q under %s", ErrOutsideRoot, rel, root)
	}
	return out, nil
}
