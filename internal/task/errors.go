package task

import (
	"bufio"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/multierr"
)

var (
	// ErrNoPublishHandler is returned when a factory yields no implementation.
	ErrNoPublishHandler = errors.New("task has no publish handler")

	// ErrInvalidConfig is returned when a task's configuration cannot be decoded.
	ErrInvalidConfig = errors.New("invalid task config")
)

// EntryError is one failure reported by an external collaborator for a
// single source file.
type EntryError struct {
	File    string `json:"file" toml:"file"`
	Line    int    `json:"line,omitempty" toml:"line,omitempty"`
	Column  int    `json:"column,omitempty" toml:"column,omitempty"`
	Message string `json:"message" toml:"message"`
}

func (e EntryError) Error() string {
	switch {
	case e.Line > 0 && e.Column > 0:
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
}

// EntryErrors is the aggregate of per-entry failures of one task run.
type EntryErrors []EntryError

func (e EntryErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	parts := make([]string, len(e))
	for i, ee := range e {
		parts[i] = ee.Error()
	}
	return fmt.Sprintf("%d entry errors: %s", len(e), strings.Join(parts, "; "))
}

// diagnostic matches "file:line:col: message" and "file:line: message".
var diagnostic = regexp.MustCompile(`^(.+?):(\d+):(?:(\d+):)?\s*(.+)$`)

// ParseEntryErrors extracts compiler diagnostics from output. Lines that do
// not look like a diagnostic are ignored. When nothing matches and output is
// not blank, a single error for file carrying the first line is returned.
func ParseEntryErrors(file, output string) EntryErrors {
	var out EntryErrors
	var first string
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if first == "" {
			first = line
		}
		m := diagnostic.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ee := EntryError{File: m[1], Message: strings.TrimSpace(m[4])}
		ee.Line, _ = strconv.Atoi(m[2])
		if m[3] != "" {
			ee.Column, _ = strconv.Atoi(m[3])
		}
		out = append(out, ee)
	}
	if len(out) == 0 && first != "" {
		out = EntryErrors{{File: file, Message: first}}
	}
	return out
}

// AsEntryErrors collects every EntryError carried by err.
func AsEntryErrors(err error) EntryErrors {
	var out EntryErrors
	for _, e := range multierr.Errors(err) {
		var many EntryErrors
		var one EntryError
		switch {
		case errors.As(e, &many):
			out = append(out, many...)
		case errors.As(e, &one):
			out = append(out, one)
		}
	}
	return out
}

// tolerable reports whether err consists only of per-entry failures.
func tolerable(err error) bool {
	if err == nil {
		return true
	}
	for _, e := range multierr.Errors(err) {
		var many EntryErrors
		var one EntryError
		if !errors.As(e, &many) && !errors.As(e, &one) {
			return false
		}
	}
	return true
}
