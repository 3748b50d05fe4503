// Package ignore reads .plainsignore files, gitignore-style exclusion lists
// applied to paths relative to the source root.
package ignore

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// File is the ignore file looked up in the source root.
const File = ".plainsignore"

// Matcher reports whether a relative path is excluded. The zero value and
// a nil *Matcher exclude nothing.
type Matcher struct {
	rules []rule
}

type rule struct {
	globs  []string
	negate bool
}

// Load reads File from root. A missing file yields an empty matcher.
func Load(root string) (*Matcher, error) {
	f, err := os.Open(filepath.Join(root, File))
	if errors.Is(err, os.ErrNotExist) {
		return &Matcher{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", File, err)
	}
	return m, nil
}

// Parse reads gitignore-style lines from r.
//
// Blank lines and lines starting with # are skipped. A leading ! re-includes
// paths excluded by an earlier line; the last matching line wins. A leading
// / anchors the pattern to the root, a trailing / matches everything below a
// directory, and a pattern without a / matches at any depth.
func Parse(r io.Reader) (*Matcher, error) {
	m := &Matcher{}
	sc := bufio.NewScanner(r)
	for n := 1; sc.Scan(); n++ {
		line := strings.TrimRight(sc.Text(), " \t")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ru, err := compile(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		m.rules = append(m.rules, ru)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// compile turns one line into the doublestar patterns it stands for.
func compile(line string) (rule, error) {
	var ru rule
	if strings.HasPrefix(line, "!") {
		ru.negate = true
		line = line[1:]
	}
	line = strings.TrimPrefix(line, `\`)

	anchored := strings.HasPrefix(line, "/")
	dirOnly := strings.HasSuffix(line, "/")
	p := strings.Trim(line, "/")
	if p == "" {
		return ru, fmt.Errorf("empty pattern %q", line)
	}
	if !anchored && !strings.Contains(p, "/") {
		p = "**/" + p
	}
	if !doublestar.ValidatePattern(p) {
		return ru, fmt.Errorf("invalid pattern %q", line)
	}

	ru.globs = []string{p + "/**"}
	if !dirOnly {
		ru.globs = append(ru.globs, p)
	}
	return ru, nil
}

// Match reports whether rel, a slash or OS separated path relative to the
// root, is excluded. The ignore file itself is always excluded.
func (m *Matcher) Match(rel string) bool {
	if m == nil {
		return false
	}
	rel = path.Clean(filepath.ToSlash(rel))
	if rel == File {
		return true
	}
	excluded := false
	for _, ru := range m.rules {
		if ru.matches(rel) {
			excluded = !ru.negate
		}
	}
	return excluded
}

// Len returns the number of rules.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.rules)
}

func (ru rule) matches(rel string) bool {
	for _, g := range ru.globs {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
	}
	return false
}
