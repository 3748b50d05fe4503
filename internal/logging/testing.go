package logging

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger records every entry, Trace included, for assertions.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger creates a recording logger.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(TraceLevel)
	return &TestLogger{
		Logger:   &Logger{zap: zap.New(core), config: NewDefaultConfig()},
		observed: observed,
	}
}

// All returns the recorded entries.
func (t *TestLogger) All() []observer.LoggedEntry {
	return t.observed.All()
}

// Reset drops the recorded entries.
func (t *TestLogger) Reset() {
	t.observed.TakeAll()
}

func (t *TestLogger) matching(level zapcore.Level, msgContains string) []observer.LoggedEntry {
	return t.observed.FilterLevelExact(level).FilterMessageSnippet(msgContains).All()
}

// AssertLogged fails tb unless an entry at level contains msgContains.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	if len(t.matching(level, msgContains)) == 0 {
		tb.Errorf("no %s log containing %q; recorded:\n%s", level, msgContains, t.dump())
	}
}

// AssertNotLogged fails tb if an entry at level contains msgContains.
func (t *TestLogger) AssertNotLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	if n := len(t.matching(level, msgContains)); n > 0 {
		tb.Errorf("unexpected %s log containing %q (%d entries)", level, msgContains, n)
	}
}

// AssertField fails tb unless an entry containing msg carries key=expected.
func (t *TestLogger) AssertField(tb testing.TB, msg, key string, expected any) {
	tb.Helper()
	for _, e := range t.observed.FilterMessageSnippet(msg).All() {
		if v, ok := e.ContextMap()[key]; ok && reflect.DeepEqual(v, expected) {
			return
		}
	}
	tb.Errorf("no log containing %q with %s=%v; recorded:\n%s", msg, key, expected, t.dump())
}

func (t *TestLogger) dump() string {
	var b strings.Builder
	for _, e := range t.observed.All() {
		fmt.Fprintf(&b, "  %s %q %v\n", e.Level, e.Message, e.ContextMap())
	}
	return b.String()
}
