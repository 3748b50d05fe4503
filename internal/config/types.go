package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration for text unmarshaling (YAML, env vars).
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Mode selects the error policy applied to tasks by default.
type Mode string

const (
	// ModeProduction treats per-entry errors as fatal.
	ModeProduction Mode = "production"

	// ModeDevelopment logs per-entry errors and keeps going.
	ModeDevelopment Mode = "development"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeProduction || m == ModeDevelopment
}

// TolerateErrors reports whether tasks tolerate per-entry errors by default.
func (m Mode) TolerateErrors() bool {
	return m == ModeDevelopment
}
