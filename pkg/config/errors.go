package config

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError reports credentials that are missing, ambiguous or
// unreadable. It is never retried.
type ConfigurationError struct {
	// Missing lists the required fields no source provided.
	Missing []string
	// Sources lists every source consulted, highest precedence first.
	Sources []string
	// Path is the offending file, when one file is to blame.
	Path  string
	Msg   string
	Cause error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("onyx config: ")
	switch {
	case e.Msg != "":
		b.WriteString(e.Msg)
	case len(e.Missing) > 0:
		fmt.Fprintf(&b, "missing required %s", strings.Join(e.Missing, ", "))
	default:
		b.WriteString("invalid configuration")
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " (file %s)", e.Path)
	}
	if len(e.Sources) > 0 {
		fmt.Fprintf(&b, "; sources checked: %s", strings.Join(e.Sources, ", "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// IsConfigurationError reports whether err is (or wraps) a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
