package registry

import (
	"errors"
	"fmt"
)

// ErrConfig is wrapped by every error returned while loading a registry.
var ErrConfig = errors.New("registry: invalid device configuration")

// ConfigError describes why a registry source was rejected.
type ConfigError struct {
	// Source is the file path, or empty when parsing a reader.
	Source string

	// Index is the zero-based record position, or -1 for whole-source errors.
	Index int

	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	prefix := "registry"
	if e.Source != "" {
		prefix += " " + e.Source
	}
	if e.Index >= 0 {
		prefix += fmt.Sprintf(" record %d", e.Index)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Msg, e.Err)
	}
	return prefix + ": " + e.Msg
}

// Unwrap exposes both ErrConfig and the underlying cause.
func (e *ConfigError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrConfig, e.Err}
	}
	return []error{ErrConfig}
}
