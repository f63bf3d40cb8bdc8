package config

import (
	"fmt"

	"codeberg.org/mutker/bwcheck/internal/errors"
)

// Option defines a configuration option that can be passed to Load
type Option func(*options) error

// options holds internal configuration options
type options struct {
	configPath  string
	envPrefix   string
	searchPaths []string
}

// WithConfigFile specifies an explicit configuration file path
func WithConfigFile(path string) Option {
	return func(o *options) error {
		o.configPath = path
		return nil
	}
}

// WithEnvPrefix specifies a custom environment variable prefix
// Default is "BWCHECK"
func WithEnvPrefix(prefix string) Option {
	return func(o *options) error {
		if prefix == "" {
			return errors.New().WithData(errors.ErrInvalidArgument, "empty env prefix")
		}
		o.envPrefix = prefix
		return nil
	}
}

// WithSearchPaths replaces the directories searched for bwcheck.toml
func WithSearchPaths(paths ...string) Option {
	return func(o *options) error {
		o.searchPaths = paths
		return nil
	}
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	field  string
	value  any
	reason string
	err    errors.Error
}

func newValidationError(code errors.ErrorCode, field string, value any, reason string) *ValidationError {
	return &ValidationError{
		field:  field,
		value:  value,
		reason: reason,
		err:    errors.New().New(code),
	}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.field, e.reason, e.value)
}

// Field returns the name of the invalid field
func (e *ValidationError) Field() string { return e.field }

// Value returns the invalid value
func (e *ValidationError) Value() any { return e.value }

// Reason returns why the value is invalid
func (e *ValidationError) Reason() string { return e.reason }

func (e *ValidationError) Unwrap() error { return e.err }
