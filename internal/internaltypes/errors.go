package internaltypes

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth means the booking service rejected our credentials. Retrying cannot help:
	// the token has to be captured again.
	ErrAuth = errors.New("credentials rejected")

	// ErrTransient marks failures worth retrying (5xx, timeouts, dropped connections).
	ErrTransient = errors.New("transient failure")

	// ErrRateLimited is also transient; callers should widen request spacing.
	ErrRateLimited = errors.New("rate limited")

	ErrNotFound = errors.New("not found")
)

// ConfigError reports an invalid option found before polling starts.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError builds a ConfigError from a format string.
func NewConfigError(field, format string, args ...any) error {
	return &ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

// RateLimitError is returned when the service asks us to slow down.
type RateLimitError struct {
	Msg string
}

func (e *RateLimitError) Error() string { return "rate limited: " + e.Msg }

// Is lets errors.Is match both ErrRateLimited and ErrTransient.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited || target == ErrTransient
}

// Transient wraps err so that errors.Is(err, ErrTransient) holds.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

func IsAuth(err error) bool      { return errors.Is(err, ErrAuth) }
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
