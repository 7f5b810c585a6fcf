package config

import (
	"errors"
	"fmt"
)

// ErrMutuallyExclusive is wrapped by the ConfigError returned when more than
// one remote execution mode is requested.
var ErrMutuallyExclusive = errors.New("mutually exclusive execution modes")

// ConfigError reports an invalid or incomplete run configuration. It is
// raised before any browser session is opened and aborts the whole run.
type ConfigError struct {
	// Key is the dotted configuration key involved, if any
	Key string

	// Source names the layer the offending value came from
	// (defaults, file, file:<env>, env, cli)
	Source string

	// Message describes the problem
	Message string

	// Err is the underlying cause
	Err error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}

	switch {
	case e.Key != "" && e.Source != "":
		return fmt.Sprintf("configuration error: %s (key %q from %s)", msg, e.Key, e.Source)
	case e.Key != "":
		return fmt.Sprintf("configuration error: %s (key %q)", msg, e.Key)
	default:
		return "configuration error: " + msg
	}
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewError creates a ConfigError for key with a formatted message.
func NewError(key, format string, args ...any) *ConfigError {
	return &ConfigError{Key: key, Message: fmt.Sprintf(format, args...)}
}

// MutuallyExclusive returns the error for a request that enables both the
// remote grid and the cloud vendor.
func MutuallyExclusive() *ConfigError {
	return &ConfigError{Message: ErrMutuallyExclusive.Error(), Err: ErrMutuallyExclusive}
}

// IsConfigError reports whether err is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}
