package session

import (
	"errors"
	"fmt"
)

// ErrStartupTimeout is wrapped by the SessionError returned when the
// endpoint does not produce a session within the startup timeout.
var ErrStartupTimeout = errors.New("session startup timed out")

// SessionError reports a session that could not be opened. It fails the test
// that requested the session; other tests of the worker keep running.
type SessionError struct {
	Mode     string
	Endpoint string
	Browser  string
	Err      error
}

// Error implements the error interface.
func (e *SessionError) Error() string {
	return fmt.Sprintf("session error: failed to open %s session on %s: %v", e.Browser, e.Endpoint, e.Err)
}

// Unwrap returns the underlying error.
func (e *SessionError) Unwrap() error {
	return e.Err
}

// TeardownError reports a failure while closing a session. Teardown errors
// are logged and counted but never change a test's outcome.
type TeardownError struct {
	SessionID string
	Err       error
}

// Error implements the error interface.
func (e *TeardownError) Error() string {
	return fmt.Sprintf("teardown of session %s failed: %v", e.SessionID, e.Err)
}

// Unwrap returns the underlying error.
func (e *TeardownError) Unwrap() error {
	return e.Err
}

// IsSessionError reports whether err is or wraps a SessionError.
func IsSessionError(err error) bool {
	var sessErr *SessionError
	return errors.As(err, &sessErr)
}

// IsTeardownError reports whether err is or wraps a TeardownError.
func IsTeardownError(err error) bool {
	var tdErr *TeardownError
	return errors.As(err, &tdErr)
}
