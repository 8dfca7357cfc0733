package interfaces

import (
	"context"
)

// RequestFunc is one authenticated provider call. It returns the HTTP status
// it observed so the session manager can react to authorization failures;
// interpreting any other status is the caller's business.
type RequestFunc func(ctx context.Context) (int, error)

// SessionManager owns the portal login handshake and the single retry policy
// of the system: on a 401 it re-runs the login and retries the wrapped call
// exactly once.
type SessionManager interface {
	// Login performs the full multi-hop login handshake. It never returns an
	// error; a failed attempt is logged and reported as false.
	Login(ctx context.Context) bool

	// LoggedIn reports whether the last login attempt succeeded.
	LoggedIn() bool

	// CallAuthenticated invokes fn and, if it reports a 401, logs in again
	// and retries once. A second 401 is a terminal failure for this call.
	CallAuthenticated(ctx context.Context, operation string, fn RequestFunc) error
}
