// Package auth validates the shared secret that authorizes document updates.
package auth

import (
	"crypto/subtle"
	"errors"
)

var (
	// ErrDenied means the presented secret does not match.
	ErrDenied = errors.New("password incorrect")

	// ErrMisconfigured means the server has no secret, so no update can
	// ever be authorized.
	ErrMisconfigured = errors.New("server password not configured")
)

// Result is the outcome of a credential check.
type Result int

const (
	// Authorized indicates the presented secret matched.
	Authorized Result = iota
	// Denied indicates the presented secret did not match.
	Denied
	// Misconfigured indicates the server has no secret configured.
	Misconfigured
)

// String returns a human-readable representation of the result.
func (r Result) String() string {
	switch r {
	case Authorized:
		return "authorized"
	case Denied:
		return "denied"
	case Misconfigured:
		return "misconfigured"
	default:
		return "unknown"
	}
}

// Err returns nil for Authorized and the matching sentinel otherwise.
func (r Result) Err() error {
	switch r {
	case Authorized:
		return nil
	case Misconfigured:
		return ErrMisconfigured
	default:
		return ErrDenied
	}
}

// Gate checks presented secrets against the configured one. It holds no
// mutable state and is safe for concurrent use.
type Gate struct {
	secret []byte
}

// NewGate creates a gate for secret. An empty secret leaves the gate
// misconfigured rather than accepting an empty password.
func NewGate(secret string) *Gate {
	return &Gate{secret: []byte(secret)}
}

// Configured reports whether a secret is set.
func (g *Gate) Configured() bool {
	return len(g.secret) > 0
}

// Check compares presented against the configured secret.
func (g *Gate) Check(presented string) Result {
	if !g.Configured() {
		return Misconfigured
	}
	if subtle.ConstantTimeCompare([]byte(presented), g.secret) == 1 {
		return Authorized
	}
	return Denied
}
