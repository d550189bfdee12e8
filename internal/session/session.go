// Package session tracks a single authorization handshake attempt from token
// mint to expiry.
package session

import (
	"time"

	"github.com/oxyhq/oxysign/internal/token"
)

// Session represents one handshake attempt. It is created when the flow
// starts or the user retries, and discarded (not revoked server-side) when a
// terminal event is processed or a fresh session replaces it. The token is
// never reused across attempts; a stale channel's event must not be able to
// reach a new attempt.
type Session struct {
	// Token is the opaque 32-char handshake token. It keys both
	// notification channels and is the payload of the QR code / deep link.
	Token string

	// CreatedAt is when this attempt started.
	CreatedAt time.Time

	// ExpiresAt is the absolute end of the window (CreatedAt + TTL).
	// Fixed; not renewable except by minting a brand-new session.
	ExpiresAt time.Time
}

// New mints a session with a fresh token and a ttl-wide window.
func New(ttl time.Duration) *Session {
	now := time.Now()
	return &Session{
		Token:     token.Generate(),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// Expired reports whether the session's window has lapsed at now.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
