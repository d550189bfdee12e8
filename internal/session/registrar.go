package session

import (
	"context"
	"fmt"
	"time"
)

// API is the slice of the identity service the registrar needs.
type API interface {
	CreateAuthSession(ctx context.Context, token string, expiresAt time.Time, clientTag string) error
}

// Registrar registers handshake sessions with the identity service.
type Registrar struct {
	api       API
	clientTag string
}

// NewRegistrar creates a registrar that tags registrations with clientTag
// (a caller-identifying string such as the platform name).
func NewRegistrar(api API, clientTag string) *Registrar {
	return &Registrar{api: api, clientTag: clientTag}
}

// Register performs the single registration write for a session. Only after
// this returns nil is the session live and safe to expose via QR or link.
// Failures are returned as-is for an explicit user-driven retry; the
// registrar never retries on its own.
func (r *Registrar) Register(ctx context.Context, s *Session) error {
	if err := r.api.CreateAuthSession(ctx, s.Token, s.ExpiresAt, r.clientTag); err != nil {
		return fmt.Errorf("session registration failed: %w", err)
	}
	return nil
}
