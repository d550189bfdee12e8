// Package oxy is the client for the Oxy identity service's auth-session API:
// session registration, status polling, real-time endpoint discovery, and the
// exchange of an authorized handshake for an authenticated session.
package oxy

import (
	"encoding/json"
	"fmt"

	"golang.org/x/oauth2"
)

// Status is the terminal outcome of an authorization attempt. There are no
// non-terminal values; "still waiting" is the absence of an update.
type Status string

const (
	// StatusAuthorized means the user approved the request on the other app.
	StatusAuthorized Status = "authorized"
	// StatusCancelled means the user denied the request.
	StatusCancelled Status = "cancelled"
	// StatusExpired means the session's window lapsed before a decision.
	StatusExpired Status = "expired"
)

// AuthUpdate is the channel-agnostic terminal event for a handshake session.
// Every notification channel (socket, polling, redirect callback) is
// normalized to this shape before it reaches the completion gate.
type AuthUpdate struct {
	Status Status `json:"status"`

	// SessionID identifies the resulting authenticated session on the
	// identity service. Set only when Status is StatusAuthorized. It is
	// distinct from the handshake token, which identifies the attempt.
	SessionID string `json:"sessionId,omitempty"`

	// Informational fields; not required for completion.
	PublicKey string `json:"publicKey,omitempty"`
	UserID    string `json:"userId,omitempty"`
	Username  string `json:"username,omitempty"`
}

// ParseUpdate decodes raw JSON into an AuthUpdate, enforcing the closed
// status union at the boundary. The network layer is duck-typed; anything
// with an unknown or missing status, or an authorized payload without a
// session ID, is rejected here rather than trusted downstream.
func ParseUpdate(raw []byte) (*AuthUpdate, error) {
	var u AuthUpdate
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, fmt.Errorf("malformed auth update: %w", err)
	}
	switch u.Status {
	case StatusAuthorized:
		if u.SessionID == "" {
			return nil, fmt.Errorf("authorized update missing sessionId")
		}
	case StatusCancelled, StatusExpired:
	default:
		return nil, fmt.Errorf("unknown auth update status %q", u.Status)
	}
	return &u, nil
}

// User describes the account behind an authenticated session.
type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Authentication is the result of exchanging an authorized handshake for an
// authenticated session on the identity service.
type Authentication struct {
	// SessionID is the authenticated session's identifier.
	SessionID string

	// User is the account that approved the request.
	User *User

	// Token carries the credentials for the new session.
	Token *oauth2.Token
}
