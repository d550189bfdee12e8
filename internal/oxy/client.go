package oxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Client talks to the identity service's auth-session API over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the identity service at baseURL
// (e.g. "https://api.oxy.so").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type createSessionRequest struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	ClientTag string    `json:"clientTag"`
}

// CreateAuthSession registers a freshly generated handshake token with the
// identity service. This is always a fresh uncached write; the token is only
// safe to expose via QR or link after this succeeds. The call is never
// retried automatically — a failure is surfaced so the caller can let the
// user retry explicitly, avoiding silent token churn.
func (c *Client) CreateAuthSession(ctx context.Context, token string, expiresAt time.Time, clientTag string) error {
	body := createSessionRequest{
		Token:     token,
		ExpiresAt: expiresAt.UTC(),
		ClientTag: clientTag,
	}

	resp, err := c.do(ctx, http.MethodPost, "/v1/auth/sessions", body)
	if err != nil {
		return fmt.Errorf("failed to create auth session: %w", err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("failed to create auth session: %s", readAPIError(resp))
	}
	return nil
}

// statusResponse is the polling endpoint's payload.
type statusResponse struct {
	Authorized bool   `json:"authorized"`
	SessionID  string `json:"sessionId,omitempty"`
	Status     string `json:"status,omitempty"` // "cancelled" or "expired"
	PublicKey  string `json:"publicKey,omitempty"`
	UserID     string `json:"userId,omitempty"`
	Username   string `json:"username,omitempty"`
}

// GetSessionStatus checks the current state of a handshake session.
// It returns (nil, nil) while the session is still pending; a non-nil update
// is always terminal.
func (c *Client) GetSessionStatus(ctx context.Context, token string) (*AuthUpdate, error) {
	resp, err := c.do(ctx, http.MethodGet, "/v1/auth/sessions/"+url.PathEscape(token)+"/status", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to check session status: %w", err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to check session status: %s", readAPIError(resp))
	}

	var sr statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("malformed status response: %w", err)
	}

	switch {
	case sr.Authorized:
		if sr.SessionID == "" {
			return nil, fmt.Errorf("authorized status missing sessionId")
		}
		return &AuthUpdate{
			Status:    StatusAuthorized,
			SessionID: sr.SessionID,
			PublicKey: sr.PublicKey,
			UserID:    sr.UserID,
			Username:  sr.Username,
		}, nil
	case sr.Status == string(StatusCancelled):
		return &AuthUpdate{Status: StatusCancelled}, nil
	case sr.Status == string(StatusExpired):
		return &AuthUpdate{Status: StatusExpired}, nil
	case sr.Status == "":
		// Still pending.
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown session status %q", sr.Status)
	}
}

type exchangeRequest struct {
	SessionID string `json:"sessionId"`
}

type exchangeResponse struct {
	SessionID    string    `json:"sessionId"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresAt    time.Time `json:"expiresAt"`
	User         *User     `json:"user"`
}

// ExchangeSession trades the session ID from an authorized update for the
// authenticated session's credentials and user record.
func (c *Client) ExchangeSession(ctx context.Context, sessionID string) (*Authentication, error) {
	resp, err := c.do(ctx, http.MethodPost, "/v1/auth/sessions/exchange", exchangeRequest{SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("failed to exchange session: %w", err)
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to exchange session: %s", readAPIError(resp))
	}

	var er exchangeResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, fmt.Errorf("malformed exchange response: %w", err)
	}
	if er.AccessToken == "" {
		return nil, fmt.Errorf("exchange response missing access token")
	}
	if er.User == nil {
		return nil, fmt.Errorf("exchange response missing user")
	}

	return &Authentication{
		SessionID: er.SessionID,
		User:      er.User,
		Token: &oauth2.Token{
			AccessToken:  er.AccessToken,
			RefreshToken: er.RefreshToken,
			TokenType:    "Bearer",
			Expiry:       er.ExpiresAt,
		},
	}, nil
}

// SocketURL returns the websocket endpoint of the auth-session namespace,
// derived from the API base URL.
func (c *Client) SocketURL() string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/v1/auth/sessions/socket"
}

// do issues one API request with the standard headers. Both the session
// registration and status checks must bypass any intermediary cache, so
// every request carries no-store/no-cache headers.
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// apiError is the identity service's error envelope.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// readAPIError extracts a printable error from a non-2xx response.
func readAPIError(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil && len(data) > 0 {
		var ae apiError
		if json.Unmarshal(data, &ae) == nil {
			if ae.Message != "" {
				return fmt.Sprintf("%s (status %d)", ae.Message, resp.StatusCode)
			}
			if ae.Error != "" {
				return fmt.Sprintf("%s (status %d)", ae.Error, resp.StatusCode)
			}
		}
	}
	return fmt.Sprintf("unexpected status %d", resp.StatusCode)
}

// drain discards any remaining body and closes it so the underlying
// connection can be reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
