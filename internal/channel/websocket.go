package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oxyhq/oxysign/internal/oxy"
)

// Frame event names on the auth-session socket.
const (
	eventJoin       = "join"
	eventJoined     = "joined"
	eventAuthUpdate = "auth_update"
)

// wsFrame is the wire envelope on the auth-session socket.
type wsFrame struct {
	Event string          `json:"event"`
	Token string          `json:"token,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// WebsocketDialer connects to the identity service's auth-session namespace
// and joins the room keyed by the session token.
type WebsocketDialer struct {
	// URL is the ws(s) endpoint of the auth-session namespace.
	URL string

	// HandshakeTimeout bounds the connect + join. Zero means 10s.
	HandshakeTimeout time.Duration
}

// Dial opens the socket and sends the join frame. Any failure here counts as
// a channel connection failure and triggers the polling fallback.
func (d *WebsocketDialer) Dial(ctx context.Context, token string) (Socket, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, resp, err := dialer.DialContext(ctx, d.URL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}

	if err := conn.WriteJSON(wsFrame{Event: eventJoin, Token: token}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to join session room: %w", err)
	}

	return &wsSocket{conn: conn}, nil
}

// wsSocket adapts a gorilla connection to the Socket interface.
type wsSocket struct {
	conn *websocket.Conn
}

// ReadUpdate reads frames until an auth_update arrives. Join acks are
// readiness only and skipped; frames that do not decode to a known update
// shape are ignored rather than trusted.
func (s *wsSocket) ReadUpdate() (*oxy.AuthUpdate, error) {
	for {
		var f wsFrame
		if err := s.conn.ReadJSON(&f); err != nil {
			return nil, err
		}

		switch f.Event {
		case eventJoined:
			// Room join acknowledged; nothing to forward.
		case eventAuthUpdate:
			u, err := oxy.ParseUpdate(f.Data)
			if err != nil {
				slog.Debug("ignoring unrecognized auth update frame", "error", err)
				continue
			}
			return u, nil
		default:
			slog.Debug("ignoring unknown socket frame", "event", f.Event)
		}
	}
}

// Close sends a best-effort close frame and closes the connection.
func (s *wsSocket) Close() error {
	deadline := time.Now().Add(time.Second)
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return s.conn.Close()
}
