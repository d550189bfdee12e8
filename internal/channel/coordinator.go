// Package channel delivers auth updates for a handshake token over the best
// available transport: a real-time socket when it connects, a polling loop
// otherwise. Both transports are normalized to the same update shape, and at
// most one is active at any time.
package channel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oxyhq/oxysign/internal/oxy"
)

// DefaultPollInterval is the fallback polling cadence.
const DefaultPollInterval = 3 * time.Second

// UpdateFunc receives normalized auth updates from whichever transport is
// active. It may be called from an internal goroutine.
type UpdateFunc func(oxy.AuthUpdate)

// StatusChecker is the polling side of the identity service API.
type StatusChecker interface {
	// GetSessionStatus returns (nil, nil) while the session is pending.
	GetSessionStatus(ctx context.Context, token string) (*oxy.AuthUpdate, error)
}

// Socket is a connected real-time channel joined to one session token's room.
type Socket interface {
	// ReadUpdate blocks until the next auth update or a connection error.
	ReadUpdate() (*oxy.AuthUpdate, error)
	Close() error
}

// SocketDialer opens the real-time channel for a session token.
type SocketDialer interface {
	Dial(ctx context.Context, token string) (Socket, error)
}

// Coordinator owns the notification transports for one handshake session.
type Coordinator struct {
	token    string
	dialer   SocketDialer
	checker  StatusChecker
	interval time.Duration
	deliver  UpdateFunc

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
	socket  Socket
}

// New creates a coordinator for token. interval <= 0 selects
// DefaultPollInterval.
func New(token string, dialer SocketDialer, checker StatusChecker, interval time.Duration, deliver UpdateFunc) *Coordinator {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Coordinator{
		token:    token,
		dialer:   dialer,
		checker:  checker,
		interval: interval,
		deliver:  deliver,
	}
}

// Start attaches the coordinator in the background: it tries the real-time
// channel first and falls back to polling if the connection fails. Start
// returns immediately; updates arrive via the deliver callback.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		cancel()
		return
	}
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(ctx)
}

// Stop tears down whichever transport is active: the socket is closed and
// the polling loop is cancelled. Idempotent; safe to call from any goroutine
// and in any state, including before Start.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	cancel := c.cancel
	sock := c.socket
	c.cancel = nil
	c.socket = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sock != nil {
		_ = sock.Close()
	}
}

func (c *Coordinator) run(ctx context.Context) {
	sock, err := c.dialer.Dial(ctx, c.token)
	if err != nil {
		// Connection failure is not user-facing; the primary channel is
		// fully disposed before the fallback starts its first tick.
		slog.Debug("real-time channel unavailable, falling back to polling",
			"error", err,
		)
		c.pollLoop(ctx)
		return
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		_ = sock.Close()
		return
	}
	c.socket = sock
	c.mu.Unlock()

	slog.Debug("real-time channel connected")
	c.readLoop(ctx, sock)
}

// readLoop forwards socket updates until the connection ends. An unexpected
// disconnect after a successful join takes no further action: the expiry
// watch and the redirect path cover a dead socket.
func (c *Coordinator) readLoop(ctx context.Context, sock Socket) {
	for {
		u, err := sock.ReadUpdate()
		if err != nil {
			if ctx.Err() == nil {
				slog.Debug("real-time channel closed", "error", err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		c.deliver(*u)
	}
}

// pollLoop checks the session status at a fixed interval until a terminal
// update arrives or the loop is cancelled. A failed poll never aborts the
// loop; it is logged and retried on the next tick. The session's absolute
// expiry is the only stop condition short of a terminal event.
func (c *Coordinator) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u, err := c.checker.GetSessionStatus(ctx, c.token)
			if err != nil {
				slog.Debug("session status poll failed", "error", err)
				continue
			}
			if u == nil {
				continue
			}
			c.deliver(*u)
			return
		}
	}
}
