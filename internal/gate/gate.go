// Package gate drives the authorization handshake to exactly one outcome.
//
// Three independent notification sources race for the same session — the
// real-time socket, the polling fallback, and the redirect callback — and
// the gate is the sole arbiter: the first terminal update wins, everything
// later is a no-op, and all channels are torn down no later than the winning
// transition.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oxyhq/oxysign/internal/channel"
	"github.com/oxyhq/oxysign/internal/oxy"
	"github.com/oxyhq/oxysign/internal/session"
)

// Phase is the gate's externally visible state. The UI layer shows exactly
// one view per phase.
type Phase int

const (
	// PhaseIdle: no attempt running.
	PhaseIdle Phase = iota
	// PhaseRegistering: registering a fresh session with the identity service.
	PhaseRegistering
	// PhaseWaiting: session live, QR/link presented, channels armed.
	PhaseWaiting
	// PhaseCompleting: authorized update accepted, exchanging the session.
	PhaseCompleting
	// PhaseDone: authenticated session established.
	PhaseDone
	// PhaseError: registration failure, denial, or exchange failure.
	PhaseError
	// PhaseExpired: the session window lapsed without a decision.
	PhaseExpired
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRegistering:
		return "registering"
	case PhaseWaiting:
		return "waiting"
	case PhaseCompleting:
		return "completing"
	case PhaseDone:
		return "done"
	case PhaseError:
		return "error"
	case PhaseExpired:
		return "expired"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Terminal reports whether the phase ends the current attempt.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseError || p == PhaseExpired
}

// The user-facing failure taxonomy. Callers branch on these with errors.Is;
// each carries distinct messaging and all but ErrExchange offer a plain
// retry.
var (
	// ErrRegistration: the session could not be created. Recoverable via an
	// explicit user retry only — never retried automatically.
	ErrRegistration = errors.New("could not start a sign-in session")

	// ErrDenied: the user declined the request on the other app.
	ErrDenied = errors.New("sign-in request was denied")

	// ErrExpired: the window lapsed with no decision.
	ErrExpired = errors.New("sign-in request expired; request a new code")

	// ErrExchange: authorization succeeded but establishing the
	// authenticated session failed. Retry restarts the whole flow.
	ErrExchange = errors.New("authorization succeeded but sign-in failed")
)

// API is the slice of the identity service the gate and its components use.
type API interface {
	session.API
	channel.StatusChecker
	ExchangeSession(ctx context.Context, sessionID string) (*oxy.Authentication, error)
}

// Config configures a gate.
type Config struct {
	// ClientTag identifies the caller at session registration.
	ClientTag string

	// SessionTTL is the handshake window. Zero means 5 minutes.
	SessionTTL time.Duration

	// PollInterval is the fallback polling cadence. Zero means 3 seconds.
	PollInterval time.Duration

	// Dialer opens the real-time channel. Required.
	Dialer channel.SocketDialer

	// OnAuthenticated is invoked exactly once, after a successful exchange.
	OnAuthenticated func(*oxy.Authentication)

	// OnTerminal, if set, is invoked each time an attempt reaches a
	// terminal phase (PhaseDone with a nil error, or PhaseError /
	// PhaseExpired with the cause).
	OnTerminal func(Phase, error)
}

// Gate owns the shared mutable state of the handshake: the current phase and
// the active session. No other component writes them; every channel feeds
// its events through deliver.
type Gate struct {
	api api
	cfg Config

	mu         sync.Mutex
	phase      Phase
	err        error
	epoch      uint64
	sess       *session.Session
	coord      *channel.Coordinator
	stopExpiry func()
	auth       *oxy.Authentication
}

// api keeps the registrar alongside the raw service client.
type api struct {
	API
	registrar *session.Registrar
}

// New creates a gate in PhaseIdle.
func New(svc API, cfg Config) *Gate {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 5 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = channel.DefaultPollInterval
	}
	return &Gate{
		api: api{
			API:       svc,
			registrar: session.NewRegistrar(svc, cfg.ClientTag),
		},
		cfg:   cfg,
		phase: PhaseIdle,
	}
}

// Start runs the registration + channel-attach flow for a brand-new session.
// The returned error is the registration failure, if any; everything after
// registration is asynchronous and reported through OnTerminal /
// OnAuthenticated.
func (g *Gate) Start(ctx context.Context) error {
	return g.begin(ctx)
}

// Retry discards the current attempt entirely — session, channels, pending
// continuations — and re-runs the full flow with a fresh token. It never
// resumes the old session.
func (g *Gate) Retry(ctx context.Context) error {
	return g.begin(ctx)
}

func (g *Gate) begin(ctx context.Context) error {
	g.mu.Lock()
	// Invalidate the previous attempt before anything else: bumping the
	// epoch makes every late callback from its channels inert, including a
	// continuation already past its network call.
	g.epoch++
	epoch := g.epoch
	g.teardownLocked()
	sess := session.New(g.cfg.SessionTTL)
	g.sess = sess
	g.phase = PhaseRegistering
	g.err = nil
	g.auth = nil
	g.mu.Unlock()

	slog.Info("starting sign-in attempt",
		"expires_at", sess.ExpiresAt,
	)

	if err := g.api.registrar.Register(ctx, sess); err != nil {
		regErr := fmt.Errorf("%w: %w", ErrRegistration, err)

		g.mu.Lock()
		if g.epoch != epoch {
			// A newer attempt superseded this one mid-registration.
			g.mu.Unlock()
			return regErr
		}
		g.phase = PhaseError
		g.err = regErr
		g.mu.Unlock()

		g.notifyTerminal(PhaseError, regErr)
		return regErr
	}

	g.mu.Lock()
	if g.epoch != epoch {
		g.mu.Unlock()
		return nil
	}
	g.phase = PhaseWaiting

	coord := channel.New(sess.Token, g.cfg.Dialer, g.api, g.cfg.PollInterval,
		func(u oxy.AuthUpdate) { g.deliver(ctx, epoch, u) })
	g.coord = coord

	g.stopExpiry = session.WatchExpiry(sess, func() {
		g.deliver(ctx, epoch, oxy.AuthUpdate{Status: oxy.StatusExpired})
	})
	g.mu.Unlock()

	coord.Start(ctx)
	return nil
}

// DeliverRedirect feeds an update from the redirect path into the gate. The
// redirect listener outlives individual attempts, so its updates always
// target the current one.
func (g *Gate) DeliverRedirect(ctx context.Context, u oxy.AuthUpdate) {
	g.mu.Lock()
	epoch := g.epoch
	g.mu.Unlock()
	g.deliver(ctx, epoch, u)
}

// deliver is the single arbitration point for every notification source.
// The guard has two layers: the epoch drops events from torn-down attempts,
// and the phase check admits only the first terminal update — the phase is
// moved off PhaseWaiting synchronously, before the exchange continuation
// runs, so a second event arriving during the exchange is already locked
// out.
func (g *Gate) deliver(ctx context.Context, epoch uint64, u oxy.AuthUpdate) {
	g.mu.Lock()
	if epoch != g.epoch || g.phase != PhaseWaiting {
		g.mu.Unlock()
		slog.Debug("dropping auth update", "status", string(u.Status))
		return
	}

	switch u.Status {
	case oxy.StatusAuthorized:
		g.phase = PhaseCompleting
	case oxy.StatusCancelled:
		g.phase = PhaseError
		g.err = ErrDenied
	case oxy.StatusExpired:
		g.phase = PhaseExpired
		g.err = ErrExpired
	default:
		g.mu.Unlock()
		return
	}

	// All channels are stopped no later than the terminal transition.
	g.teardownLocked()
	g.mu.Unlock()

	switch u.Status {
	case oxy.StatusCancelled:
		slog.Info("sign-in denied")
		g.notifyTerminal(PhaseError, ErrDenied)
		return
	case oxy.StatusExpired:
		slog.Info("sign-in session expired")
		g.notifyTerminal(PhaseExpired, ErrExpired)
		return
	}

	g.complete(ctx, epoch, u.SessionID)
}

// complete exchanges the authorized session ID for an authenticated session.
func (g *Gate) complete(ctx context.Context, epoch uint64, sessionID string) {
	auth, err := g.api.ExchangeSession(ctx, sessionID)

	g.mu.Lock()
	if epoch != g.epoch {
		// Retried or stopped while the exchange was in flight.
		g.mu.Unlock()
		return
	}
	if err != nil {
		exErr := fmt.Errorf("%w: %w", ErrExchange, err)
		g.phase = PhaseError
		g.err = exErr
		g.mu.Unlock()

		slog.Error("session exchange failed", "error", err)
		g.notifyTerminal(PhaseError, exErr)
		return
	}
	g.phase = PhaseDone
	g.auth = auth
	g.mu.Unlock()

	slog.Info("sign-in complete",
		"user_id", auth.User.ID,
		"username", auth.User.Username,
	)

	if g.cfg.OnAuthenticated != nil {
		g.cfg.OnAuthenticated(auth)
	}
	g.notifyTerminal(PhaseDone, nil)
}

// Stop cancels the current attempt and releases every channel and timer.
// Idempotent; this is the unmount path.
func (g *Gate) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.epoch++
	g.teardownLocked()
	g.sess = nil
	if !g.phase.Terminal() {
		g.phase = PhaseIdle
	}
}

// teardownLocked stops the coordinator and the expiry watch. Callers hold
// g.mu. Fields are nilled as they are stopped, so repeated calls are no-ops.
func (g *Gate) teardownLocked() {
	if g.coord != nil {
		g.coord.Stop()
		g.coord = nil
	}
	if g.stopExpiry != nil {
		g.stopExpiry()
		g.stopExpiry = nil
	}
}

func (g *Gate) notifyTerminal(p Phase, err error) {
	if g.cfg.OnTerminal != nil {
		g.cfg.OnTerminal(p, err)
	}
}

// Phase returns the gate's current phase.
func (g *Gate) Phase() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

// Err returns the terminal cause when the phase is PhaseError or
// PhaseExpired.
func (g *Gate) Err() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}

// Session returns a copy of the active attempt's session, or nil when no
// attempt is live. Callers use it to build the QR payload and authorize URL.
func (g *Gate) Session() *session.Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sess == nil {
		return nil
	}
	cp := *g.sess
	return &cp
}

// Authentication returns the exchange result once the phase is PhaseDone.
func (g *Gate) Authentication() *oxy.Authentication {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.auth
}
