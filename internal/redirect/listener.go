// Package redirect observes inbound authorization callbacks — the third,
// independent notification path — and turns their query parameters into auth
// updates. It runs a loopback HTTP server that the identity service's web
// authorize page redirects back to.
package redirect

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/oxyhq/oxysign/internal/oxy"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Listener receives redirect callbacks for the handshake and forwards the
// extracted outcome. On platforms where inbound deep-linking is not the
// authorization path (empty listen address), the listener is a no-op: Start,
// Shutdown, and CheckLaunchURL all do nothing rather than error.
type Listener struct {
	addr       string
	deliver    func(oxy.AuthUpdate)
	templates  *template.Template
	httpServer *http.Server

	mu             sync.Mutex
	launchConsumed bool
}

// NewListener creates a listener bound to addr that forwards callback
// outcomes to deliver. An empty addr yields a disabled no-op listener.
func NewListener(addr string, deliver func(oxy.AuthUpdate)) (*Listener, error) {
	l := &Listener{
		addr:    addr,
		deliver: deliver,
	}
	if addr == "" {
		return l, nil
	}

	templates, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse result templates: %w", err)
	}
	l.templates = templates

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", l.handleCallback)
	mux.HandleFunc("/health", l.handleHealth)

	handler := loggingMiddleware(mux)
	handler = recoveryMiddleware(handler)
	handler = rateLimitMiddleware(handler)
	handler = securityHeadersMiddleware(handler)

	l.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return l, nil
}

// Start begins accepting callbacks in the background. A nil error means the
// listener is bound and serving.
func (l *Listener) Start() error {
	if l.httpServer == nil {
		return nil
	}

	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", l.addr, err)
	}

	slog.Info("callback listener started", "addr", l.addr)

	go func() {
		if err := l.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("callback listener failed", "error", err)
		}
	}()

	return nil
}

// Shutdown stops accepting callbacks. Safe to call multiple times and on a
// disabled listener.
func (l *Listener) Shutdown(ctx context.Context) error {
	if l.httpServer == nil {
		return nil
	}
	return l.httpServer.Shutdown(ctx)
}

// CheckLaunchURL handles the "app launched fresh via URL" case: if raw is an
// authorization callback URL, its outcome is delivered. At most one launch
// URL is consumed per listener lifetime, so a launch URL that is also
// replayed through the live callback route cannot double-fire from here.
// Non-callback URLs are ignored entirely.
func (l *Listener) CheckLaunchURL(raw string) {
	if raw == "" || l.deliver == nil {
		return
	}
	u, ok := ParseCallbackURL(raw)
	if !ok {
		return
	}

	l.mu.Lock()
	if l.launchConsumed {
		l.mu.Unlock()
		return
	}
	l.launchConsumed = true
	l.mu.Unlock()

	l.deliver(u)
}
