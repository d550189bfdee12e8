package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/oxyhq/oxysign/internal/channel"
	"github.com/oxyhq/oxysign/internal/config"
	"github.com/oxyhq/oxysign/internal/gate"
	"github.com/oxyhq/oxysign/internal/oxy"
	"github.com/oxyhq/oxysign/internal/redirect"
)

// terminalEvent carries a gate terminal transition into the signin loop.
type terminalEvent struct {
	phase gate.Phase
	err   error
}

// runSignin drives one interactive sign-in: register, present, wait,
// and on expiry offer a retry with a brand-new session.
func runSignin(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Override log settings from flags if provided
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	config.SetupLogging(&cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client := oxy.NewClient(cfg.Service.BaseURL)

	events := make(chan terminalEvent, 4)
	g := gate.New(client, gate.Config{
		ClientTag:    cfg.Service.ClientTag,
		SessionTTL:   cfg.Session.Timeout(),
		PollInterval: cfg.Session.PollInterval(),
		Dialer:       &channel.WebsocketDialer{URL: client.SocketURL()},
		OnTerminal: func(p gate.Phase, err error) {
			events <- terminalEvent{phase: p, err: err}
		},
	})
	defer g.Stop()

	listener, err := redirect.NewListener(cfg.Callback.Listen, func(u oxy.AuthUpdate) {
		g.DeliverRedirect(ctx, u)
	})
	if err != nil {
		return fmt.Errorf("failed to create callback listener: %w", err)
	}
	if err := listener.Start(); err != nil {
		// The redirect path is one of three channels; the handshake still
		// completes over the socket or polling.
		slog.Warn("callback listener unavailable, continuing without it", "error", err)
	}
	defer func() { _ = listener.Shutdown(context.Background()) }()

	if err := g.Start(ctx); err != nil {
		return err
	}
	printAttempt(cfg, g)

	stdin := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			switch ev.phase {
			case gate.PhaseDone:
				auth := g.Authentication()
				fmt.Printf("\nSigned in as %s (%s)\n", auth.User.Username, auth.User.ID)
				return nil

			case gate.PhaseExpired:
				fmt.Printf("\n%v\n", ev.err)
				fmt.Print("Press Enter to try again with a fresh code, or Ctrl-C to quit. ")
				if !waitForEnter(ctx, stdin) {
					overrideExitCode = ExitExpired
					return nil
				}
				if err := g.Retry(ctx); err != nil {
					return err
				}
				printAttempt(cfg, g)

			case gate.PhaseError:
				if errors.Is(ev.err, gate.ErrDenied) {
					fmt.Printf("\n%v\n", ev.err)
					overrideExitCode = ExitDenied
					return nil
				}
				return ev.err
			}
		}
	}
}

// printAttempt renders the current session as a QR code, deep link, and web
// authorize URL.
func printAttempt(cfg *config.Config, g *gate.Gate) {
	sess := g.Session()
	if sess == nil {
		return
	}

	link := oxy.DeepLink(cfg.Service.Scheme, sess.Token)
	if qr, err := qrcode.New(link, qrcode.Medium); err == nil {
		fmt.Println(qr.ToSmallString(false))
	}
	fmt.Printf("Scan the code with the Oxy app, or open: %s\n", link)

	authURL, err := oxy.AuthorizeURL(cfg.Service.AuthBaseURL, sess.Token, cfg.Callback.EffectiveRedirectURI())
	if err == nil {
		fmt.Printf("Or sign in on the web: %s\n", authURL)
	}

	fmt.Printf("Waiting for approval (expires at %s)...\n", sess.ExpiresAt.Format(time.Kitchen))
}

// waitForEnter blocks until the user presses Enter or the context ends.
func waitForEnter(ctx context.Context, r *bufio.Reader) bool {
	done := make(chan bool, 1)
	go func() {
		_, err := r.ReadString('\n')
		done <- err == nil
	}()

	select {
	case <-ctx.Done():
		return false
	case ok := <-done:
		return ok
	}
}
