package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oxyhq/oxysign/internal/token"
)

func TestNewSession(t *testing.T) {
	before := time.Now()
	sess := New(5 * time.Minute)
	after := time.Now()

	if !token.Valid(sess.Token) {
		t.Errorf("session token %q is not a valid token", sess.Token)
	}

	if sess.CreatedAt.Before(before) || sess.CreatedAt.After(after) {
		t.Errorf("CreatedAt = %v, want between %v and %v", sess.CreatedAt, before, after)
	}

	window := sess.ExpiresAt.Sub(sess.CreatedAt)
	if window != 5*time.Minute {
		t.Errorf("expiry window = %v, want 5m", window)
	}
}

func TestNewSessionUniqueTokens(t *testing.T) {
	// Retry mints a brand-new session; consecutive sessions must never
	// share a token.
	a := New(time.Minute)
	b := New(time.Minute)

	if a.Token == b.Token {
		t.Errorf("consecutive sessions share token %s", a.Token)
	}
}

func TestExpired(t *testing.T) {
	sess := New(time.Minute)

	if sess.Expired(sess.CreatedAt) {
		t.Error("session expired at creation time")
	}
	if sess.Expired(sess.ExpiresAt) {
		t.Error("session expired exactly at ExpiresAt; window is inclusive")
	}
	if !sess.Expired(sess.ExpiresAt.Add(time.Millisecond)) {
		t.Error("session not expired after ExpiresAt")
	}
}

// fakeAPI records registration calls.
type fakeAPI struct {
	err       error
	calls     int
	token     string
	expiresAt time.Time
	clientTag string
}

func (f *fakeAPI) CreateAuthSession(ctx context.Context, token string, expiresAt time.Time, clientTag string) error {
	f.calls++
	f.token = token
	f.expiresAt = expiresAt
	f.clientTag = clientTag
	return f.err
}

func TestRegistrarRegister(t *testing.T) {
	api := &fakeAPI{}
	reg := NewRegistrar(api, "test-platform")
	sess := New(time.Minute)

	if err := reg.Register(context.Background(), sess); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if api.calls != 1 {
		t.Errorf("registration calls = %d, want 1", api.calls)
	}
	if api.token != sess.Token {
		t.Errorf("registered token = %s, want %s", api.token, sess.Token)
	}
	if !api.expiresAt.Equal(sess.ExpiresAt) {
		t.Errorf("registered expiry = %v, want %v", api.expiresAt, sess.ExpiresAt)
	}
	if api.clientTag != "test-platform" {
		t.Errorf("client tag = %s, want test-platform", api.clientTag)
	}
}

func TestRegistrarRegisterError(t *testing.T) {
	cause := errors.New("server unavailable")
	api := &fakeAPI{err: cause}
	reg := NewRegistrar(api, "test-platform")

	err := reg.Register(context.Background(), New(time.Minute))
	if err == nil {
		t.Fatal("Register should fail when the API errors")
	}
	if !errors.Is(err, cause) {
		t.Errorf("error %v does not wrap cause %v", err, cause)
	}
	// No automatic retry.
	if api.calls != 1 {
		t.Errorf("registration calls = %d, want 1", api.calls)
	}
}

func TestWatchExpiryFires(t *testing.T) {
	sess := New(30 * time.Millisecond)

	var fired atomic.Bool
	done := make(chan struct{})
	stop := WatchExpiry(sess, func() {
		fired.Store(true)
		close(done)
	})
	defer stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expiry watch did not fire")
	}

	if !fired.Load() {
		t.Error("onExpired not invoked")
	}
}

func TestWatchExpiryStop(t *testing.T) {
	sess := New(50 * time.Millisecond)

	var fired atomic.Bool
	stop := WatchExpiry(sess, func() { fired.Store(true) })
	stop()
	stop() // idempotent

	time.Sleep(100 * time.Millisecond)
	if fired.Load() {
		t.Error("onExpired fired after stop")
	}
}
