package channel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/oxyhq/oxysign/internal/oxy"
)

// fakeSocket is a controllable real-time channel.
type fakeSocket struct {
	updates chan *oxy.AuthUpdate
	closed  chan struct{}
	once    sync.Once
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		updates: make(chan *oxy.AuthUpdate, 4),
		closed:  make(chan struct{}),
	}
}

func (s *fakeSocket) ReadUpdate() (*oxy.AuthUpdate, error) {
	select {
	case u := <-s.updates:
		return u, nil
	case <-s.closed:
		return nil, errors.New("socket closed")
	}
}

func (s *fakeSocket) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSocket) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// fakeDialer hands out one fake socket, or fails.
type fakeDialer struct {
	sock *fakeSocket
	err  error
}

func (d *fakeDialer) Dial(ctx context.Context, token string) (Socket, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.sock, nil
}

// fakeChecker scripts poll responses in order, repeating the last one.
type fakeChecker struct {
	mu        sync.Mutex
	responses []func() (*oxy.AuthUpdate, error)
	calls     int
}

func (f *fakeChecker) GetSessionStatus(ctx context.Context, token string) (*oxy.AuthUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		i = len(f.responses) - 1
	}
	if i < 0 {
		return nil, nil
	}
	return f.responses[i]()
}

func (f *fakeChecker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func pending() (*oxy.AuthUpdate, error) { return nil, nil }

func authorized(sessionID string) func() (*oxy.AuthUpdate, error) {
	return func() (*oxy.AuthUpdate, error) {
		return &oxy.AuthUpdate{Status: oxy.StatusAuthorized, SessionID: sessionID}, nil
	}
}

func collect() (UpdateFunc, *atomic.Int32, chan oxy.AuthUpdate) {
	var count atomic.Int32
	ch := make(chan oxy.AuthUpdate, 8)
	return func(u oxy.AuthUpdate) {
		count.Add(1)
		ch <- u
	}, &count, ch
}

func waitUpdate(t *testing.T, ch chan oxy.AuthUpdate) oxy.AuthUpdate {
	t.Helper()
	select {
	case u := <-ch:
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for auth update")
		return oxy.AuthUpdate{}
	}
}

func TestSocketDelivery(t *testing.T) {
	sock := newFakeSocket()
	checker := &fakeChecker{}
	deliver, _, updates := collect()

	c := New("tok", &fakeDialer{sock: sock}, checker, 5*time.Millisecond, deliver)
	c.Start(context.Background())
	defer c.Stop()

	sock.updates <- &oxy.AuthUpdate{Status: oxy.StatusAuthorized, SessionID: "s1"}

	u := waitUpdate(t, updates)
	if u.Status != oxy.StatusAuthorized || u.SessionID != "s1" {
		t.Errorf("update = %+v, want authorized s1", u)
	}

	// The primary channel worked; polling must never have started.
	time.Sleep(30 * time.Millisecond)
	if n := checker.callCount(); n != 0 {
		t.Errorf("status checker called %d times, want 0", n)
	}
}

func TestFallbackToPolling(t *testing.T) {
	checker := &fakeChecker{
		responses: []func() (*oxy.AuthUpdate, error){
			pending,
			pending,
			authorized("s2"),
		},
	}
	deliver, count, updates := collect()

	c := New("tok", &fakeDialer{err: errors.New("connect_error")}, checker, 5*time.Millisecond, deliver)
	c.Start(context.Background())
	defer c.Stop()

	u := waitUpdate(t, updates)
	if u.Status != oxy.StatusAuthorized || u.SessionID != "s2" {
		t.Errorf("update = %+v, want authorized s2", u)
	}
	if n := checker.callCount(); n < 3 {
		t.Errorf("status checker called %d times, want >= 3", n)
	}

	// The terminal update ends the loop; no duplicates afterwards.
	time.Sleep(30 * time.Millisecond)
	if n := count.Load(); n != 1 {
		t.Errorf("delivered %d updates, want 1", n)
	}
}

func TestPollingErrorsSwallowed(t *testing.T) {
	checker := &fakeChecker{
		responses: []func() (*oxy.AuthUpdate, error){
			func() (*oxy.AuthUpdate, error) { return nil, errors.New("network down") },
			func() (*oxy.AuthUpdate, error) { return nil, errors.New("network still down") },
			authorized("s3"),
		},
	}
	deliver, _, updates := collect()

	c := New("tok", &fakeDialer{err: errors.New("connect_error")}, checker, 5*time.Millisecond, deliver)
	c.Start(context.Background())
	defer c.Stop()

	// A failed poll must not abort the loop.
	u := waitUpdate(t, updates)
	if u.SessionID != "s3" {
		t.Errorf("update = %+v, want authorized s3", u)
	}
}

func TestStopClosesSocket(t *testing.T) {
	sock := newFakeSocket()
	deliver, count, _ := collect()

	c := New("tok", &fakeDialer{sock: sock}, &fakeChecker{}, 5*time.Millisecond, deliver)
	c.Start(context.Background())

	// Let the read loop attach.
	time.Sleep(10 * time.Millisecond)

	c.Stop()
	c.Stop() // idempotent

	if !sock.isClosed() {
		t.Error("socket not closed by Stop")
	}

	// Nothing delivered after teardown.
	time.Sleep(10 * time.Millisecond)
	if n := count.Load(); n != 0 {
		t.Errorf("delivered %d updates after Stop, want 0", n)
	}
}

func TestStopCancelsPolling(t *testing.T) {
	checker := &fakeChecker{responses: []func() (*oxy.AuthUpdate, error){pending}}
	deliver, count, _ := collect()

	c := New("tok", &fakeDialer{err: errors.New("connect_error")}, checker, 5*time.Millisecond, deliver)
	c.Start(context.Background())

	time.Sleep(20 * time.Millisecond)
	c.Stop()

	// Let any in-flight tick drain before sampling the count.
	time.Sleep(10 * time.Millisecond)
	calls := checker.callCount()
	time.Sleep(30 * time.Millisecond)

	if n := checker.callCount(); n != calls {
		t.Errorf("polling continued after Stop: %d -> %d calls", calls, n)
	}
	if n := count.Load(); n != 0 {
		t.Errorf("delivered %d updates, want 0", n)
	}
}

func TestStopBeforeStart(t *testing.T) {
	sock := newFakeSocket()
	deliver, count, _ := collect()

	c := New("tok", &fakeDialer{sock: sock}, &fakeChecker{}, 5*time.Millisecond, deliver)
	c.Stop()
	c.Start(context.Background())

	time.Sleep(20 * time.Millisecond)
	if n := count.Load(); n != 0 {
		t.Errorf("stopped coordinator delivered %d updates", n)
	}
}
