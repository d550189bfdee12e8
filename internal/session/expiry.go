package session

import (
	"sync"
	"time"
)

// WatchExpiry arms a local wall-clock check that fires onExpired once the
// session's window lapses, independent of any server-side signal or channel
// activity. Even a live, healthy notification channel does not extend the
// window.
//
// The returned stop function disarms the check; it is idempotent and safe to
// call after the timer has fired.
func WatchExpiry(s *Session, onExpired func()) (stop func()) {
	t := time.AfterFunc(time.Until(s.ExpiresAt), onExpired)

	var once sync.Once
	return func() {
		once.Do(func() { t.Stop() })
	}
}
