package redirect

import (
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// loggingMiddleware logs callback requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		slog.Debug("callback request", // #nosec G706 -- values sanitized via sanitizeLog
			"method", sanitizeLog(r.Method),
			"path", sanitizeLog(r.URL.Path),
			"remote_addr", sanitizeLog(r.RemoteAddr),
		)

		next.ServeHTTP(w, r)

		slog.Debug("callback request completed", // #nosec G706 -- values sanitized via sanitizeLog
			"method", sanitizeLog(r.Method),
			"path", sanitizeLog(r.URL.Path),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic recovered",
					"error", err,
					"stack", string(debug.Stack()),
				)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// ipEntry stores a rate limiter and the last time it was accessed.
type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter implements per-IP rate limiting with TTL-based eviction.
// The callback listener is reachable by anything on the loopback interface,
// so it still throttles abusive callers.
type ipRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipEntry
	rate     rate.Limit
	burst    int
	ttl      time.Duration
	maxSize  int
}

func newIPRateLimiter(r rate.Limit, b int) *ipRateLimiter {
	rl := &ipRateLimiter{
		limiters: make(map[string]*ipEntry),
		rate:     r,
		burst:    b,
		ttl:      5 * time.Minute,
		maxSize:  1024,
	}

	go rl.evictLoop()

	return rl
}

func (i *ipRateLimiter) getLimiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	entry, exists := i.limiters[ip]
	if exists {
		entry.lastSeen = time.Now()
		return entry.limiter
	}

	if len(i.limiters) >= i.maxSize {
		i.evictOldest()
	}

	limiter := rate.NewLimiter(i.rate, i.burst)
	i.limiters[ip] = &ipEntry{
		limiter:  limiter,
		lastSeen: time.Now(),
	}

	return limiter
}

// evictLoop periodically removes stale entries.
func (i *ipRateLimiter) evictLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		i.mu.Lock()
		now := time.Now()
		for ip, entry := range i.limiters {
			if now.Sub(entry.lastSeen) > i.ttl {
				delete(i.limiters, ip)
			}
		}
		i.mu.Unlock()
	}
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (i *ipRateLimiter) evictOldest() {
	var oldestIP string
	var oldestTime time.Time

	for ip, entry := range i.limiters {
		if oldestIP == "" || entry.lastSeen.Before(oldestTime) {
			oldestIP = ip
			oldestTime = entry.lastSeen
		}
	}

	if oldestIP != "" {
		delete(i.limiters, oldestIP)
	}
}

// rateLimitMiddleware throttles requests per client IP.
func rateLimitMiddleware(next http.Handler) http.Handler {
	limiter := newIPRateLimiter(rate.Limit(5), 10)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		if !limiter.getLimiter(ip).Allow() {
			slog.Warn("rate limit exceeded", // #nosec G706 -- values sanitized via sanitizeLog
				"ip", sanitizeLog(ip),
			)
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// securityHeadersMiddleware sets standard security headers on result pages.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(w, r)
	})
}
