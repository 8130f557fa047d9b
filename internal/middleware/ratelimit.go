package middleware

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/appovenbackend/ticketing/internal/apperrors"
	"github.com/appovenbackend/ticketing/internal/cache"
	"github.com/appovenbackend/ticketing/internal/identity"
)

// RateLimiter enforces a per-caller, per-minute call budget. Counters
// live in the shared cache so the limit holds across instances; a
// cache fault fails open.
type RateLimiter struct {
	cache             cache.Cache
	maxCallsPerMinute int
	now               func() time.Time
}

func NewRateLimiter(c cache.Cache, maxCallsPerMinute int) *RateLimiter {
	if maxCallsPerMinute <= 0 {
		maxCallsPerMinute = 60
	}
	return &RateLimiter{cache: c, maxCallsPerMinute: maxCallsPerMinute, now: time.Now}
}

// Allow reports whether the caller is within its budget for the
// current fixed minute window.
func (rl *RateLimiter) Allow(r *http.Request) bool {
	caller := callerKey(r)
	window := rl.now().Unix() / 60
	key := cache.RateKey(caller, fmt.Sprintf("%d", window))

	count, err := rl.cache.Incr(r.Context(), key, 90*time.Second)
	if err != nil {
		slog.Warn("rate limit counter unavailable", "caller", caller, "error", err)
		return true
	}
	if count > int64(rl.maxCallsPerMinute) {
		slog.Warn("rate limit exceeded", "caller", caller, "count", count, "limit", rl.maxCallsPerMinute)
		return false
	}
	return true
}

// Middleware rejects over-budget requests with 429 and a Retry-After.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(r) {
			retry := 60 - int(rl.now().Unix()%60)
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retry))
			writeErr(w, apperrors.RateLimited(retry))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// callerKey prefers the authenticated user; anonymous callers share a
// per-IP budget.
func callerKey(r *http.Request) string {
	if actor, ok := identity.ActorFrom(r.Context()); ok {
		return "user:" + actor.UserID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
