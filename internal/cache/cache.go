// Package cache provides the advisory key/value store used for the
// active-event list, token revocation, rate counters, and the
// featured-slot mirror. Any value may be absent or stale by TTL; no
// write ever depends on a cache read for correctness.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Cache is a minimal interface that any backend (go-redis, in-memory)
// can satisfy. Services depend on this, not on a concrete driver.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Well-known keys.
const (
	KeyActiveEvents  = "events:active_list"
	KeyFeaturedSlots = "featured:slots"

	ActiveEventsTTL = 300 * time.Second
)

// RevokedKey namespaces a revoked-token entry by its hash.
func RevokedKey(tokenHash string) string { return "revoked:" + tokenHash }

// RateKey namespaces a per-caller rate window.
func RateKey(callerID, window string) string { return "rate:" + callerID + ":" + window }
