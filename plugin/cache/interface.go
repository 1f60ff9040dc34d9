// Package cache provides the byte cache the chat service keeps session lists in.
package cache

import (
	"context"
	"time"
)

// CacheService stores encoded session lists keyed by owner.
type CacheService interface {
	// Get returns the cached bytes for key and whether they were present
	// and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set caches value under key. A zero ttl uses the service default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Invalidate drops one key, or every key sharing a prefix when pattern
	// ends in "*", as in "chat-sessions:*".
	Invalidate(ctx context.Context, pattern string) error
}
