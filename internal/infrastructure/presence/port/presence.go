package port

import (
	"context"
	"time"
)

// Store records which principals currently hold a live relay connection.
// Marks are TTL-bound so a crashed relay cannot leave stale "online" state
// behind; the liveness path refreshes the mark on every pong.
// Implementations must be concurrency-safe.
type Store interface {
	// MarkOnline records the principal as reachable for at most ttl.
	MarkOnline(ctx context.Context, principalID string, ttl time.Duration) error

	// Refresh extends an existing mark by ttl. Refreshing an absent mark
	// recreates it.
	Refresh(ctx context.Context, principalID string, ttl time.Duration) error

	// MarkOffline removes the mark immediately.
	MarkOffline(ctx context.Context, principalID string) error

	// IsOnline reports whether a live mark exists for the principal.
	IsOnline(ctx context.Context, principalID string) (bool, error)

	// Ping verifies connectivity with the backing store.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}
