package shared

import (
	"context"
	"time"
)

// DefaultIdempotencyTTL is how long a payment batch key or a handled event
// is remembered when no explicit TTL is configured.
const DefaultIdempotencyTTL = 24 * time.Hour

// IdempotencyStore remembers keys that were already handled.
// It backs client idempotency keys on payment batches and
// duplicate suppression of domain event handlers.
type IdempotencyStore interface {
	// MarkProcessed claims key for ttl. It returns false when the key
	// was already claimed.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)
	IsProcessed(ctx context.Context, key string) (bool, error)
	// Release forgets a key so the same request can be retried
	Release(ctx context.Context, key string) error
	Close() error
}
