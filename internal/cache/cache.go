package cache

import (
	"context"
	"time"
)

type Cache interface {
	// SetNX sets the key only if it does not exist yet and reports whether it
	// was set. Used as the webhook dedupe fast path.
	SetNX(ctx context.Context, key, val string, ttl time.Duration) (bool, error)
}
