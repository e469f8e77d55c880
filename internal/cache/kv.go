package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("cache: not found")
	ErrExpired  = errors.New("cache: expired")
)

// KV is the cache contract used by the coordinator: explicit per-key expiry,
// no durability guarantee. Implementations must be safe for concurrent use.
//
// Get returns ErrNotFound or ErrExpired when no live entry exists. A live entry
// holding an empty value is returned as a nil slice with a nil error.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value and clears any expiry previously attached to key.
	Set(ctx context.Context, key string, value []byte) error
	// Expire attaches ttl to an existing key; ttl <= 0 removes the expiry.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Purger is implemented by engines that can drop expired entries on demand.
type Purger interface {
	Purge(ctx context.Context) (int, error)
}

// RunJanitor calls p.Purge every interval until ctx is done.
func RunJanitor(ctx context.Context, p Purger, interval time.Duration, onPurge func(n int, err error)) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := p.Purge(ctx)
			if onPurge != nil {
				onPurge(n, err)
			}
		}
	}
}

func expiryFor(now time.Time, ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return now.Add(ttl).UnixMilli()
}

func expired(now time.Time, expiresAt int64) bool {
	return expiresAt > 0 && now.UnixMilli() >= expiresAt
}
