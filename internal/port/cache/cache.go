// Package cache defines the port interface for the short-lived thread cache.
package cache

import (
	"context"
	"strconv"
	"time"
)

// Cache is the port interface for key-value caching with per-entry TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// ThreadKey namespaces a thread cache key by user so one user can never
// read another user's cached thread.
func ThreadKey(userID int64, key string) string {
	return "thread:" + strconv.FormatInt(userID, 10) + ":" + key
}
