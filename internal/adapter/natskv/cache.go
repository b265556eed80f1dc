// Package natskv implements the cache port on a NATS JetStream KV bucket,
// used as the shared L2 behind the in-process thread cache.
package natskv

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Cache wraps a NATS JetStream KeyValue bucket. The bucket TTL is an upper
// bound; each entry also carries its own deadline so shorter per-call TTLs
// are honored.
type Cache struct {
	kv  jetstream.KeyValue
	now func() time.Time
}

// New creates a NATS KV-backed cache.
func New(kv jetstream.KeyValue) *Cache {
	return &Cache{kv: kv, now: time.Now}
}

// Get retrieves a value. Entries past their deadline are misses.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	entry, err := c.kv.Get(ctx, encodeKey(key))
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	deadline, value, ok := unpack(entry.Value())
	if !ok || (!deadline.IsZero() && !c.now().Before(deadline)) {
		return nil, false, nil
	}
	return value, true, nil
}

// Set stores a value that expires after ttl (0 means the bucket TTL only).
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var deadline time.Time
	if ttl > 0 {
		deadline = c.now().Add(ttl)
	}
	_, err := c.kv.Put(ctx, encodeKey(key), pack(deadline, value))
	return err
}

// Delete removes a value.
func (c *Cache) Delete(ctx context.Context, key string) error {
	err := c.kv.Delete(ctx, encodeKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil
	}
	return err
}

// encodeKey maps arbitrary cache keys onto the KV key alphabet.
func encodeKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

// pack prefixes value with an 8-byte unix-nano deadline (0 = none).
func pack(deadline time.Time, value []byte) []byte {
	out := make([]byte, 8+len(value))
	if !deadline.IsZero() {
		binary.BigEndian.PutUint64(out[:8], uint64(deadline.UnixNano())) //nolint:gosec // positive unix time
	}
	copy(out[8:], value)
	return out
}

func unpack(b []byte) (time.Time, []byte, bool) {
	if len(b) < 8 {
		return time.Time{}, nil, false
	}
	var deadline time.Time
	if n := binary.BigEndian.Uint64(b[:8]); n != 0 {
		deadline = time.Unix(0, int64(n)) //nolint:gosec // written by pack
	}
	return deadline, b[8:], true
}
