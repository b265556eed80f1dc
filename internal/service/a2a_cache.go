package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/agentrelay/internal/domain"
	"github.com/Strob0t/agentrelay/internal/port/cache"
)

// CacheThreadData stores data under key for userID for ttl (the configured
// thread cache TTL when ttl <= 0). A service without a cache ignores it.
func (s *A2AService) CacheThreadData(ctx context.Context, key string, userID int64, data any, ttl time.Duration) error {
	if key == "" || userID <= 0 {
		return fmt.Errorf("cache thread data: %w: key and user_id are required", domain.ErrValidation)
	}
	if s.cache == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = s.cfg.ThreadCacheTTL
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("cache thread data %s: %w: %w", key, domain.ErrValidation, err)
	}
	if err := s.cache.Set(ctx, cache.ThreadKey(userID, key), raw, ttl); err != nil {
		return fmt.Errorf("cache thread data %s: %w: %w", key, domain.ErrPersistence, err)
	}
	return nil
}

// GetCachedThreadData returns the cached JSON for key, or nil on a miss.
// Backend errors are logged and reported as a miss.
func (s *A2AService) GetCachedThreadData(ctx context.Context, key string, userID int64) (json.RawMessage, error) {
	if s.cache == nil || key == "" {
		return nil, nil
	}
	raw, ok, err := s.cache.Get(ctx, cache.ThreadKey(userID, key))
	if err != nil {
		slog.WarnContext(ctx, "thread cache read failed", "key", key, "user_id", userID, "error", err)
		return nil, nil
	}
	if !ok || !json.Valid(raw) {
		return nil, nil
	}
	return json.RawMessage(raw), nil
}
