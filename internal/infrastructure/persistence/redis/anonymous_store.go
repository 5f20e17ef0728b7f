package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/beanwise/learning-engine/internal/domain/anonymous"
)

// AnonymousStore implements anonymous.Store for one device id. It backs web
// clients that have no durable local storage.
type AnonymousStore struct {
	cache    *Cache
	deviceID string
}

// NewAnonymousStore creates a store bound to a device id.
func NewAnonymousStore(cache *Cache, deviceID string) *AnonymousStore {
	return &AnonymousStore{cache: cache, deviceID: deviceID}
}

// Load implements anonymous.Store. A missing key yields empty progress.
func (s *AnonymousStore) Load(ctx context.Context) (*anonymous.Progress, error) {
	var p anonymous.Progress
	err := s.cache.GetJSON(ctx, AnonymousKey(s.deviceID), &p)
	if errors.Is(err, ErrCacheMiss) {
		return &anonymous.Progress{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("anonymous_store: load: %w", err)
	}
	return &p, nil
}

// Save implements anonymous.Store. The TTL is refreshed on each save.
func (s *AnonymousStore) Save(ctx context.Context, p *anonymous.Progress) error {
	if err := s.cache.SetJSON(ctx, AnonymousKey(s.deviceID), p, TTLAnonymousProgress); err != nil {
		return fmt.Errorf("anonymous_store: save: %w", err)
	}
	return nil
}

// Clear implements anonymous.Store.
func (s *AnonymousStore) Clear(ctx context.Context) error {
	return s.cache.Delete(ctx, AnonymousKey(s.deviceID))
}
