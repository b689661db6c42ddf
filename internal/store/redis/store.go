package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/clusterview/internal/domain"
)

const (
	// DefaultViewTTL is the default TTL for persisted views (48 hours)
	DefaultViewTTL = 48 * time.Hour
	// DefaultCacheTTL is the default TTL for cached listings
	DefaultCacheTTL = 30 * time.Second
)

// Store persists views and snapshots so a restart can serve the last known
// state before the first fetch completes.
type Store struct {
	client *redis.Client
}

// NewStore creates a new Redis store
func NewStore(client *redis.Client) *Store {
	return &Store{
		client: client,
	}
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// SaveView stores a JSON-encoded view under name.
func (s *Store) SaveView(ctx context.Context, name string, view any) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal view %s: %w", name, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, ViewKey(name), data, DefaultViewTTL)
	pipe.SAdd(ctx, AllViewsKey(), name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save view %s: %w", name, err)
	}
	return nil
}

// LoadView decodes the view stored under name into out. It reports false
// when there is none.
func (s *Store) LoadView(ctx context.Context, name string, out any) (bool, error) {
	data, err := s.client.Get(ctx, ViewKey(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get view %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal view %s: %w", name, err)
	}
	return true, nil
}

// ViewNames lists the persisted views whose key has not expired.
func (s *Store) ViewNames(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, AllViewsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get view names: %w", err)
	}
	if len(names) == 0 {
		return []string{}, nil
	}

	pipe := s.client.Pipeline()
	exists := make([]*redis.IntCmd, len(names))
	for i, n := range names {
		exists[i] = pipe.Exists(ctx, ViewKey(n))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to check views: %w", err)
	}

	live := make([]string, 0, len(names))
	var stale []any
	for i, n := range names {
		if exists[i].Val() > 0 {
			live = append(live, n)
		} else {
			stale = append(stale, n)
		}
	}
	if len(stale) > 0 {
		_ = s.client.SRem(ctx, AllViewsKey(), stale...).Err()
	}
	return live, nil
}

// DeleteView removes a view
func (s *Store) DeleteView(ctx context.Context, name string) error {
	if err := s.client.Del(ctx, ViewKey(name)).Err(); err != nil {
		return fmt.Errorf("failed to delete view: %w", err)
	}
	if err := s.client.SRem(ctx, AllViewsKey(), name).Err(); err != nil {
		return fmt.Errorf("failed to remove view from set: %w", err)
	}
	return nil
}

// SaveCapacity stores the capacity card state.
func (s *Store) SaveCapacity(ctx context.Context, snap domain.CapacitySnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal capacity snapshot: %w", err)
	}
	if err := s.client.Set(ctx, KeyCapacitySnapshot, data, DefaultViewTTL).Err(); err != nil {
		return fmt.Errorf("failed to save capacity snapshot: %w", err)
	}
	return nil
}

// LoadCapacity returns the stored capacity card state, or nil when absent.
func (s *Store) LoadCapacity(ctx context.Context) (*domain.CapacitySnapshot, error) {
	data, err := s.client.Get(ctx, KeyCapacitySnapshot).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get capacity snapshot: %w", err)
	}
	var snap domain.CapacitySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal capacity snapshot: %w", err)
	}
	return &snap, nil
}
