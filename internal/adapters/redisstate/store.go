// Package redisstate persists rehydration snapshots in Redis for
// server-rendered deployments that share auth state across processes.
package redisstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/consorcio10demayo/canalero-auth/internal/domain/auth"
	"github.com/consorcio10demayo/canalero-auth/internal/ports"
)

// DefaultTTL bounds how long a snapshot survives without a fresh save.
// Refresh tokens rotate within this window, so anything older cannot
// rehydrate into a live session anyway.
const DefaultTTL = 30 * 24 * time.Hour

// Store is a Redis-backed snapshot store. Each Store owns a single key,
// so callers that serve multiple browser sessions construct one Store
// per session key.
type Store struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

var _ ports.SnapshotStore = (*Store)(nil)

// NewStore creates a snapshot store on the default key.
func NewStore(client redis.UniversalClient) *Store {
	return NewStoreWithOptions(client, "auth:snapshot", DefaultTTL)
}

// NewStoreWithOptions creates a snapshot store with a custom key and TTL.
// A non-positive TTL falls back to DefaultTTL.
func NewStoreWithOptions(client redis.UniversalClient, key string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		client: client,
		key:    key,
		ttl:    ttl,
	}
}

func (s *Store) Save(ctx context.Context, snap domainauth.Snapshot) error {
	if snap.UserID == "" {
		return errors.New("snapshot user ID cannot be empty")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	return s.client.Set(ctx, s.key, data, s.ttl).Err()
}

func (s *Store) Load(ctx context.Context) (*domainauth.Snapshot, error) {
	data, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var snap domainauth.Snapshot
	if unmarshalErr := json.Unmarshal([]byte(data), &snap); unmarshalErr != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", unmarshalErr)
	}

	return &snap, nil
}

func (s *Store) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
