package social

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ViewStore keeps per-viewer view state between requests.
type ViewStore interface {
	// Load decodes the stored value into dst and reports whether one existed.
	Load(ctx context.Context, key string, dst any) (bool, error)
	Save(ctx context.Context, key string, v any) error
}

func feedKey(viewerID string) string { return "fitgram:view:" + viewerID + ":feed" }

func postKey(viewerID, postID string) string {
	return "fitgram:view:" + viewerID + ":post:" + postID
}

func profileKey(viewerID, targetID string) string {
	return "fitgram:view:" + viewerID + ":profile:" + targetID
}

func requestsKey(viewerID string) string { return "fitgram:view:" + viewerID + ":requests" }

type RedisViewStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisViewStore(rdb *redis.Client, ttl time.Duration) *RedisViewStore {
	return &RedisViewStore{rdb: rdb, ttl: ttl}
}

func (s *RedisViewStore) Load(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode view %s: %w", key, err)
	}
	return true, nil
}

func (s *RedisViewStore) Save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode view %s: %w", key, err)
	}
	return s.rdb.Set(ctx, key, raw, s.ttl).Err()
}

type memoryView struct {
	raw       []byte
	expiresAt time.Time
}

type MemoryViewStore struct {
	mu    sync.RWMutex
	ttl   time.Duration
	views map[string]memoryView
}

func NewMemoryViewStore(ttl time.Duration) *MemoryViewStore {
	return &MemoryViewStore{ttl: ttl, views: map[string]memoryView{}}
}

func (s *MemoryViewStore) Load(_ context.Context, key string, dst any) (bool, error) {
	s.mu.RLock()
	v, ok := s.views[key]
	s.mu.RUnlock()
	if !ok || (!v.expiresAt.IsZero() && time.Now().After(v.expiresAt)) {
		return false, nil
	}
	if err := json.Unmarshal(v.raw, dst); err != nil {
		return false, fmt.Errorf("decode view %s: %w", key, err)
	}
	return true, nil
}

func (s *MemoryViewStore) Save(_ context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode view %s: %w", key, err)
	}
	entry := memoryView{raw: raw}
	if s.ttl > 0 {
		entry.expiresAt = time.Now().Add(s.ttl)
	}
	s.mu.Lock()
	s.views[key] = entry
	s.mu.Unlock()
	return nil
}
