package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenStore persists the opaque API token for a browser session.
type TokenStore interface {
	Load(ctx context.Context, key string) (string, error)
	Save(ctx context.Context, key, token string, ttl time.Duration) error
	Clear(ctx context.Context, key string) error
}

func tokenKey(role Role, sid string) string {
	return "fitgram:" + string(role) + ":token:" + sid
}

type RedisTokenStore struct {
	rdb *redis.Client
}

func NewRedisTokenStore(rdb *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{rdb: rdb}
}

func (s *RedisTokenStore) Load(ctx context.Context, key string) (string, error) {
	token, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return token, err
}

func (s *RedisTokenStore) Save(ctx context.Context, key, token string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, token, ttl).Err()
}

func (s *RedisTokenStore) Clear(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

type memoryToken struct {
	token     string
	expiresAt time.Time
}

// MemoryTokenStore keeps tokens in process. Used when Redis is not
// configured.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]memoryToken
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: map[string]memoryToken{}}
}

func (s *MemoryTokenStore) Load(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	entry, ok := s.tokens[key]
	s.mu.RUnlock()
	if !ok {
		return "", nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.tokens, key)
		s.mu.Unlock()
		return "", nil
	}
	return entry.token, nil
}

func (s *MemoryTokenStore) Save(_ context.Context, key, token string, ttl time.Duration) error {
	entry := memoryToken{token: token}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.mu.Lock()
	s.tokens[key] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryTokenStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.tokens, key)
	s.mu.Unlock()
	return nil
}
