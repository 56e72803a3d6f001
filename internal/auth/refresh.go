package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RefreshStore tracks refresh tokens so each one can be used only once.
type RefreshStore interface {
	Save(ctx context.Context, id, subject string, expiresAt time.Time) error
	// Consume removes id and reports whether it was still live.
	Consume(ctx context.Context, id string) (bool, error)
}

// RedisRefreshStore keeps refresh token ids in redis with a matching TTL.
type RedisRefreshStore struct {
	client *redis.Client
	prefix string
}

// NewRedisRefreshStore creates a store under the "auth:refresh:" prefix.
func NewRedisRefreshStore(client *redis.Client) *RedisRefreshStore {
	return &RedisRefreshStore{client: client, prefix: "auth:refresh:"}
}

// Save stores id until expiresAt.
func (s *RedisRefreshStore) Save(ctx context.Context, id, subject string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return errors.New("refresh token already expired")
	}
	return s.client.Set(ctx, s.prefix+id, subject, ttl).Err()
}

// Consume atomically deletes id with GETDEL.
func (s *RedisRefreshStore) Consume(ctx context.Context, id string) (bool, error) {
	err := s.client.GetDel(ctx, s.prefix+id).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// MemoryRefreshStore is an in-process RefreshStore for dev and tests.
type MemoryRefreshStore struct {
	mu     sync.Mutex
	tokens map[string]time.Time
}

// NewMemoryRefreshStore creates an empty store.
func NewMemoryRefreshStore() *MemoryRefreshStore {
	return &MemoryRefreshStore{tokens: make(map[string]time.Time)}
}

func (s *MemoryRefreshStore) Save(_ context.Context, id, _ string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for key, exp := range s.tokens {
		if now.After(exp) {
			delete(s.tokens, key)
		}
	}
	s.tokens[id] = expiresAt
	return nil
}

func (s *MemoryRefreshStore) Consume(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.tokens[id]
	delete(s.tokens, id)
	return ok && time.Now().Before(exp), nil
}
