package identity

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Revocations guarda os tokens encerrados por logout até expirarem.
type Revocations interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	Revoked(ctx context.Context, tokenID string) (bool, error)
}

// MemoryRevocations é a lista em memória, válida para uma única instância.
type MemoryRevocations struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// NewMemoryRevocations cria a lista vazia.
func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{entries: make(map[string]time.Time)}
}

func (m *MemoryRevocations) Revoke(_ context.Context, tokenID string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for id, exp := range m.entries {
		if now.After(exp) {
			delete(m.entries, id)
		}
	}
	m.entries[tokenID] = until
	return nil
}

func (m *MemoryRevocations) Revoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.entries[tokenID]
	return ok && time.Now().Before(exp), nil
}

// RedisRevocations compartilha a lista entre instâncias.
type RedisRevocations struct {
	rdb *redis.Client
}

// NewRedisRevocations cria a lista sobre o cliente Redis.
func NewRedisRevocations(rdb *redis.Client) *RedisRevocations {
	return &RedisRevocations{rdb: rdb}
}

func revocationKey(tokenID string) string {
	return "apoio:revoked:" + tokenID
}

func (r *RedisRevocations) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return r.rdb.Set(ctx, revocationKey(tokenID), "1", ttl).Err()
}

func (r *RedisRevocations) Revoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.rdb.Exists(ctx, revocationKey(tokenID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
