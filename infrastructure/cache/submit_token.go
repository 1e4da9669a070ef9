package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ISubmitToken guards against double form submission. Tokens are single use and expire after a TTL.
type ISubmitToken interface {
	Issue(ctx context.Context, session string) (string, error)
	// Consume reports whether token was live for session, and removes it.
	Consume(ctx context.Context, session, token string) (bool, error)
}

type MemorySubmitToken struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	tokens map[string]map[string]time.Time
}

func NewMemorySubmitToken(ttl time.Duration) *MemorySubmitToken {
	return &MemorySubmitToken{
		ttl:    ttl,
		now:    time.Now,
		tokens: make(map[string]map[string]time.Time),
	}
}

func (m *MemorySubmitToken) Issue(_ context.Context, session string) (string, error) {
	token := uuid.NewString()
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for sess := range m.tokens {
		m.evict(sess, now)
	}
	set, ok := m.tokens[session]
	if !ok {
		set = make(map[string]time.Time)
		m.tokens[session] = set
	}
	set[token] = now.Add(m.ttl)
	return token, nil
}

func (m *MemorySubmitToken) Consume(_ context.Context, session, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evict(session, m.now())
	set := m.tokens[session]
	if _, ok := set[token]; !ok {
		return false, nil
	}
	delete(set, token)
	return true, nil
}

// evict drops expired tokens of one session. Issue runs it over every session so abandoned ones are freed. Caller holds mu.
func (m *MemorySubmitToken) evict(session string, now time.Time) {
	set := m.tokens[session]
	for tok, exp := range set {
		if !now.Before(exp) {
			delete(set, tok)
		}
	}
	if set != nil && len(set) == 0 {
		delete(m.tokens, session)
	}
}

type RedisSubmitToken struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisSubmitToken(client *redis.Client, ttl time.Duration) *RedisSubmitToken {
	return &RedisSubmitToken{client: client, ttl: ttl}
}

func submitTokenKey(session, token string) string {
	return fmt.Sprintf("echotree:submit:%s:%s", session, token)
}

func (r *RedisSubmitToken) Issue(ctx context.Context, session string) (string, error) {
	token := uuid.NewString()
	if err := r.client.Set(ctx, submitTokenKey(session, token), "1", r.ttl).Err(); err != nil {
		return "", fmt.Errorf("store submit token: %w", err)
	}
	return token, nil
}

func (r *RedisSubmitToken) Consume(ctx context.Context, session, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	// GETDEL makes the check-and-remove atomic across concurrent requests.
	err := r.client.GetDel(ctx, submitTokenKey(session, token)).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("consume submit token: %w", err)
	}
	return true, nil
}
