package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/HuongNV13/moodle/common/redis"
)

// RedisStore persists OAuth sessions in Redis so authorization survives
// process restarts and is visible to every API instance
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisStore creates a redis-backed session store
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &RedisStore{
		redis: client,
		ttl:   ttl,
	}
}

// Get retrieves a session, (nil, nil) when absent
func (r *RedisStore) Get(ctx context.Context, issuerID, userID int64) (*Session, error) {
	val, err := r.redis.Get(ctx, sessionKey(issuerID, userID))
	if errors.Is(err, redis.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load oauth session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return nil, fmt.Errorf("failed to decode oauth session: %w", err)
	}
	return &sess, nil
}

// Put stores a session with the configured TTL
func (r *RedisStore) Put(ctx context.Context, session *Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode oauth session: %w", err)
	}

	key := sessionKey(session.IssuerID, session.UserID)
	if err := r.redis.SetWithExpiry(ctx, key, string(payload), r.ttl); err != nil {
		return fmt.Errorf("failed to store oauth session: %w", err)
	}
	return nil
}

// Delete removes a session
func (r *RedisStore) Delete(ctx context.Context, issuerID, userID int64) error {
	return r.redis.Delete(ctx, sessionKey(issuerID, userID))
}
