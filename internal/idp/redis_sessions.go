package idp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session:"

// RedisSessionRepository keeps provider sessions in Redis. Keys expire with the
// session, so DeleteExpiredSessions has nothing to do.
type RedisSessionRepository struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisSessionRepository creates a new RedisSessionRepository.
func NewRedisSessionRepository(client *redis.Client) *RedisSessionRepository {
	return &RedisSessionRepository{client: client, now: time.Now}
}

// CreateSession stores the session under its token hash with a matching TTL.
func (r *RedisSessionRepository) CreateSession(ctx context.Context, session Session, tokenHash string) error {
	ttl := session.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	if err := r.client.Set(ctx, sessionKeyPrefix+tokenHash, data, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// FindSessionByTokenHash returns the session stored under tokenHash.
func (r *RedisSessionRepository) FindSessionByTokenHash(ctx context.Context, tokenHash string) (*Session, error) {
	data, err := r.client.Get(ctx, sessionKeyPrefix+tokenHash).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}

// DeleteSessionByTokenHash removes a session.
func (r *RedisSessionRepository) DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error {
	return r.client.Del(ctx, sessionKeyPrefix+tokenHash).Err()
}

// DeleteExpiredSessions is a no-op; Redis expires keys itself.
func (r *RedisSessionRepository) DeleteExpiredSessions(context.Context) (int64, error) {
	return 0, nil
}
