package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"accounts_service/internal/models"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one key per identity. SET replaces the previous value
// atomically, so two concurrent logins converge to exactly one live session
// without any locking on our side.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to redisURL and pings the server. Sessions expire
// with the refresh token, so ttl should be the refresh TTL.
func NewRedisStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	const op = "session.NewRedisStore"

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

func sessionKey(identityID uuid.UUID) string {
	return "session:" + identityID.String()
}

func (r *RedisStore) Create(ctx context.Context, s models.Session) error {
	const op = "session.Create"

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := r.client.Set(ctx, sessionKey(s.IdentityID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *RedisStore) Get(ctx context.Context, identityID uuid.UUID) (models.Session, error) {
	const op = "session.Get"

	var s models.Session

	data, err := r.client.Get(ctx, sessionKey(identityID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return s, fmt.Errorf("%s: %w", op, ErrNoSession)
		}
		return s, fmt.Errorf("%s: %w", op, err)
	}

	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("%s: %w", op, err)
	}

	return s, nil
}

func (r *RedisStore) DestroyAllFor(ctx context.Context, identityID uuid.UUID) error {
	const op = "session.DestroyAllFor"

	if err := r.client.Del(ctx, sessionKey(identityID)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
