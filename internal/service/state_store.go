package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"social-login-service/internal/security"

	"github.com/redis/go-redis/v9"
)

// ErrInvalidState means the state returned by the provider callback was never
// issued by us, already consumed, or expired. Callbacks with bad state are
// rejected before any provider round trip.
var ErrInvalidState = errors.New("invalid login state")

// StateStore issues single-use CSRF nonces for the login redirect and
// consumes them exactly once on callback.
type StateStore interface {
	Issue(ctx context.Context) (string, error)
	Consume(ctx context.Context, state string) error
}

// RedisStateStore keeps nonces in Redis with a TTL, so abandoned logins
// clean themselves up and all instances share one state namespace.
type RedisStateStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisStateStore(client redis.UniversalClient, ttl time.Duration) *RedisStateStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisStateStore{client: client, prefix: "login_state", ttl: ttl}
}

func (s *RedisStateStore) Issue(ctx context.Context) (string, error) {
	state, err := security.NewStateToken()
	if err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	if err := s.client.Set(ctx, s.key(state), "1", s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store state: %w", err)
	}
	return state, nil
}

// Consume deletes the nonce as it reads it, so a replayed callback with the
// same state fails even when two callbacks race.
func (s *RedisStateStore) Consume(ctx context.Context, state string) error {
	if state == "" {
		return ErrInvalidState
	}
	if err := s.client.GetDel(ctx, s.key(state)).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrInvalidState
		}
		return fmt.Errorf("consume state: %w", err)
	}
	return nil
}

func (s *RedisStateStore) key(state string) string {
	return s.prefix + ":" + state
}
