package auth

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisTokenStore keeps refresh tokens in redis with a TTL, so revocation is
// a delete and expiry needs no sweeper.
type RedisTokenStore struct {
	rdb *redis.Client
}

func NewRedisTokenStore(rdb *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{rdb: rdb}
}

func (s *RedisTokenStore) SaveRefresh(ctx context.Context, token string, userID int64, ttl time.Duration) error {
	return s.rdb.Set(ctx, refreshKey(token), userID, ttl).Err()
}

func (s *RedisTokenStore) UserForRefresh(ctx context.Context, token string) (int64, error) {
	id, err := s.rdb.Get(ctx, refreshKey(token)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrInvalidToken
	}
	return id, err
}

func (s *RedisTokenStore) DeleteRefresh(ctx context.Context, token string) error {
	return s.rdb.Del(ctx, refreshKey(token)).Err()
}

func refreshKey(token string) string {
	return "refresh:" + token
}
