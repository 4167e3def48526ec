package replyaddress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ricirt/missedmail/internal/domain"
)

const redisKeyPrefix = "missed_message_address:"

// RedisStore keeps one JSON value per token with the token TTL as key expiry.
type RedisStore struct {
	rdb redis.UniversalClient
}

func NewRedisStore(rdb redis.UniversalClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Save(ctx context.Context, token string, target Target, ttl time.Duration) error {
	payload, err := json.Marshal(target)
	if err != nil {
		return fmt.Errorf("marshal reply target: %w", err)
	}
	ok, err := s.rdb.SetNX(ctx, redisKeyPrefix+token, payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	if !ok {
		return fmt.Errorf("reply token collision")
	}
	return nil
}

// Redeem relies on GETDEL so two concurrent redemptions cannot both succeed.
func (s *RedisStore) Redeem(ctx context.Context, token string) (*Target, error) {
	payload, err := s.rdb.GetDel(ctx, redisKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrReplyTokenExpired
	}
	if err != nil {
		return nil, fmt.Errorf("redis getdel: %w", err)
	}

	var target Target
	if err := json.Unmarshal(payload, &target); err != nil {
		return nil, fmt.Errorf("decode reply target: %w", err)
	}
	return &target, nil
}

// Ping verifies the connection at startup.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
