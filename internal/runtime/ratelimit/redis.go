package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	valkey "github.com/valkey-io/valkey-go"
)

type redisStore struct {
	client valkey.Client
}

// NewRedis wraps an existing valkey client as a counter store so the rate
// limiter shares the connection the result cache already established.
func NewRedis(client valkey.Client) CounterStore {
	return &redisStore{client: client}
}

func (s *redisStore) Peek(ctx context.Context, key string) (int64, error) {
	resp := s.client.Do(ctx, s.client.B().Get().Key(key).Build())
	if err := resp.Error(); err != nil {
		if errors.Is(err, valkey.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("ratelimit: redis get: %w", err)
	}
	count, err := resp.AsInt64()
	if err != nil {
		return 0, fmt.Errorf("ratelimit: redis count parse: %w", err)
	}
	return count, nil
}

func (s *redisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := s.client.Do(ctx, s.client.B().Incr().Key(key).Build()).AsInt64()
	if err != nil {
		return 0, fmt.Errorf("ratelimit: redis incr: %w", err)
	}
	seconds := int64(window / time.Second)
	if seconds <= 0 {
		seconds = 1
	}
	// NX keeps the window anchored at the first increment; later increments
	// must not extend it or the fixed window degrades into a sliding one.
	expire := s.client.B().Expire().Key(key).Seconds(seconds).Nx().Build()
	if err := s.client.Do(ctx, expire).Error(); err != nil {
		return count, fmt.Errorf("ratelimit: redis expire: %w", err)
	}
	return count, nil
}

func (s *redisStore) Close(context.Context) error {
	// The shared client is owned by the cache backend; closing it here would
	// tear down the cache connection as well.
	return nil
}
