package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/plangate/plangate/internal/config"
	"github.com/plangate/plangate/internal/runtime/cache"
	"github.com/plangate/plangate/internal/runtime/ratelimit"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func cacheEntry() cache.Entry {
	storedAt := time.Now().UTC()
	return cache.Entry{
		Payload:   json.RawMessage(`{"milestones":[]}`),
		StoredAt:  storedAt,
		ExpiresAt: storedAt.Add(time.Minute),
	}
}

func TestBuildStores(t *testing.T) {
	tests := []struct {
		name   string
		cfg    func(t *testing.T) config.CacheConfig
		verify func(t *testing.T, store cache.ResultCache, counters ratelimit.CounterStore)
	}{
		{
			name: "defaults to memory",
			cfg: func(t *testing.T) config.CacheConfig {
				return config.CacheConfig{PlanTTLSeconds: 1}
			},
			verify: func(t *testing.T, store cache.ResultCache, counters ratelimit.CounterStore) {
				require.NotNil(t, store)
				require.NotNil(t, counters)
			},
		},
		{
			name: "constructs shared redis stores",
			cfg: func(t *testing.T) config.CacheConfig {
				server, err := miniredis.Run()
				if err != nil {
					if strings.Contains(err.Error(), "operation not permitted") {
						t.Skip("miniredis unavailable in sandbox")
					}
					require.NoError(t, err)
				}
				t.Cleanup(server.Close)
				return config.CacheConfig{
					Backend:        "redis",
					PlanTTLSeconds: 60,
					Redis: config.RedisCacheConfig{
						Address: server.Addr(),
					},
				}
			},
			verify: func(t *testing.T, store cache.ResultCache, counters ratelimit.CounterStore) {
				ctx := context.Background()
				require.NoError(t, store.Store(ctx, "redis:test", cacheEntry()))
				_, ok, err := store.Lookup(ctx, "redis:test")
				require.NoError(t, err)
				require.True(t, ok)

				count, err := counters.Incr(ctx, "redis:counter", time.Minute)
				require.NoError(t, err)
				require.Equal(t, int64(1), count)

				require.NoError(t, store.Close(ctx))
			},
		},
		{
			name: "falls back to memory on unreachable redis",
			cfg: func(t *testing.T) config.CacheConfig {
				return config.CacheConfig{
					Backend:        "redis",
					PlanTTLSeconds: 1,
					Redis:          config.RedisCacheConfig{Address: "127.0.0.1:1"},
				}
			},
			verify: func(t *testing.T, store cache.ResultCache, counters ratelimit.CounterStore) {
				ctx := context.Background()
				require.NoError(t, store.Store(ctx, "fallback", cacheEntry()))
				_, ok, err := store.Lookup(ctx, "fallback")
				require.NoError(t, err)
				require.True(t, ok)
			},
		},
		{
			name: "unknown backend falls back to memory",
			cfg: func(t *testing.T) config.CacheConfig {
				return config.CacheConfig{Backend: "etcd", PlanTTLSeconds: 1}
			},
			verify: func(t *testing.T, store cache.ResultCache, counters ratelimit.CounterStore) {
				require.NotNil(t, store)
				require.NotNil(t, counters)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, counters := buildStores(newTestLogger(), tc.cfg(t))
			tc.verify(t, store, counters)
		})
	}
}
