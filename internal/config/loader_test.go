package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoader(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T) []string
		wantErr bool
		assert  func(t *testing.T, cfg Config)
	}{
		{
			name:  "returns defaults when no overrides",
			setup: func(t *testing.T) []string { return nil },
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, 8080, cfg.Server.Listen.Port)
				require.Equal(t, "*", cfg.Server.CORS.AllowOrigin)
				require.Equal(t, "memory", cfg.Server.Cache.Backend)
				require.Equal(t, 7*24*3600, cfg.Server.Cache.PlanTTLSeconds)
				require.Equal(t, 3600, cfg.Server.Cache.ChatTTLSeconds)
				require.True(t, cfg.Server.RateLimit.Enabled)
				require.Equal(t, 10, cfg.Server.RateLimit.Limit)
				require.Equal(t, 3600, cfg.Server.RateLimit.WindowSeconds)
				require.Equal(t, "http://localhost:8000", cfg.Server.Planner.BaseURL)
			},
		},
		{
			name: "merges file overrides",
			setup: func(t *testing.T) []string {
				dir := t.TempDir()
				path := filepath.Join(dir, "server.yaml")
				body := "server:\n  listen:\n    port: 9090\n  planner:\n    baseURL: http://planner.internal:9000\n"
				require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
				return []string{path}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, 9090, cfg.Server.Listen.Port)
				require.Equal(t, "http://planner.internal:9000", cfg.Server.Planner.BaseURL)
			},
		},
		{
			name: "prefers env overrides",
			setup: func(t *testing.T) []string {
				dir := t.TempDir()
				path := filepath.Join(dir, "server.yaml")
				require.NoError(t, os.WriteFile(path, []byte("server:\n  listen:\n    port: 9090\n"), 0o600))
				t.Setenv("PLANGATE_SERVER__LISTEN__PORT", "9091")
				t.Setenv("PLANGATE_SERVER__RATELIMIT__LIMIT", "5")
				return []string{path}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, 9091, cfg.Server.Listen.Port)
				require.Equal(t, 5, cfg.Server.RateLimit.Limit)
			},
		},
		{
			name: "reads cache and careers blocks",
			setup: func(t *testing.T) []string {
				dir := t.TempDir()
				path := filepath.Join(dir, "server.yaml")
				body := "server:\n" +
					"  cache:\n" +
					"    backend: redis\n" +
					"    planTTLSeconds: 120\n" +
					"    chatTTLSeconds: 60\n" +
					"    epoch: 3\n" +
					"    redis:\n" +
					"      address: localhost:6379\n" +
					"  careers:\n" +
					"    catalogFile: /etc/plangate/careers.yaml\n" +
					"  trustedProxyIPs:\n" +
					"    - 10.0.0.0/8\n"
				require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
				return []string{path}
			},
			assert: func(t *testing.T, cfg Config) {
				require.Equal(t, "redis", cfg.Server.Cache.Backend)
				require.Equal(t, 120, cfg.Server.Cache.PlanTTLSeconds)
				require.Equal(t, 60, cfg.Server.Cache.ChatTTLSeconds)
				require.Equal(t, 3, cfg.Server.Cache.Epoch)
				require.Equal(t, "localhost:6379", cfg.Server.Cache.Redis.Address)
				require.Equal(t, "/etc/plangate/careers.yaml", cfg.Server.Careers.CatalogFile)
				require.Equal(t, []string{"10.0.0.0/8"}, cfg.Server.TrustedProxyIPs)
			},
		},
		{
			name: "rejects invalid listen port",
			setup: func(t *testing.T) []string {
				t.Setenv("PLANGATE_SERVER__LISTEN__PORT", "70000")
				return nil
			},
			wantErr: true,
		},
		{
			name: "rejects redis backend without address",
			setup: func(t *testing.T) []string {
				t.Setenv("PLANGATE_SERVER__CACHE__BACKEND", "redis")
				return nil
			},
			wantErr: true,
		},
		{
			name: "rejects planner url without scheme",
			setup: func(t *testing.T) []string {
				t.Setenv("PLANGATE_SERVER__PLANNER__BASEURL", "planner.internal")
				return nil
			},
			wantErr: true,
		},
		{
			name: "rejects zero rate limit when enabled",
			setup: func(t *testing.T) []string {
				t.Setenv("PLANGATE_SERVER__RATELIMIT__LIMIT", "0")
				return nil
			},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			files := tc.setup(t)
			loader := NewLoader("PLANGATE", files...)
			cfg, err := loader.Load(context.Background())
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tc.assert != nil {
				tc.assert(t, cfg)
			}
		})
	}
}

func TestValidateTimeouts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Planner.TimeoutSeconds = 0
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Server.Cache.PlanTTLSeconds = -1
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	require.NoError(t, cfg.Validate())
}
