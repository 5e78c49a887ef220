package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Config holds every server-level option for the edge proxy.
type Config struct {
	Server ServerConfig `koanf:"server"`
}

// ServerConfig collects the bootstrap knobs owned by the lifecycle agent.
type ServerConfig struct {
	Listen          ListenConfig    `koanf:"listen"`
	Logging         LoggingConfig   `koanf:"logging"`
	CORS            CORSConfig      `koanf:"cors"`
	Cache           CacheConfig     `koanf:"cache"`
	RateLimit       RateLimitConfig `koanf:"rateLimit"`
	Planner         PlannerConfig   `koanf:"planner"`
	Careers         CareersConfig   `koanf:"careers"`
	TrustedProxyIPs []string        `koanf:"trustedProxyIPs"`
}

// ListenConfig instructs the HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level, format, and correlation ID wiring.
type LoggingConfig struct {
	Level             string `koanf:"level"`
	Format            string `koanf:"format"`
	CorrelationHeader string `koanf:"correlationHeader"`
}

// CORSConfig controls the cross-origin headers stamped on every response.
type CORSConfig struct {
	AllowOrigin string `koanf:"allowOrigin"`
}

// CacheConfig selects the result cache backend and retention windows. Plan
// documents and chat answers carry separate TTLs because plans are expensive
// multi-agent generations while chat answers go stale quickly.
type CacheConfig struct {
	Backend        string           `koanf:"backend"`
	PlanTTLSeconds int              `koanf:"planTTLSeconds"`
	ChatTTLSeconds int              `koanf:"chatTTLSeconds"`
	KeySalt        string           `koanf:"keySalt"`
	Epoch          int              `koanf:"epoch"`
	Redis          RedisCacheConfig `koanf:"redis"`
}

type RedisCacheConfig struct {
	Address  string         `koanf:"address"`
	Username string         `koanf:"username"`
	Password string         `koanf:"password"`
	DB       int            `koanf:"db"`
	TLS      RedisTLSConfig `koanf:"tls"`
}

type RedisTLSConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"caFile"`
}

// RateLimitConfig bounds planner invocations per client identity within a
// fixed window. Cache hits never count against the limit.
type RateLimitConfig struct {
	Enabled       bool `koanf:"enabled"`
	Limit         int  `koanf:"limit"`
	WindowSeconds int  `koanf:"windowSeconds"`
}

// PlannerConfig locates the upstream agent pipeline that turns quiz profiles
// into roadmap documents.
type PlannerConfig struct {
	BaseURL        string `koanf:"baseURL"`
	TimeoutSeconds int    `koanf:"timeoutSeconds"`
}

// CareersConfig points at an optional catalog file overriding the built-in
// careers list. Supported formats: yaml, json, toml (selected by extension).
type CareersConfig struct {
	CatalogFile string `koanf:"catalogFile"`
}

// Validate enforces invariants that keep the runtime predictable before serving traffic.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil")
	}
	if c.Server.Listen.Port <= 0 || c.Server.Listen.Port > 65535 {
		return fmt.Errorf("config: listen.port invalid: %d", c.Server.Listen.Port)
	}
	if c.Server.Cache.PlanTTLSeconds < 0 {
		return fmt.Errorf("config: server.cache.planTTLSeconds invalid: %d", c.Server.Cache.PlanTTLSeconds)
	}
	if c.Server.Cache.ChatTTLSeconds < 0 {
		return fmt.Errorf("config: server.cache.chatTTLSeconds invalid: %d", c.Server.Cache.ChatTTLSeconds)
	}
	if c.Server.Cache.Epoch < 0 {
		return fmt.Errorf("config: server.cache.epoch invalid: %d", c.Server.Cache.Epoch)
	}
	backend := strings.TrimSpace(strings.ToLower(c.Server.Cache.Backend))
	switch backend {
	case "", "memory":
	case "redis":
		if strings.TrimSpace(c.Server.Cache.Redis.Address) == "" {
			return errors.New("config: server.cache.redis.address required for redis backend")
		}
	default:
		return fmt.Errorf("config: server.cache.backend unsupported: %s", c.Server.Cache.Backend)
	}
	if c.Server.RateLimit.Enabled {
		if c.Server.RateLimit.Limit <= 0 {
			return fmt.Errorf("config: server.rateLimit.limit invalid: %d", c.Server.RateLimit.Limit)
		}
		if c.Server.RateLimit.WindowSeconds <= 0 {
			return fmt.Errorf("config: server.rateLimit.windowSeconds invalid: %d", c.Server.RateLimit.WindowSeconds)
		}
	}
	base := strings.TrimSpace(c.Server.Planner.BaseURL)
	if base == "" {
		return errors.New("config: server.planner.baseURL required")
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("config: server.planner.baseURL invalid: %q", base)
	}
	if c.Server.Planner.TimeoutSeconds <= 0 {
		return fmt.Errorf("config: server.planner.timeoutSeconds invalid: %d", c.Server.Planner.TimeoutSeconds)
	}
	return nil
}

// DefaultConfig returns the baseline values that align with the design
// defaults: 7-day plan retention, 1-hour chat retention, 10 planner calls per
// hour per client.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen: ListenConfig{
				Address: "0.0.0.0",
				Port:    8080,
			},
			Logging: LoggingConfig{
				Level:             "info",
				Format:            "json",
				CorrelationHeader: "X-Request-ID",
			},
			CORS: CORSConfig{
				AllowOrigin: "*",
			},
			Cache: CacheConfig{
				Backend:        "memory",
				PlanTTLSeconds: 7 * 24 * 60 * 60,
				ChatTTLSeconds: 60 * 60,
				Epoch:          1,
			},
			RateLimit: RateLimitConfig{
				Enabled:       true,
				Limit:         10,
				WindowSeconds: 60 * 60,
			},
			Planner: PlannerConfig{
				BaseURL:        "http://localhost:8000",
				TimeoutSeconds: 90,
			},
		},
	}
}
