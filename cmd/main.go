package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/plangate/plangate/internal/catalog"
	"github.com/plangate/plangate/internal/config"
	"github.com/plangate/plangate/internal/logging"
	"github.com/plangate/plangate/internal/metrics"
	"github.com/plangate/plangate/internal/planner"
	"github.com/plangate/plangate/internal/runtime"
	"github.com/plangate/plangate/internal/runtime/cache"
	"github.com/plangate/plangate/internal/runtime/ratelimit"
	"github.com/plangate/plangate/internal/server"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	var (
		configFile = flag.String("config", "", "path to server configuration file")
		envPrefix  = flag.String("env-prefix", "PLANGATE", "environment variable prefix")
		envFile    = flag.String("env-file", "", "optional dotenv file loaded before configuration")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Fatalf("failed to load env file: %v", err)
		}
	} else {
		// Best-effort default; a missing .env is not an error.
		_ = godotenv.Load()
	}

	loader := config.NewLoader(*envPrefix, *configFile)
	cfg, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Server.Logging)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}

	storeLogger := logger.With(slog.String("agent", "store_factory"))
	resultCache, counterStore := buildStores(storeLogger, cfg.Server.Cache)

	var limiter *ratelimit.Limiter
	if cfg.Server.RateLimit.Enabled {
		window := time.Duration(cfg.Server.RateLimit.WindowSeconds) * time.Second
		limiter = ratelimit.NewLimiter(counterStore, cfg.Server.RateLimit.Limit, window, logger)
		logger.Info("rate limiting enabled",
			slog.Int("limit", cfg.Server.RateLimit.Limit),
			slog.Duration("window", window),
		)
	}

	plannerClient, err := planner.New(planner.Config{
		BaseURL: cfg.Server.Planner.BaseURL,
		Timeout: time.Duration(cfg.Server.Planner.TimeoutSeconds) * time.Second,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("unable to construct planner client", slog.Any("error", err))
		os.Exit(1)
	}

	careers := catalog.Builtin()
	if cfg.Server.Careers.CatalogFile != "" {
		watcher, err := careers.Watch(ctx, cfg.Server.Careers.CatalogFile, func(err error) {
			logger.Error("catalog watcher error", slog.Any("error", err))
		})
		if err != nil {
			logger.Error("catalog watcher setup failed, using built-in careers", slog.Any("error", err))
		} else {
			defer watcher.Stop()
		}
	}

	promRegistry := prometheus.NewRegistry()
	metricsRecorder := metrics.NewRecorder(promRegistry)

	pipe := runtime.NewPipeline(logger, runtime.PipelineOptions{
		Cache:             resultCache,
		PlanTTL:           time.Duration(cfg.Server.Cache.PlanTTLSeconds) * time.Second,
		ChatTTL:           time.Duration(cfg.Server.Cache.ChatTTLSeconds) * time.Second,
		CacheEpoch:        cfg.Server.Cache.Epoch,
		CacheKeySalt:      cfg.Server.Cache.KeySalt,
		Limiter:           limiter,
		Planner:           plannerClient,
		Catalog:           careers,
		TrustedProxies:    cfg.Server.TrustedProxyIPs,
		CorrelationHeader: cfg.Server.Logging.CorrelationHeader,
		Metrics:           metricsRecorder,
		Version:           version,
	})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := pipe.Close(shutdownCtx); err != nil {
			logger.Error("store shutdown failed", slog.Any("error", err))
		}
	}()

	handler := server.NewProxyHandler(pipe)
	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsRecorder.Handler())
	mux.Handle("/", handler)
	root := server.WithCORS(cfg.Server.CORS.AllowOrigin,
		server.WithRecovery(logger, mux))

	srv, err := server.New(cfg, logger, root)
	if err != nil {
		logger.Error("unable to construct server", slog.Any("error", err))
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated unexpectedly", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}

// buildStores produces the result cache and the rate limit counter store.
// With the redis backend both wrap one shared client; the cache owns its
// shutdown. Any redis failure falls back to the in-memory stores so the
// proxy still comes up.
func buildStores(logger *slog.Logger, cfg config.CacheConfig) (cache.ResultCache, ratelimit.CounterStore) {
	planTTL := time.Duration(cfg.PlanTTLSeconds) * time.Second
	backend := strings.TrimSpace(strings.ToLower(cfg.Backend))
	switch backend {
	case "", "memory":
		if logger != nil {
			logger.Info("using memory result cache", slog.Duration("plan_ttl", planTTL))
		}
		return cache.NewMemory(planTTL), ratelimit.NewMemory()
	case "redis":
		client, err := cache.NewValkeyClient(cache.RedisConfig{
			Address:  cfg.Redis.Address,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TLS: cache.RedisTLSConfig{
				Enabled: cfg.Redis.TLS.Enabled,
				CAFile:  cfg.Redis.TLS.CAFile,
			},
		})
		if err == nil {
			var resultCache cache.ResultCache
			resultCache, err = cache.NewRedis(client)
			if err == nil {
				if logger != nil {
					logger.Info("using redis result cache", slog.String("address", cfg.Redis.Address))
				}
				return resultCache, ratelimit.NewRedis(client)
			}
		}
		if logger != nil {
			logger.Error("redis initialization failed", slog.Any("error", err))
			logger.Info("falling back to memory stores")
		}
		return cache.NewMemory(planTTL), ratelimit.NewMemory()
	default:
		if logger != nil {
			logger.Warn("unsupported cache backend, defaulting to memory", slog.String("backend", cfg.Backend))
		}
		return cache.NewMemory(planTTL), ratelimit.NewMemory()
	}
}
