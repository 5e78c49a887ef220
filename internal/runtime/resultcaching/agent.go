// Package resultcaching persists generated documents after a successful
// planner call and charges the invocation against the client's rate limit
// window. Hits and halted requests pass through untouched.
package resultcaching

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/plangate/plangate/internal/metrics"
	"github.com/plangate/plangate/internal/runtime/cache"
	"github.com/plangate/plangate/internal/runtime/pipeline"
	"github.com/plangate/plangate/internal/runtime/ratelimit"
)

const DefaultTTL = time.Hour

// Agent stores freshly generated documents for future requests.
type Agent struct {
	cache   cache.ResultCache
	ttl     time.Duration
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	metrics *metrics.Recorder
}

// Config controls retention and rate limit accounting for the agent.
type Config struct {
	Cache cache.ResultCache
	TTL   time.Duration

	// Limiter, when set, is charged once per successful generation. Cache
	// hits never reach this agent's store path and are never charged.
	Limiter *ratelimit.Limiter

	Logger  *slog.Logger
	Metrics *metrics.Recorder
}

// New constructs a result caching agent with the supplied configuration.
func New(cfg Config) *Agent {
	return &Agent{
		cache:   cfg.Cache,
		ttl:     cfg.TTL,
		limiter: cfg.Limiter,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Name identifies the result caching agent for logging.
func (a *Agent) Name() string { return "result_caching" }

// Execute persists the generated document and records the planner invocation
// against the rate limit window. A failed store is logged but does not fail
// the request: the document already exists and the client should receive it.
func (a *Agent) Execute(ctx context.Context, _ *http.Request, state *pipeline.State) pipeline.Result {
	if state.Halted() {
		return pipeline.Result{Name: a.Name(), Status: "skipped"}
	}
	if state.Cache.Hit {
		return pipeline.Result{
			Name:    a.Name(),
			Status:  "hit",
			Details: "document retrieved from cache",
		}
	}
	if len(state.Document) == 0 {
		return pipeline.Result{Name: a.Name(), Status: "skipped"}
	}

	storedAt := time.Now().UTC()
	ttl := a.ttl
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	entry := cache.Entry{
		Payload:   state.Document,
		StoredAt:  storedAt,
		ExpiresAt: storedAt.Add(ttl),
	}

	storeStart := time.Now()
	storeErr := a.cache.Store(ctx, state.Cache.Key, entry)
	if a.metrics != nil {
		outcome := metrics.CacheStoreStored
		if storeErr != nil {
			outcome = metrics.CacheStoreError
		}
		a.metrics.ObserveCacheStore(state.Route, outcome, time.Since(storeStart))
	}
	if storeErr != nil {
		a.contextLogger(state).Error("cache store failed",
			slog.Any("error", storeErr),
			slog.String("cache_key", state.Cache.Key),
		)
	} else {
		state.Cache.Stored = true
		state.Cache.StoredAt = entry.StoredAt
		state.Cache.ExpiresAt = entry.ExpiresAt
	}

	a.recordInvocation(ctx, state)

	if storeErr != nil {
		return pipeline.Result{
			Name:    a.Name(),
			Status:  "error",
			Details: "failed to persist document cache entry",
		}
	}
	return pipeline.Result{
		Name:    a.Name(),
		Status:  "stored",
		Details: "document cached for subsequent requests",
	}
}

// recordInvocation charges the successful generation against the client's
// window. Failures here also fail open; the response is already committed.
func (a *Agent) recordInvocation(ctx context.Context, state *pipeline.State) {
	if a.limiter == nil || !state.RateLimit.Checked {
		return
	}
	if err := a.limiter.Record(ctx, state.Admission.ClientIP); err != nil {
		a.contextLogger(state).Warn("rate limit record failed",
			slog.Any("error", err),
			slog.String("client_ip", state.Admission.ClientIP),
		)
		return
	}
	state.RateLimit.Recorded = true
}

func (a *Agent) contextLogger(state *pipeline.State) *slog.Logger {
	logger := a.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("agent", a.Name()))
	if state.Route != "" {
		logger = logger.With(slog.String("route", state.Route))
	}
	if state.CorrelationID != "" {
		logger = logger.With(slog.String("correlation_id", state.CorrelationID))
	}
	return logger
}
