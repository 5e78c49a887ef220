package runtime

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/plangate/plangate/internal/metrics"
	"github.com/plangate/plangate/internal/runtime/cache"
	"github.com/plangate/plangate/internal/runtime/pipeline"
)

// cacheLookupAgent fingerprints the validated payload and consults the result
// cache. A hit publishes the stored document and lets the request skip both
// the planner and the rate limit charge.
type cacheLookupAgent struct {
	cache   cache.ResultCache
	keys    cache.KeyMaker
	logger  *slog.Logger
	metrics *metrics.Recorder
}

func newCacheLookupAgent(store cache.ResultCache, keys cache.KeyMaker, logger *slog.Logger, recorder *metrics.Recorder) *cacheLookupAgent {
	return &cacheLookupAgent{cache: store, keys: keys, logger: logger, metrics: recorder}
}

func (a *cacheLookupAgent) Name() string { return "cache_lookup" }

func (a *cacheLookupAgent) Execute(ctx context.Context, _ *http.Request, state *pipeline.State) pipeline.Result {
	if state.Halted() {
		return pipeline.Result{Name: a.Name(), Status: "skipped"}
	}

	key, err := a.keys.Key(state.Route, state.Intake.Payload)
	if err != nil {
		a.logger.Error("cache key derivation failed",
			slog.Any("error", err),
			slog.String("correlation_id", state.CorrelationID),
		)
		state.Halt(http.StatusInternalServerError, "internal server error")
		return pipeline.Result{Name: a.Name(), Status: "error", Details: "payload fingerprinting failed"}
	}
	state.Cache.Key = key

	lookupStart := time.Now()
	entry, found, err := a.cache.Lookup(ctx, key)
	if a.metrics != nil {
		outcome := metrics.CacheLookupMiss
		switch {
		case err != nil:
			outcome = metrics.CacheLookupError
		case found:
			outcome = metrics.CacheLookupHit
		}
		a.metrics.ObserveCacheLookup(state.Route, outcome, time.Since(lookupStart))
	}
	if err != nil {
		// Treat backend trouble as a miss so the planner can still answer.
		a.logger.Warn("cache lookup failed",
			slog.Any("error", err),
			slog.String("cache_key", key),
			slog.String("correlation_id", state.CorrelationID),
		)
		return pipeline.Result{Name: a.Name(), Status: "error", Details: "cache unavailable, treated as miss"}
	}
	if !found {
		return pipeline.Result{Name: a.Name(), Status: "miss"}
	}

	state.Cache.Hit = true
	state.Cache.StoredAt = entry.StoredAt
	state.Cache.ExpiresAt = entry.ExpiresAt
	state.Document = entry.Payload
	return pipeline.Result{Name: a.Name(), Status: "hit", Details: "document retrieved from cache"}
}
