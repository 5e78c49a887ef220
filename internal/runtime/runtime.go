// Package runtime assembles the agent pipelines that sit between the quiz
// frontend and the planner service: admission, intake validation, rate
// limiting, result caching, and upstream generation.
package runtime

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/plangate/plangate/internal/catalog"
	"github.com/plangate/plangate/internal/metrics"
	"github.com/plangate/plangate/internal/runtime/admission"
	"github.com/plangate/plangate/internal/runtime/cache"
	"github.com/plangate/plangate/internal/runtime/intake"
	"github.com/plangate/plangate/internal/runtime/pipeline"
	"github.com/plangate/plangate/internal/runtime/ratelimit"
	"github.com/plangate/plangate/internal/runtime/resultcaching"
)

const (
	// RoutePlan and RouteChat name the two cached routes; they appear in
	// cache keys, metrics labels, and logs.
	RoutePlan = "plan"
	RouteChat = "chat"

	defaultPlanTTL        = 7 * 24 * time.Hour
	defaultChatTTL        = time.Hour
	defaultCacheNamespace = "plangate"
)

// PipelineOptions wires the runtime dependencies together.
type PipelineOptions struct {
	Cache        cache.ResultCache
	PlanTTL      time.Duration
	ChatTTL      time.Duration
	CacheEpoch   int
	CacheKeySalt string

	// Limiter may be nil when rate limiting is disabled.
	Limiter *ratelimit.Limiter

	Planner PlanGenerator
	Catalog *catalog.Catalog

	// TrustedProxies lists CIDRs whose X-Forwarded-For header is honored
	// when resolving the client identity.
	TrustedProxies []string

	CorrelationHeader string
	Metrics           *metrics.Recorder
	Version           string
}

// Pipeline evaluates requests through the configured agent chains and
// renders the JSON envelopes the frontend consumes.
type Pipeline struct {
	logger            *slog.Logger
	cache             cache.ResultCache
	limiter           *ratelimit.Limiter
	catalog           *catalog.Catalog
	correlationHeader string
	metrics           *metrics.Recorder
	version           string
	startedAt         time.Time

	planAgents []pipeline.Agent
	chatAgents []pipeline.Agent
}

// NewPipeline builds the plan and chat agent chains. The plan chain checks
// the rate limit window before the cache and charges it after a successful
// generation; the chat chain carries no limiter.
func NewPipeline(logger *slog.Logger, opts PipelineOptions) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	planTTL := opts.PlanTTL
	if planTTL <= 0 {
		planTTL = defaultPlanTTL
	}
	chatTTL := opts.ChatTTL
	if chatTTL <= 0 {
		chatTTL = defaultChatTTL
	}
	epoch := opts.CacheEpoch
	if epoch <= 0 {
		epoch = 1
	}
	store := opts.Cache
	if store == nil {
		store = cache.NewMemory(planTTL)
	}
	careers := opts.Catalog
	if careers == nil {
		careers = catalog.Builtin()
	}
	version := strings.TrimSpace(opts.Version)
	if version == "" {
		version = "dev"
	}

	p := &Pipeline{
		logger:            logger.With(slog.String("agent", "pipeline")),
		cache:             store,
		limiter:           opts.Limiter,
		catalog:           careers,
		correlationHeader: strings.TrimSpace(opts.CorrelationHeader),
		metrics:           opts.Metrics,
		version:           version,
		startedAt:         time.Now().UTC(),
	}

	keys := cache.NewKeyMaker(defaultCacheNamespace, epoch, opts.CacheKeySalt)
	admit := admission.New(admission.ParseCIDRs(opts.TrustedProxies))
	lookup := newCacheLookupAgent(store, keys, p.logger, opts.Metrics)

	p.planAgents = []pipeline.Agent{
		admit,
		intake.NewPlan(),
		ratelimit.NewCheckAgent(opts.Limiter, opts.Metrics),
		lookup,
		newPlanGenerationAgent(opts.Planner, p.logger, opts.Metrics),
		resultcaching.New(resultcaching.Config{
			Cache:   store,
			TTL:     planTTL,
			Limiter: opts.Limiter,
			Logger:  logger,
			Metrics: opts.Metrics,
		}),
	}
	p.chatAgents = []pipeline.Agent{
		admit,
		intake.NewChat(),
		lookup,
		newChatGenerationAgent(opts.Planner, p.logger, opts.Metrics),
		resultcaching.New(resultcaching.Config{
			Cache:   store,
			TTL:     chatTTL,
			Logger:  logger,
			Metrics: opts.Metrics,
		}),
	}
	return p
}

// Close releases the cache backend and the limiter's counter store.
func (p *Pipeline) Close(ctx context.Context) error {
	var errs []error
	if p.cache != nil {
		if err := p.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if p.limiter != nil {
		if err := p.limiter.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ServePlan handles quiz submissions and responds with the roadmap document.
func (p *Pipeline) ServePlan(w http.ResponseWriter, r *http.Request) {
	p.serve(w, r, RoutePlan, p.planAgents)
}

// ServeChat handles follow-up questions and responds with the answer text.
func (p *Pipeline) ServeChat(w http.ResponseWriter, r *http.Request) {
	p.serve(w, r, RouteChat, p.chatAgents)
}

func (p *Pipeline) serve(w http.ResponseWriter, r *http.Request, route string, agents []pipeline.Agent) {
	start := time.Now()
	correlationID := p.requestCorrelationID(r)
	state := pipeline.NewState(r, route, correlationID)

	reqLogger := p.logger.With(
		slog.String("route", route),
		slog.String("correlation_id", correlationID),
	)

	for _, ag := range agents {
		// Agents publish their observable state via the shared pipeline.State.
		_ = ag.Execute(r.Context(), r, state)
	}

	if p.correlationHeader != "" {
		w.Header().Set(p.correlationHeader, correlationID)
	}

	status := http.StatusOK
	outcome := "success"
	if state.Halted() {
		status = state.Response.Status
		outcome = "error"
		if status == http.StatusTooManyRequests {
			outcome = "rate_limited"
		} else if status == http.StatusBadRequest {
			outcome = "rejected"
		}
		p.writeJSON(w, status, errorEnvelope(state.Response.Message))
	} else if len(state.Document) == 0 {
		status = http.StatusInternalServerError
		outcome = "error"
		reqLogger.Error("pipeline produced no document")
		p.writeJSON(w, status, errorEnvelope("internal server error"))
	} else {
		p.writeJSON(w, status, successEnvelope(route, state.Document, state.Cache.Hit))
	}

	duration := time.Since(start)
	reqLogger.Info("pipeline completed",
		slog.Int("http_status", status),
		slog.String("outcome", outcome),
		slog.Bool("from_cache", state.Cache.Hit),
		slog.Float64("latency_ms", float64(duration)/float64(time.Millisecond)),
	)
	if p.metrics != nil {
		p.metrics.ObserveRequest(route, outcome, status, state.Cache.Hit, duration)
	}
}

// ServeCareers lists the catalog the quiz form offers.
func (p *Pipeline) ServeCareers(w http.ResponseWriter, r *http.Request) {
	if p.correlationHeader != "" {
		w.Header().Set(p.correlationHeader, p.requestCorrelationID(r))
	}
	p.writeJSON(w, http.StatusOK, map[string]any{
		"careers": p.catalog.List(),
	})
}

// ServeHealth reports liveness together with cache statistics. It never
// consults the planner: the proxy is healthy even when the upstream is not.
func (p *Pipeline) ServeHealth(w http.ResponseWriter, r *http.Request) {
	if p.correlationHeader != "" {
		w.Header().Set(p.correlationHeader, p.requestCorrelationID(r))
	}
	cacheSize, err := p.cache.Size(r.Context())
	if err != nil {
		p.logger.Error("cache size query failed", slog.Any("error", err))
		cacheSize = 0
	}
	status := map[string]any{
		"status":       "healthy",
		"cacheEntries": cacheSize,
		"uptime":       time.Since(p.startedAt).Round(time.Second).String(),
		"observedAt":   time.Now().UTC(),
		"version":      p.version,
	}
	p.writeJSON(w, http.StatusOK, status)
}

// WriteError renders the standard failure envelope; the router uses it for
// unknown paths and disallowed methods.
func (p *Pipeline) WriteError(w http.ResponseWriter, status int, message string) {
	if status <= 0 {
		status = http.StatusInternalServerError
	}
	p.writeJSON(w, status, errorEnvelope(message))
}

func (p *Pipeline) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		p.logger.Error("response encode failed", slog.Any("error", err))
	}
}

func successEnvelope(route string, document json.RawMessage, cached bool) map[string]any {
	envelope := map[string]any{
		"success": true,
		"cached":  cached,
	}
	switch route {
	case RouteChat:
		envelope["answer"] = document
	default:
		envelope["roadmap"] = document
	}
	return envelope
}

func errorEnvelope(message string) map[string]any {
	return map[string]any{
		"success": false,
		"error":   message,
	}
}

func (p *Pipeline) requestCorrelationID(r *http.Request) string {
	if r != nil && p.correlationHeader != "" {
		if candidate := strings.TrimSpace(r.Header.Get(p.correlationHeader)); candidate != "" {
			return candidate
		}
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
