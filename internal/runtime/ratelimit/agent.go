package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/plangate/plangate/internal/metrics"
	"github.com/plangate/plangate/internal/runtime/pipeline"
)

const keyNamespace = "plangate:ratelimit:v1:"

// Limiter applies a fixed-window ceiling on planner invocations per client
// identity. Reads and writes are split: the pipeline checks the window before
// touching the cache and records an invocation only after the planner call
// succeeded, so cache hits and failed generations never consume budget.
type Limiter struct {
	store  CounterStore
	limit  int64
	window time.Duration
	logger *slog.Logger
}

func NewLimiter(store CounterStore, limit int, window time.Duration, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		store:  store,
		limit:  int64(limit),
		window: window,
		logger: logger.With(slog.String("agent", "rate_limiter")),
	}
}

// Limit exposes the configured ceiling.
func (l *Limiter) Limit() int64 { return l.limit }

// Count returns the live window count for the identity.
func (l *Limiter) Count(ctx context.Context, identity string) (int64, error) {
	return l.store.Peek(ctx, keyNamespace+identity)
}

// Record charges one planner invocation against the identity's window.
func (l *Limiter) Record(ctx context.Context, identity string) error {
	_, err := l.store.Incr(ctx, keyNamespace+identity, l.window)
	return err
}

// Close releases the underlying counter store.
func (l *Limiter) Close(ctx context.Context) error {
	return l.store.Close(ctx)
}

// CheckAgent rejects requests whose client identity has exhausted the window
// budget. Counter store failures fail open: the limiter is a best-effort
// guard, not a correctness gate.
type CheckAgent struct {
	limiter *Limiter
	metrics *metrics.Recorder
}

func NewCheckAgent(limiter *Limiter, recorder *metrics.Recorder) *CheckAgent {
	return &CheckAgent{limiter: limiter, metrics: recorder}
}

func (a *CheckAgent) Name() string { return "rate_limit_check" }

func (a *CheckAgent) Execute(ctx context.Context, _ *http.Request, state *pipeline.State) pipeline.Result {
	if state.Halted() {
		return pipeline.Result{Name: a.Name(), Status: "skipped"}
	}
	if a.limiter == nil {
		return pipeline.Result{Name: a.Name(), Status: "disabled"}
	}

	state.RateLimit.Checked = true
	state.RateLimit.Key = keyNamespace + state.Admission.ClientIP
	state.RateLimit.Limit = a.limiter.limit

	count, err := a.limiter.Count(ctx, state.Admission.ClientIP)
	if err != nil {
		a.limiter.logger.Warn("rate limit lookup failed",
			slog.Any("error", err),
			slog.String("client_ip", state.Admission.ClientIP),
		)
		return pipeline.Result{Name: a.Name(), Status: "error", Details: "counter store unavailable, request admitted"}
	}

	state.RateLimit.Count = count
	if count >= a.limiter.limit {
		state.RateLimit.Exceeded = true
		state.Halt(http.StatusTooManyRequests, "rate limit exceeded, please try again later")
		if a.metrics != nil {
			a.metrics.ObserveRateLimited(state.Route)
		}
		return pipeline.Result{Name: a.Name(), Status: "rejected", Details: "window budget exhausted"}
	}
	return pipeline.Result{Name: a.Name(), Status: "admitted"}
}
