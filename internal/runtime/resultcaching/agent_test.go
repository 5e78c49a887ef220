package resultcaching

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/plangate/plangate/internal/runtime/cache"
	"github.com/plangate/plangate/internal/runtime/pipeline"
	"github.com/plangate/plangate/internal/runtime/ratelimit"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func generatedState(t *testing.T) *pipeline.State {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/api/plan", nil)
	state := pipeline.NewState(r, "plan", "test")
	state.Admission.ClientIP = "203.0.113.7"
	state.Cache.Key = "plangate:plan:v1:key"
	state.Document = json.RawMessage(`{"milestones":[]}`)
	return state
}

func TestStoresGeneratedDocument(t *testing.T) {
	store := cache.NewMemory(time.Minute)
	agent := New(Config{Cache: store, TTL: time.Minute, Logger: testLogger()})
	ctx := context.Background()

	state := generatedState(t)
	result := agent.Execute(ctx, nil, state)
	if result.Status != "stored" {
		t.Fatalf("expected stored, got %s (%s)", result.Status, result.Details)
	}
	if !state.Cache.Stored {
		t.Fatalf("expected stored flag on state")
	}

	entry, ok, err := store.Lookup(ctx, state.Cache.Key)
	if err != nil || !ok {
		t.Fatalf("lookup: ok=%v err=%v", ok, err)
	}
	if string(entry.Payload) != `{"milestones":[]}` {
		t.Fatalf("unexpected cached payload: %s", entry.Payload)
	}
	if got := entry.ExpiresAt.Sub(entry.StoredAt); got != time.Minute {
		t.Fatalf("expected 1m retention, got %s", got)
	}
}

func TestRecordsInvocationAfterStore(t *testing.T) {
	store := cache.NewMemory(time.Minute)
	limiter := ratelimit.NewLimiter(ratelimit.NewMemory(), 10, time.Hour, testLogger())
	agent := New(Config{Cache: store, TTL: time.Minute, Limiter: limiter, Logger: testLogger()})
	ctx := context.Background()

	state := generatedState(t)
	state.RateLimit.Checked = true
	if result := agent.Execute(ctx, nil, state); result.Status != "stored" {
		t.Fatalf("expected stored, got %s", result.Status)
	}
	if !state.RateLimit.Recorded {
		t.Fatalf("expected invocation to be recorded")
	}

	count, err := limiter.Count(ctx, "203.0.113.7")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}
}

func TestCacheHitNotChargedOrRestored(t *testing.T) {
	store := cache.NewMemory(time.Minute)
	limiter := ratelimit.NewLimiter(ratelimit.NewMemory(), 10, time.Hour, testLogger())
	agent := New(Config{Cache: store, TTL: time.Minute, Limiter: limiter, Logger: testLogger()})
	ctx := context.Background()

	state := generatedState(t)
	state.RateLimit.Checked = true
	state.Cache.Hit = true

	if result := agent.Execute(ctx, nil, state); result.Status != "hit" {
		t.Fatalf("expected hit passthrough, got %s", result.Status)
	}
	if state.RateLimit.Recorded {
		t.Fatalf("cache hits must not be charged")
	}

	count, err := limiter.Count(ctx, "203.0.113.7")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected count 0, got %d", count)
	}
}

func TestSkipsHaltedAndEmptyStates(t *testing.T) {
	agent := New(Config{Cache: cache.NewMemory(time.Minute), Logger: testLogger()})
	ctx := context.Background()

	halted := generatedState(t)
	halted.Halt(http.StatusInternalServerError, "boom")
	if result := agent.Execute(ctx, nil, halted); result.Status != "skipped" {
		t.Fatalf("expected skipped for halted state, got %s", result.Status)
	}

	empty := generatedState(t)
	empty.Document = nil
	if result := agent.Execute(ctx, nil, empty); result.Status != "skipped" {
		t.Fatalf("expected skipped for empty document, got %s", result.Status)
	}
}

type failingCache struct{}

func (failingCache) Lookup(context.Context, string) (cache.Entry, bool, error) {
	return cache.Entry{}, false, errors.New("cache down")
}

func (failingCache) Store(context.Context, string, cache.Entry) error {
	return errors.New("cache down")
}

func (failingCache) Size(context.Context) (int64, error) { return 0, nil }

func (failingCache) Close(context.Context) error { return nil }

func TestStoreFailureStillRecordsInvocation(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.NewMemory(), 10, time.Hour, testLogger())
	agent := New(Config{Cache: failingCache{}, TTL: time.Minute, Limiter: limiter, Logger: testLogger()})
	ctx := context.Background()

	state := generatedState(t)
	state.RateLimit.Checked = true
	result := agent.Execute(ctx, nil, state)
	if result.Status != "error" {
		t.Fatalf("expected error status, got %s", result.Status)
	}
	if state.Halted() {
		t.Fatalf("store failure must not fail the request")
	}
	if !state.RateLimit.Recorded {
		t.Fatalf("planner invocation still happened and must be charged")
	}
}
