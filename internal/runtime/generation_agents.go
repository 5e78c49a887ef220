package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/plangate/plangate/internal/metrics"
	"github.com/plangate/plangate/internal/runtime/pipeline"
)

// PlanGenerator is the upstream service that turns validated payloads into
// documents. planner.Client satisfies it; tests substitute stubs.
type PlanGenerator interface {
	GeneratePlan(ctx context.Context, quiz json.RawMessage) (json.RawMessage, error)
	Chat(ctx context.Context, message, systemPrompt string) (string, error)
}

// planGenerationAgent calls the planner on a cache miss and publishes the
// roadmap document. Upstream details stay in the logs; clients only ever see
// a generic failure message.
type planGenerationAgent struct {
	planner PlanGenerator
	logger  *slog.Logger
	metrics *metrics.Recorder
}

func newPlanGenerationAgent(planner PlanGenerator, logger *slog.Logger, recorder *metrics.Recorder) *planGenerationAgent {
	return &planGenerationAgent{planner: planner, logger: logger, metrics: recorder}
}

func (a *planGenerationAgent) Name() string { return "plan_generation" }

func (a *planGenerationAgent) Execute(ctx context.Context, _ *http.Request, state *pipeline.State) pipeline.Result {
	if state.Halted() || state.Cache.Hit {
		return pipeline.Result{Name: a.Name(), Status: "skipped"}
	}

	state.Upstream.Requested = true
	start := time.Now()
	roadmap, err := a.planner.GeneratePlan(ctx, state.Intake.Payload)
	duration := time.Since(start)
	if a.metrics != nil {
		outcome := metrics.PlannerSuccess
		if err != nil {
			outcome = metrics.PlannerFailure
		}
		a.metrics.ObservePlannerCall(state.Route, outcome, duration)
	}
	if err != nil {
		state.Upstream.Error = err.Error()
		a.logger.Error("plan generation failed",
			slog.Any("error", err),
			slog.String("career", state.Intake.Career),
			slog.String("correlation_id", state.CorrelationID),
			slog.Float64("latency_ms", float64(duration)/float64(time.Millisecond)),
		)
		state.Halt(http.StatusInternalServerError, "plan generation failed, please try again")
		return pipeline.Result{Name: a.Name(), Status: "error", Details: "upstream planner call failed"}
	}

	state.Upstream.Succeeded = true
	state.Document = roadmap
	return pipeline.Result{Name: a.Name(), Status: "generated"}
}

// chatGenerationAgent answers follow-up questions, steering the model with a
// guidance prompt scoped to the student's chosen career and roadmap.
type chatGenerationAgent struct {
	planner PlanGenerator
	logger  *slog.Logger
	metrics *metrics.Recorder
}

func newChatGenerationAgent(planner PlanGenerator, logger *slog.Logger, recorder *metrics.Recorder) *chatGenerationAgent {
	return &chatGenerationAgent{planner: planner, logger: logger, metrics: recorder}
}

func (a *chatGenerationAgent) Name() string { return "chat_generation" }

func (a *chatGenerationAgent) Execute(ctx context.Context, _ *http.Request, state *pipeline.State) pipeline.Result {
	if state.Halted() || state.Cache.Hit {
		return pipeline.Result{Name: a.Name(), Status: "skipped"}
	}

	state.Upstream.Requested = true
	start := time.Now()
	answer, err := a.planner.Chat(ctx, state.Intake.Question, chatSystemPrompt(state.Intake.Career, state.Intake.Path))
	duration := time.Since(start)
	if a.metrics != nil {
		outcome := metrics.PlannerSuccess
		if err != nil {
			outcome = metrics.PlannerFailure
		}
		a.metrics.ObservePlannerCall(state.Route, outcome, duration)
	}
	if err != nil {
		state.Upstream.Error = err.Error()
		a.logger.Error("chat completion failed",
			slog.Any("error", err),
			slog.String("correlation_id", state.CorrelationID),
			slog.Float64("latency_ms", float64(duration)/float64(time.Millisecond)),
		)
		state.Halt(http.StatusInternalServerError, "assistant is unavailable, please try again")
		return pipeline.Result{Name: a.Name(), Status: "error", Details: "upstream chat call failed"}
	}

	document, err := json.Marshal(answer)
	if err != nil {
		state.Halt(http.StatusInternalServerError, "internal server error")
		return pipeline.Result{Name: a.Name(), Status: "error", Details: "answer encoding failed"}
	}

	state.Upstream.Succeeded = true
	state.Document = document
	return pipeline.Result{Name: a.Name(), Status: "generated"}
}

func chatSystemPrompt(career, path string) string {
	var b strings.Builder
	b.WriteString("You are a friendly academic and career advisor for students planning their education.")
	if career != "" {
		fmt.Fprintf(&b, " The student is pursuing a career as a %s.", career)
	}
	if path != "" {
		fmt.Fprintf(&b, " Their current roadmap follows the %s path.", path)
	}
	b.WriteString(" Keep answers concise, practical, and encouraging.")
	return b.String()
}
