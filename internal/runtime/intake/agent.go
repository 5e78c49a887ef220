package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/plangate/plangate/internal/runtime/pipeline"
)

// maxBodyBytes bounds request bodies so a hostile client cannot exhaust
// memory before validation rejects the payload.
const maxBodyBytes = 1 << 20

var errBodyTooLarge = errors.New("request body too large")

// PlanAgent decodes and validates plan request bodies. Only two fields are
// inspected: career must be a non-empty string and budget must be present.
// Everything else passes through byte-preserved so the planner sees exactly
// what the client sent.
type PlanAgent struct{}

func NewPlan() *PlanAgent { return &PlanAgent{} }

func (a *PlanAgent) Name() string { return "plan_intake" }

func (a *PlanAgent) Execute(_ context.Context, r *http.Request, state *pipeline.State) pipeline.Result {
	if state.Halted() {
		return pipeline.Result{Name: a.Name(), Status: "skipped"}
	}

	body, err := readBody(r)
	if errors.Is(err, errBodyTooLarge) {
		return haltIntake(state, a.Name(), http.StatusRequestEntityTooLarge, "request body too large")
	}
	if err != nil {
		return a.reject(state, "request body unreadable")
	}

	var envelope struct {
		QuizData json.RawMessage `json:"quiz_data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return a.reject(state, "request body must be valid JSON")
	}
	if len(envelope.QuizData) == 0 || bytes.Equal(envelope.QuizData, []byte("null")) {
		return a.reject(state, "quiz_data is required")
	}

	var required struct {
		Career string          `json:"career"`
		Budget json.RawMessage `json:"budget"`
	}
	if err := json.Unmarshal(envelope.QuizData, &required); err != nil {
		return a.reject(state, "quiz_data must be a JSON object")
	}
	if strings.TrimSpace(required.Career) == "" {
		return a.reject(state, "career is required")
	}
	if len(required.Budget) == 0 || bytes.Equal(required.Budget, []byte("null")) {
		return a.reject(state, "budget is required")
	}

	state.Intake.Valid = true
	state.Intake.Career = strings.TrimSpace(required.Career)
	state.Intake.Payload = envelope.QuizData
	return pipeline.Result{Name: a.Name(), Status: "accepted"}
}

func (a *PlanAgent) reject(state *pipeline.State, reason string) pipeline.Result {
	return haltIntake(state, a.Name(), http.StatusBadRequest, reason)
}

// ChatAgent decodes and validates chat request bodies. The question is
// required; career and path provide optional answer context and participate
// in the cache fingerprint.
type ChatAgent struct{}

func NewChat() *ChatAgent { return &ChatAgent{} }

func (a *ChatAgent) Name() string { return "chat_intake" }

func (a *ChatAgent) Execute(_ context.Context, r *http.Request, state *pipeline.State) pipeline.Result {
	if state.Halted() {
		return pipeline.Result{Name: a.Name(), Status: "skipped"}
	}

	body, err := readBody(r)
	if errors.Is(err, errBodyTooLarge) {
		return haltIntake(state, a.Name(), http.StatusRequestEntityTooLarge, "request body too large")
	}
	if err != nil {
		return a.reject(state, "request body unreadable")
	}

	var envelope struct {
		Question string `json:"question"`
		Career   string `json:"career"`
		Path     string `json:"path"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return a.reject(state, "request body must be valid JSON")
	}
	if strings.TrimSpace(envelope.Question) == "" {
		return a.reject(state, "question is required")
	}

	state.Intake.Valid = true
	state.Intake.Question = strings.TrimSpace(envelope.Question)
	state.Intake.Career = strings.TrimSpace(envelope.Career)
	state.Intake.Path = strings.TrimSpace(envelope.Path)

	// Fixed field order keeps the fingerprint stable across requests.
	payload, err := json.Marshal(map[string]string{
		"question": state.Intake.Question,
		"career":   state.Intake.Career,
		"path":     state.Intake.Path,
	})
	if err != nil {
		return a.reject(state, "question could not be processed")
	}
	state.Intake.Payload = payload
	return pipeline.Result{Name: a.Name(), Status: "accepted"}
}

func (a *ChatAgent) reject(state *pipeline.State, reason string) pipeline.Result {
	return haltIntake(state, a.Name(), http.StatusBadRequest, reason)
}

func haltIntake(state *pipeline.State, name string, status int, reason string) pipeline.Result {
	state.Intake.Valid = false
	state.Intake.Reason = reason
	state.Halt(status, reason)
	return pipeline.Result{Name: name, Status: "rejected", Details: reason}
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer func() { _ = r.Body.Close() }()
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errBodyTooLarge
		}
		return nil, err
	}
	return body, nil
}
