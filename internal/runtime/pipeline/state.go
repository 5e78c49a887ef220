package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Agent represents a runtime component that collaborates on processing an
// incoming request. Each agent observes and mutates the shared State before
// returning its Result snapshot.
type Agent interface {
	Name() string
	Execute(context.Context, *http.Request, *State) Result
}

// Result captures the outcome emitted by an agent during pipeline execution.
type Result struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

// RequestState preserves the inbound request snapshot for logging.
type RequestState struct {
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// AdmissionState records the resolved client identity used for rate limiting.
type AdmissionState struct {
	ClientIP     string `json:"clientIp"`
	TrustedProxy bool   `json:"trustedProxy"`
	ForwardedFor string `json:"forwardedFor,omitempty"`
}

// IntakeState carries the validated request payload. For plan requests
// Payload holds the raw quiz document; for chat requests it holds the
// canonical question context used for fingerprinting.
type IntakeState struct {
	Valid    bool            `json:"valid"`
	Reason   string          `json:"reason,omitempty"`
	Payload  json.RawMessage `json:"-"`
	Question string          `json:"question,omitempty"`
	Career   string          `json:"career,omitempty"`
	Path     string          `json:"path,omitempty"`
}

// RateLimitState reports the fixed-window check for the client identity.
type RateLimitState struct {
	Checked  bool   `json:"checked"`
	Key      string `json:"key,omitempty"`
	Count    int64  `json:"count"`
	Limit    int64  `json:"limit"`
	Exceeded bool   `json:"exceeded"`
	Recorded bool   `json:"recorded"`
}

// CacheState captures cache participation information for the request.
type CacheState struct {
	Key       string    `json:"key"`
	Hit       bool      `json:"hit"`
	Stored    bool      `json:"stored"`
	StoredAt  time.Time `json:"storedAt,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// UpstreamState reports the planner interaction performed on a cache miss.
type UpstreamState struct {
	Requested bool   `json:"requested"`
	Succeeded bool   `json:"succeeded"`
	Error     string `json:"error,omitempty"`
}

// ResponseState is the HTTP error response composed for the caller. A zero
// Status means no agent halted the request and the success envelope applies.
type ResponseState struct {
	Status  int    `json:"status"`
	Message string `json:"message,omitempty"`
}

// State is the shared context threaded through every agent in the pipeline.
type State struct {
	Route         string `json:"route"`
	CorrelationID string `json:"correlationId"`

	Request   RequestState   `json:"request"`
	Admission AdmissionState `json:"admission"`
	Intake    IntakeState    `json:"intake"`
	RateLimit RateLimitState `json:"rateLimit"`
	Cache     CacheState     `json:"cache"`
	Upstream  UpstreamState  `json:"upstream"`
	Response  ResponseState  `json:"response"`

	// Document is the response payload: the roadmap JSON for plan requests
	// or the JSON-encoded answer string for chat requests. It is populated
	// either by a cache hit or by a successful planner call.
	Document json.RawMessage `json:"-"`
}

// NewState captures the inbound request metadata and initializes the shared
// state for a pipeline evaluation.
func NewState(r *http.Request, route, correlationID string) *State {
	return &State{
		Route:         route,
		CorrelationID: correlationID,
		Request: RequestState{
			Method:     r.Method,
			Path:       r.URL.Path,
			ReceivedAt: time.Now().UTC(),
		},
	}
}

// Halt records a terminal error response so subsequent agents skip their work.
func (s *State) Halt(status int, message string) {
	s.Response.Status = status
	s.Response.Message = message
}

// Halted reports whether an earlier agent already composed an error response.
func (s *State) Halted() bool { return s.Response.Status != 0 }
