// Package planner talks to the upstream roadmap generation service. The
// service owns the agent pipeline that turns a quiz submission into a
// roadmap document; this package only moves JSON across the wire.
package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseBytes = 8 << 20

// httpDoer abstracts the transport so tests can intercept requests.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// UpstreamError reports a planner call that completed but did not yield a
// usable document. The message is safe to log but must never reach clients.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("planner: upstream returned status %d", e.Status)
	}
	return fmt.Sprintf("planner: %s", e.Message)
}

// Config describes the upstream planner endpoint.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger

	// HTTPClient overrides the default transport, primarily for tests.
	HTTPClient httpDoer
}

// Client issues generation calls against the planner service.
type Client struct {
	baseURL *url.URL
	http    httpDoer
	logger  *slog.Logger
}

func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("planner: parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("planner: base url %q must include scheme and host", cfg.BaseURL)
	}
	doer := cfg.HTTPClient
	if doer == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 90 * time.Second
		}
		doer = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: base,
		http:    doer,
		logger:  logger.With(slog.String("component", "planner_client")),
	}, nil
}

type planRequest struct {
	QuizData json.RawMessage `json:"quiz_data"`
}

type planResponse struct {
	Success bool            `json:"success"`
	Roadmap json.RawMessage `json:"roadmap"`
	Error   string          `json:"error"`
}

// GeneratePlan submits the quiz payload and returns the generated roadmap
// document.
func (c *Client) GeneratePlan(ctx context.Context, quiz json.RawMessage) (json.RawMessage, error) {
	body, err := json.Marshal(planRequest{QuizData: quiz})
	if err != nil {
		return nil, fmt.Errorf("planner: marshal plan request: %w", err)
	}

	raw, status, err := c.post(ctx, "/api/plan", body)
	if err != nil {
		return nil, err
	}

	var parsed planResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("planner: decode plan response: %w", err)
	}
	if status != http.StatusOK || !parsed.Success {
		message := parsed.Error
		if message == "" {
			message = fmt.Sprintf("plan generation failed with status %d", status)
		}
		return nil, &UpstreamError{Status: status, Message: message}
	}
	if len(parsed.Roadmap) == 0 || string(parsed.Roadmap) == "null" {
		return nil, &UpstreamError{Status: status, Message: "plan generation returned an empty roadmap"}
	}
	return parsed.Roadmap, nil
}

type chatRequest struct {
	Message      string `json:"message"`
	SystemPrompt string `json:"system_prompt"`
}

type chatResponse struct {
	Response string `json:"response"`
}

// Chat forwards a free-form question with guidance context and returns the
// generated answer.
func (c *Client) Chat(ctx context.Context, message, systemPrompt string) (string, error) {
	body, err := json.Marshal(chatRequest{Message: message, SystemPrompt: systemPrompt})
	if err != nil {
		return "", fmt.Errorf("planner: marshal chat request: %w", err)
	}

	raw, status, err := c.post(ctx, "/api/chat", body)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", &UpstreamError{Status: status, Message: fmt.Sprintf("chat completion failed with status %d", status)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("planner: decode chat response: %w", err)
	}
	if parsed.Response == "" {
		return "", &UpstreamError{Status: status, Message: "chat completion returned an empty answer"}
	}
	return parsed.Response, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, int, error) {
	endpoint := *c.baseURL
	endpoint.Path = strings.TrimRight(endpoint.Path, "/") + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("planner: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("planner: call %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("planner: read response: %w", err)
	}
	return raw, resp.StatusCode, nil
}
