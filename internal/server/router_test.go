package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubProxy struct {
	planCalls    int
	chatCalls    int
	careersCalls int
	healthCalls  int
}

func (s *stubProxy) ServePlan(w http.ResponseWriter, _ *http.Request) {
	s.planCalls++
	w.WriteHeader(http.StatusOK)
}

func (s *stubProxy) ServeChat(w http.ResponseWriter, _ *http.Request) {
	s.chatCalls++
	w.WriteHeader(http.StatusOK)
}

func (s *stubProxy) ServeCareers(w http.ResponseWriter, _ *http.Request) {
	s.careersCalls++
	w.WriteHeader(http.StatusOK)
}

func (s *stubProxy) ServeHealth(w http.ResponseWriter, _ *http.Request) {
	s.healthCalls++
	w.WriteHeader(http.StatusOK)
}

func (s *stubProxy) WriteError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": message})
}

func TestRouterDispatch(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"plan post", http.MethodPost, "/api/plan", http.StatusOK},
		{"chatbot post", http.MethodPost, "/api/chatbot", http.StatusOK},
		{"careers get", http.MethodGet, "/api/careers", http.StatusOK},
		{"health get", http.MethodGet, "/health", http.StatusOK},
		{"health under api", http.MethodGet, "/api/health", http.StatusOK},
		{"plan get rejected", http.MethodGet, "/api/plan", http.StatusMethodNotAllowed},
		{"chatbot get rejected", http.MethodGet, "/api/chatbot", http.StatusMethodNotAllowed},
		{"careers post rejected", http.MethodPost, "/api/careers", http.StatusMethodNotAllowed},
		{"unknown api route", http.MethodPost, "/api/unknown", http.StatusNotFound},
		{"root path", http.MethodGet, "/", http.StatusNotFound},
		{"deep path", http.MethodGet, "/api/plan/extra", http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			proxy := &stubProxy{}
			handler := NewProxyHandler(proxy)
			r := httptest.NewRequest(tc.method, tc.path, nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			if w.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, w.Code)
			}
		})
	}
}

func TestRouterMethodNotAllowedSetsAllowHeader(t *testing.T) {
	handler := NewProxyHandler(&stubProxy{})
	r := httptest.NewRequest(http.MethodDelete, "/api/plan", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
	if got := w.Header().Get("Allow"); got != "POST, OPTIONS" {
		t.Fatalf("unexpected allow header: %q", got)
	}
	var payload map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["success"] != false {
		t.Fatalf("expected failure envelope, got %v", payload)
	}
}

func TestRouterNilPipeline(t *testing.T) {
	handler := NewProxyHandler(nil)
	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
