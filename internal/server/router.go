package server

import (
	"fmt"
	"net/http"
	"strings"
)

// ProxyHTTP defines the minimal surface the lifecycle router needs from the
// runtime pipeline to serve HTTP requests.
type ProxyHTTP interface {
	ServePlan(http.ResponseWriter, *http.Request)
	ServeChat(http.ResponseWriter, *http.Request)
	ServeCareers(http.ResponseWriter, *http.Request)
	ServeHealth(http.ResponseWriter, *http.Request)
	WriteError(http.ResponseWriter, int, string)
}

// NewProxyHandler wires the HTTP routing facade to the runtime pipeline so
// the lifecycle server owns URL dispatch without embedding routing logic into
// the pipeline itself. OPTIONS requests never reach this handler; the CORS
// middleware answers preflights before dispatch.
func NewProxyHandler(p ProxyHTTP) http.Handler {
	if p == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "pipeline unavailable", http.StatusServiceUnavailable)
		})
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route, ok := parseRoute(r.URL.Path)
		if !ok {
			p.WriteError(w, http.StatusNotFound, "not found")
			return
		}

		switch route {
		case "plan":
			if !requireMethod(w, r, p, http.MethodPost) {
				return
			}
			p.ServePlan(w, r)
		case "chatbot":
			if !requireMethod(w, r, p, http.MethodPost) {
				return
			}
			p.ServeChat(w, r)
		case "careers":
			if !requireMethod(w, r, p, http.MethodGet) {
				return
			}
			p.ServeCareers(w, r)
		case "health":
			if !requireMethod(w, r, p, http.MethodGet) {
				return
			}
			p.ServeHealth(w, r)
		default:
			p.WriteError(w, http.StatusNotFound, "not found")
		}
	})
}

func requireMethod(w http.ResponseWriter, r *http.Request, p ProxyHTTP, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method+", "+http.MethodOptions)
	p.WriteError(w, http.StatusMethodNotAllowed, fmt.Sprintf("method %s not allowed", r.Method))
	return false
}

func parseRoute(path string) (string, bool) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return "", false
	}
	parts := strings.Split(trimmed, "/")
	switch len(parts) {
	case 1:
		if strings.EqualFold(parts[0], "health") {
			return "health", true
		}
	case 2:
		if !strings.EqualFold(parts[0], "api") {
			return "", false
		}
		route := strings.ToLower(parts[1])
		switch route {
		case "plan", "chatbot", "careers":
			return route, true
		case "health":
			return "health", true
		}
	}
	return "", false
}
