// Package diag exposes HTTP health, readiness, and Prometheus metrics
// endpoints for manual and automated inspection of a running engine. It is
// not part of the in-process arbitration API; it exists purely so the
// library can be observed from outside the process that embeds it.
package diag

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cuemby/arbiter/pkg/metrics"
)

// ComponentHealth tracks the health of a single component.
type ComponentHealth struct {
	Name    string
	Healthy bool
	Message string
	Updated time.Time
}

// Checker tracks component health for the /health and /ready endpoints.
type Checker struct {
	mu         sync.RWMutex
	components map[string]ComponentHealth
	startTime  time.Time
	version    string
}

// NewChecker creates an empty health checker.
func NewChecker(version string) *Checker {
	return &Checker{
		components: make(map[string]ComponentHealth),
		startTime:  time.Now(),
		version:    version,
	}
}

// RegisterComponent registers or replaces a component's health state.
func (c *Checker) RegisterComponent(name string, healthy bool, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.components[name] = ComponentHealth{
		Name:    name,
		Healthy: healthy,
		Message: message,
		Updated: time.Now(),
	}
}

// Status represents the /health response.
type Status struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

func (c *Checker) health() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := "healthy"
	components := make(map[string]string, len(c.components))
	for name, comp := range c.components {
		if !comp.Healthy {
			status = "unhealthy"
			components[name] = "unhealthy: " + comp.Message
		} else {
			components[name] = "healthy"
		}
	}

	return Status{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).String(),
	}
}

// ReadyResponse represents the /ready response.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

func (c *Checker) ready() ReadyResponse {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := "ready"
	statusText := "ready"
	var message string
	checks := make(map[string]string, len(c.components))

	// The engine is ready once the registry and arbiter components have
	// reported in; other components are informational only.
	for _, required := range []string{"registry", "arbiter"} {
		comp, ok := c.components[required]
		switch {
		case !ok:
			statusText = "not_ready"
			message = "waiting for " + required + " initialization"
			checks[required] = "not registered"
		case !comp.Healthy:
			statusText = "not_ready"
			message = "waiting for " + required
			checks[required] = "not ready: " + comp.Message
		default:
			checks[required] = "ready"
		}
	}
	if statusText != "ready" {
		status = "not ready"
	}

	return ReadyResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
		Message:   message,
	}
}

// Server serves /health, /ready, and /metrics over HTTP.
type Server struct {
	checker *Checker
	mux     *http.ServeMux
}

// NewServer creates a diagnostics HTTP server backed by checker.
func NewServer(checker *Checker) *Server {
	mux := http.NewServeMux()
	s := &Server{checker: checker, mux: mux}

	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/ready", s.readyHandler)
	mux.Handle("/metrics", metrics.Handler())

	return s
}

// Start starts the diagnostics HTTP server; it blocks until the server
// stops or errors.
func (s *Server) Start(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server.ListenAndServe()
}

// Handler returns the HTTP handler for embedding in another server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := s.checker.health()
	w.Header().Set("Content-Type", "application/json")
	if status.Status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(status)
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ready := s.checker.ready()
	w.Header().Set("Content-Type", "application/json")
	if ready.Status != "ready" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(ready)
}
