// Package server exposes the knowledge-base HTTP API with health probes,
// metrics and graceful shutdown.
package server

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// probeTimeout bounds the checks run by /healthz.
const probeTimeout = 5 * time.Second

// HealthCheck is the outcome of one dependency check.
type HealthCheck struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// HealthResponse is the body of the probe endpoints.
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Version   string        `json:"version,omitempty"`
	Checks    []HealthCheck `json:"checks,omitempty"`
}

// HealthChecker performs a health check.
type HealthChecker func(ctx context.Context) HealthCheck

// Probes serves the liveness, readiness and dependency endpoints.
type Probes struct {
	mu      sync.RWMutex
	checks  map[string]HealthChecker
	version string
	ready   bool
	live    bool
}

// NewProbes creates probes that start live and not ready.
func NewProbes(version string) *Probes {
	return &Probes{
		checks:  make(map[string]HealthChecker),
		version: version,
		live:    true,
	}
}

// RegisterCheck adds a dependency check to /healthz.
func (p *Probes) RegisterCheck(name string, checker HealthChecker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checks[name] = checker
}

// SetReady marks the server as ready to accept traffic.
func (p *Probes) SetReady(ready bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ready = ready
}

// SetLive marks the server as live (or not).
func (p *Probes) SetLive(live bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.live = live
}

// Register mounts /healthz, /readyz and /livez on mux.
func (p *Probes) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", p.handleHealth)
	mux.HandleFunc("GET /readyz", p.handleReady)
	mux.HandleFunc("GET /livez", p.handleLive)
}

// Check runs every registered check. One unhealthy check makes the whole
// response unhealthy; degraded checks only degrade it.
func (p *Probes) Check(ctx context.Context) HealthResponse {
	p.mu.RLock()
	names := make([]string, 0, len(p.checks))
	checks := make(map[string]HealthChecker, len(p.checks))
	for name, checker := range p.checks {
		names = append(names, name)
		checks[name] = checker
	}
	p.mu.RUnlock()
	sort.Strings(names)

	resp := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   p.version,
		Checks:    make([]HealthCheck, 0, len(names)),
	}
	for _, name := range names {
		check := checks[name](ctx)
		check.Name = name
		resp.Checks = append(resp.Checks, check)

		switch {
		case check.Status == HealthStatusUnhealthy:
			resp.Status = HealthStatusUnhealthy
		case check.Status == HealthStatusDegraded && resp.Status == HealthStatusHealthy:
			resp.Status = HealthStatusDegraded
		}
	}
	return resp
}

func (p *Probes) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	resp := p.Check(ctx)
	status := http.StatusOK
	if resp.Status == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, resp)
}

func (p *Probes) handleReady(w http.ResponseWriter, r *http.Request) {
	p.mu.RLock()
	ready := p.ready
	p.mu.RUnlock()
	p.respondFlag(w, ready)
}

func (p *Probes) handleLive(w http.ResponseWriter, r *http.Request) {
	p.mu.RLock()
	live := p.live
	p.mu.RUnlock()
	p.respondFlag(w, live)
}

func (p *Probes) respondFlag(w http.ResponseWriter, ok bool) {
	resp := HealthResponse{Status: HealthStatusHealthy, Timestamp: time.Now().UTC()}
	if !ok {
		resp.Status = HealthStatusUnhealthy
		respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// VectorStoreChecker reports the store unhealthy when checkFn fails; no
// request can be served without it.
func VectorStoreChecker(checkFn func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		if err := checkFn(ctx); err != nil {
			return HealthCheck{Status: HealthStatusUnhealthy, Message: "Vector store unavailable: " + err.Error()}
		}
		return HealthCheck{Status: HealthStatusHealthy, Message: "Vector store OK"}
	}
}

// EmbeddingChecker reports the embedding model unhealthy when checkFn fails.
func EmbeddingChecker(model string, checkFn func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		if err := checkFn(ctx); err != nil {
			return HealthCheck{Status: HealthStatusUnhealthy, Message: "Embedding model " + model + " unavailable: " + err.Error()}
		}
		return HealthCheck{Status: HealthStatusHealthy, Message: "Embedding model " + model + " loaded"}
	}
}

// TemporalChecker degrades health when Temporal is unreachable, since only
// asynchronous ingestion depends on it.
func TemporalChecker(checkFn func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		if err := checkFn(ctx); err != nil {
			return HealthCheck{Status: HealthStatusDegraded, Message: "Temporal connection failed: " + err.Error()}
		}
		return HealthCheck{Status: HealthStatusHealthy, Message: "Temporal connection OK"}
	}
}
