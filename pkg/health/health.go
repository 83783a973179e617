// Package health exposes liveness and readiness probes over HTTP.
//
// Checks run on demand when a probe endpoint is hit, each under its own
// timeout. Liveness answers "is the process able to serve at all" and
// readiness answers "are the dependencies this process needs reachable";
// register dependency checks (database, cache) as readiness checks only, so a
// flaky dependency drains traffic without restarting the process.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// CheckFunc probes one component. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

type check struct {
	name    string
	timeout time.Duration
	fn      CheckFunc
}

// Registry holds named liveness and readiness checks.
type Registry struct {
	mu        sync.RWMutex
	liveness  []check
	readiness []check
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// AddLiveness registers a liveness check evaluated by the liveness handler.
func (r *Registry) AddLiveness(name string, timeout time.Duration, fn CheckFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.liveness = append(r.liveness, check{name: name, timeout: timeout, fn: fn})
}

// AddReadiness registers a readiness check evaluated by the readiness handler.
func (r *Registry) AddReadiness(name string, timeout time.Duration, fn CheckFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readiness = append(r.readiness, check{name: name, timeout: timeout, fn: fn})
}

type probeResult struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func runChecks(ctx context.Context, checks []check) probeResult {
	res := probeResult{Status: "ok"}
	if len(checks) > 0 {
		res.Checks = make(map[string]string, len(checks))
	}
	for _, c := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := c.fn(checkCtx)
		cancel()

		if err != nil {
			res.Status = "unavailable"
			res.Checks[c.name] = err.Error()
		} else {
			res.Checks[c.name] = "ok"
		}
	}
	return res
}

func probeHandler(r *Registry, pick func(*Registry) []check) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		r.mu.RLock()
		checks := pick(r)
		r.mu.RUnlock()

		res := runChecks(req.Context(), checks)

		w.Header().Set("Content-Type", "application/json")
		if res.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(res)
	}
}

// LivenessHandler serves the liveness probe.
func (r *Registry) LivenessHandler() http.HandlerFunc {
	return probeHandler(r, func(r *Registry) []check { return r.liveness })
}

// ReadinessHandler serves the readiness probe.
func (r *Registry) ReadinessHandler() http.HandlerFunc {
	return probeHandler(r, func(r *Registry) []check { return r.readiness })
}
