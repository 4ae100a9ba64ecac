package observability

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// HealthChecker manages liveness and readiness state for the
// /healthz and /readyz probes.
type HealthChecker struct {
	ready     atomic.Bool
	startTime time.Time
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		startTime: time.Now(),
	}
}

// SetReady marks the service as ready to accept traffic: DB connected,
// NATS connected, engine constructed.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// LivenessHandler returns HTTP 200 if the process is alive.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "alive",
		"uptime": time.Since(h.startTime).String(),
	})
}

// ReadinessHandler returns HTTP 200 if the service is ready, 503
// otherwise.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.ready.Load() {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ready",
		})
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "not_ready",
		})
	}
}
