package server

import (
	"net/http"
	"sync/atomic"
)

// Health reports liveness and readiness. Readiness starts false and is
// flipped by the application once it accepts traffic.
type Health struct {
	ready atomic.Bool
}

// SetReady marks the service ready or not ready.
func (h *Health) SetReady(ready bool) { h.ready.Store(ready) }

// Ready reports the current readiness.
func (h *Health) Ready() bool { return h.ready.Load() }

// Liveness always answers 200 while the process serves HTTP.
func (h *Health) Liveness(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness answers 503 until SetReady(true).
func (h *Health) Readiness(w http.ResponseWriter, _ *http.Request) {
	if !h.Ready() {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
