package v1

import (
	"net/http"
	"sync/atomic"
)

// ReadyzHandler handles GET /readyz
//
// Reports whether the server has finished startup and can serve traffic.
// Liveness (/healthz) lives in the router package; readiness flips with
// the Ready flag so load balancers can drain the process during shutdown.
func ReadyzHandler(ready *atomic.Bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("Not Ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Ready"))
	}
}
