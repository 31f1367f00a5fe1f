// Package httpx assembles the HTTP surface of serve mode: route table,
// CORS, and liveness. Handlers live in the api/v1 package; this package
// only decides what gets mounted.
package httpx

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/risktor/risktor/pkg/config"
	"github.com/risktor/risktor/pkg/server/api"
	v1 "github.com/risktor/risktor/pkg/server/api/v1"
)

// HealthzHandler handles GET /healthz
//
// Pure liveness: always 200 while the process can serve a request.
// Readiness is separate (see v1.ReadyzHandler).
func HealthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// NewRouter builds the serve-mode route table.
//
// Scan reads (list, get, assets, analytics) are always mounted. Scan
// submission (POST /api/v1/scans) is mounted only when deps.Jobs carries a
// working submitter; without one the route stays absent and clients get
// 404 rather than a submission that can never run.
func NewRouter(cfg config.ServerConfig, deps *api.Deps) http.Handler {
	logger := log.With().Str("component", "httpx.router").Logger()

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", HealthzHandler)
	mux.Handle("GET /readyz", v1.ReadyzHandler(deps.Ready))

	mux.Handle("GET /api/v1/scans", v1.ListScansHandler(deps))
	mux.Handle("GET /api/v1/scans/{id}", v1.GetScanHandler(deps))
	mux.Handle("GET /api/v1/scans/{id}/assets", v1.GetScanAssetsHandler(deps))
	mux.Handle("GET /api/v1/analytics/summary", v1.AnalyticsSummaryHandler(deps))

	switch {
	case deps.Jobs == nil:
		logger.Info().Msg("scan submitter not provided - skipping scan submission route")
	default:
		submitter, ok := deps.Jobs.(v1.ScanSubmitter)
		if !ok {
			logger.Warn().
				Str("expected", "v1.ScanSubmitter").
				Str("actual", fmt.Sprintf("%T", deps.Jobs)).
				Msg("scan submitter type assertion failed - skipping scan submission route")
			break
		}
		logger.Info().Msg("mounting scan submission route")
		mux.Handle("POST /api/v1/scans", v1.CreateScanHandler(deps, submitter))
	}

	return corsMiddleware(mux)
}

// corsMiddleware adds permissive CORS headers and answers preflight
// requests before they reach the method-scoped mux patterns.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
