package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"

	"github.com/risktor/risktor/pkg/config"
	"github.com/risktor/risktor/pkg/server/api"
	"github.com/risktor/risktor/pkg/storage"
)

func serverConfig() config.ServerConfig {
	return config.DefaultConfig().Server
}

func TestNewRouter(t *testing.T) {
	deps := &api.Deps{
		Ready: &atomic.Bool{},
	}
	router := NewRouter(serverConfig(), deps)

	require.NotNil(t, router)
}

func TestNewRouter_HealthzMounted(t *testing.T) {
	deps := &api.Deps{
		Ready: &atomic.Bool{},
	}
	router := NewRouter(serverConfig(), deps)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "OK", w.Body.String())
}

func TestNewRouter_ReadyzMounted(t *testing.T) {
	ready := &atomic.Bool{}
	deps := &api.Deps{Ready: ready}
	router := NewRouter(serverConfig(), deps)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	ready.Store(true)
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, w2.Code)
	require.Equal(t, "Ready", w2.Body.String())
}

func TestHealthzHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	HealthzHandler(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "OK", w.Body.String())
}

func TestHealthzHandler_AlwaysReturnsOK(t *testing.T) {
	// Test multiple calls to ensure idempotency
	for range 5 {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		w := httptest.NewRecorder()

		HealthzHandler(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		require.Equal(t, "OK", w.Body.String())
	}
}

// emptyBackend is a minimal storage backend whose scan store is empty.
type emptyBackend struct{}

func (emptyBackend) Initialize(context.Context) error { return nil }
func (emptyBackend) Close() error                     { return nil }
func (emptyBackend) Scans() storage.ScanStore         { return emptyScanStore{} }
func (emptyBackend) GarbageCollect(context.Context, storage.GCOptions) (*storage.GCResult, error) {
	return &storage.GCResult{}, nil
}

type emptyScanStore struct{}

func (emptyScanStore) Create(context.Context, string, *storage.ScanMetadata) error { return nil }
func (emptyScanStore) Get(_ context.Context, _, scanID string) (*storage.ScanMetadata, error) {
	return nil, storage.NewNotFoundError("scan", scanID)
}
func (emptyScanStore) List(context.Context, string, storage.ScanFilter) ([]*storage.ScanMetadata, error) {
	return nil, nil
}
func (emptyScanStore) ListPaginated(context.Context, string, storage.ScanFilter, string, int) ([]*storage.ScanMetadata, string, int, error) {
	return nil, "", 0, nil
}
func (emptyScanStore) Update(context.Context, string, string, storage.ScanUpdates) error { return nil }
func (emptyScanStore) Delete(context.Context, string, string) error                      { return nil }
func (emptyScanStore) ReadData(context.Context, string, string, storage.DataType) (io.ReadCloser, error) {
	return nil, storage.ErrNotSupported
}
func (emptyScanStore) WriteData(context.Context, string, string, storage.DataType, io.Reader) error {
	return nil
}
func (emptyScanStore) AppendData(context.Context, string, string, storage.DataType, []byte) error {
	return nil
}
func (emptyScanStore) GetAnalytics(context.Context, string, storage.TimePeriod) (*storage.Analytics, error) {
	return &storage.Analytics{}, nil
}

// fakeSubmitter satisfies v1.ScanSubmitter for mount testing.
type fakeSubmitter struct{}

func (fakeSubmitter) Submit(_ context.Context, _ string, _ bool) (string, error) {
	return "scan-test-1", nil
}

func TestScanReadRoutes_AlwaysMounted(t *testing.T) {
	deps := &api.Deps{
		Ready:   &atomic.Bool{},
		Storage: emptyBackend{},
		Config:  api.DefaultConfig(),
	}
	router := NewRouter(serverConfig(), deps)

	readEndpoints := []string{
		"/api/v1/scans",
		"/api/v1/scans/some-id",
		"/api/v1/scans/some-id/assets",
		"/api/v1/analytics/summary",
	}
	for _, path := range readEndpoints {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		// Handlers may answer 200 or 404 depending on data, but the
		// route itself must resolve to a JSON-speaking handler.
		require.Contains(t, w.Header().Get("Content-Type"), "application/json",
			"expected %s to be mounted", path)
	}
}

// TestSubmitRoute_NotMounted_WhenJobsNil tests that POST /api/v1/scans is
// absent when no submitter is configured.
func TestSubmitRoute_NotMounted_WhenJobsNil(t *testing.T) {
	// Capture logs
	var buf bytes.Buffer
	log.Logger = zerolog.New(&buf).Level(zerolog.InfoLevel)

	deps := &api.Deps{
		Ready:   &atomic.Bool{},
		Storage: emptyBackend{},
		Jobs:    nil, // No submitter
		Config:  api.DefaultConfig(),
	}

	router := NewRouter(serverConfig(), deps)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scans", strings.NewReader(`{"domain":"example.com"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code,
		"expected 404 for POST /api/v1/scans when Jobs=nil, got %d", w.Code)
	require.Contains(t, buf.String(), "scan submitter not provided - skipping scan submission route")
}

// TestSubmitRoute_NotMounted_WhenWrongType verifies that when Jobs exists
// but does NOT implement v1.ScanSubmitter, the route is NOT mounted and a
// warning is logged.
func TestSubmitRoute_NotMounted_WhenWrongType(t *testing.T) {
	// Capture logs
	var buf bytes.Buffer
	log.Logger = zerolog.New(&buf).Level(zerolog.InfoLevel)

	deps := &api.Deps{
		Ready:   &atomic.Bool{},
		Storage: emptyBackend{},
		Jobs:    struct{}{}, // wrong type, does not satisfy v1.ScanSubmitter
		Config:  api.DefaultConfig(),
	}

	router := NewRouter(serverConfig(), deps)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scans", strings.NewReader(`{"domain":"example.com"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)

	logStr := buf.String()
	require.Contains(t, logStr, "scan submitter type assertion failed")
	require.Contains(t, logStr, "httpx.router")
}

// TestSubmitRoute_Mounted_WhenSubmitterExists tests that POST /api/v1/scans
// works end to end when a submitter is present.
func TestSubmitRoute_Mounted_WhenSubmitterExists(t *testing.T) {
	// Capture logs
	var buf bytes.Buffer
	log.Logger = zerolog.New(&buf).Level(zerolog.InfoLevel)

	deps := &api.Deps{
		Ready:   &atomic.Bool{},
		Storage: emptyBackend{},
		Jobs:    fakeSubmitter{},
		Config:  api.DefaultConfig(),
	}

	router := NewRouter(serverConfig(), deps)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scans", strings.NewReader(`{"domain":"example.com"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		ScanID string `json:"scan_id"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Equal(t, "scan-test-1", resp.ScanID)

	require.Contains(t, buf.String(), "mounting scan submission route")
}

func TestRouter_CORSHeaders(t *testing.T) {
	deps := &api.Deps{
		Ready:   &atomic.Bool{},
		Storage: emptyBackend{},
	}
	router := NewRouter(serverConfig(), deps)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/scans", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	require.NotEmpty(t, w.Header().Get("Access-Control-Allow-Methods"))
}

func TestRouter_CORSPreflight(t *testing.T) {
	deps := &api.Deps{
		Ready:   &atomic.Bool{},
		Storage: emptyBackend{},
	}
	router := NewRouter(serverConfig(), deps)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/scans", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
