//go:build integration

package app_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/risktor/risktor/pkg/asset"
	"github.com/risktor/risktor/pkg/config"
	"github.com/risktor/risktor/pkg/pipeline"
	"github.com/risktor/risktor/pkg/risk"
	"github.com/risktor/risktor/pkg/server/app"
	"github.com/risktor/risktor/pkg/server/deps"
	"github.com/risktor/risktor/pkg/storage"
)

func init() {
	// Disable all logging for integration tests to reduce noise
	zerolog.SetGlobalLevel(zerolog.Disabled)
}

// fakeDiscoverer returns a fixed asset set so integration runs never
// touch the network.
type fakeDiscoverer struct{}

func (fakeDiscoverer) Discover(_ context.Context, domain string, includeSubdomains bool) ([]asset.Asset, error) {
	assets := []asset.Asset{
		{Value: domain, Type: asset.TypeDomain, DiscoveredVia: asset.SourceUserInput},
	}
	if includeSubdomains {
		assets = append(assets, asset.Asset{
			Value:         "www." + domain,
			Type:          asset.TypeSubdomain,
			ParentDomain:  domain,
			DiscoveredVia: asset.SourceCertLog,
		})
	}
	return assets, nil
}

type fakeEnricher struct{}

func (fakeEnricher) Enrich(_ context.Context, a asset.Asset) asset.EnrichedAsset {
	return asset.EnrichedAsset{
		Asset:     a,
		OpenPorts: []int{443},
		HTTP:      &asset.HTTPInfo{StatusCode: 200, Scheme: "https"},
	}
}

type fakeBank struct{}

func (fakeBank) Run(context.Context, *asset.EnrichedAsset) []asset.Finding { return nil }

// newTestPipeline builds a pipeline that completes instantly on stub stages.
func newTestPipeline(backend storage.Backend) *pipeline.Service {
	cfg := config.DefaultConfig()
	cfg.Scan.Concurrency = 2
	return pipeline.NewService(cfg).
		WithStorage(backend).
		WithDiscovererFactory(func() (pipeline.Discoverer, error) { return fakeDiscoverer{}, nil }).
		WithEnricherFactory(func() (pipeline.Enricher, error) { return fakeEnricher{}, nil }).
		WithBankFactory(func() (pipeline.DetectorBank, error) { return fakeBank{}, nil }).
		WithScorerFactory(func() (pipeline.Scorer, error) { return risk.New(""), nil })
}

func newTestBackend(t *testing.T) storage.Backend {
	t.Helper()
	ctx := context.Background()
	backend, err := storage.NewBackend(ctx, &storage.Config{WorkspaceRoot: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, backend.Initialize(ctx))
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

// TestServerFullLifecycle performs a comprehensive integration test of the
// server runtime.
//
// This test:
//   - Starts a real HTTP server with the scan API mounted
//   - Starts background job workers
//   - Submits a scan and polls it to completion
//   - Verifies readiness transitions
//   - Tests graceful shutdown
//
// Run with: go test -tags=integration -v ./pkg/server/app
func TestServerFullLifecycle(t *testing.T) {
	// Use a random port to avoid conflicts
	port := 19997

	cfg := config.DefaultConfig().Server
	cfg.Addr = "127.0.0.1"
	cfg.Port = port
	cfg.Jobs.Enabled = true
	cfg.Jobs.Workers = 2
	cfg.Jobs.Queue = 8

	backend := newTestBackend(t)
	logger := zerolog.Nop()
	d := deps.New(backend, newTestPipeline(backend), &logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverApp, err := app.New(ctx, cfg, d)
	require.NoError(t, err, "Failed to create server app")
	require.NotNil(t, serverApp)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- serverApp.Run(ctx)
	}()

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(baseURL + "/healthz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 50*time.Millisecond, "Server did not start in time")

	var scanID string

	t.Run("Healthz", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("Readyz", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/readyz")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("API_SubmitScan", func(t *testing.T) {
		body := strings.NewReader(`{"domain":"Example.com","include_subdomains":true}`)
		resp, err := http.Post(baseURL+"/api/v1/scans", "application/json", body)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusAccepted, resp.StatusCode)

		var accepted struct {
			ScanID string `json:"scan_id"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
		require.NotEmpty(t, accepted.ScanID)
		scanID = accepted.ScanID
	})

	t.Run("API_ScanCompletes", func(t *testing.T) {
		require.NotEmpty(t, scanID)

		var status string
		require.Eventually(t, func() bool {
			resp, err := http.Get(baseURL + "/api/v1/scans/" + scanID)
			if err != nil {
				return false
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return false
			}
			var run struct {
				Status   string `json:"status"`
				Progress int    `json:"progress"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
				return false
			}
			status = run.Status
			return run.Status == "completed" && run.Progress == 100
		}, 5*time.Second, 50*time.Millisecond, "scan did not complete, last status %q", status)
	})

	t.Run("API_ScanAssets", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/api/v1/scans/" + scanID + "/assets")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var payload struct {
			Assets []json.RawMessage `json:"assets"`
			Count  int               `json:"count"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		require.Equal(t, 2, payload.Count, "root domain plus one subdomain")
	})

	t.Run("API_ListScans", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/api/v1/scans")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

		var listing struct {
			Scans []struct {
				ID     string `json:"id"`
				Domain string `json:"domain"`
			} `json:"scans"`
			Total int `json:"total"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&listing))
		require.Equal(t, 1, listing.Total)
		require.Equal(t, scanID, listing.Scans[0].ID)
		require.Equal(t, "example.com", listing.Scans[0].Domain)
	})

	t.Run("API_GetScan_NotFound", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/api/v1/scans/nonexistent")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("API_AnalyticsSummary", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/api/v1/analytics/summary")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var summary struct {
			TotalScans     int `json:"total_scans"`
			CompletedScans int `json:"completed_scans"`
			TotalAssets    int `json:"total_assets"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
		require.Equal(t, 1, summary.TotalScans)
		require.Equal(t, 1, summary.CompletedScans)
		require.Equal(t, 2, summary.TotalAssets)
	})

	t.Run("CORS_Headers", func(t *testing.T) {
		resp, err := http.Get(baseURL + "/api/v1/scans")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
		require.NotEmpty(t, resp.Header.Get("Access-Control-Allow-Methods"))
	})

	t.Run("CORS_Preflight", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodOptions, baseURL+"/api/v1/scans", nil)
		require.NoError(t, err)

		client := &http.Client{}
		resp, err := client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("GracefulShutdown", func(t *testing.T) {
		cancel()

		select {
		case err := <-serverErr:
			require.NoError(t, err, "Server shutdown should complete without error")
		case <-time.After(5 * time.Second):
			t.Fatal("Server shutdown timeout")
		}

		_, err := http.Get(baseURL + "/healthz")
		require.Error(t, err, "Server should not accept connections after shutdown")
	})
}

// TestServerWithoutJobs verifies the API starts read-only when the jobs
// runner is disabled.
func TestServerWithoutJobs(t *testing.T) {
	port := 19998

	cfg := config.DefaultConfig().Server
	cfg.Addr = "127.0.0.1"
	cfg.Port = port
	cfg.Jobs.Enabled = false

	backend := newTestBackend(t)
	logger := zerolog.Nop()
	d := deps.New(backend, nil, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverApp, err := app.New(ctx, cfg, d)
	require.NoError(t, err)

	go serverApp.Run(ctx)

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(baseURL + "/healthz")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 50*time.Millisecond)

	// Reads work.
	resp, err := http.Get(baseURL + "/api/v1/scans")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Submission route is absent.
	post, err := http.Post(baseURL+"/api/v1/scans", "application/json",
		strings.NewReader(`{"domain":"example.com"}`))
	require.NoError(t, err)
	defer post.Body.Close()
	require.Equal(t, http.StatusNotFound, post.StatusCode)

	cancel()
	time.Sleep(100 * time.Millisecond)
}

// TestServerJobsEnabledRequiresPipeline verifies construction fails fast
// when jobs are enabled with no pipeline to run them.
func TestServerJobsEnabledRequiresPipeline(t *testing.T) {
	cfg := config.DefaultConfig().Server
	cfg.Jobs.Enabled = true

	logger := zerolog.Nop()
	d := deps.New(newTestBackend(t), nil, &logger)

	_, err := app.New(context.Background(), cfg, d)
	require.Error(t, err)
	require.Contains(t, err.Error(), "pipeline")
}
