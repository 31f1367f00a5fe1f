package v1

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/risktor/risktor/pkg/server/api"
	"github.com/risktor/risktor/pkg/storage"
)

func TestAnalyticsSummaryHandler_Success(t *testing.T) {
	mockStorage := &mockStorageBackend{
		analytics: &storage.Analytics{
			TotalScans:         12,
			CompletedScans:     10,
			FailedScans:        2,
			TotalAssets:        84,
			TotalFindings:      31,
			FindingsBySeverity: storage.SeverityCounts{High: 4, Medium: 12, Low: 15},
			AssetsByRiskLevel:  storage.SeverityCounts{Critical: 1, High: 6, Medium: 20, Low: 57},
			AvgDuration:        42.5,
			LastScanTime:       "2025-06-01T10:00:00Z",
		},
	}

	deps := &api.Deps{Storage: mockStorage}
	handler := AnalyticsSummaryHandler(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/summary", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var summary struct {
		PeriodDays         int                    `json:"period_days"`
		TotalScans         int                    `json:"total_scans"`
		CompletedScans     int                    `json:"completed_scans"`
		FailedScans        int                    `json:"failed_scans"`
		TotalAssets        int                    `json:"total_assets"`
		TotalFindings      int                    `json:"total_findings"`
		FindingsBySeverity storage.SeverityCounts `json:"findings_by_severity"`
		AssetsByRiskLevel  storage.SeverityCounts `json:"assets_by_risk_level"`
		AvgDuration        float64                `json:"avg_duration_seconds"`
		LastScanTime       string                 `json:"last_scan_time"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&summary))
	require.Equal(t, defaultAnalyticsDays, summary.PeriodDays)
	require.Equal(t, 12, summary.TotalScans)
	require.Equal(t, 10, summary.CompletedScans)
	require.Equal(t, 2, summary.FailedScans)
	require.Equal(t, 84, summary.TotalAssets)
	require.Equal(t, 31, summary.TotalFindings)
	require.Equal(t, 4, summary.FindingsBySeverity.High)
	require.Equal(t, 57, summary.AssetsByRiskLevel.Low)
	require.Equal(t, 42.5, summary.AvgDuration)
	require.Equal(t, "2025-06-01T10:00:00Z", summary.LastScanTime)
}

func TestAnalyticsSummaryHandler_CustomPeriod(t *testing.T) {
	mockStorage := &mockStorageBackend{}

	deps := &api.Deps{Storage: mockStorage}
	handler := AnalyticsSummaryHandler(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/summary?days=7", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var summary struct {
		PeriodDays int `json:"period_days"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&summary))
	require.Equal(t, 7, summary.PeriodDays)

	// The window passed to storage spans the requested days, ending now.
	window := mockStorage.gotPeriod.End.Sub(mockStorage.gotPeriod.Start)
	require.InDelta(t, 7*24*time.Hour, window, float64(time.Hour))
	require.WithinDuration(t, time.Now().UTC(), mockStorage.gotPeriod.End, time.Minute)
}

func TestAnalyticsSummaryHandler_InvalidDays(t *testing.T) {
	deps := &api.Deps{}
	handler := AnalyticsSummaryHandler(deps)

	for _, days := range []string{"abc", "0", "-5", "366"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/summary?days="+days, nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		require.Equal(t, http.StatusBadRequest, w.Code, "days=%s", days)
		require.Contains(t, w.Body.String(), "INVALID_QUERY")
	}
}

func TestAnalyticsSummaryHandler_StorageError(t *testing.T) {
	mockStorage := &mockStorageBackend{
		analyticsError: fmt.Errorf("storage backend error"),
	}

	deps := &api.Deps{Storage: mockStorage}
	handler := AnalyticsSummaryHandler(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/summary", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAnalyticsSummaryHandler_NoBackend(t *testing.T) {
	deps := &api.Deps{Storage: nil}
	handler := AnalyticsSummaryHandler(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analytics/summary", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Contains(t, w.Body.String(), "no storage backend configured")
}
