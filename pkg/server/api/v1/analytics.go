package v1

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/risktor/risktor/pkg/server/api"
	"github.com/risktor/risktor/pkg/storage"
)

const (
	defaultAnalyticsDays = 30
	maxAnalyticsDays     = 365
)

// AnalyticsSummaryHandler handles GET /api/v1/analytics/summary
//
// Returns aggregate statistics across scan runs in the requested window.
//
// Query parameters:
//   - days: Window length in days counting back from now (1-365, default 30)
//
// Response format:
//
//	{
//	  "period_days": 30,
//	  "total_scans": 12,
//	  "completed_scans": 10,
//	  "failed_scans": 2,
//	  "total_assets": 84,
//	  "total_findings": 31,
//	  "findings_by_severity": {"critical": 0, "high": 4, "medium": 12, "low": 15},
//	  "assets_by_risk_level": {"critical": 1, "high": 6, "medium": 20, "low": 57},
//	  "avg_duration_seconds": 42.5,
//	  "last_scan_time": "2025-06-01T10:00:00Z"
//	}
func AnalyticsSummaryHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		days := defaultAnalyticsDays
		if raw := r.URL.Query().Get("days"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				api.WriteJSONError(w, http.StatusBadRequest, "Bad Request", "INVALID_QUERY", "days must be an integer")
				return
			}
			if parsed < 1 || parsed > maxAnalyticsDays {
				api.WriteJSONError(w, http.StatusBadRequest, "Bad Request", "INVALID_QUERY", "days must be between 1 and 365")
				return
			}
			days = parsed
		}

		if deps.Storage == nil {
			api.WriteError(w, r, errors.New("no storage backend configured"))
			return
		}

		now := time.Now().UTC()
		period := storage.TimePeriod{
			Start: now.AddDate(0, 0, -days),
			End:   now,
		}

		analytics, err := deps.Storage.Scans().GetAnalytics(r.Context(), orgID, period)
		if err != nil {
			api.WriteError(w, r, err)
			return
		}

		api.WriteJSON(w, http.StatusOK, map[string]any{
			"period_days":          days,
			"total_scans":          analytics.TotalScans,
			"completed_scans":      analytics.CompletedScans,
			"failed_scans":         analytics.FailedScans,
			"total_assets":         analytics.TotalAssets,
			"total_findings":       analytics.TotalFindings,
			"findings_by_severity": analytics.FindingsBySeverity,
			"assets_by_risk_level": analytics.AssetsByRiskLevel,
			"avg_duration_seconds": analytics.AvgDuration,
			"last_scan_time":       analytics.LastScanTime,
		})
	}
}
