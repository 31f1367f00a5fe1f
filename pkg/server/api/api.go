package api

import (
	"sync/atomic"
	"time"

	"github.com/risktor/risktor/pkg/storage"
)

// Deps holds dependencies for API handlers.
// This pattern enables dependency injection and easier testing.
type Deps struct {
	// Storage backend for scan metadata and asset records.
	Storage storage.Backend

	// Jobs accepts scan requests for background execution.
	// Actual type: *jobs.Manager (must implement v1.ScanSubmitter).
	// Type asserted in the router; scan submission is disabled when
	// absent or of the wrong type.
	Jobs any

	// Config holds API-level configuration (timeouts, limits).
	Config Config

	// Ready flag for the readiness check.
	Ready *atomic.Bool
}

// Config bounds individual API requests.
type Config struct {
	// HandlerTimeout caps a single request when the client supplied no
	// deadline of its own. Zero disables the cap.
	HandlerTimeout time.Duration

	// MaxBodyBytes caps request body reads.
	MaxBodyBytes int64
}

// DefaultConfig returns the API request limits used in serve mode.
func DefaultConfig() Config {
	return Config{
		HandlerTimeout: 30 * time.Second,
		MaxBodyBytes:   1 << 20, // 1 MiB
	}
}

// ScanSummary is the scan list item returned by GET /api/v1/scans.
type ScanSummary struct {
	ID           string                 `json:"id"`
	Domain       string                 `json:"domain"`
	Status       string                 `json:"status"`
	Progress     int                    `json:"progress"`
	Phase        string                 `json:"phase,omitempty"`
	StartTime    string                 `json:"start_time,omitempty"`
	EndTime      string                 `json:"end_time,omitempty"`
	AssetCount   int                    `json:"asset_count"`
	TopRiskScore int                    `json:"top_risk_score"`
	RiskCounts   storage.SeverityCounts `json:"risk_counts"`
}

// ScanRun is the full snapshot returned by GET /api/v1/scans/{id}.
// It is well-formed for every run state: a pending run has empty results,
// a failed run carries its error under results.error.
type ScanRun struct {
	ID                string         `json:"id"`
	Domain            string         `json:"domain"`
	IncludeSubdomains bool           `json:"include_subdomains"`
	Status            string         `json:"status"`
	Progress          int            `json:"progress"`
	Phase             string         `json:"phase,omitempty"`
	StartTime         string         `json:"start_time,omitempty"`
	EndTime           string         `json:"end_time,omitempty"`
	Results           map[string]any `json:"results"`
}
