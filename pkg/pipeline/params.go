package pipeline

import (
	"time"

	"github.com/risktor/risktor/pkg/asset"
	"github.com/risktor/risktor/pkg/storage"
)

// Params defines the input required to initiate a scan run. It corresponds
// to one immutable ScanRequest: the orchestrator consumes it exactly once.
type Params struct {
	// Domain is the scan root. Accepts user-level noise (scheme, path,
	// mixed case); normalization happens inside Run.
	Domain string

	// IncludeSubdomains enables subdomain enumeration during discovery.
	IncludeSubdomains bool

	// RequestedBy is a free-form requester identity carried into the scan
	// metadata. Empty means the local CLI user.
	RequestedBy string

	// ScanID pre-assigns the run ID. The job runner sets it so the ID
	// returned at accept time names the run that executes; empty generates
	// a fresh UUID.
	ScanID string
}

// Result is the outcome of one scan run.
type Result struct {
	ScanID    string
	Domain    string
	Status    storage.ScanStatus
	StartTime time.Time
	EndTime   time.Time

	// Records holds the fully formed per-asset results in discovery order.
	Records []asset.Record

	Stats Stats
}

// Stats aggregates the per-run counters that land in scan metadata.
type Stats struct {
	AssetCount    int
	AssetsByType  map[asset.Type]int
	FindingCounts storage.SeverityCounts
	RiskCounts    storage.SeverityCounts
	TopRiskScore  int

	// FailedAssets counts assets recorded minimally after a pipeline
	// failure. They are included in AssetCount.
	FailedAssets int
}

// collectStats derives the aggregate counters from the finished records.
func collectStats(records []asset.Record) Stats {
	stats := Stats{
		AssetCount:   len(records),
		AssetsByType: make(map[asset.Type]int, 3),
	}

	for _, rec := range records {
		stats.AssetsByType[rec.Type]++
		if rec.PipelineError != "" {
			stats.FailedAssets++
		}

		for _, f := range rec.Findings {
			bumpSeverity(&stats.FindingCounts, f.Severity)
		}
		if rec.Risk != nil {
			bumpSeverity(&stats.RiskCounts, rec.Risk.Level)
			if rec.Risk.Score > stats.TopRiskScore {
				stats.TopRiskScore = rec.Risk.Score
			}
		}
	}
	return stats
}

func bumpSeverity(counts *storage.SeverityCounts, severity asset.Severity) {
	switch severity {
	case asset.SeverityCritical:
		counts.Critical++
	case asset.SeverityHigh:
		counts.High++
	case asset.SeverityMedium:
		counts.Medium++
	case asset.SeverityLow:
		counts.Low++
	}
}
