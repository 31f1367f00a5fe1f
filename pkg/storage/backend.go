// Package storage persists scan runs and their asset records.
//
// The Backend interface abstracts storage so the pipeline, the HTTP API,
// and the CLI all talk to the same contract. The default implementation
// is LocalBackend: metadata.json plus JSONL data files under a workspace
// directory, guarded by file locks. A database-backed implementation can
// replace it by overriding DefaultFactory.
package storage

import (
	"context"
	"io"
	"time"
)

// Backend is the main storage abstraction interface.
//
// Backend provides access to domain-specific stores (currently ScanStore).
// Keeping the surface store-oriented lets future backends add stores
// without touching existing call sites.
//
// Thread-safety: All methods must be safe for concurrent use.
type Backend interface {
	// Initialize prepares the backend for use, creating the workspace
	// directory layout if it does not exist.
	Initialize(ctx context.Context) error

	// Close releases resources held by the backend.
	Close() error

	// Scans returns the scan storage interface.
	//
	// All scan-related operations (CRUD, data files, analytics) go through
	// the returned ScanStore interface.
	Scans() ScanStore

	// GarbageCollect removes scans that violate configured retention
	// policies: scans older than MaxAgeDays, then scans exceeding
	// MaxScans count (oldest deleted first).
	//
	// Returns statistics about deleted scans and any errors encountered.
	GarbageCollect(ctx context.Context, opts GCOptions) (*GCResult, error)
}

// ScanStore manages scan metadata and data files.
//
// This interface handles all scan-related storage operations:
// - Metadata CRUD (List, Get, Create, Update, Delete)
// - Data file I/O (Read, Write, Append for JSONL files)
// - Analytics aggregation
//
// Thread-safety: All methods must be safe for concurrent use.
type ScanStore interface {
	// Metadata operations (fast queries for listings)

	// List returns a list of scans matching the given filter.
	//
	// The orgID parameter identifies the organization (the file-based
	// backend uses "default"). Results are filtered and sorted according
	// to the filter parameters.
	//
	// Returns empty slice if no scans match the filter.
	//
	// Deprecated: Use ListPaginated for better scalability with large datasets.
	List(ctx context.Context, orgID string, filter ScanFilter) ([]*ScanMetadata, error)

	// ListPaginated returns a paginated list of scans matching the given filter.
	//
	// Parameters:
	//   - orgID: Organization identifier
	//   - filter: Filtering criteria (status, domain)
	//   - cursor: Pagination cursor (empty string for first page)
	//   - limit: Maximum number of results (1-100, default 50)
	//
	// Returns the page, a cursor for the next page (empty if no more
	// results), and the total count of scans matching the filter.
	// The cursor is an opaque URL-safe string; clients pass it back as-is.
	ListPaginated(ctx context.Context, orgID string, filter ScanFilter, cursor string, limit int) (scans []*ScanMetadata, nextCursor string, total int, err error)

	// Get retrieves metadata for a specific scan.
	//
	// Returns ErrNotFound if the scan does not exist.
	Get(ctx context.Context, orgID, scanID string) (*ScanMetadata, error)

	// Create creates a new scan with the given metadata.
	//
	// The scan metadata should have at minimum: ID, Domain, Status.
	// Returns ErrAlreadyExists if a scan with the same ID already exists.
	Create(ctx context.Context, orgID string, scan *ScanMetadata) error

	// Update updates metadata for an existing scan.
	//
	// Only non-nil fields in updates are applied (partial update).
	// Returns ErrNotFound if the scan does not exist.
	Update(ctx context.Context, orgID, scanID string, updates ScanUpdates) error

	// Delete removes a scan and all its associated data.
	//
	// This is a destructive operation and cannot be undone.
	// Returns ErrNotFound if the scan does not exist.
	Delete(ctx context.Context, orgID, scanID string) error

	// Data operations (JSONL files containing asset records)

	// ReadData opens a data file for reading.
	//
	// The caller is responsible for closing the returned ReadCloser.
	// Returns ErrNotFound if the data file does not exist.
	ReadData(ctx context.Context, orgID, scanID string, dataType DataType) (io.ReadCloser, error)

	// WriteData writes data to a file, replacing any existing content.
	//
	// The data is expected to be in JSONL format (one JSON object per line).
	WriteData(ctx context.Context, orgID, scanID string, dataType DataType, data io.Reader) error

	// AppendData appends data to an existing file.
	//
	// This is used for streaming asset records as the pipeline produces
	// them. The data should be complete JSONL lines (including newlines).
	//
	// Thread-safe: Multiple goroutines can append to the same file concurrently.
	AppendData(ctx context.Context, orgID, scanID string, dataType DataType, data []byte) error

	// Analytics operations

	// GetAnalytics returns aggregated scan statistics for an organization
	// over a time period. A zero TimePeriod covers all scans.
	GetAnalytics(ctx context.Context, orgID string, period TimePeriod) (*Analytics, error)
}

// TimePeriod represents a time range for analytics queries.
// Zero Start or End means unbounded on that side.
type TimePeriod struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls within the period.
func (p TimePeriod) Contains(t time.Time) bool {
	if !p.Start.IsZero() && t.Before(p.Start) {
		return false
	}
	if !p.End.IsZero() && t.After(p.End) {
		return false
	}
	return true
}

// Analytics contains aggregated statistics for an organization.
type Analytics struct {
	TotalScans         int            `json:"total_scans"`
	CompletedScans     int            `json:"completed_scans"`
	FailedScans        int            `json:"failed_scans"`
	TotalAssets        int            `json:"total_assets"`
	TotalFindings      int            `json:"total_findings"`
	FindingsBySeverity SeverityCounts `json:"findings_by_severity"`
	AssetsByRiskLevel  SeverityCounts `json:"assets_by_risk_level"`
	AvgDuration        float64        `json:"avg_duration_seconds"`
	LastScanTime       string         `json:"last_scan_time,omitempty"`
}
