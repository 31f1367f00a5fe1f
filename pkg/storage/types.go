package storage

import "time"

// ScanMetadata contains metadata about a scan run.
//
// One scan run covers a single root domain: discovery, enrichment, and
// risk analysis of every asset found under it. Aggregate counters are
// duplicated here so listings and analytics never have to parse the
// per-asset JSONL data files.
type ScanMetadata struct {
	// ID is the unique identifier for the scan (UUID v4).
	ID string `json:"id"`

	// OrgID identifies the organization that owns this scan.
	// The file-based backend uses "default".
	OrgID string `json:"org_id"`

	// UserID identifies the user who created the scan.
	// The file-based backend uses "local".
	UserID string `json:"user_id"`

	// Domain is the root domain the scan was requested for.
	// Example: "example.com"
	Domain string `json:"domain"`

	// IncludeSubdomains records whether subdomain discovery was requested.
	IncludeSubdomains bool `json:"include_subdomains"`

	// RequestedBy is the free-form requester identity from the scan request.
	RequestedBy string `json:"requested_by,omitempty"`

	// Status indicates the current state of the scan.
	Status ScanStatus `json:"status"`

	// Progress is the completion percentage, 0 to 100. It never decreases.
	Progress int `json:"progress"`

	// Phase names the pipeline stage currently running.
	// Valid values: "discovery", "enrichment", "analysis".
	Phase string `json:"phase,omitempty"`

	// StartedAt is when the scan was started (UTC).
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the scan finished (UTC).
	// Zero value if scan is still running.
	CompletedAt time.Time `json:"completed_at,omitzero"`

	// Duration is the scan duration in seconds.
	// Only set when scan is completed.
	Duration int `json:"duration_seconds,omitempty"`

	// Aggregate statistics (for fast filtering without reading JSONL files)

	// AssetCount is the number of assets discovered.
	AssetCount int `json:"asset_count"`

	// FindingCounts holds detector finding counts by severity.
	FindingCounts SeverityCounts `json:"finding_counts"`

	// RiskCounts holds asset counts by assessed risk level.
	RiskCounts SeverityCounts `json:"risk_counts"`

	// TopRiskScore is the highest risk score across all assets (0 to 100).
	TopRiskScore int `json:"top_risk_score,omitempty"`

	// StorageLocation is the scan data directory relative to the workspace root.
	StorageLocation string `json:"storage_location,omitempty"`

	// ErrorMessage contains error details if the scan failed.
	ErrorMessage string `json:"error_message,omitempty"`

	// CreatedAt is when the scan metadata was first created (UTC).
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the scan metadata was last updated (UTC).
	UpdatedAt time.Time `json:"updated_at"`

	// Extensions is an opaque field for backend-specific metadata.
	//
	// The file-based backend intentionally does not persist this field
	// (json:"-" tag); it stays single-tenant and simple. A database-backed
	// implementation can persist it for org-scoped queries without
	// modifying core types.
	Extensions map[string]any `json:"-"`
}

// SeverityCounts holds per-severity counters. It is used both for detector
// findings and for asset risk levels.
type SeverityCounts struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Total returns the sum across all severities.
func (c SeverityCounts) Total() int {
	return c.Critical + c.High + c.Medium + c.Low
}

// Add accumulates another set of counts into c.
func (c *SeverityCounts) Add(other SeverityCounts) {
	c.Critical += other.Critical
	c.High += other.High
	c.Medium += other.Medium
	c.Low += other.Low
}

// ScanFilter specifies criteria for filtering and sorting scans.
type ScanFilter struct {
	// Status filters by scan status (empty = all statuses).
	Status string

	// Domain filters by domain substring match (empty = all domains).
	Domain string

	// Limit is the maximum number of results to return (0 = no limit).
	Limit int

	// Offset is the number of results to skip (for pagination).
	Offset int

	// SortBy specifies the field to sort by.
	// Valid values: "time" (default), "domain", "status"
	SortBy string

	// SortOrder specifies sort direction.
	// Valid values: "desc" (default), "asc"
	SortOrder string

	// Extensions is an opaque field for backend-specific filter criteria.
	// The file-based backend ignores it.
	Extensions map[string]any `json:"-"`
}

// ScanUpdates specifies fields to update in a scan.
//
// Only non-nil fields are applied (partial update).
type ScanUpdates struct {
	Status          *ScanStatus     `json:"status,omitempty"`
	Progress        *int            `json:"progress,omitempty"`
	Phase           *string         `json:"phase,omitempty"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	Duration        *int            `json:"duration_seconds,omitempty"`
	AssetCount      *int            `json:"asset_count,omitempty"`
	FindingCounts   *SeverityCounts `json:"finding_counts,omitempty"`
	RiskCounts      *SeverityCounts `json:"risk_counts,omitempty"`
	TopRiskScore    *int            `json:"top_risk_score,omitempty"`
	ErrorMessage    *string         `json:"error_message,omitempty"`
	StorageLocation *string         `json:"storage_location,omitempty"`
	Extensions      *map[string]any `json:"-"`
}

// DataType represents the type of scan data file.
type DataType string

// Data file types.
const (
	// DataTypeMetadata is the scan metadata file (metadata.json).
	DataTypeMetadata DataType = "metadata.json"

	// DataTypeAssets is the asset records file (assets.jsonl).
	// Format: one JSON object per line, each a fully enriched and
	// scored asset record including its findings.
	DataTypeAssets DataType = "assets.jsonl"
)

// String returns the string representation of DataType.
func (d DataType) String() string {
	return string(d)
}

// IsValid checks if the DataType is valid.
func (d DataType) IsValid() bool {
	switch d {
	case DataTypeMetadata, DataTypeAssets:
		return true
	default:
		return false
	}
}

// ScanStatus represents valid scan status values.
type ScanStatus string

// Valid scan statuses.
const (
	StatusPending   ScanStatus = "pending"
	StatusRunning   ScanStatus = "running"
	StatusCompleted ScanStatus = "completed"
	StatusFailed    ScanStatus = "failed"
	StatusCancelled ScanStatus = "canceled"
)

// String returns the string representation of ScanStatus.
func (s ScanStatus) String() string {
	return string(s)
}

// IsValid checks if the ScanStatus is valid.
func (s ScanStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the status indicates the scan is finished.
func (s ScanStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}
