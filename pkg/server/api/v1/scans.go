package v1

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/risktor/risktor/pkg/netutil"
	"github.com/risktor/risktor/pkg/server/api"
	"github.com/risktor/risktor/pkg/storage"
)

// DTO Evolution Policy
// The request/response payloads handled in this file are part of the public
// API contract. To evolve them safely without breaking existing clients:
//
// 1) Additive-only changes
//    - You MAY add new optional fields
//    - You MAY NOT remove or rename existing fields
//    - Breaking changes require a new API version (v2)
//
// 2) Zero-value semantics
//    - New fields MUST have safe zero-value behavior
//    - Prefer `omitempty` for optional JSON fields to preserve old behavior

const orgID = "default"

// ScanSubmitter accepts a scan request for background execution and
// returns its assigned scan ID. *jobs.Manager satisfies it; the router
// asserts api.Deps.Jobs to this interface.
type ScanSubmitter interface {
	Submit(ctx context.Context, domain string, includeSubdomains bool) (string, error)
}

// ListScansQuery holds the validated query parameters of GET /api/v1/scans.
type ListScansQuery struct {
	Status string
	Limit  int
	Cursor string
}

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// ParseListScansQuery validates the status, limit, and cursor parameters.
// The cursor is opaque; the storage layer rejects malformed values.
func ParseListScansQuery(r *http.Request) (ListScansQuery, error) {
	q := ListScansQuery{
		Limit:  defaultListLimit,
		Cursor: r.URL.Query().Get("cursor"),
	}

	if status := r.URL.Query().Get("status"); status != "" {
		if !storage.ScanStatus(status).IsValid() {
			return q, errors.New("invalid status filter: " + status)
		}
		q.Status = status
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return q, errors.New("limit must be an integer")
		}
		if limit < 1 || limit > maxListLimit {
			return q, errors.New("limit must be between 1 and 100")
		}
		q.Limit = limit
	}

	return q, nil
}

// CreateScanRequest is the body of POST /api/v1/scans.
type CreateScanRequest struct {
	// Domain is the root domain to scan.
	Domain string `json:"domain"`

	// IncludeSubdomains enables subdomain discovery for this run.
	IncludeSubdomains bool `json:"include_subdomains,omitempty"`
}

// CreateScanResponse acknowledges an accepted scan.
type CreateScanResponse struct {
	ScanID string `json:"scan_id"`
}

// ListScansHandler handles GET /api/v1/scans
//
// Returns paginated scan metadata with cursor-based pagination.
//
// Query parameters:
//   - status: Filter by status (pending, running, completed, failed)
//   - limit: Number of results per page (1-100, default 50)
//   - cursor: Pagination cursor (empty for first page)
//
// Response format:
//
//	{
//	  "scans": [
//	    {"id": "scan-1", "domain": "example.com", "status": "completed", ...}
//	  ],
//	  "next_cursor": "eyJpZCI6InNjYW4tMiIsInRzIjo...",
//	  "total": 100
//	}
func ListScansHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query, qerr := ParseListScansQuery(r)
		if qerr != nil {
			api.WriteJSONError(w, http.StatusBadRequest, "Bad Request", "INVALID_QUERY", qerr.Error())
			return
		}

		if deps.Storage == nil {
			api.WriteError(w, r, errors.New("no storage backend configured"))
			return
		}

		filter := storage.ScanFilter{Status: query.Status}
		scans, nextCursor, total, err := deps.Storage.Scans().ListPaginated(
			r.Context(), orgID, filter, query.Cursor, query.Limit,
		)
		if err != nil {
			api.WriteError(w, r, err)
			return
		}

		summaries := make([]api.ScanSummary, 0, len(scans))
		for _, s := range scans {
			summaries = append(summaries, scanSummary(s))
		}

		api.WriteJSON(w, http.StatusOK, map[string]any{
			"scans":       summaries,
			"next_cursor": nextCursor,
			"total":       total,
		})
	}
}

// GetScanHandler handles GET /api/v1/scans/{id}
//
// Returns the full run snapshot for a scan ID. The snapshot is well-formed
// in every state: pending runs have zero progress and empty results, failed
// runs carry the error message under results.error.
//
// Returns 404 if the scan is not found.
func GetScanHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id == "" {
			api.WriteJSONError(w, http.StatusBadRequest, "Bad Request", "SCAN_ID_REQUIRED", "scan id is required")
			return
		}

		if deps.Storage == nil {
			api.WriteError(w, r, errors.New("no storage backend configured"))
			return
		}

		metadata, err := deps.Storage.Scans().Get(r.Context(), orgID, id)
		if err != nil {
			api.WriteError(w, r, err)
			return
		}

		api.WriteJSON(w, http.StatusOK, scanRun(metadata))
	}
}

// CreateScanHandler handles POST /api/v1/scans
//
// Accepts a scan request for background execution and returns immediately.
//
// Request body:
//
//	{
//	  "domain": "example.com",
//	  "include_subdomains": true
//	}
//
// Response: 202 Accepted with {"scan_id": "..."}. The returned ID can be
// polled via GET /api/v1/scans/{id} right away.
//
// Returns 400 for a missing or invalid domain, 503 when the job queue is
// full or the runner is not active.
func CreateScanHandler(deps *api.Deps, submitter ScanSubmitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		logger := log.With().
			Str("component", "api.scans").
			Str("op", "create").
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()

		start := time.Now()
		var statusCode int
		defer func() {
			logger.Info().
				Int("status", statusCode).
				Dur("duration_ms", time.Since(start)).
				Msg("request completed")
		}()

		if deps.Config.MaxBodyBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, deps.Config.MaxBodyBytes)
		}

		var req CreateScanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			statusCode = http.StatusBadRequest
			logger.Error().Err(err).Str("error_code", "INVALID_REQUEST_BODY").Msg("failed to decode request")
			api.WriteJSONError(w, statusCode, "Bad Request", "INVALID_REQUEST_BODY", "invalid request body: "+err.Error())
			return
		}

		if req.Domain == "" {
			statusCode = http.StatusBadRequest
			logger.Error().Str("error_code", "DOMAIN_REQUIRED").Msg("validation failed: missing domain")
			api.WriteJSONError(w, statusCode, "Bad Request", "DOMAIN_REQUIRED", "domain is required")
			return
		}

		domain, err := netutil.NormalizeDomain(req.Domain)
		if err != nil {
			statusCode = http.StatusBadRequest
			logger.Error().Err(err).Str("error_code", "INVALID_DOMAIN").Msg("validation failed: invalid domain")
			api.WriteJSONError(w, statusCode, "Bad Request", "INVALID_DOMAIN", err.Error())
			return
		}

		logger.Info().
			Str("domain", domain).
			Bool("include_subdomains", req.IncludeSubdomains).
			Msg("scan submission started")

		scanID, err := submitter.Submit(r.Context(), domain, req.IncludeSubdomains)
		if err != nil {
			statusCode = http.StatusInternalServerError
			logger.Error().Err(err).Str("domain", domain).Msg("scan submission failed")
			api.WriteError(w, r, err)
			return
		}

		statusCode = http.StatusAccepted
		logger.Info().Str("scan_id", scanID).Str("domain", domain).Msg("scan accepted")
		api.WriteJSON(w, statusCode, CreateScanResponse{ScanID: scanID})
	}
}

// GetScanAssetsHandler handles GET /api/v1/scans/{id}/assets
//
// Returns the persisted per-asset records of a scan:
//
//	{
//	  "assets": [ {...}, {...} ],
//	  "count": 2
//	}
//
// A run that exists but has no records yet (still pending, or failed before
// persistence) returns an empty list, not an error. Returns 404 only when
// the scan itself is unknown.
func GetScanAssetsHandler(deps *api.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if id == "" {
			api.WriteJSONError(w, http.StatusBadRequest, "Bad Request", "SCAN_ID_REQUIRED", "scan id is required")
			return
		}

		if deps.Storage == nil {
			api.WriteError(w, r, errors.New("no storage backend configured"))
			return
		}

		// Distinguish "unknown scan" from "no records yet".
		if _, err := deps.Storage.Scans().Get(r.Context(), orgID, id); err != nil {
			api.WriteError(w, r, err)
			return
		}

		assets, err := readAssetRecords(r.Context(), deps.Storage, id)
		if err != nil {
			api.WriteError(w, r, err)
			return
		}

		api.WriteJSON(w, http.StatusOK, map[string]any{
			"assets": assets,
			"count":  len(assets),
		})
	}
}

// readAssetRecords loads the scan's JSONL data file as raw JSON documents.
// Records pass through untouched so the API never lags the record schema.
func readAssetRecords(ctx context.Context, backend storage.Backend, scanID string) ([]json.RawMessage, error) {
	rc, err := backend.Scans().ReadData(ctx, orgID, scanID, storage.DataTypeAssets)
	if err != nil {
		if storage.IsNotFound(err) {
			return []json.RawMessage{}, nil
		}
		return nil, err
	}
	defer rc.Close()

	assets := []json.RawMessage{}
	dec := json.NewDecoder(rc)
	for {
		var rec json.RawMessage
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		assets = append(assets, rec)
	}
	return assets, nil
}

// scanSummary converts stored metadata to the list DTO.
func scanSummary(m *storage.ScanMetadata) api.ScanSummary {
	s := api.ScanSummary{
		ID:           m.ID,
		Domain:       m.Domain,
		Status:       string(m.Status),
		Progress:     m.Progress,
		Phase:        m.Phase,
		AssetCount:   m.AssetCount,
		TopRiskScore: m.TopRiskScore,
		RiskCounts:   m.RiskCounts,
	}
	if !m.StartedAt.IsZero() {
		s.StartTime = m.StartedAt.UTC().Format(time.RFC3339)
	}
	if !m.CompletedAt.IsZero() {
		s.EndTime = m.CompletedAt.UTC().Format(time.RFC3339)
	}
	return s
}

// scanRun converts stored metadata to the full snapshot DTO.
func scanRun(m *storage.ScanMetadata) *api.ScanRun {
	results := map[string]any{
		"asset_count":      m.AssetCount,
		"findings":         m.FindingCounts.Total(),
		"finding_critical": m.FindingCounts.Critical,
		"finding_high":     m.FindingCounts.High,
		"finding_medium":   m.FindingCounts.Medium,
		"finding_low":      m.FindingCounts.Low,
		"risk_critical":    m.RiskCounts.Critical,
		"risk_high":        m.RiskCounts.High,
		"risk_medium":      m.RiskCounts.Medium,
		"risk_low":         m.RiskCounts.Low,
		"top_risk_score":   m.TopRiskScore,
		"duration_seconds": m.Duration,
		"storage_location": m.StorageLocation,
	}
	if m.ErrorMessage != "" {
		results["error"] = m.ErrorMessage
	}

	run := &api.ScanRun{
		ID:                m.ID,
		Domain:            m.Domain,
		IncludeSubdomains: m.IncludeSubdomains,
		Status:            string(m.Status),
		Progress:          m.Progress,
		Phase:             m.Phase,
		Results:           results,
	}
	if !m.StartedAt.IsZero() {
		run.StartTime = m.StartedAt.UTC().Format(time.RFC3339)
	}
	if !m.CompletedAt.IsZero() {
		run.EndTime = m.CompletedAt.UTC().Format(time.RFC3339)
	}
	return run
}
