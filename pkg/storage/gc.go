package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"time"
)

// GCOptions defines options for garbage collection.
type GCOptions struct {
	// DryRun reports which scans would be deleted without deleting them.
	DryRun bool

	// OrgID specifies which organization to clean up.
	// If empty, cleans up all organizations.
	OrgID string

	// Retention overrides the backend's configured retention policy.
	// If nil, uses the backend's default retention config.
	Retention *RetentionConfig
}

// GCResult contains the results of a garbage collection operation.
type GCResult struct {
	// ScansDeleted is the number of scans deleted.
	ScansDeleted int

	// DeletedScanIDs is the list of scan IDs that were deleted.
	DeletedScanIDs []string

	// BytesFreed is the approximate number of bytes freed.
	// On dry runs this is an estimate of what a real run would free.
	BytesFreed int64

	// Errors contains any errors encountered during deletion.
	// GC continues even if individual deletions fail.
	Errors []error
}

// GarbageCollect deletes scans that violate the configured retention
// policies: scans older than MaxAgeDays, then scans exceeding MaxScans
// count (oldest deleted first).
//
// The function operates per-organization. If opts.OrgID is empty, it
// processes all organizations.
//
// Individual deletion errors are collected in GCResult.Errors; the
// returned error covers failures of the GC operation itself.
func (b *LocalBackend) GarbageCollect(ctx context.Context, opts GCOptions) (*GCResult, error) {
	retention := b.cfg.Retention
	if opts.Retention != nil {
		retention = *opts.Retention
	}

	// If no retention policy is enabled, nothing to do
	if !retention.IsEnabled() {
		return &GCResult{}, nil
	}

	result := &GCResult{
		DeletedScanIDs: make([]string, 0),
		Errors:         make([]error, 0),
	}

	orgs := []string{opts.OrgID}
	if opts.OrgID == "" {
		orgs = b.listOrgs()
	}

	for _, orgID := range orgs {
		if err := b.gcOrganization(ctx, orgID, retention, opts.DryRun, result); err != nil {
			return result, fmt.Errorf("gc org %s: %w", orgID, err)
		}
	}

	return result, nil
}

// listOrgs enumerates organization directories under the scans root.
// Falls back to "default" when the root has not been populated yet.
func (b *LocalBackend) listOrgs() []string {
	entries, err := os.ReadDir(b.scanStore.root)
	if err != nil {
		return []string{"default"}
	}

	var orgs []string
	for _, entry := range entries {
		if entry.IsDir() {
			orgs = append(orgs, entry.Name())
		}
	}
	if len(orgs) == 0 {
		return []string{"default"}
	}
	return orgs
}

// gcOrganization performs GC for a single organization.
func (b *LocalBackend) gcOrganization(ctx context.Context, orgID string, retention RetentionConfig, dryRun bool, result *GCResult) error {
	scans, err := b.Scans().List(ctx, orgID, ScanFilter{
		Limit: 10000, // Large limit to get all scans
	})
	if err != nil {
		return fmt.Errorf("list scans: %w", err)
	}

	if len(scans) == 0 {
		return nil
	}

	// Sort scans by start time (oldest first)
	sort.Slice(scans, func(i, j int) bool {
		return scans[i].StartedAt.Before(scans[j].StartedAt)
	})

	// Calculate cutoff time for age-based retention
	var ageCutoff time.Time
	if retention.MaxAgeDays > 0 {
		ageCutoff = time.Now().AddDate(0, 0, -retention.MaxAgeDays)
	}

	toDelete := make([]string, 0)

	// Phase 1: scans older than MaxAgeDays
	if retention.MaxAgeDays > 0 {
		for _, scan := range scans {
			if scan.StartedAt.Before(ageCutoff) {
				toDelete = append(toDelete, scan.ID)
			}
		}
	}

	// Phase 2: if the remainder still exceeds MaxScans, delete oldest
	if retention.MaxScans > 0 {
		remaining := make([]*ScanMetadata, 0)
		for _, scan := range scans {
			if !slices.Contains(toDelete, scan.ID) {
				remaining = append(remaining, scan)
			}
		}

		if len(remaining) > retention.MaxScans {
			excessCount := len(remaining) - retention.MaxScans
			for i := range excessCount {
				toDelete = append(toDelete, remaining[i].ID)
			}
		}
	}

	for _, scanID := range toDelete {
		result.BytesFreed += b.scanDirSize(orgID, scanID)

		if dryRun {
			result.DeletedScanIDs = append(result.DeletedScanIDs, scanID)
			result.ScansDeleted++
			continue
		}

		if err := b.Scans().Delete(ctx, orgID, scanID); err != nil {
			// Record error but continue with other deletions
			result.Errors = append(result.Errors, fmt.Errorf("delete scan %s: %w", scanID, err))
		} else {
			result.DeletedScanIDs = append(result.DeletedScanIDs, scanID)
			result.ScansDeleted++
		}
	}

	return nil
}

// scanDirSize sums the file sizes under a scan directory.
func (b *LocalBackend) scanDirSize(orgID, scanID string) int64 {
	var size int64
	root := b.scanStore.scanDir(orgID, scanID)
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
		}
		return nil
	})
	return size
}
