// Package pipeline orchestrates one scan run end to end: discovery,
// concurrent per-asset enrichment, detector analysis, risk scoring,
// persistence, and the completion notification.
//
// The run state machine is pending -> running -> completed|failed, with
// completed and failed terminal. Per-asset failures never fail a run; they
// produce a minimal record carrying the error. Only a discovery failure or
// a persistence failure does.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/risktor/risktor/pkg/asset"
	"github.com/risktor/risktor/pkg/config"
	"github.com/risktor/risktor/pkg/detect"
	"github.com/risktor/risktor/pkg/discover"
	"github.com/risktor/risktor/pkg/enrich"
	"github.com/risktor/risktor/pkg/feature"
	"github.com/risktor/risktor/pkg/netutil"
	"github.com/risktor/risktor/pkg/notify"
	"github.com/risktor/risktor/pkg/output"
	"github.com/risktor/risktor/pkg/probe"
	"github.com/risktor/risktor/pkg/risk"
	"github.com/risktor/risktor/pkg/storage"
)

// defaultOrg scopes all runs in the single-tenant file backend.
const defaultOrg = "default"

// Run phases, recorded in scan metadata as progress markers.
const (
	PhaseDiscovery  = "discovery"
	PhaseEnrichment = "enrichment"
	PhaseAnalysis   = "analysis"
)

// Progress milestones. The enrichment pass advances from its mark to the
// analysis mark as assets finish; the analysis pass continues to the
// persistence mark.
const (
	progressDiscovery  = 5
	progressEnrichment = 20
	progressAnalysis   = 70
	progressPersist    = 95
)

// Stage contracts. The production types (discover.Discoverer,
// enrich.Coordinator, detect.Bank, risk.Scorer) implement them; tests
// substitute stubs through the factory setters.
type (
	// Discoverer yields the asset set for a domain.
	Discoverer interface {
		Discover(ctx context.Context, domain string, includeSubdomains bool) ([]asset.Asset, error)
	}

	// Enricher merges probe results for one asset.
	Enricher interface {
		Enrich(ctx context.Context, a asset.Asset) asset.EnrichedAsset
	}

	// DetectorBank runs the misconfiguration detectors over one asset.
	DetectorBank interface {
		Run(ctx context.Context, ea *asset.EnrichedAsset) []asset.Finding
	}

	// Scorer computes the risk assessment from a feature vector.
	Scorer interface {
		Score(v feature.Vector) asset.RiskAssessment
	}
)

// ProgressSink receives progress notifications during a run.
type ProgressSink interface {
	OnEvent(ProgressEvent)
}

// ProgressEvent is one progress notification.
type ProgressEvent struct {
	ScanID    string
	Phase     string
	Status    string // start, progress, completed, failed
	Progress  int    // 0-100
	Message   string
	Timestamp time.Time
}

// stages bundles the four pipeline stages built once per Service. Probe
// clients pool connections, so sharing stages across runs is what gives the
// global per-probe concurrency caps.
type stages struct {
	discoverer Discoverer
	enricher   Enricher
	bank       DetectorBank
	scorer     Scorer
}

// Service orchestrates scan runs. One Service handles any number of
// sequential or concurrent runs; stage construction happens once, on first
// use.
type Service struct {
	cfg config.Config

	discovererFactory func() (Discoverer, error)
	enricherFactory   func() (Enricher, error)
	bankFactory       func() (DetectorBank, error)
	scorerFactory     func() (Scorer, error)

	stagesOnce sync.Once
	stages     *stages
	stagesErr  error

	storage      storage.Backend
	notifier     notify.Notifier
	progressSink ProgressSink
	logger       zerolog.Logger
}

// NewService builds a Service with production stage factories derived from
// cfg. Storage, notifier, and progress sink are attached with the With
// methods; without storage the run executes but persists nothing.
func NewService(cfg config.Config) *Service {
	s := &Service{
		cfg:    cfg,
		logger: log.With().Str("component", "pipeline").Logger(),
	}
	s.discovererFactory = func() (Discoverer, error) {
		return discover.FromConfig(cfg.Scan, cfg.Probes)
	}
	s.enricherFactory = func() (Enricher, error) {
		return enrich.FromConfig(cfg.Probes)
	}
	s.bankFactory = func() (DetectorBank, error) {
		return detect.NewBank(detect.Env{
			Client:    probe.NewHTTPClient(cfg.Probes.HTTP),
			Resolver:  probe.NewDNSProber(cfg.Probes.DNS),
			UserAgent: cfg.Probes.HTTP.UserAgent,
			MaxBody:   cfg.Probes.HTTP.MaxBody,
		}, nil)
	}
	s.scorerFactory = func() (Scorer, error) {
		return risk.New(cfg.Model.Path), nil
	}
	return s
}

// WithStorage attaches a storage backend for run metadata and asset records.
func (s *Service) WithStorage(backend storage.Backend) *Service {
	s.storage = backend
	return s
}

// WithNotifier attaches the post-completion notifier.
func (s *Service) WithNotifier(n notify.Notifier) *Service {
	s.notifier = n
	return s
}

// WithProgressSink attaches a sink to receive progress notifications.
func (s *Service) WithProgressSink(sink ProgressSink) *Service {
	s.progressSink = sink
	return s
}

// WithDiscovererFactory overrides discoverer construction for testing.
func (s *Service) WithDiscovererFactory(factory func() (Discoverer, error)) *Service {
	s.discovererFactory = factory
	return s
}

// WithEnricherFactory overrides enricher construction for testing.
func (s *Service) WithEnricherFactory(factory func() (Enricher, error)) *Service {
	s.enricherFactory = factory
	return s
}

// WithBankFactory overrides detector bank construction for testing.
func (s *Service) WithBankFactory(factory func() (DetectorBank, error)) *Service {
	s.bankFactory = factory
	return s
}

// WithScorerFactory overrides scorer construction for testing.
func (s *Service) WithScorerFactory(factory func() (Scorer, error)) *Service {
	s.scorerFactory = factory
	return s
}

// Run executes one scan. The returned Result is populated even when the
// run failed partway; the error says why. Per-asset failures do not
// surface here, they are visible as records with a PipelineError.
func (s *Service) Run(ctx context.Context, params Params) (*Result, error) {
	domain, err := normalizeDomain(params.Domain)
	if err != nil {
		return nil, err
	}

	scanID := params.ScanID
	if scanID == "" {
		scanID = uuid.New().String()
	}
	startTime := time.Now().UTC()
	logger := s.logger.With().Str("scan_id", scanID).Str("domain", domain).Logger()

	s.ensureMetadata(ctx, scanID, domain, params)
	s.markRunning(ctx, scanID, startTime)
	logger.Info().Bool("subdomains", params.IncludeSubdomains).Msg("scan started")

	var prog progressGuard

	// Stage construction happens after the run is on record. An accepted
	// run must end completed or failed; returning before the metadata
	// exists would leave a Submit-created run stuck pending.
	st, err := s.buildStages()
	if err != nil {
		err = fmt.Errorf("build pipeline stages: %w", err)
		s.finish(ctx, scanID, storage.StatusFailed, err.Error(), startTime, prog.value(), nil)
		logger.Error().Err(err).Msg("scan failed")
		return nil, err
	}

	// Discovery. A failure here fails the whole run: with no asset set
	// there is nothing to continue with.
	s.emit(scanID, PhaseDiscovery, "start", prog.advance(progressDiscovery), "")
	s.update(ctx, scanID, func(u *storage.ScanUpdates) {
		phase := PhaseDiscovery
		progress := prog.value()
		u.Phase = &phase
		u.Progress = &progress
	})

	assets, err := st.discoverer.Discover(ctx, domain, params.IncludeSubdomains)
	if err != nil {
		err = fmt.Errorf("discovery: %w", err)
		s.emit(scanID, PhaseDiscovery, "failed", prog.value(), err.Error())
		s.finish(ctx, scanID, storage.StatusFailed, err.Error(), startTime, prog.value(), nil)
		logger.Error().Err(err).Msg("scan failed")
		return nil, err
	}
	s.emit(scanID, PhaseDiscovery, "completed", prog.advance(progressEnrichment), fmt.Sprintf("assets=%d", len(assets)))
	s.update(ctx, scanID, func(u *storage.ScanUpdates) {
		phase := PhaseEnrichment
		progress := prog.value()
		count := len(assets)
		u.Phase = &phase
		u.Progress = &progress
		u.AssetCount = &count
	})

	// Enrichment pass: every asset through the probe fan-out, bounded pool.
	enriched := make([]asset.EnrichedAsset, len(assets))
	failures := make([]string, len(assets))
	s.runPool(ctx, scanID, &prog, PhaseEnrichment, progressEnrichment, progressAnalysis, len(assets), func(i int) {
		ea, err := enrichOne(ctx, st.enricher, assets[i])
		if err != nil {
			failures[i] = err.Error()
			logger.Warn().Str("asset", assets[i].Value).Str("error", err.Error()).Msg("asset enrichment failed")
			return
		}
		enriched[i] = ea
	})

	s.emit(scanID, PhaseAnalysis, "start", prog.advance(progressAnalysis), "")
	s.update(ctx, scanID, func(u *storage.ScanUpdates) {
		phase := PhaseAnalysis
		progress := prog.value()
		u.Phase = &phase
		u.Progress = &progress
	})

	// Analysis pass: detectors then scoring, same pool shape. An asset
	// whose enrichment failed is recorded minimally and skipped here.
	records := make([]asset.Record, len(assets))
	s.runPool(ctx, scanID, &prog, PhaseAnalysis, progressAnalysis, progressPersist, len(assets), func(i int) {
		if failures[i] != "" {
			records[i] = minimalRecord(scanID, assets[i], failures[i])
			return
		}
		rec, err := analyzeOne(ctx, st.bank, st.scorer, scanID, enriched[i])
		if err != nil {
			failures[i] = err.Error()
			logger.Warn().Str("asset", assets[i].Value).Str("error", err.Error()).Msg("asset analysis failed")
			records[i] = minimalRecord(scanID, assets[i], err.Error())
			return
		}
		records[i] = rec
	})

	// A canceled context leaves unprocessed slots; record them so the
	// persisted set still accounts for every discovered asset.
	canceled := ctx.Err() != nil
	for i := range records {
		if records[i].Value == "" {
			records[i] = minimalRecord(scanID, assets[i], "scan canceled before this asset was processed")
		}
	}

	// Persistence and the final metadata update run even after
	// cancellation: whatever was merged is worth keeping.
	finishCtx := context.WithoutCancel(ctx)
	persistErr := s.persistRecords(finishCtx, scanID, records)

	stats := collectStats(records)
	endTime := time.Now().UTC()

	status := storage.StatusCompleted
	errorMsg := ""
	switch {
	case persistErr != nil:
		status = storage.StatusFailed
		errorMsg = fmt.Sprintf("persist asset records: %v", persistErr)
	case canceled:
		status = storage.StatusFailed
		errorMsg = fmt.Sprintf("scan canceled: %v", ctx.Err())
	}

	finalProgress := prog.value()
	if status == storage.StatusCompleted {
		finalProgress = prog.advance(100)
	}
	s.finish(finishCtx, scanID, status, errorMsg, startTime, finalProgress, &stats)
	s.emit(scanID, PhaseAnalysis, string(status), finalProgress, errorMsg)

	result := &Result{
		ScanID:    scanID,
		Domain:    domain,
		Status:    status,
		StartTime: startTime,
		EndTime:   endTime,
		Records:   records,
		Stats:     stats,
	}

	if status == storage.StatusCompleted {
		logger.Info().
			Int("assets", stats.AssetCount).
			Int("failed_assets", stats.FailedAssets).
			Int("top_risk_score", stats.TopRiskScore).
			Dur("duration", endTime.Sub(startTime)).
			Msg("scan completed")
		s.notifyCompleted(finishCtx, scanID, domain, endTime, records)
		return result, nil
	}

	logger.Error().Str("error", errorMsg).Msg("scan failed")
	if persistErr != nil {
		return result, fmt.Errorf("persist asset records: %w", persistErr)
	}
	return result, ctx.Err()
}

// normalizeDomain validates the requested target, mapping failures onto the
// pipeline sentinels.
func normalizeDomain(input string) (string, error) {
	if input == "" {
		return "", ErrNoDomain
	}
	domain, err := netutil.NormalizeDomain(input)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDomain, err)
	}
	return domain, nil
}

// buildStages constructs the four stages on first use and reuses them for
// every subsequent run, so probe clients and model artifacts are shared.
func (s *Service) buildStages() (*stages, error) {
	s.stagesOnce.Do(func() {
		st := &stages{}
		if st.discoverer, s.stagesErr = s.discovererFactory(); s.stagesErr != nil {
			return
		}
		if st.enricher, s.stagesErr = s.enricherFactory(); s.stagesErr != nil {
			return
		}
		if st.bank, s.stagesErr = s.bankFactory(); s.stagesErr != nil {
			return
		}
		if st.scorer, s.stagesErr = s.scorerFactory(); s.stagesErr != nil {
			return
		}
		s.stages = st
	})
	return s.stages, s.stagesErr
}

// runPool runs work(i) for every index with bounded concurrency, advancing
// progress from the "from" milestone toward "to" as items finish. Work
// items stop being scheduled once the context is canceled; running ones
// finish on their own.
func (s *Service) runPool(ctx context.Context, scanID string, prog *progressGuard, phase string, from, to, total int, work func(i int)) {
	if total == 0 {
		return
	}

	concurrency := s.cfg.Scan.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var done atomic.Int64

	for i := range total {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}
			work(i)

			n := int(done.Add(1))
			target := from + (to-from)*n/total
			if v := prog.advance(target); v == target {
				s.emit(scanID, phase, "progress", v, fmt.Sprintf("%d/%d", n, total))
				s.update(ctx, scanID, func(u *storage.ScanUpdates) {
					progress := v
					u.Progress = &progress
				})
			}
		}(i)
	}
	wg.Wait()
}

// enrichOne runs the enrichment stage for one asset behind a panic
// boundary. A panic is an asset pipeline failure, not a scan failure.
func enrichOne(ctx context.Context, enricher Enricher, a asset.Asset) (ea asset.EnrichedAsset, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("enrichment panic: %v", r)
		}
	}()
	return enricher.Enrich(ctx, a), nil
}

// analyzeOne runs detectors, feature extraction and scoring for one
// enriched asset behind the same panic boundary.
func analyzeOne(ctx context.Context, bank DetectorBank, scorer Scorer, scanID string, ea asset.EnrichedAsset) (rec asset.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec = asset.Record{}
			err = fmt.Errorf("analysis panic: %v", r)
		}
	}()

	findings := bank.Run(ctx, &ea)
	vector := feature.Extract(&ea, findings)
	assessment := scorer.Score(vector)

	return asset.Record{
		EnrichedAsset: ea,
		Findings:      findings,
		Risk:          &assessment,
		ScanID:        scanID,
	}, nil
}

// minimalRecord is the persisted shape of a failed asset pipeline:
// identity plus the error, no assessment.
func minimalRecord(scanID string, a asset.Asset, pipelineErr string) asset.Record {
	return asset.Record{
		EnrichedAsset: asset.EnrichedAsset{Asset: a},
		ScanID:        scanID,
		PipelineError: pipelineErr,
	}
}

// persistRecords writes the full record set as one JSONL document. Order
// is discovery order, independent of completion order.
func (s *Service) persistRecords(ctx context.Context, scanID string, records []asset.Record) error {
	if s.storage == nil {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range records {
		if err := enc.Encode(&records[i]); err != nil {
			return fmt.Errorf("encode record %s: %w", records[i].Key(), err)
		}
	}

	return s.storage.Scans().WriteData(ctx, defaultOrg, scanID, storage.DataTypeAssets, &buf)
}

// ensureMetadata creates the pending run record unless the accept path
// already did. Storage trouble is logged and the run continues without
// persistence, mirroring how probe failures degrade rather than abort.
func (s *Service) ensureMetadata(ctx context.Context, scanID, domain string, params Params) {
	if s.storage == nil {
		return
	}

	meta := &storage.ScanMetadata{
		ID:                scanID,
		OrgID:             defaultOrg,
		UserID:            "local",
		Domain:            domain,
		IncludeSubdomains: params.IncludeSubdomains,
		RequestedBy:       params.RequestedBy,
		Status:            storage.StatusPending,
		StorageLocation:   fmt.Sprintf("scans/%s/%s", defaultOrg, scanID),
	}

	err := s.storage.Scans().Create(ctx, defaultOrg, meta)
	switch {
	case err == nil:
		s.logger.Debug().Str("scan_id", scanID).Msg("created scan metadata")
	case storage.IsAlreadyExists(err):
		// Accepted through the API earlier; the run picks it up from here.
	default:
		s.logger.Warn().Str("scan_id", scanID).Err(err).
			Msg("failed to create scan metadata, continuing without persistence")
	}
}

// markRunning transitions the run to running and records the start time.
func (s *Service) markRunning(ctx context.Context, scanID string, startTime time.Time) {
	s.update(ctx, scanID, func(u *storage.ScanUpdates) {
		status := storage.StatusRunning
		u.Status = &status
		u.StartedAt = &startTime
	})
}

// finish applies the terminal metadata update: status, error message,
// completion time, duration, and aggregate counters when available.
func (s *Service) finish(ctx context.Context, scanID string, status storage.ScanStatus, errorMsg string, startTime time.Time, progress int, stats *Stats) {
	s.update(ctx, scanID, func(u *storage.ScanUpdates) {
		completedAt := time.Now().UTC()
		duration := int(completedAt.Sub(startTime).Seconds())

		u.Status = &status
		u.Progress = &progress
		u.CompletedAt = &completedAt
		u.Duration = &duration
		if errorMsg != "" {
			u.ErrorMessage = &errorMsg
		}
		if stats != nil {
			u.AssetCount = &stats.AssetCount
			u.FindingCounts = &stats.FindingCounts
			u.RiskCounts = &stats.RiskCounts
			u.TopRiskScore = &stats.TopRiskScore
		}
	})
}

// update applies a partial metadata update, tolerating storage trouble.
func (s *Service) update(ctx context.Context, scanID string, build func(*storage.ScanUpdates)) {
	if s.storage == nil {
		return
	}

	var updates storage.ScanUpdates
	build(&updates)

	if err := s.storage.Scans().Update(ctx, defaultOrg, scanID, updates); err != nil {
		s.logger.Warn().Str("scan_id", scanID).Err(err).Msg("failed to update scan metadata")
	}
}

// notifyCompleted fires the post-run notification when any asset meets the
// configured level. Failures are logged, never retried.
func (s *Service) notifyCompleted(ctx context.Context, scanID, domain string, completedAt time.Time, records []asset.Record) {
	if s.notifier == nil {
		return
	}

	event := notify.FromRecords(scanID, domain, completedAt, records, notify.MinLevel(s.cfg.Notify))
	if len(event.Assets) == 0 {
		return
	}
	if err := s.notifier.Notify(ctx, event); err != nil {
		s.logger.Warn().Str("scan_id", scanID).Err(err).Msg("high-risk notification failed")
		return
	}
	s.logger.Info().Str("scan_id", scanID).Int("assets", len(event.Assets)).Msg("high-risk notification sent")
}

// emit sends one progress event to the sink, if any.
func (s *Service) emit(scanID, phase, status string, progress int, msg string) {
	if s.progressSink == nil {
		return
	}
	s.progressSink.OnEvent(ProgressEvent{
		ScanID:    scanID,
		Phase:     phase,
		Status:    status,
		Progress:  progress,
		Message:   msg,
		Timestamp: time.Now(),
	})
}

// progressGuard keeps reported progress monotone when concurrent workers
// finish out of order.
type progressGuard struct {
	mu   sync.Mutex
	last int
}

// advance raises progress to v when v is ahead and returns the current
// value either way.
func (g *progressGuard) advance(v int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if v > g.last {
		g.last = v
	}
	return g.last
}

func (g *progressGuard) value() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// Progress rendering for CLI runs goes through the output event stream.
// ProgressOutput adapts an output.Output into a ProgressSink.
type ProgressOutput struct {
	Out output.Output
}

// OnEvent implements ProgressSink.
func (p ProgressOutput) OnEvent(ev ProgressEvent) {
	if p.Out == nil {
		return
	}
	label := ev.Phase
	if ev.Message != "" {
		label = fmt.Sprintf("%s (%s)", ev.Phase, ev.Message)
	}
	p.Out.Progress(ev.Progress, 100, label)
}
