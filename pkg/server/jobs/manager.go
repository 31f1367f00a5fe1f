// Package jobs runs accepted scan requests in the background.
//
// The manager owns a bounded queue and a fixed worker pool. The HTTP API
// submits work and returns immediately; workers execute runs through the
// scan pipeline under the server's lifetime context, so client disconnects
// never abort a scan that was already accepted.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/risktor/risktor/pkg/pipeline"
	"github.com/risktor/risktor/pkg/storage"
)

// Errors returned by Submit. HTTPStatus and ErrorCode map them onto the
// API error envelope.
var (
	// ErrQueueFull indicates the accept queue is at capacity.
	ErrQueueFull = errors.New("scan queue full")

	// ErrNotRunning indicates Submit was called before Start or after Stop.
	ErrNotRunning = errors.New("job manager not running")
)

// HTTPStatus maps a jobs error to an HTTP status code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrNotRunning):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode maps a jobs error to a machine-readable error code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrQueueFull):
		return "QUEUE_FULL"
	case errors.Is(err, ErrNotRunning):
		return "JOBS_NOT_RUNNING"
	default:
		return "INTERNAL_ERROR"
	}
}

// IsJobsError reports whether err belongs to this package's error set.
func IsJobsError(err error) bool {
	return errors.Is(err, ErrQueueFull) || errors.Is(err, ErrNotRunning)
}

// Runner executes one scan run. *pipeline.Service satisfies it.
type Runner interface {
	Run(ctx context.Context, params pipeline.Params) (*pipeline.Result, error)
}

type job struct {
	scanID            string
	domain            string
	includeSubdomains bool
}

const (
	defaultWorkers = 2
	defaultQueue   = 16
	orgID          = "default"
)

// Manager is the in-process job runner. Workers share one Runner, so
// per-probe concurrency caps hold across simultaneous scans.
type Manager struct {
	runner  Runner
	storage storage.Backend
	workers int
	logger  zerolog.Logger

	mu      sync.Mutex
	queue   chan job
	running bool
	runCtx  context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewManager builds a manager with the given worker count and queue
// capacity. Backend may be nil; accepted runs are then only tracked by
// the pipeline itself.
func NewManager(workers, queueSize int, runner Runner, backend storage.Backend) *Manager {
	if workers < 1 {
		workers = defaultWorkers
	}
	if queueSize < 1 {
		queueSize = defaultQueue
	}
	return &Manager{
		runner:  runner,
		storage: backend,
		workers: workers,
		queue:   make(chan job, queueSize),
		logger:  log.With().Str("component", "jobs").Logger(),
	}
}

// Start launches the worker pool. Workers run until Stop is called; ctx
// bounds the scans themselves, not the pool's lifetime.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("job manager already started")
	}

	m.runCtx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.running = true

	var wg sync.WaitGroup
	for i := range m.workers {
		wg.Add(1)
		go m.worker(i, &wg)
	}
	go func() {
		wg.Wait()
		close(m.done)
	}()

	m.logger.Info().Int("workers", m.workers).Int("queue", cap(m.queue)).Msg("job manager started")
	return nil
}

// Stop closes the queue and waits for in-flight scans to finish. When ctx
// expires first, remaining runs are canceled and recorded as failed by the
// pipeline before Stop returns.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	close(m.queue)
	done := m.done
	m.mu.Unlock()

	select {
	case <-done:
		m.logger.Info().Msg("job manager stopped")
		return nil
	case <-ctx.Done():
		m.logger.Warn().Msg("shutdown deadline reached, canceling in-flight scans")
		m.cancel()
		<-done
		return ctx.Err()
	}
}

// Submit accepts a scan request and returns its assigned scan ID. The run
// is recorded as pending before Submit returns, so a GET on the returned
// ID is immediately well-formed.
func (m *Manager) Submit(ctx context.Context, domain string, includeSubdomains bool) (string, error) {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	if !running {
		return "", ErrNotRunning
	}

	j := job{
		scanID:            uuid.New().String(),
		domain:            domain,
		includeSubdomains: includeSubdomains,
	}

	if m.storage != nil {
		err := m.storage.Scans().Create(ctx, orgID, &storage.ScanMetadata{
			ID:                j.scanID,
			OrgID:             orgID,
			UserID:            "local",
			Domain:            domain,
			IncludeSubdomains: includeSubdomains,
			RequestedBy:       "api",
			Status:            storage.StatusPending,
		})
		if err != nil {
			return "", fmt.Errorf("record pending scan: %w", err)
		}
	}

	select {
	case m.queue <- j:
		m.logger.Info().Str("scan_id", j.scanID).Str("domain", domain).Msg("scan accepted")
		return j.scanID, nil
	default:
		m.failPending(ctx, j.scanID, "rejected: scan queue full")
		return "", ErrQueueFull
	}
}

// failPending marks an accepted-but-unqueued run failed so it does not
// linger as pending forever.
func (m *Manager) failPending(ctx context.Context, scanID, reason string) {
	if m.storage == nil {
		return
	}
	status := storage.StatusFailed
	if err := m.storage.Scans().Update(ctx, orgID, scanID, storage.ScanUpdates{
		Status:       &status,
		ErrorMessage: &reason,
	}); err != nil {
		m.logger.Warn().Err(err).Str("scan_id", scanID).Msg("could not mark rejected scan failed")
	}
}

func (m *Manager) worker(id int, wg *sync.WaitGroup) {
	defer wg.Done()
	logger := m.logger.With().Int("worker", id).Logger()

	for j := range m.queue {
		logger.Info().Str("scan_id", j.scanID).Str("domain", j.domain).Msg("scan started")
		result, err := m.runner.Run(m.runCtx, pipeline.Params{
			ScanID:            j.scanID,
			Domain:            j.domain,
			IncludeSubdomains: j.includeSubdomains,
			RequestedBy:       "api",
		})
		switch {
		case err != nil:
			logger.Error().Err(err).Str("scan_id", j.scanID).Msg("scan failed")
		case result != nil:
			logger.Info().
				Str("scan_id", j.scanID).
				Str("status", string(result.Status)).
				Int("assets", result.Stats.AssetCount).
				Msg("scan finished")
		}
	}
}
