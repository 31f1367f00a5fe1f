// Package deps carries the shared dependencies of serve mode: the storage
// backend, the scan pipeline, and the readiness flag the HTTP layer reports.
package deps

import (
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/risktor/risktor/pkg/pipeline"
	"github.com/risktor/risktor/pkg/storage"
)

// Deps aggregates what the server app needs to run. Construct with New so
// the readiness flag is never nil.
type Deps struct {
	// Storage persists scan runs and their asset records.
	Storage storage.Backend

	// Pipeline executes scan runs end to end.
	Pipeline *pipeline.Service

	// Logger is the server-scoped logger.
	Logger *zerolog.Logger

	// Ready reports whether the server can serve traffic. Starts false;
	// the app flips it once the listener is up and clears it on shutdown.
	Ready *atomic.Bool
}

// New assembles server dependencies with a fresh not-ready flag.
func New(backend storage.Backend, pipe *pipeline.Service, logger *zerolog.Logger) *Deps {
	return &Deps{
		Storage:  backend,
		Pipeline: pipe,
		Logger:   logger,
		Ready:    &atomic.Bool{},
	}
}

// IsReady reports the current readiness state.
func (d *Deps) IsReady() bool {
	return d.Ready.Load()
}

// SetReady marks the server ready for traffic.
func (d *Deps) SetReady() {
	d.Ready.Store(true)
}

// SetNotReady marks the server as draining; /readyz starts failing.
func (d *Deps) SetNotReady() {
	d.Ready.Store(false)
}
