// Package app owns the serve-mode lifecycle: it assembles the router and
// the background job runner, binds the listener, and shuts both down
// cleanly when the context ends.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/risktor/risktor/pkg/config"
	"github.com/risktor/risktor/pkg/server/api"
	"github.com/risktor/risktor/pkg/server/deps"
	"github.com/risktor/risktor/pkg/server/httpx"
	"github.com/risktor/risktor/pkg/server/jobs"
)

const shutdownTimeout = 10 * time.Second

// App is a configured but not yet running server.
type App struct {
	cfg    config.ServerConfig
	deps   *deps.Deps
	server *http.Server
	jobs   *jobs.Manager
	logger zerolog.Logger
}

// New assembles the serve-mode app. Scan submission requires both a
// pipeline and the jobs runner enabled; without them the API starts
// read-only and the router logs the missing route.
func New(ctx context.Context, cfg config.ServerConfig, d *deps.Deps) (*App, error) {
	if d == nil {
		return nil, errors.New("server dependencies are required")
	}
	if d.Ready == nil {
		return nil, errors.New("server dependencies missing readiness flag; construct with deps.New")
	}

	logger := log.With().Str("component", "server").Logger()
	if d.Logger != nil {
		logger = d.Logger.With().Str("component", "server").Logger()
	}

	a := &App{
		cfg:    cfg,
		deps:   d,
		logger: logger,
	}

	apiDeps := &api.Deps{
		Storage: d.Storage,
		Config:  api.DefaultConfig(),
		Ready:   d.Ready,
	}

	if cfg.Jobs.Enabled {
		if d.Pipeline == nil {
			return nil, errors.New("jobs runner enabled but no scan pipeline provided")
		}
		a.jobs = jobs.NewManager(cfg.Jobs.Workers, cfg.Jobs.Queue, d.Pipeline, d.Storage)
		apiDeps.Jobs = a.jobs
	}

	a.server = &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      httpx.NewRouter(cfg, apiDeps),
		ReadTimeout:  cfg.Timeout.Read,
		WriteTimeout: cfg.Timeout.Write,
	}

	return a, nil
}

// Run serves until ctx is canceled, then drains: readiness drops first,
// the listener closes, and in-flight scans get shutdownTimeout to finish
// before they are canceled. A clean shutdown returns nil.
func (a *App) Run(ctx context.Context) error {
	if a.jobs != nil {
		if err := a.jobs.Start(ctx); err != nil {
			return fmt.Errorf("start job manager: %w", err)
		}
	}

	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.server.Addr, err)
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.server.Serve(ln)
	}()

	a.deps.SetReady()
	a.logger.Info().
		Str("addr", a.server.Addr).
		Bool("jobs", a.jobs != nil).
		Msg("server listening")

	select {
	case <-ctx.Done():
		return a.shutdown(ctx, serveErr)
	case err := <-serveErr:
		a.deps.SetNotReady()
		a.stopJobs(context.Background())
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// shutdown drains the server after the run context ended.
func (a *App) shutdown(ctx context.Context, serveErr <-chan error) error {
	a.deps.SetNotReady()
	a.logger.Info().Msg("shutting down")

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	err := a.server.Shutdown(drainCtx)
	if jerr := a.stopJobs(drainCtx); jerr != nil && err == nil {
		err = jerr
	}

	// Serve returns ErrServerClosed once Shutdown begins.
	if serr := <-serveErr; serr != nil && !errors.Is(serr, http.ErrServerClosed) && err == nil {
		err = serr
	}

	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.logger.Info().Msg("server stopped")
	return nil
}

func (a *App) stopJobs(ctx context.Context) error {
	if a.jobs == nil {
		return nil
	}
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return a.jobs.Stop(stopCtx)
}
