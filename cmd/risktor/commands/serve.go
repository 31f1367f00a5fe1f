package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/risktor/risktor/pkg/notify"
	"github.com/risktor/risktor/pkg/pipeline"
	"github.com/risktor/risktor/pkg/server/app"
	"github.com/risktor/risktor/pkg/server/deps"
	"github.com/risktor/risktor/pkg/storage"
)

// NewServeCommand builds the 'serve' command: the long-running HTTP API
// plus the background job runner that executes submitted scans.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background scan runner",
		Long: `Starts the REST API for submitting scans and browsing stored results.
Accepted scans run on a background worker pool; SIGINT or SIGTERM drains
in-flight scans before the process exits.`,
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE:    runServeCommand,
	}

	cmd.Flags().String("addr", "", "Listen address as host:port, overriding server.addr and server.port")
	cmd.Flags().Int("workers", 0, "Override the scan worker count (server.jobs.workers)")

	return cmd
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	cfg := configFromCommand(cmd)

	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		host, port, err := splitListenAddr(addr)
		if err != nil {
			return err
		}
		cfg.Server.Addr = host
		cfg.Server.Port = port
	}
	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		cfg.Server.Jobs.Workers = workers
	}

	logger := log.With().Str("command", "serve").Logger()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Info().Msg("Shutdown signal received")
		cancel()
	}()

	// Serve mode is pointless without persistence: every API read goes
	// through the backend.
	storageConfig, ok := storage.ConfigFromContext(cmd.Context())
	if !ok {
		return errors.New("serve requires storage; run without --no-storage")
	}
	backend, err := storage.NewBackend(ctx, storageConfig)
	if err != nil {
		return fmt.Errorf("create storage backend: %w", err)
	}
	if err := backend.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close storage backend")
		}
	}()

	pipe := pipeline.NewService(cfg).
		WithStorage(backend).
		WithNotifier(notify.New(cfg.Notify))

	application, err := app.New(ctx, cfg.Server, deps.New(backend, pipe, &logger))
	if err != nil {
		return fmt.Errorf("assemble server: %w", err)
	}

	return application.Run(ctx)
}

// splitListenAddr parses --addr into host and numeric port. ":8080" means
// all interfaces.
func splitListenAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("invalid listen port %q", portStr)
	}
	return host, port, nil
}
