package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/risktor/risktor/pkg/config"
	"github.com/risktor/risktor/pkg/storage"
)

const cliExecutable = "risktor"

// configContextKey carries the loaded configuration manager through the
// command context so subcommands share one merged Config.
type configContextKey struct{}

func withConfigManager(ctx context.Context, m *config.Manager) context.Context {
	return context.WithValue(ctx, configContextKey{}, m)
}

// configFromCommand returns the merged configuration loaded by the root
// PersistentPreRunE, or plain defaults when the command runs standalone
// (as in tests).
func configFromCommand(cmd *cobra.Command) config.Config {
	if m, ok := cmd.Context().Value(configContextKey{}).(*config.Manager); ok && m != nil {
		return m.Get()
	}
	return config.DefaultConfig()
}

// NewCommand constructs the top-level risktor CLI command, wiring global
// flags, configuration loading, and shared storage preparation.
func NewCommand() *cobra.Command {
	var (
		configFile      string
		storageDir      string
		storageDisabled bool
		verbosityCount  int
		verbose         bool
	)

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "Risktor maps and risk-scores a domain's external attack surface",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			manager := config.NewManager()
			if err := manager.Load(cmd.Flags(), configFile); err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			ctx := withConfigManager(cmd.Context(), manager)

			if !storageDisabled {
				storageConfig, err := storageConfigFrom(manager.Get())
				if err != nil {
					return fmt.Errorf("get storage config: %w", err)
				}
				if storageDir != "" {
					storageConfig.WorkspaceRoot = storageDir
				}
				ctx = storage.WithConfig(ctx, storageConfig)
				log.Info().Str("storage_root", storageConfig.WorkspaceRoot).Msg("storage ready")
			} else {
				log.Info().Msg("storage disabled for this run")
			}

			// Configure global log level based on verbosity flags
			// If explicit --verbose is set, show debug and above
			// Else use -v count: 0=>Error, 1=>Info, 2+=>Debug
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				switch {
				case verbosityCount <= 0:
					zerolog.SetGlobalLevel(zerolog.ErrorLevel)
				case verbosityCount == 1:
					zerolog.SetGlobalLevel(zerolog.InfoLevel)
				default:
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
			}

			cmd.SetContext(ctx)
			if root := cmd.Root(); root != nil && root != cmd {
				root.SetContext(ctx)
			}
			return nil
		},
	}

	cmd.SilenceUsage = true

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	cmd.PersistentFlags().StringVar(&storageDir, "storage-dir", "", "Override storage root directory")
	cmd.PersistentFlags().BoolVar(&storageDisabled, "no-storage", false, "Disable storage persistence for this run")
	cmd.PersistentFlags().CountVarP(&verbosityCount, "verbosity", "v", "Increase logging verbosity (repeatable)")
	cmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging (shows service layer logs)")

	config.BindFlags(cmd.PersistentFlags())

	cmd.AddGroup(&cobra.Group{ID: "scan", Title: "Scan Commands"})
	cmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands"})

	cmd.AddCommand(ScanCmd)
	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewModelCommand())
	cmd.AddCommand(NewStorageCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// storageConfigFrom builds the storage configuration, applying the
// storage.root override from the merged config when present.
func storageConfigFrom(cfg config.Config) (*storage.Config, error) {
	storageConfig, err := storage.DefaultConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Root != "" {
		storageConfig.WorkspaceRoot = cfg.Storage.Root
	}
	return storageConfig, nil
}
