package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/risktor/risktor/pkg/feature"
	"github.com/risktor/risktor/pkg/risk"
)

// NewModelCommand wires CLI helpers for risk model artifact management.
func NewModelCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "model",
		Short:   "Inspect and validate risk model artifacts",
		GroupID: "core",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newModelValidateCommand())
	cmd.AddCommand(newModelFeaturesCommand())

	return cmd
}

func newModelValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [manifest]",
		Short: "Validate a model manifest against the feature contract",
		Long: `Checks that a model manifest parses and that its feature list, scaler
parameters and classifier weights all line up with the scorer's feature
contract. Without an argument the configured model.path is validated.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configFromCommand(cmd).Model.Path
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return errors.New("no manifest path given and model.path is not configured")
			}

			manifest, err := risk.LoadManifest(path)
			if err != nil {
				log.Error().Err(err).Str("path", path).Msg("model manifest validation failed")
				return err
			}

			if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
				return printJSON(map[string]any{
					"valid":    true,
					"path":     path,
					"version":  manifest.Version,
					"features": len(manifest.Features),
				})
			}

			log.Info().Str("version", manifest.Version).Int("features", len(manifest.Features)).Msg("validation passed")
			fmt.Printf("%s is valid (version %s, %d features)\n", path, manifest.Version, len(manifest.Features))
			return nil
		},
	}

	cmd.Flags().Bool("json", false, "Output results as JSON")

	return cmd
}

func newModelFeaturesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "features",
		Short: "Print the feature vector contract in artifact order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
				return printJSON(map[string]any{
					"count":    feature.Count,
					"features": feature.Names[:],
				})
			}

			for i, name := range feature.Names {
				fmt.Printf("%2d  %s\n", i, name)
			}
			return nil
		},
	}

	cmd.Flags().Bool("json", false, "Output results as JSON")

	return cmd
}

// printJSON writes an indented JSON document to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
