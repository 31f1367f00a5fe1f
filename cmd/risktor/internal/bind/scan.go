// Package bind translates Cobra flag sets into service-layer parameters.
// Commands stay thin: they register flags and render results, while the
// extraction and validation logic lives here where it can be tested
// without executing a command.
package bind

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/risktor/risktor/pkg/config"
	"github.com/risktor/risktor/pkg/pipeline"
)

// Output formats the scan command can render.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ScanOptions is everything the scan command needs from its flag set: the
// pipeline parameters plus the rendering choices that never reach the
// service layer.
type ScanOptions struct {
	Params pipeline.Params

	// OutputFormat is one of text, json, yaml (normalized to lower case).
	OutputFormat string

	// Progress enables live progress rendering during the run.
	Progress bool
}

// BindScanOptions extracts and validates scan command flags.
//
// Flags read:
//   - --subdomains: enumerate subdomains of the target; when the flag is
//     not given the configured default (scan.subdomains.enabled) applies
//   - --output: output format (text, json, yaml)
//   - --progress: print live progress updates
//   - --requested-by: requester identity recorded in scan metadata
//
// Returns an error when the output format is not one of the supported
// values.
func BindScanOptions(cmd *cobra.Command, domain string, cfg config.Config) (ScanOptions, error) {
	format, _ := cmd.Flags().GetString("output")
	format = strings.ToLower(strings.TrimSpace(format))
	switch format {
	case "":
		format = FormatText
	case FormatText, FormatJSON, FormatYAML:
	default:
		return ScanOptions{}, fmt.Errorf("unsupported output format %q (expected text, json, or yaml)", format)
	}

	// The config default decides subdomain enumeration unless the flag was
	// given explicitly; a bare `scan example.com` honors the config file.
	subdomains := cfg.Scan.Subdomains.Enabled
	if cmd.Flags().Changed("subdomains") {
		subdomains, _ = cmd.Flags().GetBool("subdomains")
	}

	progress, _ := cmd.Flags().GetBool("progress")
	requestedBy, _ := cmd.Flags().GetString("requested-by")

	return ScanOptions{
		Params: pipeline.Params{
			Domain:            domain,
			IncludeSubdomains: subdomains,
			RequestedBy:       requestedBy,
		},
		OutputFormat: format,
		Progress:     progress,
	}, nil
}
