package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/risktor/risktor/cmd/risktor/internal/bind"
	"github.com/risktor/risktor/pkg/asset"
	"github.com/risktor/risktor/pkg/notify"
	"github.com/risktor/risktor/pkg/output"
	"github.com/risktor/risktor/pkg/output/subscribers"
	"github.com/risktor/risktor/pkg/pipeline"
	"github.com/risktor/risktor/pkg/storage"
)

// ScanCmd defines the 'scan' command: one synchronous pipeline run against
// a single root domain.
var ScanCmd = &cobra.Command{
	Use:   "scan <domain>",
	Short: "Discover and risk-score the attack surface of a domain",
	Long: `Runs the full pipeline against a root domain: asset discovery
(optionally with subdomain enumeration), enrichment probes, the detector
bank, and per-asset risk scoring. Results print to stdout and, unless
storage is disabled, persist to the local scan workspace.`,
	GroupID: "scan",
	Args:    cobra.ExactArgs(1),
	RunE:    runScanCommand,
}

func runScanCommand(cmd *cobra.Command, args []string) error {
	out := setupOutputPipeline(cmd)
	cfg := configFromCommand(cmd)
	domain := args[0]

	logger := log.With().Str("command", "scan").Logger()
	logger.Info().Str("domain", domain).Msg("Initializing scan command")

	out.Diag(output.LevelVerbose, "Initializing scan command", map[string]any{
		"domain": domain,
	})

	// Bind flags to options using the centralized binder
	opts, err := bind.BindScanOptions(cmd, domain, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to bind scan options")
		out.Error(err)
		return err
	}

	// Ctrl-C cancels the run; the pipeline checkpoints between stages and
	// records the scan as canceled rather than leaving it running forever.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logger.Warn().Msg("Interrupt received, canceling scan")
		cancel()
	}()

	svc := pipeline.NewService(cfg).WithNotifier(notify.New(cfg.Notify))

	// Attach storage for scan result persistence. Storage problems degrade
	// to a warning: the run still executes and prints its results.
	if storageConfig, ok := storage.ConfigFromContext(cmd.Context()); ok {
		backend, err := storage.NewBackend(ctx, storageConfig)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to create storage backend, scan will not be persisted")
		} else if err := backend.Initialize(ctx); err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize storage, scan will not be persisted")
		} else {
			svc = svc.WithStorage(backend)
			logger.Debug().Msg("Storage backend initialized for scan persistence")

			defer func() {
				if err := backend.Close(); err != nil {
					logger.Warn().Err(err).Msg("Failed to close storage backend")
				}
			}()
		}
	}

	if opts.Progress {
		svc = svc.WithProgressSink(pipeline.ProgressOutput{Out: out})
	}

	if opts.OutputFormat == bind.FormatText {
		// Only show the banner in default mode (not in verbose/debug mode)
		if verbosity, _ := cmd.Flags().GetCount("verbosity"); verbosity == 0 {
			out.Info(fmt.Sprintf("Starting scan of %s...", domain))
		}
	}

	res, runErr := svc.Run(ctx, opts.Params)
	if runErr != nil {
		logger.Error().Err(runErr).Msg("Scan execution failed")
		out.Error(runErr)
		return runErr
	}

	return renderScanResult(out, opts, res)
}

// setupOutputPipeline wires the output event stream for one command run.
// Structured formats own stdout, so the human formatter only subscribes in
// text mode; any verbosity adds a diagnostic subscriber on stderr.
func setupOutputPipeline(cmd *cobra.Command) output.Output {
	stream := output.NewOutputEventStream()

	format, _ := cmd.Flags().GetString("output")
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" || format == bind.FormatText {
		_, noColor := os.LookupEnv("NO_COLOR")
		stream.Subscribe(subscribers.NewHumanFormatter(os.Stdout, os.Stderr, !noColor))
	}

	if verbosity, _ := cmd.Flags().GetCount("verbosity"); verbosity > 0 {
		stream.Subscribe(subscribers.NewDiagnosticSubscriber(output.OutputLevel(verbosity), os.Stderr))
	}

	return output.NewDefaultOutput(stream)
}

// renderScanResult prints the finished run in the requested format.
// Structured formats emit the per-asset records only; the summary table and
// section layout are text-mode affordances.
func renderScanResult(out output.Output, opts bind.ScanOptions, res *pipeline.Result) error {
	records := res.Records
	if records == nil {
		records = []asset.Record{}
	}

	switch opts.OutputFormat {
	case bind.FormatJSON:
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			out.Error(err)
			return fmt.Errorf("marshal scan records to JSON: %w", err)
		}
		fmt.Println(string(data))

	case bind.FormatYAML:
		data, err := yaml.Marshal(records)
		if err != nil {
			out.Error(err)
			return fmt.Errorf("marshal scan records to YAML: %w", err)
		}
		fmt.Println(string(data))

	default:
		if len(records) == 0 {
			out.Info("Scan completed, but no assets were discovered.")
			return nil
		}
		printScanSummary(out, res)
		printRecordTextOutput(out, records)
	}

	return nil
}

// printScanSummary displays a human-readable summary table of the run.
func printScanSummary(out output.Output, res *pipeline.Result) {
	duration := "N/A"
	if !res.StartTime.IsZero() && !res.EndTime.IsZero() {
		duration = fmt.Sprintf("%.1fs", res.EndTime.Sub(res.StartTime).Seconds())
	}

	stats := res.Stats
	findings := stats.FindingCounts.Critical + stats.FindingCounts.High +
		stats.FindingCounts.Medium + stats.FindingCounts.Low

	headers := []string{"Metric", "Value"}
	rows := [][]string{
		{"Domain", res.Domain},
		{"Duration", duration},
		{"Assets Discovered", strconv.Itoa(stats.AssetCount)},
		{"Findings", strconv.Itoa(findings)},
		{"Top Risk Score", strconv.Itoa(stats.TopRiskScore)},
	}

	if levels := formatSeverityCounts(stats.RiskCounts); levels != "" {
		rows = append(rows, []string{"Risk Levels", levels})
	}
	if stats.FailedAssets > 0 {
		rows = append(rows, []string{"Failed Assets", strconv.Itoa(stats.FailedAssets)})
	}

	out.Table(headers, rows)
}

// printRecordTextOutput renders one section per asset record.
func printRecordTextOutput(out output.Output, records []asset.Record) {
	out.Info("--- Scan Results ---")

	for _, rec := range records {
		out.Info(fmt.Sprintf("\n## Asset: %s (%s)", rec.Value, rec.Type))
		out.Diag(output.LevelVerbose, "Asset details", map[string]any{
			"asset":          rec.Value,
			"type":           string(rec.Type),
			"discovered_via": rec.DiscoveredVia,
		})

		if rec.PipelineError != "" {
			out.Warning(fmt.Sprintf("   Asset skipped: %s", rec.PipelineError))
			continue
		}

		if rec.Risk != nil {
			out.Info(fmt.Sprintf("   Risk: %s (score %d/100, %s)", rec.Risk.Level, rec.Risk.Score, rec.Risk.Method))
			for _, factor := range rec.Risk.Factors {
				out.Info(fmt.Sprintf("     - %s", factor))
			}
		}

		if len(rec.IPAddresses) > 0 {
			out.Info(fmt.Sprintf("   IPs: %s", strings.Join(rec.IPAddresses, ", ")))
		}
		if len(rec.OpenPorts) > 0 {
			out.Info(fmt.Sprintf("   Open Ports: %s", joinPorts(rec.OpenPorts)))
		}
		if rec.HTTP != nil {
			line := fmt.Sprintf("   HTTP: %d over %s", rec.HTTP.StatusCode, rec.HTTP.Scheme)
			if rec.HTTP.Server != "" {
				line += fmt.Sprintf(" (%s)", rec.HTTP.Server)
			}
			out.Info(line)
			if missing := rec.HTTP.MissingSecurityHeaders(); len(missing) > 0 {
				out.Info(fmt.Sprintf("   Missing Headers: %s", strings.Join(missing, ", ")))
			}
		}
		if rec.TLS != nil {
			switch {
			case rec.TLS.IsExpired:
				out.Warning(fmt.Sprintf("   TLS: certificate expired (%s)", rec.TLS.NotAfter.Format("2006-01-02")))
			default:
				out.Info(fmt.Sprintf("   TLS: %s, expires in %d days", rec.TLS.Version, rec.TLS.DaysUntilExpiry))
			}
		}
		if len(rec.Technologies) > 0 {
			out.Info(fmt.Sprintf("   Technologies: %s", strings.Join(rec.Technologies, ", ")))
		}
		if rec.BreachCount != nil && *rec.BreachCount > 0 {
			out.Warning(fmt.Sprintf("   Breaches: seen in %d breach datasets", *rec.BreachCount))
		}

		if len(rec.Findings) > 0 {
			out.Warning(fmt.Sprintf("   Findings: %d", len(rec.Findings)))
			for _, f := range rec.Findings {
				out.Warning(fmt.Sprintf("     - [%s] %s: %s", f.Severity, f.Detector, f.Description))
			}
		}
	}

	out.Info("\n--- End of Scan Results ---")
}

// formatSeverityCounts renders non-zero severity buckets as "2 critical, 1 high".
func formatSeverityCounts(counts storage.SeverityCounts) string {
	parts := make([]string, 0, 4)
	if counts.Critical > 0 {
		parts = append(parts, fmt.Sprintf("%d critical", counts.Critical))
	}
	if counts.High > 0 {
		parts = append(parts, fmt.Sprintf("%d high", counts.High))
	}
	if counts.Medium > 0 {
		parts = append(parts, fmt.Sprintf("%d medium", counts.Medium))
	}
	if counts.Low > 0 {
		parts = append(parts, fmt.Sprintf("%d low", counts.Low))
	}
	return strings.Join(parts, ", ")
}

func joinPorts(ports []int) string {
	strs := make([]string, len(ports))
	for i, p := range ports {
		strs[i] = strconv.Itoa(p)
	}
	return strings.Join(strs, ", ")
}

func init() {
	ScanCmd.Flags().Bool("subdomains", false, "Enumerate subdomains of the target (default from scan.subdomains.enabled)")
	ScanCmd.Flags().Bool("progress", false, "Print live progress updates during the scan")
	ScanCmd.Flags().StringP("output", "o", "text", "Output format: text, json, yaml")
	ScanCmd.Flags().String("requested-by", "", "Requester identity recorded in scan metadata")
}
