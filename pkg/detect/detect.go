// pkg/detect/detect.go
// Package detect implements the misconfiguration detector bank. Each
// detector inspects one enriched asset and emits zero or more findings;
// the bank runs every registered detector and concatenates the results.
//
// Detectors are independent and order-insensitive. A detector missing its
// prerequisite enrichment fields emits nothing; a detector that panics is
// contained and contributes nothing. Neither case aborts the bank.
package detect

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/risktor/risktor/pkg/asset"
)

// Resolver is the DNS surface detectors need: TXT lookups for SPF/DMARC
// policy records and a resolution check for dangling CNAME targets.
// *probe.DNSProber satisfies it.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
	Resolves(ctx context.Context, name string) (bool, error)
}

// Env holds the shared dependencies handed to every detector factory.
// Path-probing detectors reuse one pooled HTTP client so the global
// concurrency cap applies across all of them.
type Env struct {
	// Client is the HTTP client for well-known-path probes. Nil disables
	// the detectors that need one.
	Client *http.Client

	// Resolver answers DNS questions. Nil disables the DNS checks that
	// need live lookups (record-presence checks still run).
	Resolver Resolver

	// UserAgent identifies probe requests.
	UserAgent string

	// MaxBody caps response body reads during content inspection.
	MaxBody int64
}

// Detector is one misconfiguration check over an enriched asset.
//
// Init receives the detector's option map from configuration (nil means
// all defaults). Detect must not return an error: a detector that cannot
// run emits no findings.
type Detector interface {
	Name() string
	Init(options map[string]any) error
	Detect(ctx context.Context, ea *asset.EnrichedAsset) []asset.Finding
}

// Factory creates an uninitialized detector bound to the shared environment.
type Factory func(env Env) Detector

var registry = make(map[string]Factory)

// Register adds a detector factory under its name. Detector files call
// this from init, so importing the package assembles the full bank.
func Register(name string, factory Factory) {
	if _, exists := registry[name]; exists {
		log.Warn().Str("detector", name).Msg("detector factory is being overwritten")
	}
	registry[name] = factory
}

// RegisteredNames returns the registered detector names, sorted.
func RegisteredNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bank runs every registered detector against one asset at a time.
type Bank struct {
	detectors []Detector
	logger    zerolog.Logger
}

// NewBank instantiates and initializes every registered detector. The
// options map is keyed by detector name; absent entries mean defaults.
// An option map that fails a detector's Init is a configuration error.
func NewBank(env Env, options map[string]map[string]any) (*Bank, error) {
	detectors := make([]Detector, 0, len(registry))
	for _, name := range RegisteredNames() {
		d := registry[name](env)
		if err := d.Init(options[name]); err != nil {
			return nil, fmt.Errorf("init detector %s: %w", name, err)
		}
		detectors = append(detectors, d)
	}
	return &Bank{
		detectors: detectors,
		logger:    log.With().Str("component", "detect").Logger(),
	}, nil
}

// NewBankWith builds a bank from an explicit detector list, bypassing the
// registry. Tests use it to run a single detector in isolation.
func NewBankWith(detectors ...Detector) *Bank {
	return &Bank{
		detectors: detectors,
		logger:    log.With().Str("component", "detect").Logger(),
	}
}

// Size returns the number of detectors in the bank.
func (b *Bank) Size() int {
	return len(b.detectors)
}

// Run executes all detectors against the asset and concatenates their
// findings. Detector failures are contained: a panicking detector logs and
// contributes nothing.
func (b *Bank) Run(ctx context.Context, ea *asset.EnrichedAsset) []asset.Finding {
	var findings []asset.Finding
	for _, d := range b.detectors {
		if err := ctx.Err(); err != nil {
			b.logger.Debug().Err(err).Str("asset", ea.Value).Msg("detector bank stopped early")
			break
		}

		start := time.Now()
		results := b.runOne(ctx, d, ea)
		findings = append(findings, results...)

		b.logger.Debug().
			Str("detector", d.Name()).
			Str("asset", ea.Value).
			Int("findings", len(results)).
			Dur("took", time.Since(start)).
			Msg("detector finished")
	}
	return findings
}

func (b *Bank) runOne(ctx context.Context, d Detector, ea *asset.EnrichedAsset) (findings []asset.Finding) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Str("detector", d.Name()).
				Str("asset", ea.Value).
				Interface("panic", r).
				Msg("detector panicked, skipping")
			findings = nil
		}
	}()
	return d.Detect(ctx, ea)
}

// targetURL builds the base URL for path probes against an asset,
// preferring the scheme that answered during enrichment. Assets without
// HTTP enrichment default to HTTPS.
func targetURL(ea *asset.EnrichedAsset) string {
	scheme := "https"
	if ea.HTTP != nil && ea.HTTP.Scheme != "" {
		scheme = ea.HTTP.Scheme
	}
	return scheme + "://" + ea.Value
}
