// Package discover enumerates the attack surface of a scan root: the root
// domain itself, subdomains found through certificate transparency and DNS
// wordlist brute-force, and the addresses those hostnames resolve to.
//
// Discovery is tolerant. Subdomain sources are best-effort and a failing
// source only narrows the result; a hostname that does not resolve still
// yields its hostname asset. The only fatal input is a root domain that
// does not parse.
package discover

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/risktor/risktor/pkg/asset"
	"github.com/risktor/risktor/pkg/config"
	"github.com/risktor/risktor/pkg/netutil"
	"github.com/risktor/risktor/pkg/output"
	"github.com/risktor/risktor/pkg/probe"
)

// defaultBruteConcurrency bounds parallel DNS probes when config does not.
const defaultBruteConcurrency = 8

// SubdomainSource yields candidate hostnames under a root domain. Sources
// run sequentially and are best-effort: a failing source is logged and
// skipped, never fatal to discovery.
type SubdomainSource interface {
	// Name labels assets discovered by this source (discovered_via).
	Name() string
	Subdomains(ctx context.Context, domain string) ([]string, error)
}

// Resolver is the DNS surface discovery depends on. *probe.DNSProber
// implements it.
type Resolver interface {
	// LookupAddrs returns the A and AAAA addresses of host in one bounded
	// attempt per family.
	LookupAddrs(ctx context.Context, host string) ([]string, error)
	// Resolves reports whether name currently resolves to any address.
	Resolves(ctx context.Context, name string) (bool, error)
}

// CertLogSource adapts the certificate-transparency client into a
// SubdomainSource.
type CertLogSource struct {
	client *probe.CertLogClient
}

// NewCertLogSource wraps client for use in the discovery source chain.
func NewCertLogSource(client *probe.CertLogClient) *CertLogSource {
	return &CertLogSource{client: client}
}

// Name implements SubdomainSource.
func (s *CertLogSource) Name() string { return asset.SourceCertLog }

// Subdomains returns the in-scope hostnames seen in CT logs, minus the root
// itself (the caller carries the root unconditionally).
func (s *CertLogSource) Subdomains(ctx context.Context, domain string) ([]string, error) {
	hosts, err := s.client.Subdomains(ctx, domain)
	if err != nil {
		return nil, err
	}

	subs := hosts[:0]
	for _, h := range hosts {
		if h != domain {
			subs = append(subs, h)
		}
	}
	return subs, nil
}

// WordlistSource brute-forces <label>.<domain> candidates against DNS and
// keeps the ones that resolve. One bounded query pair per candidate, no
// retries.
type WordlistSource struct {
	resolver    Resolver
	labels      []string
	concurrency int
	logger      zerolog.Logger
}

// NewWordlistSource builds a brute-force source over labels. An empty label
// slice falls back to the builtin list; concurrency <= 0 uses the default.
func NewWordlistSource(resolver Resolver, labels []string, concurrency int) *WordlistSource {
	if len(labels) == 0 {
		labels = BuiltinWordlist()
	}
	if concurrency <= 0 {
		concurrency = defaultBruteConcurrency
	}
	return &WordlistSource{
		resolver:    resolver,
		labels:      labels,
		concurrency: concurrency,
		logger:      log.With().Str("source", "wordlist").Logger(),
	}
}

// Name implements SubdomainSource.
func (s *WordlistSource) Name() string { return asset.SourceWordlist }

// Subdomains probes every label and returns the resolving candidates,
// sorted. Individual probe failures are skipped; a canceled context returns
// whatever resolved so far along with the context error.
func (s *WordlistSource) Subdomains(ctx context.Context, domain string) ([]string, error) {
	jobs := make(chan string)
	results := make(chan string, len(s.labels))

	var wg sync.WaitGroup
	for range s.concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range jobs {
				ok, err := s.resolver.Resolves(ctx, name)
				if err != nil {
					s.logger.Debug().Err(err).Str("host", name).Msg("brute-force probe failed")
					continue
				}
				if ok {
					results <- name
				}
			}
		}()
	}

feed:
	for _, label := range s.labels {
		select {
		case jobs <- label + "." + domain:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	var found []string
	for name := range results {
		found = append(found, name)
	}
	sort.Strings(found)

	return found, ctx.Err()
}

// Discoverer turns one root domain into the asset set a scan will enrich.
type Discoverer struct {
	cfg      config.ScanConfig
	resolver Resolver
	sources  []SubdomainSource
	logger   zerolog.Logger
}

// New builds a Discoverer from explicit parts. Production callers usually
// want FromConfig.
func New(cfg config.ScanConfig, resolver Resolver, sources ...SubdomainSource) *Discoverer {
	return &Discoverer{
		cfg:      cfg,
		resolver: resolver,
		sources:  sources,
		logger:   log.With().Str("component", "discover").Logger(),
	}
}

// FromConfig assembles the production discoverer: a shared DNS prober plus
// whichever subdomain sources the config enables.
func FromConfig(scanCfg config.ScanConfig, probesCfg config.ProbesConfig) (*Discoverer, error) {
	resolver := probe.NewDNSProber(probesCfg.DNS)

	var sources []SubdomainSource
	if scanCfg.Subdomains.CTLog {
		sources = append(sources, NewCertLogSource(probe.NewCertLogClient("", 0)))
	}
	if scanCfg.Subdomains.Bruteforce {
		labels, err := LoadWordlist(scanCfg.Subdomains.Wordlist)
		if err != nil {
			return nil, err
		}
		sources = append(sources, NewWordlistSource(resolver, labels, scanCfg.Concurrency))
	}
	return New(scanCfg, resolver, sources...), nil
}

// candidate is a discovered subdomain together with the source that found
// it first. Source order decides attribution when two sources report the
// same name.
type candidate struct {
	name string
	via  string
}

// Discover returns the deduplicated asset set for domain: the root as a
// domain asset, enumerated subdomains when includeSubdomains is set, and an
// ip_address asset per unique resolved address. See the package comment for
// the failure policy.
func (d *Discoverer) Discover(ctx context.Context, domain string, includeSubdomains bool) ([]asset.Asset, error) {
	root, err := netutil.NormalizeDomain(domain)
	if err != nil {
		return nil, err
	}

	diag(ctx, output.LevelVerbose, "discovery started", map[string]any{
		"domain":     root,
		"subdomains": includeSubdomains,
	})

	var subs []candidate
	if includeSubdomains {
		subs = d.enumerate(ctx, root)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	hostnames := make([]string, 0, 1+len(subs))
	hostnames = append(hostnames, root)
	for _, c := range subs {
		hostnames = append(hostnames, c.name)
	}

	assets := make([]asset.Asset, 0, 2*len(hostnames))
	assets = append(assets, asset.Asset{
		Value:         root,
		Type:          asset.TypeDomain,
		DiscoveredVia: asset.SourceUserInput,
	})
	for _, c := range subs {
		assets = append(assets, asset.Asset{
			Value:         c.name,
			Type:          asset.TypeSubdomain,
			ParentDomain:  root,
			DiscoveredVia: c.via,
		})
	}
	for _, ip := range d.resolveAll(ctx, hostnames) {
		assets = append(assets, asset.Asset{
			Value:         ip,
			Type:          asset.TypeIPAddress,
			ParentDomain:  root,
			DiscoveredVia: asset.SourceDNSResolution,
		})
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.logger.Info().
		Str("domain", root).
		Int("assets", len(assets)).
		Int("subdomains", len(subs)).
		Msg("discovery finished")
	diag(ctx, output.LevelVerbose, "discovery finished", map[string]any{
		"domain": root,
		"assets": len(assets),
	})
	return assets, nil
}

// enumerate merges the subdomain sources in order, dedupes, and applies the
// configured cap. The root itself is never a candidate.
func (d *Discoverer) enumerate(ctx context.Context, root string) []candidate {
	seen := map[string]struct{}{root: {}}
	var found []candidate

	for _, src := range d.sources {
		names, err := src.Subdomains(ctx, root)
		if err != nil {
			if ctx.Err() != nil {
				return found
			}
			d.logger.Warn().Err(err).Str("source", src.Name()).Str("domain", root).Msg("subdomain source failed")
			diag(ctx, output.LevelDebug, "subdomain source failed", map[string]any{
				"source": src.Name(),
				"error":  err.Error(),
			})
			continue
		}

		for _, name := range names {
			if !netutil.InScope(name, root) {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			found = append(found, candidate{name: name, via: src.Name()})
		}
	}

	if max := d.cfg.Subdomains.Max; max > 0 && len(found) > max {
		d.logger.Info().Int("found", len(found)).Int("max", max).Msg("capping enumerated subdomains")
		found = found[:max]
	}
	return found
}

// resolveAll resolves every hostname concurrently and returns the unique
// scannable addresses in hostname order. Resolution failures drop the
// hostname's addresses, nothing else.
func (d *Discoverer) resolveAll(ctx context.Context, hostnames []string) []string {
	concurrency := d.cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultBruteConcurrency
	}

	resolved := make([][]string, len(hostnames))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, host := range hostnames {
		wg.Add(1)
		go func(i int, host string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}
			addrs, err := d.resolver.LookupAddrs(ctx, host)
			if err != nil {
				d.logger.Debug().Err(err).Str("host", host).Msg("address resolution failed")
				return
			}
			resolved[i] = netutil.FilterScannableIPs(addrs)
		}(i, host)
	}
	wg.Wait()

	seen := make(map[string]struct{})
	var ips []string
	for _, addrs := range resolved {
		for _, ip := range addrs {
			if _, ok := seen[ip]; ok {
				continue
			}
			seen[ip] = struct{}{}
			ips = append(ips, ip)
		}
	}
	return ips
}

// diag emits a diagnostic event when the context carries an output sink.
func diag(ctx context.Context, level output.OutputLevel, message string, metadata map[string]any) {
	if out, ok := output.FromContext(ctx); ok {
		out.Diag(level, message, metadata)
	}
}
