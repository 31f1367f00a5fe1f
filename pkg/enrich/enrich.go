// Package enrich runs the per-asset probe fan-out: all applicable probes
// launch concurrently, each behind its own timeout and panic boundary, and
// the results merge into an EnrichedAsset exactly once after every probe
// has returned. A failed probe leaves its fields absent; enrichment itself
// never fails.
package enrich

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/risktor/risktor/pkg/asset"
	"github.com/risktor/risktor/pkg/config"
	"github.com/risktor/risktor/pkg/fingerprint"
	"github.com/risktor/risktor/pkg/netutil"
	"github.com/risktor/risktor/pkg/probe"
)

// The probe surfaces the coordinator fans out to. The pkg/probe types
// implement these; tests substitute stubs.
type (
	// PortScanner reports the open TCP ports of a host.
	PortScanner interface {
		Scan(ctx context.Context, host string) ([]int, error)
	}

	// HTTPProber fetches the HTTP surface of a host, HTTPS first.
	HTTPProber interface {
		Fetch(ctx context.Context, host string) (*asset.HTTPInfo, error)
	}

	// TLSProber performs a certificate-inspecting handshake.
	TLSProber interface {
		Handshake(ctx context.Context, host string, port int) (*asset.TLSInfo, error)
	}

	// DNSProber looks up the standard record set and addresses of a host.
	DNSProber interface {
		Records(ctx context.Context, host string) (map[string][]string, error)
		LookupAddrs(ctx context.Context, host string) ([]string, error)
	}

	// BreachClient reports the known breach count of a domain. A nil count
	// with nil error means the source is disabled or gave no answer.
	BreachClient interface {
		Count(ctx context.Context, domain string) (*int, error)
	}

	// LivenessProber checks ICMP reachability of an address.
	LivenessProber interface {
		Enabled() bool
		Reachable(ctx context.Context, addr string) (bool, error)
	}
)

// Probes carries the probe set a Coordinator fans out to. A nil member
// means that surface is never probed.
type Probes struct {
	Ports    PortScanner
	HTTP     HTTPProber
	TLS      TLSProber
	DNS      DNSProber
	Breach   BreachClient
	Liveness LivenessProber
}

// Coordinator enriches one asset per call. Safe for concurrent use; the
// probe clients it holds are pooled and shared across asset pipelines.
type Coordinator struct {
	probes Probes
	logger zerolog.Logger
}

// New builds a Coordinator over an explicit probe set.
func New(p Probes) *Coordinator {
	return &Coordinator{
		probes: p,
		logger: log.With().Str("component", "enrich").Logger(),
	}
}

// FromConfig assembles the production coordinator with one shared client
// per probe type.
func FromConfig(cfg config.ProbesConfig) (*Coordinator, error) {
	ports, err := probe.NewPortScanner(cfg.Ports)
	if err != nil {
		return nil, err
	}
	return New(Probes{
		Ports:    ports,
		HTTP:     probe.NewHTTPProber(cfg.HTTP),
		TLS:      probe.NewTLSProber(cfg.TLS),
		DNS:      probe.NewDNSProber(cfg.DNS),
		Breach:   probe.NewBreachClient(cfg.Breach),
		Liveness: probe.NewLivenessProber(cfg.Ping),
	}), nil
}

// Enrich fans out the probes that apply to the asset's surface, waits for
// all of them, and merges once. Hostname assets get the full set; address
// assets get the port scan plus optional liveness. The returned value is
// complete: whatever a probe could not deliver is simply absent.
func (c *Coordinator) Enrich(ctx context.Context, a asset.Asset) asset.EnrichedAsset {
	var (
		wg sync.WaitGroup

		openPorts  []int
		httpInfo   *asset.HTTPInfo
		tlsInfo    *asset.TLSInfo
		dnsRecords map[string][]string
		addrs      []string
		breach     *int
		reachable  *bool
	)

	run := func(name string, fn func(ctx context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					c.logger.Error().
						Str("probe", name).
						Str("asset", a.Value).
						Interface("panic", r).
						Msg("probe panicked")
				}
			}()
			fn(ctx)
		}()
	}

	host := a.Value
	isHostname := a.Type != asset.TypeIPAddress

	if c.probes.Ports != nil {
		run("ports", func(ctx context.Context) {
			ports, err := c.probes.Ports.Scan(ctx, host)
			if err != nil {
				c.logger.Debug().Err(err).Str("asset", host).Msg("port probe failed")
				return
			}
			openPorts = ports
		})
	}

	if isHostname {
		if c.probes.HTTP != nil {
			run("http", func(ctx context.Context) {
				info, err := c.probes.HTTP.Fetch(ctx, host)
				if err != nil {
					c.logger.Debug().Err(err).Str("asset", host).Msg("http probe failed")
					return
				}
				httpInfo = info
			})
		}
		if c.probes.TLS != nil {
			run("tls", func(ctx context.Context) {
				info, err := c.probes.TLS.Handshake(ctx, host, 443)
				if err != nil {
					c.logger.Debug().Err(err).Str("asset", host).Msg("tls probe failed")
					return
				}
				tlsInfo = info
			})
		}
		if c.probes.DNS != nil {
			run("dns", func(ctx context.Context) {
				records, err := c.probes.DNS.Records(ctx, host)
				if err != nil {
					c.logger.Debug().Err(err).Str("asset", host).Msg("dns probe failed")
					return
				}
				dnsRecords = records
			})
			run("addrs", func(ctx context.Context) {
				resolved, err := c.probes.DNS.LookupAddrs(ctx, host)
				if err != nil {
					c.logger.Debug().Err(err).Str("asset", host).Msg("address lookup failed")
					return
				}
				addrs = netutil.FilterScannableIPs(resolved)
			})
		}
		if c.probes.Breach != nil {
			run("breach", func(ctx context.Context) {
				count, err := c.probes.Breach.Count(ctx, netutil.RegistrableDomain(host))
				if err != nil {
					c.logger.Debug().Err(err).Str("asset", host).Msg("breach probe failed")
					return
				}
				breach = count
			})
		}
	} else if c.probes.Liveness != nil && c.probes.Liveness.Enabled() {
		run("ping", func(ctx context.Context) {
			ok, err := c.probes.Liveness.Reachable(ctx, host)
			if err != nil {
				c.logger.Debug().Err(err).Str("asset", host).Msg("liveness probe failed")
				return
			}
			reachable = &ok
		})
	}

	wg.Wait()

	sort.Ints(openPorts)
	ea := asset.EnrichedAsset{
		Asset:       a,
		IPAddresses: addrs,
		OpenPorts:   openPorts,
		DNSRecords:  dnsRecords,
		TLS:         tlsInfo,
		HTTP:        httpInfo,
		BreachCount: breach,
		Reachable:   reachable,
	}
	if httpInfo != nil {
		ea.Technologies = fingerprint.FromServerHeader(httpInfo.Server)
	}

	c.logger.Debug().
		Str("asset", a.Value).
		Str("type", string(a.Type)).
		Int("open_ports", len(ea.OpenPorts)).
		Bool("http", ea.HTTP != nil).
		Bool("tls", ea.TLS != nil).
		Msg("asset enriched")
	return ea
}
