// pkg/probe/dns.go
package probe

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/risktor/risktor/pkg/config"
)

// queriedTypes is the record set captured per hostname.
var queriedTypes = []uint16{
	dns.TypeA,
	dns.TypeAAAA,
	dns.TypeCNAME,
	dns.TypeMX,
	dns.TypeTXT,
	dns.TypeNS,
}

// DNSProber performs record lookups against a single resolver with a
// bounded per-query timeout. The resolver comes from config or, failing
// that, the system resolv.conf.
type DNSProber struct {
	cfg    config.DNSProbeConfig
	client *dns.Client
	server string
	logger zerolog.Logger
}

// NewDNSProber picks the resolver address and normalizes the query budget.
func NewDNSProber(cfg config.DNSProbeConfig) *DNSProber {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	server := strings.TrimSpace(cfg.Server)
	switch {
	case server == "":
		server = systemResolver()
	default:
		if _, _, err := net.SplitHostPort(server); err != nil {
			server = net.JoinHostPort(server, "53")
		}
	}

	return &DNSProber{
		cfg:    cfg,
		client: &dns.Client{Timeout: cfg.Timeout},
		server: server,
		logger: log.With().Str("probe", "dns").Logger(),
	}
}

// systemResolver reads the first nameserver from resolv.conf, with a public
// resolver as the last resort on hosts without one.
func systemResolver() string {
	conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err == nil && len(conf.Servers) > 0 {
		return net.JoinHostPort(conf.Servers[0], conf.Port)
	}
	return "8.8.8.8:53"
}

// Server returns the resolver address in use.
func (p *DNSProber) Server() string {
	return p.server
}

// Records looks up the standard record set for host and returns a map keyed
// by record type ("A", "AAAA", "CNAME", "MX", "TXT", "NS"). Types with no
// records are absent from the map. A single failing type is tolerated; the
// lookup only errors when every query failed.
func (p *DNSProber) Records(ctx context.Context, host string) (map[string][]string, error) {
	records := make(map[string][]string)
	var lastErr error
	failures := 0

	for _, qtype := range queriedTypes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		values, err := p.query(ctx, host, qtype)
		if err != nil {
			failures++
			lastErr = err
			p.logger.Debug().Err(err).Str("host", host).Str("type", dns.TypeToString[qtype]).Msg("record query failed")
			continue
		}
		if len(values) > 0 {
			records[dns.TypeToString[qtype]] = values
		}
	}

	if failures == len(queriedTypes) {
		return nil, fmt.Errorf("dns records %s: %w", host, lastErr)
	}
	return records, nil
}

// LookupTXT returns the TXT strings of name. An NXDOMAIN answer yields an
// empty slice, not an error.
func (p *DNSProber) LookupTXT(ctx context.Context, name string) ([]string, error) {
	return p.query(ctx, name, dns.TypeTXT)
}

// LookupAddrs returns the A and AAAA addresses of host in one bounded
// attempt per family. An unresolvable name yields an empty slice.
func (p *DNSProber) LookupAddrs(ctx context.Context, host string) ([]string, error) {
	var addrs []string
	var lastErr error

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		values, err := p.query(ctx, host, qtype)
		if err != nil {
			lastErr = err
			continue
		}
		addrs = append(addrs, values...)
	}

	if len(addrs) == 0 && lastErr != nil {
		return nil, fmt.Errorf("dns resolve %s: %w", host, lastErr)
	}
	return addrs, nil
}

// Resolves reports whether name currently resolves to any address. The
// distinction matters to dangling-record checks: a clean NXDOMAIN answer is
// (false, nil), a resolver failure is an error so transient trouble is not
// mistaken for a takeover window.
func (p *DNSProber) Resolves(ctx context.Context, name string) (bool, error) {
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		values, err := p.query(ctx, name, qtype)
		if err != nil {
			return false, err
		}
		if len(values) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// query sends one question and flattens the answer section into strings.
// NXDOMAIN is an empty result; any other non-success rcode is an error.
func (p *DNSProber) query(ctx context.Context, name string, qtype uint16) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true

	resp, _, err := p.client.ExchangeContext(ctx, msg, p.server)
	if err != nil {
		return nil, fmt.Errorf("query %s %s: %w", name, dns.TypeToString[qtype], err)
	}

	switch resp.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, nil
	default:
		return nil, fmt.Errorf("query %s %s: %s", name, dns.TypeToString[qtype], dns.RcodeToString[resp.Rcode])
	}

	var values []string
	for _, rr := range resp.Answer {
		switch v := rr.(type) {
		case *dns.A:
			values = append(values, v.A.String())
		case *dns.AAAA:
			values = append(values, v.AAAA.String())
		case *dns.CNAME:
			if qtype == dns.TypeCNAME {
				values = append(values, strings.TrimSuffix(v.Target, "."))
			}
		case *dns.MX:
			values = append(values, strings.TrimSuffix(v.Mx, "."))
		case *dns.TXT:
			values = append(values, strings.Join(v.Txt, ""))
		case *dns.NS:
			values = append(values, strings.TrimSuffix(v.Ns, "."))
		}
	}
	return values, nil
}
