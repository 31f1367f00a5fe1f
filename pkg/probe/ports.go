// pkg/probe/ports.go
package probe

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Ullaakut/nmap/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/risktor/risktor/pkg/config"
	"github.com/risktor/risktor/pkg/netutil"
	"github.com/risktor/risktor/pkg/output"
)

// nmapHostTimeout bounds a whole nmap run against one host. The connect
// scan is bounded per port instead.
const nmapHostTimeout = 30 * time.Second

// PortScanner checks which candidate TCP ports accept connections on a
// host. The default strategy is a plain connect scan; when the nmap
// strategy is enabled and an nmap binary is available it is tried first,
// with the connect scan as fallback. Filtered ports behind stateful
// firewalls show up as closed either way.
type PortScanner struct {
	cfg    config.PortProbeConfig
	ports  []int
	logger zerolog.Logger
}

// NewPortScanner parses the configured port list and normalizes the probe
// budgets. An empty list falls back to the built-in candidate set.
func NewPortScanner(cfg config.PortProbeConfig) (*PortScanner, error) {
	ports, err := netutil.ParsePortString(cfg.List)
	if err != nil {
		return nil, fmt.Errorf("port probe list: %w", err)
	}
	if len(ports) == 0 {
		ports, _ = netutil.ParsePortString(config.DefaultPortList)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 50
	}

	return &PortScanner{
		cfg:    cfg,
		ports:  ports,
		logger: log.With().Str("probe", "ports").Logger(),
	}, nil
}

// Ports returns the candidate port list the scanner probes.
func (s *PortScanner) Ports() []int {
	out := make([]int, len(s.ports))
	copy(out, s.ports)
	return out
}

// Scan returns the open ports of host, sorted ascending.
func (s *PortScanner) Scan(ctx context.Context, host string) ([]int, error) {
	if s.cfg.Nmap {
		open, err := s.nmapScan(ctx, host)
		if err == nil {
			return open, nil
		}
		s.logger.Warn().Err(err).Str("host", host).Msg("nmap strategy failed, falling back to connect scan")
	}
	return s.connectScan(ctx, host)
}

// connectScan dials every candidate port with a bounded per-connection
// timeout. A successful dial means open; everything else means closed.
func (s *PortScanner) connectScan(ctx context.Context, host string) ([]int, error) {
	dialer := &net.Dialer{Timeout: s.cfg.Timeout}

	var (
		mu   sync.Mutex
		open []int
		wg   sync.WaitGroup
	)
	sem := make(chan struct{}, s.cfg.Concurrency)

	for _, port := range s.ports {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		default:
		}

		wg.Add(1)
		sem <- struct{}{}

		go func(port int) {
			defer wg.Done()
			defer func() { <-sem }()

			conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
			if err != nil {
				return
			}
			conn.Close()

			mu.Lock()
			open = append(open, port)
			mu.Unlock()

			diag(ctx, output.LevelVerbose, fmt.Sprintf("open port %d on %s", port, host), nil)
		}(port)
	}

	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Ints(open)
	s.logger.Debug().Str("host", host).Ints("open", open).Msg("connect scan finished")
	return open, nil
}

// nmapScan runs nmap against the same candidate list. NewScanner fails when
// no nmap binary is installed, which the caller treats as "use the connect
// scan".
func (s *PortScanner) nmapScan(ctx context.Context, host string) ([]int, error) {
	scanner, err := nmap.NewScanner(
		ctx,
		nmap.WithTargets(host),
		nmap.WithPorts(s.portsCSV()),
		nmap.WithOpenOnly(),
		nmap.WithSkipHostDiscovery(),
		nmap.WithTimingTemplate(nmap.TimingAggressive),
		nmap.WithHostTimeout(nmapHostTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create nmap scanner: %w", err)
	}

	result, warnings, err := scanner.Run()
	if err != nil {
		return nil, fmt.Errorf("nmap run: %w", err)
	}
	if warnings != nil && len(*warnings) > 0 {
		s.logger.Debug().Strs("warnings", *warnings).Msg("nmap finished with warnings")
	}

	var open []int
	for _, h := range result.Hosts {
		for _, port := range h.Ports {
			open = append(open, int(port.ID))
		}
	}
	sort.Ints(open)
	s.logger.Debug().Str("host", host).Ints("open", open).Msg("nmap scan finished")
	return open, nil
}

func (s *PortScanner) portsCSV() string {
	parts := make([]string, len(s.ports))
	for i, p := range s.ports {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}
