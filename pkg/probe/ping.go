// pkg/probe/ping.go
package probe

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/go-ping/ping"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/risktor/risktor/pkg/config"
)

// Pinger abstracts the ping library so liveness checks can be tested
// without raw sockets.
type Pinger interface {
	Run() error
	Stop()
	Statistics() *ping.Statistics

	SetPrivileged(bool)
	SetCount(int)
	SetTimeout(time.Duration)
}

type pingerFactoryFunc func(addr string) (Pinger, error)

// realPingerAdapter wraps github.com/go-ping/ping.Pinger to implement our
// Pinger interface.
type realPingerAdapter struct {
	p *ping.Pinger
}

func (r *realPingerAdapter) Run() error                   { return r.p.Run() }
func (r *realPingerAdapter) Stop()                        { r.p.Stop() }
func (r *realPingerAdapter) Statistics() *ping.Statistics { return r.p.Statistics() }

func (r *realPingerAdapter) SetPrivileged(v bool)       { r.p.SetPrivileged(v) }
func (r *realPingerAdapter) SetCount(c int)             { r.p.Count = c }
func (r *realPingerAdapter) SetTimeout(t time.Duration) { r.p.Timeout = t }

// LivenessProber reports ICMP reachability for ip_address assets. The
// result is informational metadata only; it never feeds scoring.
type LivenessProber struct {
	cfg     config.PingProbeConfig
	factory pingerFactoryFunc
	logger  zerolog.Logger
}

// NewLivenessProber normalizes the ping budget. A privileged request
// without root is downgraded instead of failing at probe time.
func NewLivenessProber(cfg config.PingProbeConfig) *LivenessProber {
	if cfg.Count < 1 {
		cfg.Count = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}

	logger := log.With().Str("probe", "ping").Logger()
	if cfg.Privileged && runtime.GOOS != "windows" && os.Geteuid() != 0 {
		logger.Warn().Msg("privileged ping requested without root, falling back to unprivileged")
		cfg.Privileged = false
	}

	return &LivenessProber{
		cfg: cfg,
		factory: func(addr string) (Pinger, error) {
			p, err := ping.NewPinger(addr)
			if err != nil {
				return nil, err
			}
			return &realPingerAdapter{p: p}, nil
		},
		logger: logger,
	}
}

// Enabled reports whether liveness checks are configured on.
func (l *LivenessProber) Enabled() bool {
	return l.cfg.Enabled
}

// Reachable sends ICMP echo requests to addr and reports whether any reply
// arrived before the budget ran out.
func (l *LivenessProber) Reachable(ctx context.Context, addr string) (bool, error) {
	pinger, err := l.factory(addr)
	if err != nil {
		return false, err
	}

	pinger.SetPrivileged(l.cfg.Privileged)
	pinger.SetCount(l.cfg.Count)
	pinger.SetTimeout(l.cfg.Timeout)

	// Run blocks; stop it when the context ends so a canceled scan does not
	// hang on an unreachable host.
	opCtx, cancel := context.WithTimeout(ctx, l.cfg.Timeout+500*time.Millisecond)
	defer cancel()
	go func() {
		<-opCtx.Done()
		pinger.Stop()
	}()

	if err := pinger.Run(); err != nil {
		return false, err
	}

	stats := pinger.Statistics()
	alive := stats != nil && stats.PacketsRecv > 0
	l.logger.Debug().Str("addr", addr).Bool("alive", alive).Msg("liveness check finished")
	return alive, nil
}
