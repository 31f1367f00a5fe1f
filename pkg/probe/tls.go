// pkg/probe/tls.go
package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/risktor/risktor/pkg/asset"
	"github.com/risktor/risktor/pkg/config"
)

// TLSProber completes a TLS handshake and reports leaf certificate
// metadata. Chain verification is disabled on purpose: an invalid
// certificate is an observation to record, not a connection to refuse.
type TLSProber struct {
	cfg    config.TLSProbeConfig
	logger zerolog.Logger
}

// NewTLSProber normalizes the handshake budget and returns a prober.
func NewTLSProber(cfg config.TLSProbeConfig) *TLSProber {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &TLSProber{
		cfg:    cfg,
		logger: log.With().Str("probe", "tls").Logger(),
	}
}

// Handshake connects to host:port, completes the handshake and extracts the
// certificate observation. SNI is set to host so name-based virtual hosts
// present the right certificate.
func (p *TLSProber) Handshake(ctx context.Context, host string, port int) (*asset.TLSInfo, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: p.cfg.Timeout},
		Config: &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // certificate problems are the data we collect
			ServerName:         host,
		},
	}

	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tls handshake %s: %w", addr, err)
	}
	defer rawConn.Close()

	conn, ok := rawConn.(*tls.Conn)
	if !ok {
		return nil, fmt.Errorf("tls handshake %s: unexpected connection type", addr)
	}

	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil, fmt.Errorf("tls handshake %s: no peer certificate", addr)
	}

	info := tlsInfoFromState(&state, time.Now())
	p.logger.Debug().
		Str("host", host).
		Str("version", info.Version).
		Bool("self_signed", info.IsSelfSigned).
		Int("days_until_expiry", info.DaysUntilExpiry).
		Msg("tls handshake complete")
	return info, nil
}

// tlsInfoFromState reduces a completed handshake to the fields the pipeline
// consumes. Self-signed detection compares the full subject and issuer
// distinguished names.
func tlsInfoFromState(state *tls.ConnectionState, now time.Time) *asset.TLSInfo {
	cert := state.PeerCertificates[0]
	subject := cert.Subject.String()
	issuer := cert.Issuer.String()

	return &asset.TLSInfo{
		Issuer:          issuer,
		Subject:         subject,
		NotBefore:       cert.NotBefore,
		NotAfter:        cert.NotAfter,
		DaysUntilExpiry: int(cert.NotAfter.Sub(now).Hours() / 24),
		IsExpired:       now.After(cert.NotAfter),
		IsSelfSigned:    subject == issuer,
		Version:         tlsVersionString(state.Version),
		CipherSuite:     tls.CipherSuiteName(state.CipherSuite),
	}
}

func tlsVersionString(version uint16) string {
	switch version {
	case tls.VersionTLS13:
		return "TLS1.3"
	case tls.VersionTLS12:
		return "TLS1.2"
	case tls.VersionTLS11:
		return "TLS1.1"
	case tls.VersionTLS10:
		return "TLS1.0"
	default:
		return fmt.Sprintf("0x%x", version)
	}
}
