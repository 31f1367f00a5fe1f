// pkg/probe/tls_test.go
package probe

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/risktor/risktor/pkg/config"
)

func newSelfSignedCert(t *testing.T, notBefore, notAfter time.Time) (tls.Certificate, *x509.Certificate) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "risktor.test", Organization: []string{"Risktor Test"}},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"risktor.test"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	parsed, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}, parsed
}

// startTLSServer serves TLS handshakes with the given certificate and
// returns host and port of the listener.
func startTLSServer(t *testing.T, cert tls.Certificate) (string, int) {
	t.Helper()

	ln := mustListenTCP(t, "127.0.0.1:0")
	tlsLn := tls.NewListener(ln, &tls.Config{Certificates: []tls.Certificate{cert}})
	t.Cleanup(func() { tlsLn.Close() })

	go func() {
		for {
			conn, err := tlsLn.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				if tlsConn, ok := conn.(*tls.Conn); ok {
					_ = tlsConn.Handshake()
				}
			}(conn)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func TestTLSProber_Handshake_SelfSigned(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cert, _ := newSelfSignedCert(t, now.Add(-time.Hour), now.Add(365*24*time.Hour))
	host, port := startTLSServer(t, cert)

	p := NewTLSProber(config.TLSProbeConfig{Timeout: 5 * time.Second})
	info, err := p.Handshake(context.Background(), host, port)
	if err != nil {
		t.Fatalf("Handshake failed: %v", err)
	}

	if !info.IsSelfSigned {
		t.Error("expected self-signed certificate to be flagged")
	}
	if info.IsExpired {
		t.Error("did not expect valid certificate to be flagged expired")
	}
	if info.DaysUntilExpiry < 300 {
		t.Errorf("expected over 300 days until expiry, got %d", info.DaysUntilExpiry)
	}
	if !strings.Contains(info.Subject, "risktor.test") {
		t.Errorf("expected subject to carry the common name, got %q", info.Subject)
	}
	if info.Subject != info.Issuer {
		t.Errorf("expected subject == issuer for self-signed, got %q vs %q", info.Subject, info.Issuer)
	}
	if !strings.HasPrefix(info.Version, "TLS1.") {
		t.Errorf("expected a TLS1.x version string, got %q", info.Version)
	}
	if info.CipherSuite == "" {
		t.Error("expected a cipher suite name")
	}
}

func TestTLSProber_Handshake_ExpiredCert(t *testing.T) {
	t.Parallel()

	now := time.Now()
	cert, _ := newSelfSignedCert(t, now.Add(-48*time.Hour), now.Add(-24*time.Hour))
	host, port := startTLSServer(t, cert)

	p := NewTLSProber(config.TLSProbeConfig{Timeout: 5 * time.Second})
	info, err := p.Handshake(context.Background(), host, port)
	if err != nil {
		t.Fatalf("Handshake failed: %v", err)
	}

	if !info.IsExpired {
		t.Error("expected expired certificate to be flagged")
	}
	if info.DaysUntilExpiry >= 0 {
		t.Errorf("expected negative days until expiry, got %d", info.DaysUntilExpiry)
	}
}

func TestTLSProber_Handshake_Refused(t *testing.T) {
	t.Parallel()

	port := closedLoopbackPort(t)
	p := NewTLSProber(config.TLSProbeConfig{Timeout: time.Second})

	if _, err := p.Handshake(context.Background(), "127.0.0.1", port); err == nil {
		t.Fatal("expected error for refused connection")
	}
}

func TestTLSInfoFromState(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	_, parsed := newSelfSignedCert(t, now.Add(-time.Hour), now.Add(40*24*time.Hour))

	state := &tls.ConnectionState{
		Version:          tls.VersionTLS12,
		CipherSuite:      tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		PeerCertificates: []*x509.Certificate{parsed},
	}

	info := tlsInfoFromState(state, now)
	if info.DaysUntilExpiry != 40 {
		t.Errorf("expected 40 days until expiry, got %d", info.DaysUntilExpiry)
	}
	if info.Version != "TLS1.2" {
		t.Errorf("expected TLS1.2, got %q", info.Version)
	}
	if info.CipherSuite != "TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256" {
		t.Errorf("unexpected cipher suite %q", info.CipherSuite)
	}
	if !info.IsSelfSigned {
		t.Error("expected self-signed flag")
	}
}

func TestTLSVersionString(t *testing.T) {
	cases := []struct {
		version uint16
		want    string
	}{
		{tls.VersionTLS13, "TLS1.3"},
		{tls.VersionTLS12, "TLS1.2"},
		{tls.VersionTLS11, "TLS1.1"},
		{tls.VersionTLS10, "TLS1.0"},
		{0x0300, "0x300"},
	}
	for _, tc := range cases {
		if got := tlsVersionString(tc.version); got != tc.want {
			t.Errorf("tlsVersionString(%#x) = %q, want %q", tc.version, got, tc.want)
		}
	}
}
