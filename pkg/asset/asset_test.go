package asset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTypeIsValid(t *testing.T) {
	require.True(t, TypeDomain.IsValid())
	require.True(t, TypeSubdomain.IsValid())
	require.True(t, TypeIPAddress.IsValid())
	require.False(t, Type("host").IsValid())
	require.False(t, Type("").IsValid())
}

func TestSeverityRank(t *testing.T) {
	require.Greater(t, SeverityCritical.Rank(), SeverityHigh.Rank())
	require.Greater(t, SeverityHigh.Rank(), SeverityMedium.Rank())
	require.Greater(t, SeverityMedium.Rank(), SeverityLow.Rank())
	require.Equal(t, 0, Severity("bogus").Rank())
}

func TestAssetKey(t *testing.T) {
	a := Asset{Value: "example.com", Type: TypeDomain}
	b := Asset{Value: "example.com", Type: TypeSubdomain}
	c := Asset{Value: "example.com", Type: TypeDomain, DiscoveredVia: SourceCertLog}

	require.NotEqual(t, a.Key(), b.Key(), "same value, different type must not collide")
	require.Equal(t, a.Key(), c.Key(), "discovery source is not part of identity")
}

func TestMissingSecurityHeaders(t *testing.T) {
	var nilInfo *HTTPInfo
	require.Nil(t, nilInfo.MissingSecurityHeaders())

	info := &HTTPInfo{SecurityHeaders: map[string]string{
		"Strict-Transport-Security": "max-age=63072000",
		"X-Content-Type-Options":    "nosniff",
	}}
	missing := info.MissingSecurityHeaders()
	require.Equal(t, []string{
		"Content-Security-Policy",
		"X-Frame-Options",
		"Referrer-Policy",
	}, missing)
}

func TestHeaderScore(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{name: "none present", headers: nil, want: 0},
		{
			name: "two of five",
			headers: map[string]string{
				"Strict-Transport-Security": "max-age=31536000",
				"X-Frame-Options":           "DENY",
			},
			want: 40,
		},
		{
			name: "all present",
			headers: map[string]string{
				"Strict-Transport-Security": "max-age=31536000",
				"Content-Security-Policy":   "default-src 'self'",
				"X-Frame-Options":           "DENY",
				"X-Content-Type-Options":    "nosniff",
				"Referrer-Policy":           "no-referrer",
			},
			want: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := &HTTPInfo{SecurityHeaders: tt.headers}
			require.Equal(t, tt.want, info.HeaderScore())
		})
	}

	var nilInfo *HTTPInfo
	require.Equal(t, 0, nilInfo.HeaderScore())
}

func TestHasOpenPort(t *testing.T) {
	e := &EnrichedAsset{OpenPorts: []int{22, 80, 443}}
	require.True(t, e.HasOpenPort(22))
	require.False(t, e.HasOpenPort(8080))

	empty := &EnrichedAsset{}
	require.False(t, empty.HasOpenPort(22))
}

func TestCountBySeverity(t *testing.T) {
	findings := []Finding{
		{Detector: "tls-health", Severity: SeverityCritical},
		{Detector: "http-headers", Severity: SeverityHigh},
		{Detector: "http-headers", Severity: SeverityMedium},
		{Detector: "dns-misconfig", Severity: SeverityMedium},
	}

	counts := CountBySeverity(findings)
	require.Equal(t, 1, counts[SeverityCritical])
	require.Equal(t, 1, counts[SeverityHigh])
	require.Equal(t, 2, counts[SeverityMedium])
	require.Equal(t, 0, counts[SeverityLow])
}
