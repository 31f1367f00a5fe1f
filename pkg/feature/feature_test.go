// pkg/feature/feature_test.go
package feature

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/risktor/risktor/pkg/asset"
)

func TestExtractAllAbsent(t *testing.T) {
	ea := &asset.EnrichedAsset{Asset: asset.Asset{Value: "example.com", Type: asset.TypeDomain}}

	v := Extract(ea, nil)

	want := Vector{0, 0, 0, 0, 9999, 0, 0, 0, 0, 1, 0}
	require.Equal(t, want, v, "absent enrichment must map to benign defaults")
}

func TestExtractIsIdempotent(t *testing.T) {
	breaches := 2
	ea := &asset.EnrichedAsset{
		Asset:       asset.Asset{Value: "db.example.com", Type: asset.TypeSubdomain},
		OpenPorts:   []int{22, 3306, 3389},
		TLS:         &asset.TLSInfo{DaysUntilExpiry: 12, IsSelfSigned: true},
		BreachCount: &breaches,
	}
	findings := []asset.Finding{
		{Category: asset.CategoryDNS},
		{Category: asset.CategoryTLS},
	}

	first := Extract(ea, findings)
	second := Extract(ea, findings)
	require.Equal(t, first, second)
}

func TestExtractPositions(t *testing.T) {
	breaches := 3
	ea := &asset.EnrichedAsset{
		Asset:     asset.Asset{Value: "db.example.com", Type: asset.TypeSubdomain},
		OpenPorts: []int{22, 80, 443, 3306, 3389},
		TLS:       &asset.TLSInfo{DaysUntilExpiry: 42, IsSelfSigned: true},
		HTTP: &asset.HTTPInfo{SecurityHeaders: map[string]string{
			"Strict-Transport-Security": "max-age=63072000",
			"X-Content-Type-Options":    "nosniff",
		}},
		BreachCount:  &breaches,
		Technologies: []string{"nginx/1.10.3", "php/5.6.40"},
	}
	findings := []asset.Finding{
		{Category: asset.CategoryDNS},
		{Category: asset.CategoryDNS},
		{Category: asset.CategoryHTTPHeaders},
	}

	v := Extract(ea, findings)

	require.Equal(t, float64(5), v[0], "open_ports_count")
	require.Equal(t, float64(1), v[1], "has_ssh_open")
	require.Equal(t, float64(1), v[2], "has_rdp_open")
	require.Equal(t, float64(1), v[3], "has_database_ports_open")
	require.Equal(t, float64(42), v[4], "ssl_days_until_expiry")
	require.Equal(t, float64(1), v[5], "ssl_cert_is_self_signed")
	require.Equal(t, float64(2), v[6], "outdated_software_count")
	require.Equal(t, float64(3), v[7], "breach_history_count")
	require.Equal(t, float64(40), v[8], "http_security_headers_score")
	require.Equal(t, float64(2), v[9], "exposure_type_score")
	require.Equal(t, float64(2), v[10], "dns_misconfig_count")
}

func TestDatabasePortFeature(t *testing.T) {
	for _, port := range []int{1433, 3306, 5432, 6379, 27017} {
		ea := &asset.EnrichedAsset{
			Asset:     asset.Asset{Value: "example.com", Type: asset.TypeDomain},
			OpenPorts: []int{port},
		}
		v := Extract(ea, nil)
		require.Equal(t, float64(1), v[3], "port %d should flip the database feature", port)
	}

	ea := &asset.EnrichedAsset{
		Asset:     asset.Asset{Value: "example.com", Type: asset.TypeDomain},
		OpenPorts: []int{80, 443},
	}
	require.Equal(t, float64(0), Extract(ea, nil)[3])
}

func TestExposureScore(t *testing.T) {
	tests := []struct {
		name  string
		typ   asset.Type
		ports int
		want  float64
	}{
		{"domain quiet", asset.TypeDomain, 2, 1},
		{"subdomain quiet", asset.TypeSubdomain, 0, 2},
		{"ip quiet", asset.TypeIPAddress, 1, 3},
		{"domain noisy", asset.TypeDomain, 6, 2},
		{"subdomain very noisy", asset.TypeSubdomain, 11, 4},
		{"ip very noisy capped", asset.TypeIPAddress, 11, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ports := make([]int, tt.ports)
			for i := range ports {
				ports[i] = 1000 + i
			}
			ea := &asset.EnrichedAsset{
				Asset:     asset.Asset{Value: "x", Type: tt.typ},
				OpenPorts: ports,
			}
			require.Equal(t, tt.want, Extract(ea, nil)[9])
		})
	}
}

func TestNamesOrderIsTheScoringContract(t *testing.T) {
	require.Equal(t, [Count]string{
		"open_ports_count",
		"has_ssh_open",
		"has_rdp_open",
		"has_database_ports_open",
		"ssl_days_until_expiry",
		"ssl_cert_is_self_signed",
		"outdated_software_count",
		"breach_history_count",
		"http_security_headers_score",
		"exposure_type_score",
		"dns_misconfig_count",
	}, Names)
}
