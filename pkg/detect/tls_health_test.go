// pkg/detect/tls_health_test.go
package detect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/risktor/risktor/pkg/asset"
)

func TestTLSHealthDetector(t *testing.T) {
	d := &TLSHealthDetector{}
	require.NoError(t, d.Init(nil))

	tests := []struct {
		name string
		tls  *asset.TLSInfo
		want []asset.Severity
	}{
		{name: "no handshake", tls: nil},
		{
			name: "healthy",
			tls:  &asset.TLSInfo{NotAfter: time.Now().Add(90 * 24 * time.Hour), DaysUntilExpiry: 90},
		},
		{
			name: "expired",
			tls:  &asset.TLSInfo{IsExpired: true, DaysUntilExpiry: -3},
			want: []asset.Severity{asset.SeverityCritical},
		},
		{
			name: "expiring soon",
			tls:  &asset.TLSInfo{DaysUntilExpiry: 10},
			want: []asset.Severity{asset.SeverityMedium},
		},
		{
			name: "self-signed",
			tls:  &asset.TLSInfo{IsSelfSigned: true, DaysUntilExpiry: 200},
			want: []asset.Severity{asset.SeverityHigh},
		},
		{
			name: "expired and self-signed",
			tls:  &asset.TLSInfo{IsExpired: true, IsSelfSigned: true},
			want: []asset.Severity{asset.SeverityCritical, asset.SeverityHigh},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ea := &asset.EnrichedAsset{
				Asset: asset.Asset{Value: "example.com", Type: asset.TypeDomain},
				TLS:   tt.tls,
			}
			findings := d.Detect(context.Background(), ea)
			require.Len(t, findings, len(tt.want))
			for i, severity := range tt.want {
				require.Equal(t, severity, findings[i].Severity)
				require.Equal(t, asset.CategoryTLS, findings[i].Category)
				require.Equal(t, "tls-health", findings[i].Detector)
			}
		})
	}
}
