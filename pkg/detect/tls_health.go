// pkg/detect/tls_health.go
package detect

import (
	"context"
	"fmt"

	"github.com/risktor/risktor/pkg/asset"
)

func init() {
	Register("tls-health", func(env Env) Detector {
		return &TLSHealthDetector{}
	})
}

// expiryWarningDays is how close to expiry a certificate may get before it
// is flagged.
const expiryWarningDays = 30

// TLSHealthDetector grades the certificate captured during enrichment:
// expired, expiring soon, and self-signed. Assets without a TLS handshake
// produce no findings.
type TLSHealthDetector struct{}

func (d *TLSHealthDetector) Name() string { return "tls-health" }

func (d *TLSHealthDetector) Init(options map[string]any) error { return nil }

func (d *TLSHealthDetector) Detect(ctx context.Context, ea *asset.EnrichedAsset) []asset.Finding {
	if ea.TLS == nil {
		return nil
	}

	var findings []asset.Finding

	switch {
	case ea.TLS.IsExpired:
		findings = append(findings, asset.Finding{
			Detector:    d.Name(),
			Category:    asset.CategoryTLS,
			Severity:    asset.SeverityCritical,
			Description: fmt.Sprintf("Certificate for %s expired on %s", ea.Value, ea.TLS.NotAfter.Format("2006-01-02")),
			Remediation: "Renew the certificate immediately; clients are already seeing trust errors",
		})
	case ea.TLS.DaysUntilExpiry < expiryWarningDays:
		findings = append(findings, asset.Finding{
			Detector:    d.Name(),
			Category:    asset.CategoryTLS,
			Severity:    asset.SeverityMedium,
			Description: fmt.Sprintf("Certificate for %s expires in %d days", ea.Value, ea.TLS.DaysUntilExpiry),
			Remediation: "Renew the certificate before it lapses; automate renewal if possible",
		})
	}

	if ea.TLS.IsSelfSigned {
		findings = append(findings, asset.Finding{
			Detector:    d.Name(),
			Category:    asset.CategoryTLS,
			Severity:    asset.SeverityHigh,
			Description: fmt.Sprintf("Self-signed certificate presented by %s", ea.Value),
			Remediation: "Replace the certificate with one issued by a trusted CA",
		})
	}

	return findings
}
