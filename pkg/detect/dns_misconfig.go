// pkg/detect/dns_misconfig.go
package detect

import (
	"context"
	"fmt"
	"strings"

	"github.com/risktor/risktor/pkg/asset"
)

func init() {
	Register("dns-misconfig", func(env Env) Detector {
		return &DNSMisconfigDetector{resolver: env.Resolver}
	})
}

// danglingSuffixes are CNAME target suffixes of hosted services where an
// unclaimed name can be registered by anyone, making a CNAME that no longer
// resolves a takeover candidate.
var danglingSuffixes = []string{
	".s3.amazonaws.com",
	".azurewebsites.net",
	".github.io",
	".herokuapp.com",
	".cloudfront.net",
	".elasticbeanstalk.com",
	".trafficmanager.net",
	".blob.core.windows.net",
	".azureedge.net",
	".pantheonsite.io",
	".netlify.app",
	".ghost.io",
	".myshopify.com",
	".surge.sh",
}

// DNSMisconfigDetector flags missing email-authentication records (SPF,
// DMARC) and CNAME records pointing at takeover-prone services that no
// longer resolve. It only inspects assets that have DNS enrichment data;
// ip_address assets have none and are skipped.
type DNSMisconfigDetector struct {
	resolver Resolver
}

func (d *DNSMisconfigDetector) Name() string { return "dns-misconfig" }

func (d *DNSMisconfigDetector) Init(options map[string]any) error { return nil }

func (d *DNSMisconfigDetector) Detect(ctx context.Context, ea *asset.EnrichedAsset) []asset.Finding {
	if ea.Type == asset.TypeIPAddress || len(ea.DNSRecords) == 0 {
		return nil
	}

	var findings []asset.Finding

	if !hasSPF(ea.DNSRecords["TXT"]) {
		findings = append(findings, asset.Finding{
			Detector:    d.Name(),
			Category:    asset.CategoryDNS,
			Severity:    asset.SeverityMedium,
			Description: fmt.Sprintf("Missing SPF record for %s", ea.Value),
			Remediation: "Publish a TXT record starting with v=spf1 to limit who may send mail for the domain",
		})
	}

	if d.resolver != nil && !d.hasDMARC(ctx, ea.Value) {
		findings = append(findings, asset.Finding{
			Detector:    d.Name(),
			Category:    asset.CategoryDNS,
			Severity:    asset.SeverityMedium,
			Description: fmt.Sprintf("Missing DMARC record for %s", ea.Value),
			Remediation: "Publish a _dmarc TXT record with v=DMARC1 to enable mail authentication reporting",
		})
	}

	for _, cname := range ea.DNSRecords["CNAME"] {
		if f, ok := d.checkDangling(ctx, ea.Value, cname); ok {
			findings = append(findings, f)
		}
	}

	return findings
}

// hasSPF reports whether any TXT value declares an SPF policy.
func hasSPF(txts []string) bool {
	for _, txt := range txts {
		if strings.Contains(strings.ToLower(txt), "v=spf1") {
			return true
		}
	}
	return false
}

// hasDMARC queries _dmarc.<domain> for a DMARC policy. Lookup failures
// count as present: transient resolver trouble must not fabricate findings.
func (d *DNSMisconfigDetector) hasDMARC(ctx context.Context, domain string) bool {
	txts, err := d.resolver.LookupTXT(ctx, "_dmarc."+domain)
	if err != nil {
		return true
	}
	for _, txt := range txts {
		if strings.Contains(strings.ToLower(txt), "v=dmarc1") {
			return true
		}
	}
	return false
}

// checkDangling flags a CNAME target on a takeover-prone service that
// returns a clean NXDOMAIN. Resolver errors are not evidence; only a
// definitive "name does not exist" answer produces a finding.
func (d *DNSMisconfigDetector) checkDangling(ctx context.Context, host, cname string) (asset.Finding, bool) {
	target := strings.ToLower(strings.TrimSuffix(cname, "."))

	matched := false
	for _, suffix := range danglingSuffixes {
		if strings.HasSuffix(target, suffix) {
			matched = true
			break
		}
	}
	if !matched || d.resolver == nil {
		return asset.Finding{}, false
	}

	resolves, err := d.resolver.Resolves(ctx, target)
	if err != nil || resolves {
		return asset.Finding{}, false
	}

	return asset.Finding{
		Detector:    d.Name(),
		Category:    asset.CategoryDNS,
		Severity:    asset.SeverityHigh,
		Description: fmt.Sprintf("Dangling CNAME: %s points at unclaimed %s", host, target),
		Remediation: "Remove the CNAME record or reclaim the target resource before someone else does",
	}, true
}
