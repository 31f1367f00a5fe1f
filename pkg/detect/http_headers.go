// pkg/detect/http_headers.go
package detect

import (
	"context"
	"fmt"

	"github.com/risktor/risktor/pkg/asset"
)

func init() {
	Register("http-headers", func(env Env) Detector {
		return &HeaderDetector{}
	})
}

// headerSeverity escalates the two headers whose absence directly enables
// downgrade and injection attacks; the rest of the checklist is hygiene.
var headerSeverity = map[string]asset.Severity{
	"Strict-Transport-Security": asset.SeverityHigh,
	"Content-Security-Policy":   asset.SeverityHigh,
}

// HeaderDetector emits one finding per checklist header missing from the
// probed HTTP response. Assets that never answered HTTP produce nothing.
type HeaderDetector struct{}

func (d *HeaderDetector) Name() string { return "http-headers" }

func (d *HeaderDetector) Init(options map[string]any) error { return nil }

func (d *HeaderDetector) Detect(ctx context.Context, ea *asset.EnrichedAsset) []asset.Finding {
	if ea.HTTP == nil {
		return nil
	}

	var findings []asset.Finding
	for _, name := range ea.HTTP.MissingSecurityHeaders() {
		severity, ok := headerSeverity[name]
		if !ok {
			severity = asset.SeverityMedium
		}
		findings = append(findings, asset.Finding{
			Detector:    d.Name(),
			Category:    asset.CategoryHTTPHeaders,
			Severity:    severity,
			Description: fmt.Sprintf("Missing %s header on %s", name, ea.Value),
			Remediation: fmt.Sprintf("Configure the web server to send %s on every response", name),
		})
	}
	return findings
}
