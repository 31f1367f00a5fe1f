// pkg/detect/sensitive_files.go
package detect

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cast"

	"github.com/risktor/risktor/pkg/asset"
)

func init() {
	Register("sensitive-files", func(env Env) Detector {
		return &SensitiveFileDetector{
			client:    env.Client,
			userAgent: env.UserAgent,
			maxBody:   env.MaxBody,
			paths:     defaultSensitivePaths,
		}
	})
}

// defaultSensitivePaths are files that must never be reachable over HTTP.
// The detector's client does not follow redirects, so a 200 here is the
// file itself, not a catch-all landing page.
var defaultSensitivePaths = []string{
	"/.env",
	"/.git/config",
	"/.DS_Store",
	"/.htaccess",
	"/backup.zip",
	"/backup.sql",
	"/config.php",
	"/wp-config.php",
}

// SensitiveFileDetector probes for exposed configuration and backup files.
// Any direct 200 is critical regardless of content; by the time content
// matters the secret is already public.
type SensitiveFileDetector struct {
	client    *http.Client
	userAgent string
	maxBody   int64
	paths     []string
}

func (d *SensitiveFileDetector) Name() string { return "sensitive-files" }

func (d *SensitiveFileDetector) Init(options map[string]any) error {
	if pathsVal, ok := options["paths"]; ok {
		d.paths = cast.ToStringSlice(pathsVal)
	}
	return nil
}

func (d *SensitiveFileDetector) Detect(ctx context.Context, ea *asset.EnrichedAsset) []asset.Finding {
	if d.client == nil || ea.HTTP == nil {
		return nil
	}

	base := targetURL(ea)
	var findings []asset.Finding
	for _, path := range d.paths {
		if ctx.Err() != nil {
			break
		}
		status, _, err := fetchURL(ctx, d.client, base+path, d.userAgent, d.maxBody)
		if err != nil || status != http.StatusOK {
			continue
		}
		findings = append(findings, asset.Finding{
			Detector:    d.Name(),
			Category:    asset.CategorySensitiveFiles,
			Severity:    asset.SeverityCritical,
			Description: fmt.Sprintf("Sensitive file exposed: %s on %s", path, ea.Value),
			Remediation: "Remove or restrict access to this file immediately",
		})
	}
	return findings
}
