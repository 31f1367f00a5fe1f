// pkg/detect/open_directory.go
package detect

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/spf13/cast"

	"github.com/risktor/risktor/pkg/asset"
)

func init() {
	Register("open-directory", func(env Env) Detector {
		return &OpenDirectoryDetector{
			client:    env.Client,
			userAgent: env.UserAgent,
			maxBody:   env.MaxBody,
			paths:     defaultListingPaths,
		}
	})
}

// listingPatterns match autoindex pages across common servers. A 200 alone
// is not evidence; SPAs answer 200 for everything.
var listingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<title>Index of /`),
	regexp.MustCompile(`(?i)<h1>Index of /`),
	regexp.MustCompile(`(?i)Directory listing for /`),
	regexp.MustCompile(`(?i)<title>Directory Listing`),
	regexp.MustCompile(`(?i)Parent Directory`),
	regexp.MustCompile(`(?i)<a href="[^"]*">\.\./?</a>`),
}

var defaultListingPaths = []string{
	"/", "/uploads/", "/images/", "/files/", "/assets/", "/backup/",
	"/admin/", "/api/", "/public/", "/static/", "/media/", "/downloads/",
	"/docs/", "/data/",
}

// OpenDirectoryDetector fetches well-known paths and flags responses whose
// body looks like a server-generated directory index. It only runs against
// assets that answered the HTTP probe.
type OpenDirectoryDetector struct {
	client    *http.Client
	userAgent string
	maxBody   int64
	paths     []string
}

func (d *OpenDirectoryDetector) Name() string { return "open-directory" }

func (d *OpenDirectoryDetector) Init(options map[string]any) error {
	if pathsVal, ok := options["paths"]; ok {
		d.paths = cast.ToStringSlice(pathsVal)
	}
	return nil
}

func (d *OpenDirectoryDetector) Detect(ctx context.Context, ea *asset.EnrichedAsset) []asset.Finding {
	if d.client == nil || ea.HTTP == nil {
		return nil
	}

	base := targetURL(ea)
	var findings []asset.Finding
	for _, path := range d.paths {
		if ctx.Err() != nil {
			break
		}
		status, body, err := fetchURL(ctx, d.client, base+path, d.userAgent, d.maxBody)
		if err != nil || status != http.StatusOK || !isDirectoryListing(body) {
			continue
		}
		findings = append(findings, asset.Finding{
			Detector:    d.Name(),
			Category:    asset.CategoryExposure,
			Severity:    asset.SeverityHigh,
			Description: fmt.Sprintf("Open directory listing at %s%s", ea.Value, path),
			Remediation: "Disable directory listing or add an index file",
		})
	}
	return findings
}

func isDirectoryListing(body []byte) bool {
	for _, p := range listingPatterns {
		if p.Match(body) {
			return true
		}
	}
	return false
}
