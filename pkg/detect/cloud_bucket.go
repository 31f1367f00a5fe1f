// pkg/detect/cloud_bucket.go
package detect

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cast"

	"github.com/risktor/risktor/pkg/asset"
)

func init() {
	Register("cloud-bucket", func(env Env) Detector {
		return &CloudBucketDetector{
			client:        env.Client,
			userAgent:     env.UserAgent,
			maxBody:       env.MaxBody,
			s3Endpoint:    "https://%s.s3.amazonaws.com",
			gcsEndpoint:   "https://storage.googleapis.com/%s",
			azureEndpoint: "https://%s.blob.core.windows.net/%s",
			containers:    defaultAzureContainers,
		}
	})
}

var defaultAzureContainers = []string{"assets", "files", "images", "backup", "data", "public"}

// CloudBucketDetector derives candidate bucket names from the scan domain
// and probes S3, GCS, and Azure Blob endpoints for public access. It runs
// once per scan, on the root domain asset only; running it per subdomain
// would hammer the providers with duplicate guesses.
//
// Endpoint templates are fields so tests can aim the detector at a local
// server.
type CloudBucketDetector struct {
	client    *http.Client
	userAgent string
	maxBody   int64

	s3Endpoint    string
	gcsEndpoint   string
	azureEndpoint string
	containers    []string
}

func (d *CloudBucketDetector) Name() string { return "cloud-bucket" }

func (d *CloudBucketDetector) Init(options map[string]any) error {
	if containersVal, ok := options["containers"]; ok {
		d.containers = cast.ToStringSlice(containersVal)
	}
	return nil
}

func (d *CloudBucketDetector) Detect(ctx context.Context, ea *asset.EnrichedAsset) []asset.Finding {
	if d.client == nil || ea.Type != asset.TypeDomain {
		return nil
	}

	var findings []asset.Finding
	for _, name := range bucketCandidates(ea.Value) {
		if ctx.Err() != nil {
			break
		}
		if f, ok := d.checkS3(ctx, name); ok {
			findings = append(findings, f)
		}
		if f, ok := d.checkGCS(ctx, name); ok {
			findings = append(findings, f)
		}
		if f, ok := d.checkAzure(ctx, name); ok {
			findings = append(findings, f)
		}
	}
	return findings
}

// bucketCandidates generates the name variations organizations commonly use
// for storage tied to a domain, deduplicated in stable order.
func bucketCandidates(domain string) []string {
	first := strings.SplitN(domain, ".", 2)[0]
	raw := []string{
		domain,
		strings.ReplaceAll(domain, ".", "-"),
		first,
		first + "-assets",
		first + "-backup",
		first + "-data",
	}
	seen := make(map[string]struct{}, len(raw))
	var out []string
	for _, name := range raw {
		if _, dup := seen[name]; dup || name == "" {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// checkS3 probes the virtual-hosted S3 endpoint. A 200 means the bucket is
// listable by anyone. A 403 whose body lacks AccessDenied means the bucket
// exists under our candidate name, which is worth surfacing on its own.
func (d *CloudBucketDetector) checkS3(ctx context.Context, bucket string) (asset.Finding, bool) {
	status, body, err := fetchURL(ctx, d.client, fmt.Sprintf(d.s3Endpoint, bucket), d.userAgent, d.maxBody)
	if err != nil {
		return asset.Finding{}, false
	}
	switch {
	case status == http.StatusOK:
		return asset.Finding{
			Detector:    d.Name(),
			Category:    asset.CategoryCloudStorage,
			Severity:    asset.SeverityCritical,
			Description: fmt.Sprintf("S3 bucket %q is publicly accessible and listable", bucket),
			Remediation: "Restrict bucket permissions and enable bucket policies",
		}, true
	case status == http.StatusForbidden && !bytes.Contains(body, []byte("AccessDenied")):
		return asset.Finding{
			Detector:    d.Name(),
			Category:    asset.CategoryCloudStorage,
			Severity:    asset.SeverityHigh,
			Description: fmt.Sprintf("S3 bucket %q exists (listing denied)", bucket),
			Remediation: "Verify bucket permissions and naming",
		}, true
	}
	return asset.Finding{}, false
}

func (d *CloudBucketDetector) checkGCS(ctx context.Context, bucket string) (asset.Finding, bool) {
	status, _, err := fetchURL(ctx, d.client, fmt.Sprintf(d.gcsEndpoint, bucket), d.userAgent, d.maxBody)
	if err != nil || status != http.StatusOK {
		return asset.Finding{}, false
	}
	return asset.Finding{
		Detector:    d.Name(),
		Category:    asset.CategoryCloudStorage,
		Severity:    asset.SeverityCritical,
		Description: fmt.Sprintf("GCS bucket %q is publicly accessible", bucket),
		Remediation: "Update IAM permissions to restrict public access",
	}, true
}

// checkAzure tries the common container names under the candidate account
// and reports the first public one.
func (d *CloudBucketDetector) checkAzure(ctx context.Context, account string) (asset.Finding, bool) {
	for _, container := range d.containers {
		if ctx.Err() != nil {
			break
		}
		status, _, err := fetchURL(ctx, d.client, fmt.Sprintf(d.azureEndpoint, account, container), d.userAgent, d.maxBody)
		if err != nil || status != http.StatusOK {
			continue
		}
		return asset.Finding{
			Detector:    d.Name(),
			Category:    asset.CategoryCloudStorage,
			Severity:    asset.SeverityCritical,
			Description: fmt.Sprintf("Azure Blob container %q on account %q is publicly accessible", container, account),
			Remediation: "Change the container access level to private",
		}, true
	}
	return asset.Finding{}, false
}
