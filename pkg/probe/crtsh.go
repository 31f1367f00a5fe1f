// pkg/probe/crtsh.go
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/risktor/risktor/pkg/netutil"
)

const (
	crtshBaseURL = "https://crt.sh"
	// crtshMaxBody caps the response read; crt.sh answers for large domains
	// run to tens of megabytes.
	crtshMaxBody    = 50 * 1024 * 1024
	crtshTimeout    = 30 * time.Second
	crtshRetryDelay = 3 * time.Second
)

type crtshEntry struct {
	NameValue string `json:"name_value"`
}

// CertLogClient queries a crt.sh style certificate-transparency aggregator
// for hostnames seen in issued certificates.
type CertLogClient struct {
	baseURL    string
	client     *http.Client
	retryDelay time.Duration
	logger     zerolog.Logger
}

// NewCertLogClient builds a client against baseURL (empty means crt.sh).
func NewCertLogClient(baseURL string, timeout time.Duration) *CertLogClient {
	if baseURL == "" {
		baseURL = crtshBaseURL
	}
	if timeout <= 0 {
		timeout = crtshTimeout
	}
	return &CertLogClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		client:     &http.Client{Timeout: timeout},
		retryDelay: crtshRetryDelay,
		logger:     log.With().Str("probe", "ctlog").Logger(),
	}
}

// Subdomains returns the unique hostnames under domain that appear in
// certificate-transparency logs: lowercase, wildcard labels stripped,
// out-of-scope names dropped, sorted.
func (c *CertLogClient) Subdomains(ctx context.Context, domain string) ([]string, error) {
	url := fmt.Sprintf("%s/?q=%%25.%s&output=json", c.baseURL, domain)

	body, err := c.fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("certificate transparency lookup for %s: %w", domain, err)
	}

	var entries []crtshEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("certificate transparency parse for %s: %w", domain, err)
	}

	seen := make(map[string]struct{})
	var hosts []string
	for _, entry := range entries {
		// name_value can hold multiple names separated by newlines.
		for _, name := range strings.Split(entry.NameValue, "\n") {
			name = strings.TrimSpace(strings.ToLower(name))
			name = strings.TrimPrefix(name, "*.")
			if name == "" || !netutil.InScope(name, domain) {
				continue
			}
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				hosts = append(hosts, name)
			}
		}
	}
	sort.Strings(hosts)

	c.logger.Debug().Str("domain", domain).Int("hosts", len(hosts)).Msg("certificate transparency lookup finished")
	return hosts, nil
}

// fetch does the request with one retry after a pause. Rate limiting is
// terminal: retrying immediately would hit the same limit.
func (c *CertLogClient) fetch(ctx context.Context, url string) ([]byte, error) {
	body, rateLimited, err := c.doRequest(ctx, url)
	if err == nil || rateLimited {
		return body, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(c.retryDelay):
	}

	body, _, err = c.doRequest(ctx, url)
	return body, err
}

func (c *CertLogClient) doRequest(ctx context.Context, url string) (body []byte, rateLimited bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, true, fmt.Errorf("rate limited (429)")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err = io.ReadAll(io.LimitReader(resp.Body, crtshMaxBody))
	if err != nil {
		return nil, false, fmt.Errorf("read response: %w", err)
	}
	return body, false, nil
}
