// pkg/probe/http.go
package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/risktor/risktor/pkg/asset"
	"github.com/risktor/risktor/pkg/config"
	"github.com/risktor/risktor/pkg/output"
)

// maxRedirects caps redirect chains before the probe gives up on a target.
const maxRedirects = 5

// NewHTTPClient builds the HTTP client shared by the surface probe and the
// path-probing detectors: bounded total timeout, no TLS chain verification
// and a redirect cap.
func NewHTTPClient(cfg config.HTTPProbeConfig) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, //nolint:gosec // broken TLS must not hide the HTTP surface
			},
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// HTTPProber fetches the root page of a host and records status, server
// identification and the security-header checklist.
type HTTPProber struct {
	cfg    config.HTTPProbeConfig
	client *http.Client
	logger zerolog.Logger
}

// NewHTTPProber normalizes the probe config and builds the client.
func NewHTTPProber(cfg config.HTTPProbeConfig) *HTTPProber {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = 1 << 20
	}
	return &HTTPProber{
		cfg:    cfg,
		client: NewHTTPClient(cfg),
		logger: log.With().Str("probe", "http").Logger(),
	}
}

// Fetch probes the HTTP surface of host: HTTPS first, plain HTTP as the
// fallback. The returned error is the last scheme's failure.
func (p *HTTPProber) Fetch(ctx context.Context, host string) (*asset.HTTPInfo, error) {
	var lastErr error
	for _, scheme := range []string{"https", "http"} {
		info, err := p.fetchScheme(ctx, scheme, host)
		if err == nil {
			diag(ctx, output.LevelVerbose, fmt.Sprintf("%s answered over %s with status %d", host, scheme, info.StatusCode), nil)
			return info, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("http probe %s: %w", host, lastErr)
}

func (p *HTTPProber) fetchScheme(ctx context.Context, scheme, host string) (*asset.HTTPInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, scheme+"://"+host+"/", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// Drain a bounded amount so keep-alive connections can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, p.cfg.MaxBody))

	info := &asset.HTTPInfo{
		StatusCode: resp.StatusCode,
		Scheme:     scheme,
		Server:     resp.Header.Get("Server"),
	}

	headers := make(map[string]string)
	for _, name := range asset.SecurityHeaderChecklist {
		if values := resp.Header.Values(name); len(values) > 0 {
			headers[name] = values[0]
		}
	}
	if len(headers) > 0 {
		info.SecurityHeaders = headers
	}

	p.logger.Debug().
		Str("host", host).
		Str("scheme", scheme).
		Int("status", resp.StatusCode).
		Int("checklist_headers", len(headers)).
		Msg("http surface fetched")
	return info, nil
}
