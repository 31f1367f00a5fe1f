// pkg/probe/breach.go
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/risktor/risktor/pkg/config"
)

// breachMaxBody caps the breach index response read.
const breachMaxBody = 4 * 1024 * 1024

// BreachClient queries an HIBP-style breach index for the number of known
// breaches involving a domain.
type BreachClient struct {
	cfg    config.BreachProbeConfig
	client *http.Client
	logger zerolog.Logger
}

// NewBreachClient normalizes the lookup budget and returns a client.
func NewBreachClient(cfg config.BreachProbeConfig) *BreachClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &BreachClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: log.With().Str("probe", "breach").Logger(),
	}
}

// Count returns the number of known breaches for domain. A 404 from the
// index is a confirmed zero. When the probe is disabled the count is nil
// with no error: unknown, not zero. Any other failure is an error the
// caller records as unknown.
func (c *BreachClient) Count(ctx context.Context, domain string) (*int, error) {
	if !c.cfg.Enabled || c.cfg.URL == "" {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/breaches?domain=%s", strings.TrimSuffix(c.cfg.URL, "/"), url.QueryEscape(domain))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("breach lookup %s: %w", domain, err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("breach lookup %s: %w", domain, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		zero := 0
		return &zero, nil
	case resp.StatusCode != http.StatusOK:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("breach lookup %s: unexpected status %d", domain, resp.StatusCode)
	}

	var breaches []json.RawMessage
	if err := json.NewDecoder(io.LimitReader(resp.Body, breachMaxBody)).Decode(&breaches); err != nil {
		return nil, fmt.Errorf("breach lookup %s: decode: %w", domain, err)
	}

	count := len(breaches)
	c.logger.Debug().Str("domain", domain).Int("breaches", count).Msg("breach lookup finished")
	return &count, nil
}
