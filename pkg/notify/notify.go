// Package notify delivers the post-scan high-risk notification: one event
// per completed run carrying the assets at or above the configured level.
// Delivery is fire-and-forget; the pipeline logs a failed notification and
// moves on, it never retries or blocks the run result on it.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/risktor/risktor/pkg/asset"
	"github.com/risktor/risktor/pkg/config"
)

const defaultTimeout = 10 * time.Second

// Notifier delivers one completed-run event.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Event is the notification payload for one completed run.
type Event struct {
	ScanID      string       `json:"scan_id"`
	Domain      string       `json:"domain"`
	CompletedAt time.Time    `json:"completed_at"`
	Assets      []AssetAlert `json:"assets"`
}

// AssetAlert is the per-asset slice of an Event, trimmed to what an alert
// channel needs.
type AssetAlert struct {
	Value   string   `json:"asset_value"`
	Type    string   `json:"asset_type"`
	Score   int      `json:"score"`
	Level   string   `json:"level"`
	Factors []string `json:"factors,omitempty"`
}

// MinLevel parses the configured notification threshold, defaulting to
// critical when unset or unrecognized.
func MinLevel(cfg config.NotifyConfig) asset.Severity {
	switch asset.Severity(cfg.Level) {
	case asset.SeverityLow, asset.SeverityMedium, asset.SeverityHigh, asset.SeverityCritical:
		return asset.Severity(cfg.Level)
	default:
		return asset.SeverityCritical
	}
}

// FromRecords builds the event for a run: scored records at or above min,
// highest score first. Records without an assessment never alert.
func FromRecords(scanID, domain string, completedAt time.Time, records []asset.Record, min asset.Severity) Event {
	event := Event{ScanID: scanID, Domain: domain, CompletedAt: completedAt}

	for _, rec := range records {
		if rec.Risk == nil || rec.Risk.Level.Rank() < min.Rank() {
			continue
		}
		event.Assets = append(event.Assets, AssetAlert{
			Value:   rec.Value,
			Type:    string(rec.Type),
			Score:   rec.Risk.Score,
			Level:   string(rec.Risk.Level),
			Factors: rec.Risk.Factors,
		})
	}

	sort.SliceStable(event.Assets, func(i, j int) bool {
		return event.Assets[i].Score > event.Assets[j].Score
	})
	return event
}

// New picks the notifier for the config: a webhook when a URL is set, the
// log notifier otherwise.
func New(cfg config.NotifyConfig) Notifier {
	if cfg.Webhook != "" {
		return NewWebhook(cfg.Webhook, cfg.Timeout)
	}
	return NewLog()
}

// WebhookNotifier POSTs the event as JSON to a single URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

// NewWebhook builds a webhook notifier with a bounded request timeout
// (zero means the default).
func NewWebhook(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: log.With().Str("component", "notify").Str("notifier", "webhook").Logger(),
	}
}

// Notify delivers the event. Any non-2xx answer is an error; the caller
// decides whether that matters.
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notification webhook answered %d", resp.StatusCode)
	}

	n.logger.Debug().Str("scan_id", event.ScanID).Int("assets", len(event.Assets)).Msg("notification delivered")
	return nil
}

// LogNotifier records the event in the process log. It stands in when no
// webhook is configured so completed runs still leave an alert trail.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLog builds the log-only notifier.
func NewLog() *LogNotifier {
	return &LogNotifier{
		logger: log.With().Str("component", "notify").Str("notifier", "log").Logger(),
	}
}

// Notify writes one warn line per event. Never fails.
func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	values := make([]string, 0, len(event.Assets))
	for _, a := range event.Assets {
		values = append(values, fmt.Sprintf("%s(%d)", a.Value, a.Score))
	}
	n.logger.Warn().
		Str("scan_id", event.ScanID).
		Str("domain", event.Domain).
		Strs("assets", values).
		Msg("high-risk assets found")
	return nil
}
