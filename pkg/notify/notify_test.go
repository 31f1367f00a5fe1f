package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/risktor/risktor/pkg/asset"
	"github.com/risktor/risktor/pkg/config"
)

func record(value string, typ asset.Type, score int, level asset.Severity) asset.Record {
	return asset.Record{
		EnrichedAsset: asset.EnrichedAsset{
			Asset: asset.Asset{Value: value, Type: typ},
		},
		Risk: &asset.RiskAssessment{Score: score, Level: level, Method: asset.MethodFallback},
	}
}

func TestFromRecordsFiltersAndOrders(t *testing.T) {
	records := []asset.Record{
		record("low.example.com", asset.TypeSubdomain, 12, asset.SeverityLow),
		record("db.example.com", asset.TypeSubdomain, 91, asset.SeverityCritical),
		record("example.com", asset.TypeDomain, 97, asset.SeverityCritical),
		{EnrichedAsset: asset.EnrichedAsset{Asset: asset.Asset{Value: "broken.example.com", Type: asset.TypeSubdomain}}, PipelineError: "enrichment failed"},
	}

	completed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	event := FromRecords("scan-1", "example.com", completed, records, asset.SeverityCritical)

	assert.Equal(t, "scan-1", event.ScanID)
	assert.Equal(t, "example.com", event.Domain)
	assert.Equal(t, completed, event.CompletedAt)
	require.Len(t, event.Assets, 2)
	assert.Equal(t, "example.com", event.Assets[0].Value, "highest score first")
	assert.Equal(t, 97, event.Assets[0].Score)
	assert.Equal(t, "db.example.com", event.Assets[1].Value)
}

func TestFromRecordsMinimumLevel(t *testing.T) {
	records := []asset.Record{
		record("a.example.com", asset.TypeSubdomain, 70, asset.SeverityHigh),
		record("b.example.com", asset.TypeSubdomain, 40, asset.SeverityMedium),
	}

	event := FromRecords("scan-1", "example.com", time.Now(), records, asset.SeverityHigh)
	require.Len(t, event.Assets, 1)
	assert.Equal(t, "a.example.com", event.Assets[0].Value)
}

func TestMinLevel(t *testing.T) {
	tests := []struct {
		level string
		want  asset.Severity
	}{
		{"critical", asset.SeverityCritical},
		{"high", asset.SeverityHigh},
		{"medium", asset.SeverityMedium},
		{"low", asset.SeverityLow},
		{"", asset.SeverityCritical},
		{"bogus", asset.SeverityCritical},
	}
	for _, tt := range tests {
		got := MinLevel(config.NotifyConfig{Level: tt.level})
		assert.Equal(t, tt.want, got, "level %q", tt.level)
	}
}

func TestWebhookNotifierDelivers(t *testing.T) {
	var received Event
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewWebhook(srv.URL, time.Second)
	event := Event{
		ScanID: "scan-7",
		Domain: "example.com",
		Assets: []AssetAlert{{Value: "db.example.com", Type: "subdomain", Score: 91, Level: "critical"}},
	}
	require.NoError(t, n.Notify(context.Background(), event))

	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "scan-7", received.ScanID)
	require.Len(t, received.Assets, 1)
	assert.Equal(t, 91, received.Assets[0].Score)
}

func TestWebhookNotifierNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhook(srv.URL, time.Second)
	err := n.Notify(context.Background(), Event{ScanID: "scan-7"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestWebhookNotifierUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	n := NewWebhook(url, 250*time.Millisecond)
	assert.Error(t, n.Notify(context.Background(), Event{ScanID: "scan-7"}))
}

func TestLogNotifierNeverFails(t *testing.T) {
	n := NewLog()
	err := n.Notify(context.Background(), Event{
		ScanID: "scan-7",
		Domain: "example.com",
		Assets: []AssetAlert{{Value: "example.com", Score: 97, Level: "critical"}},
	})
	assert.NoError(t, err)
}

func TestNewPicksImplementation(t *testing.T) {
	_, isWebhook := New(config.NotifyConfig{Webhook: "https://hooks.example.com/x"}).(*WebhookNotifier)
	assert.True(t, isWebhook)

	_, isLog := New(config.NotifyConfig{}).(*LogNotifier)
	assert.True(t, isLog)
}
