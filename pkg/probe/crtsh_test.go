// pkg/probe/crtsh_test.go
package probe

import (
	"context"
	"net/http"
	"reflect"
	"sync/atomic"
	"testing"
	"time"
)

func TestCertLogClient_Subdomains(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := mustNewHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if got := r.URL.Query().Get("q"); got != "%.risktor.test" {
			t.Errorf("unexpected query %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"name_value": "www.risktor.test\n*.api.risktor.test"},
			{"name_value": "WWW.RISKTOR.TEST"},
			{"name_value": "mail.other.test"},
			{"name_value": "risktor.test"}
		]`))
	}))

	c := NewCertLogClient(srv.URL, 5*time.Second)
	hosts, err := c.Subdomains(context.Background(), "risktor.test")
	if err != nil {
		t.Fatalf("Subdomains failed: %v", err)
	}

	want := []string{"api.risktor.test", "risktor.test", "www.risktor.test"}
	if !reflect.DeepEqual(hosts, want) {
		t.Errorf("got %v, want %v", hosts, want)
	}
	if requests.Load() != 1 {
		t.Errorf("expected a single request, got %d", requests.Load())
	}
}

func TestCertLogClient_RetryOnServerError(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := mustNewHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`[{"name_value": "app.risktor.test"}]`))
	}))

	c := NewCertLogClient(srv.URL, 5*time.Second)
	c.retryDelay = 10 * time.Millisecond

	hosts, err := c.Subdomains(context.Background(), "risktor.test")
	if err != nil {
		t.Fatalf("Subdomains failed after retry: %v", err)
	}
	if len(hosts) != 1 || hosts[0] != "app.risktor.test" {
		t.Errorf("unexpected hosts %v", hosts)
	}
	if requests.Load() != 2 {
		t.Errorf("expected exactly one retry, got %d requests", requests.Load())
	}
}

func TestCertLogClient_RateLimitIsTerminal(t *testing.T) {
	t.Parallel()

	var requests atomic.Int32
	srv := mustNewHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	c := NewCertLogClient(srv.URL, 5*time.Second)
	c.retryDelay = 10 * time.Millisecond

	if _, err := c.Subdomains(context.Background(), "risktor.test"); err == nil {
		t.Fatal("expected error when rate limited")
	}
	if requests.Load() != 1 {
		t.Errorf("expected no retry on 429, got %d requests", requests.Load())
	}
}

func TestCertLogClient_MalformedJSON(t *testing.T) {
	t.Parallel()

	srv := mustNewHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	}))

	c := NewCertLogClient(srv.URL, 5*time.Second)
	if _, err := c.Subdomains(context.Background(), "risktor.test"); err == nil {
		t.Fatal("expected parse error for malformed response")
	}
}
