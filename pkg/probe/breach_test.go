// pkg/probe/breach_test.go
package probe

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/risktor/risktor/pkg/config"
)

func TestBreachClient_Count(t *testing.T) {
	t.Parallel()

	srv := mustNewHTTPServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/breaches" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		switch r.URL.Query().Get("domain") {
		case "breached.test":
			_, _ = w.Write([]byte(`[{"Name":"AcmeLeak"},{"Name":"OtherLeak"}]`))
		case "clean.test":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))

	c := NewBreachClient(config.BreachProbeConfig{
		Enabled: true,
		URL:     srv.URL + "/",
		Timeout: 5 * time.Second,
	})

	t.Run("known breaches", func(t *testing.T) {
		count, err := c.Count(context.Background(), "breached.test")
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if count == nil || *count != 2 {
			t.Errorf("expected count 2, got %v", count)
		}
	})

	t.Run("confirmed zero on 404", func(t *testing.T) {
		count, err := c.Count(context.Background(), "clean.test")
		if err != nil {
			t.Fatalf("Count failed: %v", err)
		}
		if count == nil || *count != 0 {
			t.Errorf("expected confirmed zero, got %v", count)
		}
	})

	t.Run("unknown on server error", func(t *testing.T) {
		count, err := c.Count(context.Background(), "error.test")
		if err == nil {
			t.Fatal("expected error for 500 response")
		}
		if count != nil {
			t.Errorf("expected nil count on failure, got %v", *count)
		}
	})
}

func TestBreachClient_Disabled(t *testing.T) {
	t.Parallel()

	c := NewBreachClient(config.BreachProbeConfig{Enabled: false, URL: "https://example.test"})
	count, err := c.Count(context.Background(), "risktor.test")
	if err != nil {
		t.Fatalf("disabled probe should not error: %v", err)
	}
	if count != nil {
		t.Errorf("disabled probe should report unknown, got %v", *count)
	}

	c = NewBreachClient(config.BreachProbeConfig{Enabled: true, URL: ""})
	count, err = c.Count(context.Background(), "risktor.test")
	if err != nil {
		t.Fatalf("probe without endpoint should not error: %v", err)
	}
	if count != nil {
		t.Errorf("probe without endpoint should report unknown, got %v", *count)
	}
}
