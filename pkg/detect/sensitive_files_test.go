// pkg/detect/sensitive_files_test.go
package detect

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/risktor/risktor/pkg/asset"
)

func TestSensitiveFileDetector(t *testing.T) {
	srv := mustNewServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/.env":
			fmt.Fprint(w, "APP_SECRET=hunter2")
		case "/.git/config":
			// Redirect catch-alls must not count as exposure.
			http.Redirect(w, r, "/", http.StatusMovedPermanently)
		default:
			http.NotFound(w, r)
		}
	}))

	client := srv.Client()
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	d := &SensitiveFileDetector{client: client, paths: defaultSensitivePaths}
	require.NoError(t, d.Init(nil))

	ea := &asset.EnrichedAsset{
		Asset: asset.Asset{Value: serverHost(srv), Type: asset.TypeDomain},
		HTTP:  &asset.HTTPInfo{Scheme: "http", StatusCode: 200},
	}
	findings := d.Detect(context.Background(), ea)
	require.Len(t, findings, 1)
	require.Equal(t, asset.SeverityCritical, findings[0].Severity)
	require.Equal(t, asset.CategorySensitiveFiles, findings[0].Category)
	require.Contains(t, findings[0].Description, "/.env")
}

func TestSensitiveFileDetector_SkipsWithoutHTTP(t *testing.T) {
	d := &SensitiveFileDetector{client: http.DefaultClient, paths: defaultSensitivePaths}
	ea := &asset.EnrichedAsset{Asset: asset.Asset{Value: "example.com", Type: asset.TypeDomain}}
	require.Nil(t, d.Detect(context.Background(), ea))
}

func TestSensitiveFileDetector_InitOverridesPaths(t *testing.T) {
	d := &SensitiveFileDetector{paths: defaultSensitivePaths}
	require.NoError(t, d.Init(map[string]any{"paths": []string{"/secrets.txt"}}))
	require.Equal(t, []string{"/secrets.txt"}, d.paths)
}
