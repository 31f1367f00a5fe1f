// pkg/detect/fetch.go
package detect

import (
	"context"
	"io"
	"net/http"
)

// defaultMaxBody bounds body reads when the environment does not set one.
const defaultMaxBody = 256 << 10

// fetchURL issues a GET and returns the status code plus a size-capped body.
// Path-probing detectors treat any transport error as "nothing observed".
func fetchURL(ctx context.Context, client *http.Client, url, userAgent string, maxBody int64) (int, []byte, error) {
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	return resp.StatusCode, body, nil
}
