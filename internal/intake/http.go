package intake

import (
	"context"
	"io"
	"net/http"

	"github.com/rotisserie/eris"
)

const userAgent = "acquire-pipeline/1.0"

// httpDownload fetches the export over HTTP(S). Transient failures are
// retried by the caller's pipeline retry budget, not here; a bulk drop
// fetch is a single shot.
func (c *Client) httpDownload(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "intake: create request")
	}
	req.Header.Set("User-Agent", userAgent)

	client := &http.Client{Timeout: c.httpTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "intake: http download")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("intake: unexpected status %d from %s", resp.StatusCode, rawURL)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "intake: read response body")
	}
	return data, nil
}
