// Package netx fetches objects published through presigned URLs.
package netx

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

var httpClient = http.DefaultClient

// DownloadToWriter performs a GET on url and streams the body into w.
// Any status other than 200 is an error carrying the first bytes of the
// response body.
func DownloadToWriter(ctx context.Context, url string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("download failed: %s; body: %s", resp.Status, string(b))
	}

	return io.Copy(w, resp.Body)
}
