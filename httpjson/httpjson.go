// Package httpjson fetches JSON documents from third-party registries.
package httpjson

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/onnwee/chatfeed/jsoncodec"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.Code)
}

// Get performs a GET against url and decodes the response body into out.
// A nil client uses http.DefaultClient.
func Get(ctx context.Context, client *http.Client, url string, out any) error {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.String("url", url), slog.Any("err", err))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{URL: url, Code: resp.StatusCode}
	}
	if err := jsoncodec.Decode(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
