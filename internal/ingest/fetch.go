package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/hashicorp/go-retryablehttp"
)

// Fetcher downloads source files to temporary local storage.
//
// Transient failures (5xx, connection resets) are retried with backoff;
// client errors such as 404 fail immediately so a bad URL surfaces fast.
type Fetcher struct {
	client *retryablehttp.Client
}

// NewFetcher returns a Fetcher with bounded retries and quiet logging.
func NewFetcher() *Fetcher {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.Logger = nil
	return &Fetcher{client: c}
}

// Fetch downloads url to a temporary file and returns its path together
// with a cleanup func that removes it. bearer, when non-empty, is set as
// the Authorization value verbatim prefixed with the Bearer scheme; the
// value itself is never inspected.
func (f *Fetcher) Fetch(ctx context.Context, url, bearer string) (string, func(), error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", nil, fmt.Errorf("fetch %s: unexpected response %d", url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp("", "querystore-*.download")
	if err != nil {
		return "", nil, fmt.Errorf("create temp file: %w", err)
	}

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("download %s: %w", url, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, fmt.Errorf("flush download: %w", err)
	}

	path := tmp.Name()
	return path, func() { os.Remove(path) }, nil
}
