package blob

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Fetcher downloads attachment bytes from a URL. Nothing is cached.
type Fetcher struct {
	client  *http.Client
	maxSize int64
}

// NewFetcher creates a fetcher bounded by timeout and maxSize.
func NewFetcher(timeout time.Duration, maxSize int64) *Fetcher {
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		maxSize: maxSize,
	}
}

// Fetch downloads the object at rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, notFound(rawURL)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrDownloadFailed, resp.StatusCode)
	}

	if f.maxSize > 0 && resp.ContentLength > f.maxSize {
		return nil, ErrTooLarge
	}

	var body io.Reader = resp.Body
	if f.maxSize > 0 {
		body = io.LimitReader(resp.Body, f.maxSize+1)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownloadFailed, err)
	}
	if f.maxSize > 0 && int64(len(data)) > f.maxSize {
		return nil, ErrTooLarge
	}
	return data, nil
}
