package openapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultFetchTimeout bounds the single request made by Fetcher.
const DefaultFetchTimeout = 10 * time.Second

// maxDocumentSize caps the response body read by Fetcher.
const maxDocumentSize = 16 << 20

// Fetcher downloads an OpenAPI document with one GET request and no retries.
type Fetcher struct {
	Client  *http.Client
	Timeout time.Duration
	// MaxSize caps the document size in bytes; zero means 16 MiB.
	MaxSize int64
}

func (f *Fetcher) limit() int64 {
	if f.MaxSize > 0 {
		return f.MaxSize
	}
	return maxDocumentSize
}

// NewFetcher creates a Fetcher with the given timeout. A zero timeout means
// DefaultFetchTimeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Fetcher{
		Client:  &http.Client{Timeout: timeout},
		Timeout: timeout,
	}
}

// Fetch returns the raw document at url. Any transport failure, timeout or
// non-2xx status yields an error wrapping ErrNoDocument.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDocument, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDocument, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: GET %s: HTTP %d", ErrNoDocument, url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.limit()+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrNoDocument, err)
	}
	if int64(len(data)) > f.limit() {
		return nil, fmt.Errorf("%w: document exceeds %d bytes", ErrNoDocument, f.limit())
	}
	return data, nil
}
