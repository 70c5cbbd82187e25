package activitypub

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	connectTimeout  = 5 * time.Second
	maxDocumentSize = 1 << 20
)

// NewHTTPClient returns the client shared by deliveries and fetches. It is
// safe for concurrent use.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   connectTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: connectTimeout,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Fetcher retrieves the JSON document behind a federated id.
type Fetcher interface {
	Fetch(ctx context.Context, id Id) ([]byte, error)
}

// HTTPFetcher dereferences ids over HTTP, trying each ActivityPub media type
// in order until the server answers with JSON.
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string
}

func (f *HTTPFetcher) Fetch(ctx context.Context, id Id) ([]byte, error) {
	var lastErr error
	for _, accept := range AcceptHeaders {
		body, next, err := f.fetch(ctx, id, accept)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !next {
			break
		}
	}
	return nil, lastErr
}

// fetch returns next == true when another Accept value is worth trying.
func (f *HTTPFetcher) fetch(ctx context.Context, id Id, accept string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, string(id), nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", accept)
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotAcceptable || resp.StatusCode == http.StatusUnsupportedMediaType:
		return nil, true, fmt.Errorf("fetch of %s refused %q with status %d", id, accept, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("fetch of %s failed with status: %d", id, resp.StatusCode)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "json") {
		return nil, true, fmt.Errorf("fetch of %s returned %s for %q", id, ct, accept)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return nil, false, fmt.Errorf("failed to read response: %w", err)
	}
	return body, false, nil
}
