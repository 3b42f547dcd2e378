package tile

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultUserAgent is sent with every upstream request unless overridden
const DefaultUserAgent = "zoomstitch/1.0.0"

// TransportConfig holds the upstream HTTP settings shared by all collaborators
type TransportConfig struct {
	UserAgent string
	Headers   map[string]string
	// InsecureSkipVerify disables TLS certificate checks for hosts with broken chains
	InsecureSkipVerify bool
	Timeout            time.Duration
}

// NewHTTPClient builds a client for the given configuration
func NewHTTPClient(cfg TransportConfig) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}
}

// StatusError is returned for upstream responses other than 200
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

// Fetcher retrieves the raw bytes of one tile
type Fetcher interface {
	Fetch(ctx context.Context, d Descriptor) ([]byte, error)
}

// HTTPFetcher downloads tiles over HTTP
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	headers   map[string]string
}

// NewHTTPFetcher creates a tile fetcher. A nil client is built from cfg.
func NewHTTPFetcher(client *http.Client, cfg TransportConfig) *HTTPFetcher {
	if client == nil {
		client = NewHTTPClient(cfg)
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &HTTPFetcher{
		client:    client,
		userAgent: userAgent,
		headers:   cfg.Headers,
	}
}

// Fetch downloads the tile described by d
func (f *HTTPFetcher) Fetch(ctx context.Context, d Descriptor) ([]byte, error) {
	return Get(ctx, f.client, d.URL(), f.userAgent, f.headers)
}

// Get performs a GET request and returns the body of a 200 response
func Get(ctx context.Context, client *http.Client, url, userAgent string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", userAgent)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	return io.ReadAll(resp.Body)
}
