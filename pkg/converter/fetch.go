package converter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"benchrun/pkg/resilience"
)

// MaxSourceBytes bounds the size of fetched benchmark source.
const MaxSourceBytes = 1 << 20

// Fetcher downloads benchmark source over HTTP(S), failing fast for hosts
// whose breaker is open.
type Fetcher struct {
	client   *http.Client
	breakers *resilience.HostBreakers
}

// NewFetcher creates a fetcher. A nil client gets a 30 second timeout.
func NewFetcher(client *http.Client, breakers *resilience.HostBreakers) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if breakers == nil {
		breakers = resilience.NewHostBreakers(resilience.DefaultConfig())
	}
	return &Fetcher{client: client, breakers: breakers}
}

// Fetch returns the body of rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid source url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid source url %q: scheme must be http or https", rawURL)
	}

	var body string
	err = f.breakers.Execute(ctx, u.Host, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return err
		}
		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("source host returned status: %d", resp.StatusCode)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, MaxSourceBytes+1))
		if err != nil {
			return err
		}
		if len(data) > MaxSourceBytes {
			return fmt.Errorf("source exceeds %d bytes", MaxSourceBytes)
		}
		body = string(data)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	return body, nil
}
