package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voicebridge/voice-gateway/internal/resilience"
)

// fetcher is the shared HTTP plumbing for tools that call external JSON APIs
type fetcher struct {
	client *http.Client
	retry  *resilience.RetryConfig
}

func newFetcher() *fetcher {
	return &fetcher{
		client: &http.Client{Timeout: 10 * time.Second},
		retry: &resilience.RetryConfig{
			MaxAttempts:       3,
			InitialBackoff:    200 * time.Millisecond,
			MaxBackoff:        2 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            true,
		},
	}
}

// getJSON fetches a URL and decodes the JSON body into out, retrying
// transient network failures and 5xx responses
func (f *fetcher) getJSON(ctx context.Context, url string, out any) error {
	return resilience.Retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("upstream %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
		}

		return json.NewDecoder(resp.Body).Decode(out)
	}, f.retry, func(err error) bool {
		if resilience.IsRetryableNetworkError(err) {
			return true
		}
		// 5xx responses are worth one more try
		var code int
		if _, scanErr := fmt.Sscanf(err.Error(), "upstream %d", &code); scanErr == nil {
			return true
		}
		return false
	})
}
