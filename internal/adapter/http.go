package adapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/intersect-mbo/treasury-indexer/internal/logger"
)

// HTTPClient defines an interface for HTTP client operations to enable mocking
//
//go:generate mockgen -source=http.go -destination=../mocks/http.go -package=mocks -mock_names=HTTPClient=MockHTTPClient
type HTTPClient interface {
	// GetRaw performs a GET request and returns at most maxBytes of the
	// response body. A response larger than maxBytes is an error, not a
	// truncation.
	GetRaw(ctx context.Context, url string, maxBytes int64) ([]byte, error)
}

// RealHTTPClient implements HTTPClient using the standard http package
type RealHTTPClient struct {
	client     *http.Client
	maxRetries uint64
}

// NewHTTPClient creates a new real HTTP client. The timeout bounds every
// request attempt end to end.
func NewHTTPClient(timeout time.Duration, maxRetries int) HTTPClient {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RealHTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
		maxRetries: uint64(maxRetries),
	}
}

// GetRaw performs a GET request with exponential backoff retry for rate
// limiting and transient network failures.
func (c *RealHTTPClient) GetRaw(ctx context.Context, url string, maxBytes int64) ([]byte, error) {
	var respBody []byte

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}

		resp, err := c.client.Do(req)
		if err != nil {
			// Network errors are retryable
			return fmt.Errorf("failed to perform request: %w", err)
		}
		defer func() {
			if err := resp.Body.Close(); err != nil {
				logger.Warn("failed to close response body", zap.Error(err), zap.String("url", url))
			}
		}()

		if resp.StatusCode == http.StatusTooManyRequests {
			logger.Warn("rate limited, retrying with backoff", zap.String("url", url))
			return fmt.Errorf("rate limited (429), retrying")
		}

		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("unexpected status code %d", resp.StatusCode))
		}

		// Read one byte past the cap to detect oversized documents.
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to read response body: %w", err))
		}
		if int64(len(body)) > maxBytes {
			return backoff.Permanent(fmt.Errorf("response exceeds %d bytes", maxBytes))
		}

		respBody = body
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.MaxInterval = 10 * time.Second
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.5

	retryPolicy := backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx)
	if err := backoff.Retry(operation, retryPolicy); err != nil {
		return nil, fmt.Errorf("request failed after retries: %w", err)
	}

	return respBody, nil
}
