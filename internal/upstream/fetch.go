// Package upstream provides the bounded-retry HTTP access used by every
// outbound call in the gateway.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

const (
	maxAttempts    = 3
	rateLimitDelay = 1500 * time.Millisecond
)

var errCircuitOpen = errors.New("circuit breaker open")

// StatusError reports a non-success response from an upstream API.
type StatusError struct {
	Status int
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.URL)
}

// HeaderFunc builds request headers. It is invoked once per attempt so
// signed headers carry a fresh timestamp on every retry.
type HeaderFunc func() (map[string]string, error)

// Fetcher performs retrying JSON GETs against one named upstream behind a
// circuit breaker. Up to 3 attempts are made; a 429 waits 1500ms times the
// attempt number before retrying, any other non-success status fails
// immediately.
type Fetcher struct {
	client  *http.Client
	circuit *gobreaker.CircuitBreaker
}

// NewFetcher creates a Fetcher for the named upstream.
func NewFetcher(name string, client *http.Client) *Fetcher {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Fetcher{
		client:  client,
		circuit: cb,
	}
}

// GetJSON performs a retrying GET with fixed headers and decodes the
// response body into out.
func (f *Fetcher) GetJSON(ctx context.Context, url string, headers map[string]string, out any) error {
	return f.GetJSONWithHeaders(ctx, url, func() (map[string]string, error) {
		return headers, nil
	}, out)
}

// GetJSONWithHeaders performs a retrying GET, rebuilding headers on every
// attempt, and decodes the response body into out.
func (f *Fetcher) GetJSONWithHeaders(ctx context.Context, url string, headerFn HeaderFunc, out any) error {
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		headers, err := headerFn()
		if err != nil {
			return err
		}

		body, err := f.do(ctx, url, headers)
		if err == nil {
			if out == nil {
				return nil
			}
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("decode %s: %w", url, err)
			}
			return nil
		}

		// If circuit is open, propagate immediately.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		var statusErr *StatusError
		retryable := errors.As(err, &statusErr) && statusErr.Status == http.StatusTooManyRequests
		if !retryable || attempt >= maxAttempts {
			return err
		}

		delay := rateLimitDelay * time.Duration(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// do executes one attempt through the circuit breaker and returns the body.
func (f *Fetcher) do(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	result, err := f.circuit.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &StatusError{Status: resp.StatusCode, URL: url}
		}

		return body, nil
	})
	if err != nil {
		return nil, err
	}

	body, ok := result.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return body, nil
}
