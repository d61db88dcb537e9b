package kalshi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ksolden/weather-market-gateway/internal/upstream"
)

// DefaultBaseURL is the production exchange host.
const DefaultBaseURL = "https://api.elections.kalshi.com"

const apiPrefix = "/trade-api/v2"

// Client provides signed read access to the exchange REST API. All calls go
// through the shared retrying fetcher; headers are regenerated on every
// attempt so each retry carries a fresh signature.
type Client struct {
	baseURL string
	signer  *Signer
	fetcher *upstream.Fetcher
}

// NewClient creates a Client. An empty baseURL selects the production host.
func NewClient(baseURL string, signer *Signer, fetcher *upstream.Fetcher) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		signer:  signer,
		fetcher: fetcher,
	}
}

// GetOpenEvents fetches open events for a series with nested markets.
func (c *Client) GetOpenEvents(ctx context.Context, seriesTicker string) ([]Event, error) {
	path := apiPrefix + "/events"

	query := url.Values{}
	query.Set("status", "open")
	query.Set("series_ticker", seriesTicker)
	query.Set("with_nested_markets", "true")
	query.Set("limit", "50")

	var resp EventsResponse
	if err := c.get(ctx, path, query, &resp); err != nil {
		return nil, fmt.Errorf("get events %s: %w", seriesTicker, err)
	}

	return resp.Events, nil
}

// GetOrderbook fetches the order book for a market ticker.
func (c *Client) GetOrderbook(ctx context.Context, ticker string) (*Orderbook, error) {
	path := apiPrefix + "/markets/" + ticker + "/orderbook"

	var resp OrderbookResponse
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("get orderbook %s: %w", ticker, err)
	}

	return &resp.Orderbook, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	// The query string is excluded from the signed message.
	return c.fetcher.GetJSONWithHeaders(ctx, fullURL, func() (map[string]string, error) {
		return c.signer.Sign(http.MethodGet, path)
	}, out)
}
