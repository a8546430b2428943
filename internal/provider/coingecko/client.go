package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

const defaultBaseURL = "https://api.coingecko.com/api/v3"

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=coingecko_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIClient is a thin client for the CoinGecko REST API.
type APIClient struct {
	baseURL    string
	httpClient HTTPClient
	header     http.Header
}

// APIClientOption is a configuration option for the API client.
type APIClientOption func(*APIClient)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) APIClientOption {
	return func(c *APIClient) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) APIClientOption {
	return func(c *APIClient) {
		c.httpClient = httpClient
	}
}

// NewAPIClient creates a CoinGecko API client. An empty key is accepted; the
// public API works unauthenticated at lower request quotas.
func NewAPIClient(key string, options ...APIClientOption) (*APIClient, error) {
	c := &APIClient{
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
	}
	if key != "" {
		// Demo-tier API keys travel in this header.
		// https://docs.coingecko.com/reference/authentication
		c.header.Set("x-cg-demo-api-key", key)
	}
	for _, option := range options {
		option(c)
	}
	return c, nil
}

// simplePriceResponse maps coin id -> currency -> price.
type simplePriceResponse map[string]map[string]json.Number

// SimplePrice returns the current price of one coin in one quote currency.
func (c *APIClient) SimplePrice(ctx context.Context, coinID, vsCurrency string) (json.Number, error) {
	q := url.Values{}
	q.Set("ids", coinID)
	q.Set("vs_currencies", vsCurrency)

	var resp simplePriceResponse
	if err := c.getJSON(ctx, "/simple/price", q, &resp); err != nil {
		return "", err
	}
	price, ok := resp[coinID][vsCurrency]
	if !ok {
		return "", &APIError{StatusCode: http.StatusOK, Message: fmt.Sprintf("no price for %s/%s in response", coinID, vsCurrency)}
	}
	return price, nil
}

// marketChartResponse carries [epoch-millis, value] pairs.
type marketChartResponse struct {
	Prices [][2]json.Number `json:"prices"`
}

// MarketChartRange returns raw price samples between two unix timestamps.
func (c *APIClient) MarketChartRange(ctx context.Context, coinID, vsCurrency string, from, to int64) ([][2]json.Number, error) {
	q := url.Values{}
	q.Set("vs_currency", vsCurrency)
	q.Set("from", strconv.FormatInt(from, 10))
	q.Set("to", strconv.FormatInt(to, 10))

	var resp marketChartResponse
	path := fmt.Sprintf("/coins/%s/market_chart/range", url.PathEscape(coinID))
	if err := c.getJSON(ctx, path, q, &resp); err != nil {
		return nil, err
	}
	return resp.Prices, nil
}

// SearchCoin is one hit of the search endpoint.
type SearchCoin struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

type searchResponse struct {
	Coins []SearchCoin `json:"coins"`
}

// Search queries the coin catalogue.
func (c *APIClient) Search(ctx context.Context, query string) ([]SearchCoin, error) {
	q := url.Values{}
	q.Set("query", query)

	var resp searchResponse
	if err := c.getJSON(ctx, "/search", q, &resp); err != nil {
		return nil, err
	}
	return resp.Coins, nil
}

// CoinInfo is the subset of coin metadata the pricing core can use.
type CoinInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// CoinMetadata fetches descriptive attributes for one coin.
func (c *APIClient) CoinMetadata(ctx context.Context, coinID string) (*CoinInfo, error) {
	q := url.Values{}
	q.Set("localization", "false")
	q.Set("tickers", "false")
	q.Set("market_data", "false")

	var resp CoinInfo
	path := fmt.Sprintf("/coins/%s", url.PathEscape(coinID))
	if err := c.getJSON(ctx, path, q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("coingecko: status %d: %s", e.StatusCode, e.Message)
}

func (c *APIClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return &APIError{StatusCode: resp.StatusCode, Message: string(b)}
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
