// Package client talks to a running stockpredictor HTTP API.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stock-predictor/internal/prediction"
)

// Options parameterise the API client.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Client fetches predictions and symbols from a remote server.
type Client struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// PricePoint is one close returned by the price endpoint.
type PricePoint struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// New constructs an API client.
func New(opts Options, logger zerolog.Logger) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("client: base url is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		opts:    opts,
		logger:  logger.With().Str("component", "api_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}, nil
}

// Predict requests a prediction for symbol.
func (c *Client) Predict(ctx context.Context, symbol string) (prediction.Result, error) {
	var res struct {
		Symbol         string  `json:"symbol"`
		PredictedPrice float64 `json:"predicted_price"`
		Source         string  `json:"source"`
	}
	if err := c.get(ctx, "/predict/"+url.PathEscape(symbol), nil, &res); err != nil {
		return prediction.Result{}, err
	}
	return prediction.Result{
		Symbol:         res.Symbol,
		PredictedPrice: decimal.NewFromFloat(res.PredictedPrice).Round(2),
		Source:         prediction.Source(res.Source),
	}, nil
}

// Symbols lists the symbols the server knows.
func (c *Client) Symbols(ctx context.Context) ([]string, error) {
	var res struct {
		Stocks []string `json:"stocks"`
	}
	if err := c.get(ctx, "/stocks", nil, &res); err != nil {
		return nil, err
	}
	return res.Stocks, nil
}

// Prices fetches historical closes for symbol over rng (1mo, 6mo, 1y).
func (c *Client) Prices(ctx context.Context, symbol, rng string) ([]PricePoint, error) {
	q := url.Values{}
	if rng != "" {
		q.Set("range", rng)
	}
	var res struct {
		Prices []PricePoint `json:"prices"`
	}
	if err := c.get(ctx, "/price/"+url.PathEscape(symbol), q, &res); err != nil {
		return nil, err
	}
	return res.Prices, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "stockpredictor-cli/1.0")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return parseHTTPError(resp.StatusCode, payload)
	}

	c.logger.Debug().Str("path", path).Int("bytes", len(payload)).Msg("api response")
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil && apiErr.Error != "" {
		return fmt.Errorf("api error (%d): %s", status, apiErr.Error)
	}
	if len(payload) > 0 {
		return fmt.Errorf("api error (%d): %s", status, strings.TrimSpace(string(payload)))
	}
	return fmt.Errorf("api error (%d)", status)
}
