package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dca-autopilot/internal/logging"
)

// coinIDs maps ticker symbols to CoinGecko coin identifiers
var coinIDs = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"SOL":  "solana",
	"ADA":  "cardano",
	"XRP":  "ripple",
	"DOGE": "dogecoin",
	"DOT":  "polkadot",
	"LTC":  "litecoin",
	"LINK": "chainlink",
	"AVAX": "avalanche-2",
}

// Client is a CoinGecko HTTP client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	pacer      *pacer
	logger     *logging.Logger
}

// ClientConfig holds CoinGecko client configuration
type ClientConfig struct {
	BaseURL         string
	APIKey          string        // Optional; sent as the demo API key header
	RequestInterval time.Duration // Minimum gap between upstream calls
}

// NewClient creates a CoinGecko client
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.coingecko.com"
	}
	if cfg.RequestInterval <= 0 {
		cfg.RequestInterval = 1200 * time.Millisecond
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		pacer:      newPacer(cfg.RequestInterval),
		logger:     logging.WithComponent("marketdata"),
	}
}

// Price returns the current USD price for a symbol
func (c *Client) Price(ctx context.Context, symbol string) (float64, error) {
	coinID, err := coinID(symbol)
	if err != nil {
		return 0, err
	}

	params := url.Values{}
	params.Set("ids", coinID)
	params.Set("vs_currencies", "usd")

	body, err := c.get(ctx, "/api/v3/simple/price", params)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}

	// Response shape: {"bitcoin": {"usd": 43250.12}}
	var parsed map[string]map[string]float64
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, fmt.Errorf("%w: parsing response: %v", ErrPriceUnavailable, err)
	}

	price := parsed[coinID]["usd"]
	if price <= 0 {
		return 0, fmt.Errorf("%w: no usd quote for %s", ErrPriceUnavailable, symbol)
	}
	return price, nil
}

// History returns daily price points for the last `days` days, oldest
// first
func (c *Client) History(ctx context.Context, symbol string, days int) ([]PricePoint, error) {
	coinID, err := coinID(symbol)
	if err != nil {
		return nil, err
	}
	if days <= 0 {
		days = 365
	}

	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("days", strconv.Itoa(days))
	params.Set("interval", "daily")

	body, err := c.get(ctx, "/api/v3/coins/"+coinID+"/market_chart", params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHistoryUnavailable, err)
	}

	// Response shape: {"prices": [[ms_timestamp, price], ...]}
	var parsed struct {
		Prices [][2]float64 `json:"prices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parsing response: %v", ErrHistoryUnavailable, err)
	}
	if len(parsed.Prices) == 0 {
		return nil, fmt.Errorf("%w: empty series for %s", ErrHistoryUnavailable, symbol)
	}

	points := make([]PricePoint, 0, len(parsed.Prices))
	for _, raw := range parsed.Prices {
		points = append(points, PricePoint{
			Timestamp: time.UnixMilli(int64(raw[0])),
			Price:     raw[1],
		})
	}
	return points, nil
}

// get performs a paced GET request against the CoinGecko API
func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.pacer.wait(ctx); err != nil {
		return nil, err
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Upstream API error", "path", path, "status", resp.StatusCode)
		return nil, fmt.Errorf("API error %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	return body, nil
}

func coinID(symbol string) (string, error) {
	id, ok := coinIDs[strings.ToUpper(symbol)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSymbol, symbol)
	}
	return id, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
