// Package priceoracle provides spot and historical USD pricing for assets,
// backed by an external price API with a TTL cache in front of it.
package priceoracle

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

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/whalewatch/engine/internal/circuitbreaker"
	"github.com/whalewatch/engine/internal/retry"
)

// Client fetches prices from the upstream price API, guarded by a circuit
// breaker and an outbound rate limiter so a degraded upstream can't starve
// the rest of the ingestion pipeline.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *circuitbreaker.CircuitBreaker
}

// NewClient creates a new price API client.
func NewClient(baseURL string, requestTimeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(5), 10),
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("price-api")),
	}
}

// Spot fetches the current USD price for a single asset symbol.
func (c *Client) Spot(ctx context.Context, asset string) (decimal.Decimal, error) {
	prices, err := c.SpotMany(ctx, []string{asset})
	if err != nil {
		return decimal.Zero, err
	}
	price, ok := prices[strings.ToLower(asset)]
	if !ok {
		return decimal.Zero, fmt.Errorf("no spot price returned for %s", asset)
	}
	return price, nil
}

// SpotMany fetches current USD prices for multiple assets in one round-trip.
func (c *Client) SpotMany(ctx context.Context, assets []string) (map[string]decimal.Decimal, error) {
	if len(assets) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	var result map[string]decimal.Decimal
	err := c.breaker.Execute(ctx, func() error {
		return retry.WithRetry(ctx, func(ctx context.Context, attempt int) error {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
			r, err := c.doSpotRequest(ctx, assets)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch spot prices: %w", err)
	}
	return result, nil
}

func (c *Client) doSpotRequest(ctx context.Context, assets []string) (map[string]decimal.Decimal, error) {
	q := url.Values{}
	q.Set("symbols", strings.ToLower(strings.Join(assets, ",")))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/price?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price api request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read price api response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price api returned status %d: %s", resp.StatusCode, string(body))
	}

	var raw map[string]string
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode price api response: %w", err)
	}

	out := make(map[string]decimal.Decimal, len(raw))
	for asset, priceStr := range raw {
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return nil, fmt.Errorf("invalid price for %s: %w", asset, err)
		}
		out[strings.ToLower(asset)] = price
	}
	return out, nil
}

// HistoricalPoint is one (timestamp, price) sample returned by the upstream series endpoint.
type HistoricalPoint struct {
	Timestamp time.Time
	Price     decimal.Decimal
}

// Historical fetches the price series for an asset over a window from the
// upstream series endpoint.
func (c *Client) Historical(ctx context.Context, asset string, from, to time.Time) ([]HistoricalPoint, error) {
	var points []HistoricalPoint
	err := c.breaker.Execute(ctx, func() error {
		return retry.WithRetry(ctx, func(ctx context.Context, attempt int) error {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
			p, err := c.doHistoricalRequest(ctx, asset, from, to)
			if err != nil {
				return err
			}
			points = p
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch historical prices: %w", err)
	}
	return points, nil
}

func (c *Client) doHistoricalRequest(ctx context.Context, asset string, from, to time.Time) ([]HistoricalPoint, error) {
	q := url.Values{}
	q.Set("symbol", strings.ToLower(asset))
	q.Set("from", strconv.FormatInt(from.Unix(), 10))
	q.Set("to", strconv.FormatInt(to.Unix(), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/price/history?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price api request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read price api response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price api returned status %d: %s", resp.StatusCode, string(body))
	}

	var raw []struct {
		Timestamp int64  `json:"timestamp"`
		Price     string `json:"price"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode historical price response: %w", err)
	}

	points := make([]HistoricalPoint, 0, len(raw))
	for _, p := range raw {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, fmt.Errorf("invalid historical price: %w", err)
		}
		points = append(points, HistoricalPoint{Timestamp: time.Unix(p.Timestamp, 0).UTC(), Price: price})
	}
	return points, nil
}
