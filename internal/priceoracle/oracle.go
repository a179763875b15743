package priceoracle

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/whalewatch/engine/internal/logging"
	"github.com/whalewatch/engine/internal/storage"
)

// Oracle is the price lookup facade used by the rest of the engine: a
// Redis-cached spot price in front of the upstream Client, and a
// ClickHouse-backed historical series with linear interpolation between
// stored samples.
type Oracle struct {
	client   *Client
	cache    *storage.RedisCache
	history  *storage.PriceHistoryRepository
	spotTTL  time.Duration
}

// NewOracle creates a new price oracle.
func NewOracle(client *Client, cache *storage.RedisCache, history *storage.PriceHistoryRepository, spotTTL time.Duration) *Oracle {
	return &Oracle{client: client, cache: cache, history: history, spotTTL: spotTTL}
}

func cacheKey(asset string) string {
	return fmt.Sprintf("price:spot:%s", asset)
}

// Spot returns the current USD price for an asset, serving from the Redis
// cache when fresh and falling through to the upstream API on a miss.
func (o *Oracle) Spot(ctx context.Context, asset string) (decimal.Decimal, error) {
	logger := logging.FromContext(ctx)

	if cached, err := o.cache.Get(ctx, cacheKey(asset)); err == nil {
		if price, perr := decimal.NewFromString(cached); perr == nil {
			return price, nil
		}
	}

	price, err := o.client.Spot(ctx, asset)
	if err != nil {
		return decimal.Zero, err
	}

	if err := o.cache.Set(ctx, cacheKey(asset), price.String(), o.spotTTL); err != nil {
		logger.WithError(err).WithField("asset", asset).Warn("failed to cache spot price")
	}

	return price, nil
}

// SpotMany returns current USD prices for multiple assets, minimizing
// upstream round-trips for assets not present in the cache.
func (o *Oracle) SpotMany(ctx context.Context, assets []string) (map[string]decimal.Decimal, error) {
	result := make(map[string]decimal.Decimal, len(assets))
	var misses []string

	for _, asset := range assets {
		cached, err := o.cache.Get(ctx, cacheKey(asset))
		if err != nil {
			misses = append(misses, asset)
			continue
		}
		price, perr := decimal.NewFromString(cached)
		if perr != nil {
			misses = append(misses, asset)
			continue
		}
		result[asset] = price
	}

	if len(misses) == 0 {
		return result, nil
	}

	fetched, err := o.client.SpotMany(ctx, misses)
	if err != nil {
		return nil, err
	}
	logger := logging.FromContext(ctx)
	for asset, price := range fetched {
		result[asset] = price
		if err := o.cache.Set(ctx, cacheKey(asset), price.String(), o.spotTTL); err != nil {
			logger.WithError(err).WithField("asset", asset).Warn("failed to cache spot price")
		}
	}

	return result, nil
}

// Historical returns the USD price of an asset at a specific point in time,
// linearly interpolating between the two stored samples that bracket ts.
// Falls back to the nearest prior sample when no bracketing pair exists.
func (o *Oracle) Historical(ctx context.Context, asset string, ts time.Time) (decimal.Decimal, error) {
	window := 24 * time.Hour
	points, err := o.history.Series(ctx, asset, ts.Add(-window), ts.Add(window))
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load price series: %w", err)
	}

	if price, ok := interpolate(points, ts); ok {
		return price, nil
	}

	nearest, err := o.history.Nearest(ctx, asset, ts)
	if err != nil {
		return decimal.Zero, fmt.Errorf("no historical price available for %s at %s: %w", asset, ts, err)
	}
	return nearest.Price, nil
}

// interpolate finds the two samples bracketing ts and linearly interpolates
// between them. It returns false when ts falls outside the sample range.
func interpolate(points []storage.PricePoint, ts time.Time) (decimal.Decimal, bool) {
	if len(points) == 0 {
		return decimal.Zero, false
	}

	if ts.Before(points[0].Timestamp) || ts.After(points[len(points)-1].Timestamp) {
		return decimal.Zero, false
	}

	for i := 0; i < len(points)-1; i++ {
		a, b := points[i], points[i+1]
		if (ts.Equal(a.Timestamp) || ts.After(a.Timestamp)) && ts.Before(b.Timestamp) {
			if ts.Equal(a.Timestamp) {
				return a.Price, true
			}
			total := b.Timestamp.Sub(a.Timestamp).Seconds()
			elapsed := ts.Sub(a.Timestamp).Seconds()
			if total == 0 {
				return a.Price, true
			}
			frac := decimal.NewFromFloat(elapsed / total)
			return a.Price.Add(b.Price.Sub(a.Price).Mul(frac)), true
		}
	}

	if ts.Equal(points[len(points)-1].Timestamp) {
		return points[len(points)-1].Price, true
	}

	return decimal.Zero, false
}

// RefreshAndPersist fetches fresh spot prices for a set of assets and
// appends them to the historical series, called by the scheduler's price
// refresher job.
func (o *Oracle) RefreshAndPersist(ctx context.Context, assets []string) error {
	prices, err := o.client.SpotMany(ctx, assets)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	points := make([]storage.PricePoint, 0, len(prices))
	for asset, price := range prices {
		points = append(points, storage.PricePoint{Asset: asset, Timestamp: now, Price: price})
		if err := o.cache.Set(ctx, cacheKey(asset), price.String(), o.spotTTL); err != nil {
			logging.FromContext(ctx).WithError(err).WithField("asset", asset).Warn("failed to cache spot price")
		}
	}

	return o.history.BatchInsert(ctx, points)
}
