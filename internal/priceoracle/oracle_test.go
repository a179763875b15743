package priceoracle

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/whalewatch/engine/internal/storage"
)

func pt(ts time.Time, price string) storage.PricePoint {
	return storage.PricePoint{Timestamp: ts, Price: decimal.RequireFromString(price)}
}

func TestInterpolateExactSampleMatch(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	points := []storage.PricePoint{
		pt(base, "100"),
		pt(base.Add(time.Hour), "200"),
	}

	price, ok := interpolate(points, base)
	assert.True(t, ok)
	assert.True(t, price.Equal(decimal.RequireFromString("100")))
}

func TestInterpolateMidpoint(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	points := []storage.PricePoint{
		pt(base, "100"),
		pt(base.Add(time.Hour), "200"),
	}

	price, ok := interpolate(points, base.Add(30*time.Minute))
	assert.True(t, ok)
	assert.True(t, price.Equal(decimal.RequireFromString("150")), "got %s", price)
}

func TestInterpolateLastSampleExactMatch(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	points := []storage.PricePoint{
		pt(base, "100"),
		pt(base.Add(time.Hour), "200"),
	}

	price, ok := interpolate(points, base.Add(time.Hour))
	assert.True(t, ok)
	assert.True(t, price.Equal(decimal.RequireFromString("200")))
}

func TestInterpolateOutsideRangeReturnsFalse(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	points := []storage.PricePoint{
		pt(base, "100"),
		pt(base.Add(time.Hour), "200"),
	}

	_, ok := interpolate(points, base.Add(2*time.Hour))
	assert.False(t, ok)

	_, ok = interpolate(points, base.Add(-time.Hour))
	assert.False(t, ok)
}

func TestInterpolateEmptySeriesReturnsFalse(t *testing.T) {
	_, ok := interpolate(nil, time.Now())
	assert.False(t, ok)
}

func TestInterpolateThreePointSeriesPicksCorrectBracket(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	points := []storage.PricePoint{
		pt(base, "100"),
		pt(base.Add(time.Hour), "200"),
		pt(base.Add(2*time.Hour), "400"),
	}

	price, ok := interpolate(points, base.Add(90*time.Minute))
	assert.True(t, ok)
	assert.True(t, price.Equal(decimal.RequireFromString("300")), "got %s", price)
}
