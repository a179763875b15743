package copier

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whalewatch/engine/internal/models"
	"github.com/whalewatch/engine/internal/types"
)

func dec(v string) decimal.Decimal {
	out, err := decimal.NewFromString(v)
	if err != nil {
		panic(err)
	}
	return out
}

func TestKellyFractionZeroWithoutBothOutcomes(t *testing.T) {
	assert.True(t, kellyFraction(0, 0, decimal.Zero, decimal.Zero).IsZero())
	assert.True(t, kellyFraction(3, 0, dec("100"), decimal.Zero).IsZero())
	assert.True(t, kellyFraction(0, 3, decimal.Zero, dec("100")).IsZero())
}

func TestKellyFractionClampedToFiftyPercent(t *testing.T) {
	// Extremely favorable win rate and payoff ratio should clip at 50%.
	got := kellyFraction(19, 1, dec("1900"), dec("1"))
	assert.True(t, got.Equal(dec("50")), "got %s", got)
}

func TestKellyFractionNeverNegative(t *testing.T) {
	// Poor win rate and payoff ratio should clip at 0, not go negative.
	got := kellyFraction(1, 19, dec("1"), dec("1900"))
	assert.True(t, got.Equal(decimal.Zero), "got %s", got)
}

func TestFilterTradesByWindow(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	trades := []*models.Trade{
		{Timestamp: base.Add(-time.Hour), BaseAsset: "BTC"},
		{Timestamp: base.Add(time.Hour), BaseAsset: "BTC"},
		{Timestamp: base.Add(2 * time.Hour), BaseAsset: "BTC"},
	}

	in := BacktestInput{Window: types.TimeWindow{From: base, To: base.Add(90 * time.Minute)}}
	out := filterTrades(trades, in)

	assert.Len(t, out, 1)
	assert.True(t, out[0].Timestamp.Equal(base.Add(time.Hour)))
}

func TestFilterTradesByAsset(t *testing.T) {
	trades := []*models.Trade{
		{BaseAsset: "BTC"},
		{BaseAsset: "ETH"},
		{BaseAsset: "SOL"},
	}

	in := BacktestInput{AssetsFilter: []string{"ETH", "SOL"}}
	out := filterTrades(trades, in)

	assert.Len(t, out, 2)
	for _, tr := range out {
		assert.NotEqual(t, "BTC", tr.BaseAsset)
	}
}

func TestFilterTradesNoFilterReturnsAll(t *testing.T) {
	trades := []*models.Trade{{BaseAsset: "BTC"}, {BaseAsset: "ETH"}}
	out := filterTrades(trades, BacktestInput{})
	assert.Len(t, out, 2)
}

func TestUnitPriceZeroWithoutValueUSD(t *testing.T) {
	tr := &models.Trade{BaseAmount: dec("3")}
	assert.True(t, unitPrice(tr).IsZero())
}

func TestUnitPriceDividesByAbsoluteAmount(t *testing.T) {
	v := dec("300")
	tr := &models.Trade{BaseAmount: dec("-3"), ValueUSD: &v}
	assert.True(t, unitPrice(tr).Equal(dec("100")))
}

func TestRunBacktestEquityCurveMonotoneAndReconciles(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	buyValue := dec("1000")
	sellValue := dec("1200")

	trades := []*models.Trade{
		{ID: 1, Timestamp: base, BaseAsset: "BTC", BaseAmount: dec("1"), ValueUSD: &buyValue},
		{ID: 2, Timestamp: base.Add(2 * time.Minute), BaseAsset: "BTC", BaseAmount: dec("-1"), ValueUSD: &sellValue},
		{ID: 3, Timestamp: base.Add(5 * time.Minute), BaseAsset: "BTC", BaseAmount: dec("1"), ValueUSD: &buyValue},
		{ID: 4, Timestamp: base.Add(6 * time.Minute), BaseAsset: "BTC", BaseAmount: dec("-1"), ValueUSD: &sellValue},
	}

	in := BacktestInput{
		InitialDeposit: dec("10000"),
		PositionPct:    dec("100"),
		Leverage:       dec("1"),
	}

	result, err := RunBacktest(context.Background(), trades, nil, in)
	require.NoError(t, err)
	require.NotEmpty(t, result.EquityCurve)
	require.Len(t, result.Trades, len(trades))

	for i := 1; i < len(result.EquityCurve); i++ {
		assert.False(t, result.EquityCurve[i].Timestamp.Before(result.EquityCurve[i-1].Timestamp),
			"equity curve timestamps must be non-decreasing")
	}

	want := in.InitialDeposit.Add(result.Summary.NetPnLUSD)
	got := result.EquityCurve[len(result.EquityCurve)-1].EquityUSD
	assert.True(t, want.Sub(got).Abs().LessThanOrEqual(dec("0.01")),
		"final equity point %s should reconcile with initial_deposit+net_pnl_usd %s", got, want)
}
