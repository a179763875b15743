// Package copier simulates copy-trading a whale's activity, either as a
// historical backtest or a live shadow session.
package copier

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/whalewatch/engine/internal/models"
	"github.com/whalewatch/engine/internal/priceoracle"
	"github.com/whalewatch/engine/internal/storage"
	"github.com/whalewatch/engine/internal/types"
)

const bps = 10000

// BacktestInput configures a copier backtest run.
type BacktestInput struct {
	WhaleID        string
	InitialDeposit decimal.Decimal
	PositionPct    decimal.Decimal
	FeeBps         int
	SlippageBps    int
	Leverage       decimal.Decimal
	AssetsFilter   []string
	Window         types.TimeWindow
}

type simPosition struct {
	quantity decimal.Decimal
	unitCost decimal.Decimal
}

// RunBacktest simulates copy-trading whaleID's historical activity and
// returns the completed summary alongside the per-trade ledger and equity
// curve it was derived from. Pure function over the trade/price inputs: it
// does not persist anything itself. Open positions are marked to market once
// per minute between trades; with a nil oracle they carry no unrealized PnL.
func RunBacktest(ctx context.Context, trades []*models.Trade, oracle *priceoracle.Oracle, in BacktestInput) (*models.BacktestResult, error) {
	filtered := filterTrades(trades, in)

	equity := in.InitialDeposit
	realized := decimal.Zero
	fees := decimal.Zero
	slippage := decimal.Zero
	positions := make(map[string]*simPosition)

	peakEquity := equity
	maxDrawdownPct := decimal.Zero
	maxDrawdownUSD := decimal.Zero

	var wins, losses int
	var totalWinUSD, totalLossUSD decimal.Decimal
	var lastSampled time.Time
	var tradeResults []models.BacktestTradeResult
	var equityCurve []models.EquityPoint

	markToMarket := func(ts time.Time) decimal.Decimal {
		unrealized := decimal.Zero
		if oracle == nil {
			return unrealized
		}
		for asset, pos := range positions {
			if pos.quantity.IsZero() {
				continue
			}
			price, err := oracle.Historical(ctx, asset, ts)
			if err != nil {
				continue
			}
			unrealized = unrealized.Add(pos.quantity.Mul(price.Sub(pos.unitCost)))
		}
		return unrealized
	}

	trackDrawdown := func(markedEquity decimal.Decimal) {
		if markedEquity.GreaterThan(peakEquity) {
			peakEquity = markedEquity
		}
		if peakEquity.GreaterThan(decimal.Zero) {
			drawdown := peakEquity.Sub(markedEquity).Div(peakEquity).Mul(decimal.NewFromInt(100))
			if drawdown.GreaterThan(maxDrawdownPct) {
				maxDrawdownPct = drawdown
				maxDrawdownUSD = peakEquity.Sub(markedEquity)
			}
		}
	}

	sampleMinute := func(ts time.Time) {
		if !lastSampled.IsZero() && ts.Sub(lastSampled) < time.Minute {
			return
		}
		lastSampled = ts

		unrealized := markToMarket(ts)
		markedEquity := equity.Add(unrealized)
		trackDrawdown(markedEquity)
		equityCurve = append(equityCurve, models.EquityPoint{
			Timestamp:        ts,
			EquityUSD:        markedEquity,
			UnrealizedPnLUSD: unrealized,
		})
	}

	for _, t := range filtered {
		for !lastSampled.IsZero() && t.Timestamp.Sub(lastSampled) > time.Minute {
			sampleMinute(lastSampled.Add(time.Minute))
		}

		notional := equity.Mul(in.PositionPct).Div(decimal.NewFromInt(100)).Mul(in.Leverage)
		feeCost := notional.Mul(decimal.NewFromInt(int64(in.FeeBps))).Div(decimal.NewFromInt(bps))
		slippageCost := notional.Mul(decimal.NewFromInt(int64(in.SlippageBps))).Div(decimal.NewFromInt(bps))
		fees = fees.Add(feeCost)
		slippage = slippage.Add(slippageCost)
		equity = equity.Sub(feeCost).Sub(slippageCost)

		price := unitPrice(t)
		pos, ok := positions[t.BaseAsset]
		if !ok {
			pos = &simPosition{}
			positions[t.BaseAsset] = pos
		}

		qty := decimal.Zero
		if price.GreaterThan(decimal.Zero) {
			qty = notional.Div(price)
		}

		pnl := decimal.Zero
		if t.BaseAmount.GreaterThan(decimal.Zero) {
			total := pos.quantity.Add(qty)
			if total.GreaterThan(decimal.Zero) {
				pos.unitCost = pos.unitCost.Mul(pos.quantity).Add(price.Mul(qty)).Div(total)
			}
			pos.quantity = total
		} else if t.BaseAmount.LessThan(decimal.Zero) && pos.quantity.GreaterThan(decimal.Zero) {
			closeQty := decimal.Min(qty, pos.quantity)
			pnl = price.Sub(pos.unitCost).Mul(closeQty)
			realized = realized.Add(pnl)
			equity = equity.Add(pnl)
			pos.quantity = pos.quantity.Sub(closeQty)

			if pnl.GreaterThan(decimal.Zero) {
				wins++
				totalWinUSD = totalWinUSD.Add(pnl)
			} else if pnl.LessThan(decimal.Zero) {
				losses++
				totalLossUSD = totalLossUSD.Add(pnl.Abs())
			}
		}

		unrealized := markToMarket(t.Timestamp)
		markedEquity := equity.Add(unrealized)
		netChange := pnl.Sub(feeCost).Sub(slippageCost)
		tradeResults = append(tradeResults, models.BacktestTradeResult{
			TradeID:          strconv.FormatInt(t.ID, 10),
			Timestamp:        t.Timestamp,
			Direction:        t.Direction,
			BaseAsset:        t.BaseAsset,
			NotionalUSD:      notional,
			PnLUSD:           pnl,
			FeeUSD:           feeCost,
			SlippageUSD:      slippageCost,
			NetPnLUSD:        netChange,
			CumulativePnLUSD: markedEquity.Sub(in.InitialDeposit),
			EquityUSD:        markedEquity,
			UnrealizedPnLUSD: unrealized,
			PositionSizeBase: pos.quantity,
		})

		sampleMinute(t.Timestamp)
	}

	netPnL := equity.Sub(in.InitialDeposit)
	roi := decimal.Zero
	if in.InitialDeposit.GreaterThan(decimal.Zero) {
		roi = netPnL.Div(in.InitialDeposit).Mul(decimal.NewFromInt(100))
	}

	// The final equity point reconciles exactly with the realized summary
	// (no open-position mark), so it always closes the book at
	// initial_deposit + net_pnl_usd regardless of what's still open.
	closingTS := lastSampled
	if len(filtered) > 0 {
		closingTS = filtered[len(filtered)-1].Timestamp
	}
	if len(equityCurve) == 0 || !equityCurve[len(equityCurve)-1].EquityUSD.Equal(equity) {
		trackDrawdown(equity)
		equityCurve = append(equityCurve, models.EquityPoint{
			Timestamp:        closingTS,
			EquityUSD:        equity,
			UnrealizedPnLUSD: decimal.Zero,
		})
	}

	recommended := kellyFraction(wins, losses, totalWinUSD, totalLossUSD)

	summary := &models.BacktestRun{
		WhaleID:                in.WhaleID,
		InitialDeposit:         in.InitialDeposit,
		PositionPct:            in.PositionPct,
		FeeBps:                 in.FeeBps,
		SlippageBps:            in.SlippageBps,
		Leverage:               in.Leverage,
		AssetsFilter:           in.AssetsFilter,
		ROIPercent:             roi,
		NetPnLUSD:              netPnL,
		MaxDrawdownPct:         maxDrawdownPct,
		MaxDrawdownUSD:         maxDrawdownUSD,
		TradeCount:             len(filtered),
		RecommendedPositionPct: recommended,
	}

	return &models.BacktestResult{
		Summary:     summary,
		Trades:      tradeResults,
		EquityCurve: equityCurve,
	}, nil
}

// kellyFraction approximates the Kelly criterion (f* = winRate -
// lossRate/payoffRatio, where payoffRatio is avgWin/avgLoss) from observed
// trade outcomes, clipped to [0, 50] percent.
func kellyFraction(wins, losses int, totalWinUSD, totalLossUSD decimal.Decimal) decimal.Decimal {
	total := wins + losses
	if total == 0 || losses == 0 || wins == 0 {
		return decimal.Zero
	}

	winRate := decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(total)))
	lossRate := decimal.NewFromInt(1).Sub(winRate)
	avgWin := totalWinUSD.Div(decimal.NewFromInt(int64(wins)))
	avgLoss := totalLossUSD.Div(decimal.NewFromInt(int64(losses)))
	if avgLoss.IsZero() {
		return decimal.Zero
	}

	payoffRatio := avgWin.Div(avgLoss)
	if payoffRatio.IsZero() {
		return decimal.Zero
	}

	kelly := winRate.Sub(lossRate.Div(payoffRatio))
	pct := kelly.Mul(decimal.NewFromInt(100))

	if pct.LessThan(decimal.Zero) {
		return decimal.Zero
	}
	if pct.GreaterThan(decimal.NewFromInt(50)) {
		return decimal.NewFromInt(50)
	}
	return pct
}

func filterTrades(trades []*models.Trade, in BacktestInput) []*models.Trade {
	assetSet := make(map[string]bool, len(in.AssetsFilter))
	for _, a := range in.AssetsFilter {
		assetSet[a] = true
	}

	var out []*models.Trade
	for _, t := range trades {
		if !in.Window.From.IsZero() && t.Timestamp.Before(in.Window.From) {
			continue
		}
		if !in.Window.To.IsZero() && !t.Timestamp.Before(in.Window.To) {
			continue
		}
		if len(assetSet) > 0 && !assetSet[t.BaseAsset] {
			continue
		}
		out = append(out, t)
	}
	return out
}

func unitPrice(t *models.Trade) decimal.Decimal {
	if t.ValueUSD == nil || t.BaseAmount.IsZero() {
		return decimal.Zero
	}
	return t.ValueUSD.Div(t.BaseAmount.Abs())
}

// LoadWhaleTrades loads a whale's full ordered trade history for backtesting.
func LoadWhaleTrades(ctx context.Context, trades *storage.TradeRepository, whaleID string) ([]*models.Trade, error) {
	return trades.ListAllForWhaleOrdered(ctx, whaleID)
}
