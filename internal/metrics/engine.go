// Package metrics computes FIFO cost-basis performance snapshots for
// tracked whales from their trade history.
package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/whalewatch/engine/internal/logging"
	"github.com/whalewatch/engine/internal/models"
	"github.com/whalewatch/engine/internal/priceoracle"
	"github.com/whalewatch/engine/internal/storage"
	"github.com/whalewatch/engine/internal/types"
)

// Engine computes and persists WalletMetricsDaily/CurrentWalletMetrics
// snapshots. Rebuilds for a given whale are serialized: a rebuild already
// running for a whale coalesces a concurrent request into a single
// trailing re-run rather than running two rebuilds in parallel.
type Engine struct {
	trades   *storage.TradeRepository
	holdings *storage.HoldingRepository
	metrics  *storage.MetricsRepository
	oracle   *priceoracle.Oracle

	mu       sync.Mutex
	rebuilds map[string]*rebuildState
}

type rebuildState struct {
	mu      sync.Mutex
	running bool
	pending bool
}

// NewEngine creates a new metrics engine.
func NewEngine(trades *storage.TradeRepository, holdings *storage.HoldingRepository, metrics *storage.MetricsRepository, oracle *priceoracle.Oracle) *Engine {
	return &Engine{
		trades:   trades,
		holdings: holdings,
		metrics:  metrics,
		oracle:   oracle,
		rebuilds: make(map[string]*rebuildState),
	}
}

func (e *Engine) stateFor(whaleID string) *rebuildState {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.rebuilds[whaleID]
	if !ok {
		s = &rebuildState{}
		e.rebuilds[whaleID] = s
	}
	return s
}

// RebuildWhale performs a full FIFO cost-basis rebuild for a whale,
// replacing its entire WalletMetricsDaily history. If a rebuild is already
// running for this whale, the request is coalesced into a single trailing
// re-run instead of executing concurrently.
func (e *Engine) RebuildWhale(ctx context.Context, whaleID string) error {
	state := e.stateFor(whaleID)

	state.mu.Lock()
	if state.running {
		state.pending = true
		state.mu.Unlock()
		return nil
	}
	state.running = true
	state.mu.Unlock()

	logger := logging.FromContext(ctx).WithField("whale", whaleID)

	for {
		if err := e.rebuild(ctx, whaleID); err != nil {
			logger.WithError(err).Error("metrics rebuild failed")
			state.mu.Lock()
			state.running = false
			state.pending = false
			state.mu.Unlock()
			return err
		}

		state.mu.Lock()
		if !state.pending {
			state.running = false
			state.mu.Unlock()
			return nil
		}
		state.pending = false
		state.mu.Unlock()
	}
}

// IncrementalUpdate recomputes only the days from the whale's latest
// existing snapshot forward, invoked after a collector batch. It still
// replays the whale's full trade history to reconstruct FIFO lot state (the
// engine keeps no persisted lot snapshot), but unlike RebuildWhale it only
// deletes and rewrites WalletMetricsDaily rows for dates on or after the
// existing latest row, leaving untouched history alone. Falls back to a full
// rebuild if no snapshot exists yet.
func (e *Engine) IncrementalUpdate(ctx context.Context, whaleID string) error {
	latest, err := e.metrics.LatestDaily(ctx, whaleID)
	if err != nil {
		if types.IsKind(err, types.KindNotFound) {
			return e.RebuildWhale(ctx, whaleID)
		}
		return err
	}

	state := e.stateFor(whaleID)
	state.mu.Lock()
	if state.running {
		state.pending = true
		state.mu.Unlock()
		return nil
	}
	state.running = true
	state.mu.Unlock()

	logger := logging.FromContext(ctx).WithField("whale", whaleID)

	for {
		if err := e.walk(ctx, whaleID, latest.Date); err != nil {
			logger.WithError(err).Error("incremental metrics update failed")
			state.mu.Lock()
			state.running = false
			state.pending = false
			state.mu.Unlock()
			return err
		}

		state.mu.Lock()
		if !state.pending {
			state.running = false
			state.mu.Unlock()
			return nil
		}
		state.pending = false
		state.mu.Unlock()
	}
}

type assetLot struct {
	quantity decimal.Decimal
	unitCost decimal.Decimal
}

type assetBook struct {
	lots []assetLot
}

// consume closes qty units FIFO against the book's lots and returns the
// realized PnL against the exit price, along with the quantity actually
// closed (less than qty if the book runs out of lots).
func (b *assetBook) consume(qty, exitPrice decimal.Decimal) (realized decimal.Decimal, closedQty decimal.Decimal) {
	remaining := qty
	realized = decimal.Zero
	closedQty = decimal.Zero

	for remaining.GreaterThan(decimal.Zero) && len(b.lots) > 0 {
		lot := &b.lots[0]
		take := decimal.Min(remaining, lot.quantity)
		realized = realized.Add(exitPrice.Sub(lot.unitCost).Mul(take))
		closedQty = closedQty.Add(take)
		lot.quantity = lot.quantity.Sub(take)
		remaining = remaining.Sub(take)
		if lot.quantity.IsZero() {
			b.lots = b.lots[1:]
		}
	}
	return realized, closedQty
}

func (b *assetBook) add(qty, unitCost decimal.Decimal) {
	b.lots = append(b.lots, assetLot{quantity: qty, unitCost: unitCost})
}

func (b *assetBook) netQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.lots {
		total = total.Add(l.quantity)
	}
	return total
}

func (b *assetBook) costBasis() decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.lots {
		total = total.Add(l.quantity.Mul(l.unitCost))
	}
	return total
}

// rebuild performs a full replay, persisting every day from the whale's
// first trade forward.
func (e *Engine) rebuild(ctx context.Context, whaleID string) error {
	return e.walk(ctx, whaleID, time.Time{})
}

// walk replays a whale's full trade history day by day, maintaining FIFO
// cost-basis lots and a running cash-flow ledger, and persists a
// WalletMetricsDaily row for each day on or after persistFrom. Days before
// persistFrom are still replayed (to reconstruct lot state) but not written,
// which is what makes IncrementalUpdate cheaper than RebuildWhale in write
// volume without needing a separately persisted lot snapshot.
func (e *Engine) walk(ctx context.Context, whaleID string, persistFrom time.Time) error {
	trades, err := e.trades.ListAllForWhaleOrdered(ctx, whaleID)
	if err != nil {
		return fmt.Errorf("failed to load trade history: %w", err)
	}
	if len(trades) == 0 {
		return nil
	}

	firstDay := truncateDay(trades[0].Timestamp)
	if persistFrom.IsZero() || persistFrom.Before(firstDay) {
		persistFrom = firstDay
	}

	if err := e.metrics.DeleteFromDate(ctx, whaleID, persistFrom); err != nil {
		return fmt.Errorf("failed to clear stale metrics: %w", err)
	}

	books := make(map[string]*assetBook)
	bookFor := func(asset string) *assetBook {
		b, ok := books[asset]
		if !ok {
			b = &assetBook{}
			books[asset] = b
		}
		return b
	}

	var (
		totalDeposited   = decimal.Zero
		totalWithdrawn   = decimal.Zero
		realizedToDate   = decimal.Zero
		closedCount      int64
		winCount         int64
		tradeIdx         = 0
		currentDay       = truncateDay(trades[0].Timestamp)
		lastDay          = truncateDay(time.Now().UTC())
		lastMetrics      *models.WalletMetricsDaily
	)

	for !currentDay.After(lastDay) {
		dayEnd := currentDay.Add(24 * time.Hour)
		var dayVolume = decimal.Zero
		var dayTradeCount int64

		for tradeIdx < len(trades) && trades[tradeIdx].Timestamp.Before(dayEnd) {
			t := trades[tradeIdx]
			tradeIdx++

			unitCost := unitPrice(t)
			book := bookFor(t.BaseAsset)

			switch {
			case t.BaseAmount.GreaterThan(decimal.Zero):
				book.add(t.BaseAmount, unitCost)
			case t.BaseAmount.LessThan(decimal.Zero):
				realized, closed := book.consume(t.BaseAmount.Abs(), unitCost)
				realizedToDate = realizedToDate.Add(realized)
				if closed.GreaterThan(decimal.Zero) {
					closedCount++
					if realized.GreaterThan(decimal.Zero) {
						winCount++
					}
				}
			}

			switch t.Direction {
			case types.DirectionDeposit:
				if t.ValueUSD != nil {
					totalDeposited = totalDeposited.Add(t.ValueUSD.Abs())
				}
			case types.DirectionWithdraw:
				if t.ValueUSD != nil {
					totalWithdrawn = totalWithdrawn.Add(t.ValueUSD.Abs())
				}
			}

			if t.ValueUSD != nil {
				dayVolume = dayVolume.Add(t.ValueUSD.Abs())
			}
			dayTradeCount++
		}

		portfolioValue := decimal.Zero
		unrealized := decimal.Zero
		for asset, book := range books {
			qty := book.netQuantity()
			if qty.IsZero() {
				continue
			}
			price, perr := e.oracle.Historical(ctx, asset, dayEnd.Add(-time.Second))
			if perr != nil {
				continue
			}
			portfolioValue = portfolioValue.Add(qty.Mul(price))
			unrealized = unrealized.Add(qty.Mul(price).Sub(book.costBasis()))
		}

		if !currentDay.Before(persistFrom) {
			roi := decimal.Zero
			if totalDeposited.GreaterThan(decimal.Zero) {
				roi = portfolioValue.Add(totalWithdrawn).Sub(totalDeposited).Div(totalDeposited).Mul(decimal.NewFromInt(100))
			}

			winRate := decimal.Zero
			if closedCount > 0 {
				winRate = decimal.NewFromInt(winCount).Div(decimal.NewFromInt(closedCount)).Mul(decimal.NewFromInt(100))
			}

			daily := &models.WalletMetricsDaily{
				WhaleID:           whaleID,
				Date:              currentDay,
				PortfolioValueUSD: portfolioValue,
				ROIPercent:        roi,
				RealizedPnLUSD:    realizedToDate,
				UnrealizedPnLUSD:  unrealized,
				Volume1d:          dayVolume,
				TradeCount1d:      dayTradeCount,
				WinRatePercent:    winRate,
			}

			if err := e.metrics.UpsertDaily(ctx, daily); err != nil {
				return fmt.Errorf("failed to upsert daily metrics for %s: %w", currentDay, err)
			}
			lastMetrics = daily
		}
		currentDay = dayEnd
	}

	if lastMetrics != nil {
		if err := e.metrics.UpsertCurrent(ctx, models.FromDaily(lastMetrics)); err != nil {
			return fmt.Errorf("failed to upsert current metrics: %w", err)
		}
	}

	return nil
}

// unitPrice returns the per-unit USD price implied by a trade, falling
// back to zero (an unpriced lot) when the trade has no recorded value.
func unitPrice(t *models.Trade) decimal.Decimal {
	if t.ValueUSD == nil || t.BaseAmount.IsZero() {
		return decimal.Zero
	}
	return t.ValueUSD.Div(t.BaseAmount.Abs())
}

func truncateDay(ts time.Time) time.Time {
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
