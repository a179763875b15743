package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/whalewatch/engine/internal/models"
	"github.com/whalewatch/engine/internal/types"
)

// TradeRepository persists the append-only trade timeline in ClickHouse.
type TradeRepository struct {
	db *ClickHouseDB
}

// NewTradeRepository creates a new trade repository.
func NewTradeRepository(db *ClickHouseDB) *TradeRepository {
	return &TradeRepository{db: db}
}

// Insert inserts a single trade. Callers are responsible for the
// dedupe-on-replay check against DedupeKey before calling Insert.
func (r *TradeRepository) Insert(ctx context.Context, t *models.Trade) error {
	query := `
		INSERT INTO trades (
			id, whale_id, timestamp, source, platform, direction, base_asset, quote_asset,
			base_amount, quote_amount, value_usd, realized_pnl_usd, realized_pnl_pct,
			open_price, close_price, tx_hash, catalog_version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	err := r.db.Conn().Exec(ctx, query,
		t.ID, t.WhaleID, t.Timestamp, string(t.Source), t.Platform, string(t.Direction),
		t.BaseAsset, t.QuoteAsset, t.BaseAmount, t.QuoteAmount, t.ValueUSD,
		t.RealizedPnLUSD, t.RealizedPnLPct, t.OpenPrice, t.ClosePrice, t.TxHash, t.CatalogVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// BatchInsert inserts multiple trades in a single ClickHouse batch, the
// shape collectors use when flushing a page of newly observed activity.
func (r *TradeRepository) BatchInsert(ctx context.Context, trades []*models.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO trades (
			id, whale_id, timestamp, source, platform, direction, base_asset, quote_asset,
			base_amount, quote_amount, value_usd, realized_pnl_usd, realized_pnl_pct,
			open_price, close_price, tx_hash, catalog_version
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, t := range trades {
		if err := batch.Append(
			t.ID, t.WhaleID, t.Timestamp, string(t.Source), t.Platform, string(t.Direction),
			t.BaseAsset, t.QuoteAsset, t.BaseAmount, t.QuoteAmount, t.ValueUSD,
			t.RealizedPnLUSD, t.RealizedPnLPct, t.OpenPrice, t.ClosePrice, t.TxHash, t.CatalogVersion,
		); err != nil {
			return fmt.Errorf("failed to append trade to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send trade batch: %w", err)
	}
	return nil
}

// ExistsByDedupeKey checks whether a trade with the given (whale, tx_hash)
// pair is already stored, enforcing the replay-dedupe invariant.
func (r *TradeRepository) ExistsByDedupeKey(ctx context.Context, whaleID, txHash string) (bool, error) {
	query := `SELECT count() FROM trades WHERE whale_id = ? AND tx_hash = ? LIMIT 1`
	var count uint64
	row := r.db.Conn().QueryRow(ctx, query, whaleID, txHash)
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check trade existence: %w", err)
	}
	return count > 0, nil
}

// TradeFilter narrows a whale's trade listing to a source and/or direction.
// Zero values mean "no filter" on that dimension.
type TradeFilter struct {
	Source    types.TradeSource
	Direction types.TradeDirection
}

func whaleConditions(whaleID string, window types.TimeWindow, filter TradeFilter) (string, []interface{}) {
	conditions := "whale_id = ?"
	args := []interface{}{whaleID}

	if !window.From.IsZero() {
		conditions += " AND timestamp >= ?"
		args = append(args, window.From)
	}
	if !window.To.IsZero() {
		conditions += " AND timestamp < ?"
		args = append(args, window.To)
	}
	if filter.Source != "" {
		conditions += " AND source = ?"
		args = append(args, string(filter.Source))
	}
	if filter.Direction != "" {
		conditions += " AND direction = ?"
		args = append(args, string(filter.Direction))
	}
	return conditions, args
}

// ListForWhale returns trades for a whale matching filter, newest first,
// paginated by opaque cursor over (timestamp, id).
func (r *TradeRepository) ListForWhale(ctx context.Context, whaleID string, window types.TimeWindow, filter TradeFilter, after *types.Cursor, limit int) ([]*models.Trade, error) {
	conditions, args := whaleConditions(whaleID, window, filter)

	if after != nil {
		conditions += " AND (timestamp, id) < (?, ?)"
		args = append(args, CursorTime(*after), after.ID)
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, whale_id, timestamp, source, platform, direction, base_asset, quote_asset,
			base_amount, quote_amount, value_usd, realized_pnl_usd, realized_pnl_pct,
			open_price, close_price, tx_hash, catalog_version
		FROM trades
		WHERE %s
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, conditions)

	rows, err := r.db.Conn().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// CountForWhale returns the total number of trades matching filter, used to
// populate the "total" field alongside a ListForWhale page.
func (r *TradeRepository) CountForWhale(ctx context.Context, whaleID string, window types.TimeWindow, filter TradeFilter) (int64, error) {
	conditions, args := whaleConditions(whaleID, window, filter)
	query := fmt.Sprintf(`SELECT count() FROM trades WHERE %s`, conditions)

	var total uint64
	row := r.db.Conn().QueryRow(ctx, query, args...)
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count trades: %w", err)
	}
	return int64(total), nil
}

type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanTrades(rows chRows) ([]*models.Trade, error) {
	var trades []*models.Trade
	for rows.Next() {
		var t models.Trade
		var source, direction string
		var valueUSD, realizedPnLUSD, realizedPnLPct, openPrice, closePrice *decimal.Decimal
		if err := rows.Scan(
			&t.ID, &t.WhaleID, &t.Timestamp, &source, &t.Platform, &direction, &t.BaseAsset, &t.QuoteAsset,
			&t.BaseAmount, &t.QuoteAmount, &valueUSD, &realizedPnLUSD, &realizedPnLPct,
			&openPrice, &closePrice, &t.TxHash, &t.CatalogVersion,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trade row: %w", err)
		}
		t.Source = types.TradeSource(source)
		t.Direction = types.TradeDirection(direction)
		t.ValueUSD = valueUSD
		t.RealizedPnLUSD = realizedPnLUSD
		t.RealizedPnLPct = realizedPnLPct
		t.OpenPrice = openPrice
		t.ClosePrice = closePrice
		trades = append(trades, &t)
	}
	return trades, rows.Err()
}

// ListRecent returns the most recent trades across all whales, for the
// dashboard/live feed backfill-on-connect path.
func (r *TradeRepository) ListRecent(ctx context.Context, limit int) ([]*models.Trade, error) {
	query := `
		SELECT id, whale_id, timestamp, source, platform, direction, base_asset, quote_asset,
			base_amount, quote_amount, value_usd, realized_pnl_usd, realized_pnl_pct,
			open_price, close_price, tx_hash, catalog_version
		FROM trades
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`
	rows, err := r.db.Conn().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent trades: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

// SumVolumeSince returns the USD trade volume and trade count for a whale
// since a given time, used by the classifier.
func (r *TradeRepository) SumVolumeSince(ctx context.Context, whaleID string, since time.Time) (decimal.Decimal, int64, error) {
	query := `
		SELECT sum(value_usd), count()
		FROM trades
		WHERE whale_id = ? AND timestamp >= ?
	`
	var sum decimal.Decimal
	var count uint64
	row := r.db.Conn().QueryRow(ctx, query, whaleID, since)
	if err := row.Scan(&sum, &count); err != nil {
		return decimal.Zero, 0, fmt.Errorf("failed to sum volume: %w", err)
	}
	return sum, int64(count), nil
}

// SumVolumeSinceAll returns total USD trade volume across all whales since a
// given time, used by the dashboard summary's 24h volume figure.
func (r *TradeRepository) SumVolumeSinceAll(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	query := `SELECT sum(value_usd) FROM trades WHERE timestamp >= ?`
	var sum decimal.Decimal
	row := r.db.Conn().QueryRow(ctx, query, since)
	if err := row.Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum volume across whales: %w", err)
	}
	return sum, nil
}

// DeleteForWhale removes all trades for a whale, used by start_reset to
// wipe history before a fresh backfill.
func (r *TradeRepository) DeleteForWhale(ctx context.Context, whaleID string) error {
	err := r.db.Conn().Exec(ctx, `ALTER TABLE trades DELETE WHERE whale_id = ?`, whaleID)
	if err != nil {
		return fmt.Errorf("failed to delete trades for whale: %w", err)
	}
	return nil
}

// ListAllForWhaleOrdered returns the complete trade history for a whale in
// chronological order, used by the FIFO cost-basis rebuild.
func (r *TradeRepository) ListAllForWhaleOrdered(ctx context.Context, whaleID string) ([]*models.Trade, error) {
	query := `
		SELECT id, whale_id, timestamp, source, platform, direction, base_asset, quote_asset,
			base_amount, quote_amount, value_usd, realized_pnl_usd, realized_pnl_pct,
			open_price, close_price, tx_hash, catalog_version
		FROM trades
		WHERE whale_id = ?
		ORDER BY timestamp ASC, id ASC
	`
	rows, err := r.db.Conn().Query(ctx, query, whaleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list whale trades: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}
