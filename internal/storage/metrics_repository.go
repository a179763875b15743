package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/whalewatch/engine/internal/models"
	"github.com/whalewatch/engine/internal/types"
)

// MetricsRepository persists computed wallet metrics in Postgres.
type MetricsRepository struct {
	db *PostgresDB
}

// NewMetricsRepository creates a new metrics repository.
func NewMetricsRepository(db *PostgresDB) *MetricsRepository {
	return &MetricsRepository{db: db}
}

// UpsertDaily inserts or replaces the one row per (whale, date), matching
// the single-row-per-day rebuild invariant.
func (r *MetricsRepository) UpsertDaily(ctx context.Context, m *models.WalletMetricsDaily) error {
	query := `
		INSERT INTO wallet_metrics_daily (
			whale_id, date, portfolio_value_usd, roi_percent, realized_pnl_usd,
			unrealized_pnl_usd, volume_1d, trade_count_1d, win_rate_percent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (whale_id, date) DO UPDATE SET
			portfolio_value_usd = EXCLUDED.portfolio_value_usd,
			roi_percent = EXCLUDED.roi_percent,
			realized_pnl_usd = EXCLUDED.realized_pnl_usd,
			unrealized_pnl_usd = EXCLUDED.unrealized_pnl_usd,
			volume_1d = EXCLUDED.volume_1d,
			trade_count_1d = EXCLUDED.trade_count_1d,
			win_rate_percent = EXCLUDED.win_rate_percent
	`
	_, err := r.db.Pool().Exec(ctx, query,
		m.WhaleID, m.Date, m.PortfolioValueUSD, m.ROIPercent, m.RealizedPnLUSD,
		m.UnrealizedPnLUSD, m.Volume1d, m.TradeCount1d, m.WinRatePercent,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert daily metrics: %w", err)
	}
	return nil
}

// DeleteFromDate removes daily rows from a date forward, used before a
// rebuild replays history so stale rows from a shrunk trade history don't linger.
func (r *MetricsRepository) DeleteFromDate(ctx context.Context, whaleID string, from time.Time) error {
	_, err := r.db.Pool().Exec(ctx, `DELETE FROM wallet_metrics_daily WHERE whale_id = $1 AND date >= $2`, whaleID, from)
	if err != nil {
		return fmt.Errorf("failed to delete daily metrics: %w", err)
	}
	return nil
}

// ROIHistory returns the ROI time series for a whale within a window.
func (r *MetricsRepository) ROIHistory(ctx context.Context, whaleID string, window types.TimeWindow) ([]*models.WalletMetricsDaily, error) {
	query := `
		SELECT whale_id, date, portfolio_value_usd, roi_percent, realized_pnl_usd,
			unrealized_pnl_usd, volume_1d, trade_count_1d, win_rate_percent
		FROM wallet_metrics_daily
		WHERE whale_id = $1
		  AND ($2::timestamptz IS NULL OR date >= $2)
		  AND ($3::timestamptz IS NULL OR date < $3)
		ORDER BY date ASC
	`
	var from, to *time.Time
	if !window.From.IsZero() {
		from = &window.From
	}
	if !window.To.IsZero() {
		to = &window.To
	}
	rows, err := r.db.Pool().Query(ctx, query, whaleID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query roi history: %w", err)
	}
	defer rows.Close()

	var out []*models.WalletMetricsDaily
	for rows.Next() {
		var m models.WalletMetricsDaily
		if err := rows.Scan(&m.WhaleID, &m.Date, &m.PortfolioValueUSD, &m.ROIPercent, &m.RealizedPnLUSD,
			&m.UnrealizedPnLUSD, &m.Volume1d, &m.TradeCount1d, &m.WinRatePercent); err != nil {
			return nil, fmt.Errorf("failed to scan daily metrics row: %w", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// LatestDaily returns the most recent daily row for a whale, or a NOT_FOUND
// ServiceError if the whale has no computed metrics yet.
func (r *MetricsRepository) LatestDaily(ctx context.Context, whaleID string) (*models.WalletMetricsDaily, error) {
	query := `
		SELECT whale_id, date, portfolio_value_usd, roi_percent, realized_pnl_usd,
			unrealized_pnl_usd, volume_1d, trade_count_1d, win_rate_percent
		FROM wallet_metrics_daily
		WHERE whale_id = $1
		ORDER BY date DESC
		LIMIT 1
	`
	var m models.WalletMetricsDaily
	err := r.db.Pool().QueryRow(ctx, query, whaleID).Scan(
		&m.WhaleID, &m.Date, &m.PortfolioValueUSD, &m.ROIPercent, &m.RealizedPnLUSD,
		&m.UnrealizedPnLUSD, &m.Volume1d, &m.TradeCount1d, &m.WinRatePercent,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewServiceError(types.KindNotFound, "no metrics computed for whale", nil)
		}
		return nil, fmt.Errorf("failed to get latest metrics: %w", err)
	}
	return &m, nil
}

// UpsertCurrent replaces the CurrentWalletMetrics mirror row.
func (r *MetricsRepository) UpsertCurrent(ctx context.Context, c *models.CurrentWalletMetrics) error {
	query := `
		INSERT INTO current_wallet_metrics (
			whale_id, as_of_date, portfolio_value_usd, roi_percent, realized_pnl_usd,
			unrealized_pnl_usd, volume_1d, trade_count_1d, win_rate_percent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (whale_id) DO UPDATE SET
			as_of_date = EXCLUDED.as_of_date,
			portfolio_value_usd = EXCLUDED.portfolio_value_usd,
			roi_percent = EXCLUDED.roi_percent,
			realized_pnl_usd = EXCLUDED.realized_pnl_usd,
			unrealized_pnl_usd = EXCLUDED.unrealized_pnl_usd,
			volume_1d = EXCLUDED.volume_1d,
			trade_count_1d = EXCLUDED.trade_count_1d,
			win_rate_percent = EXCLUDED.win_rate_percent
	`
	_, err := r.db.Pool().Exec(ctx, query,
		c.WhaleID, c.AsOfDate, c.PortfolioValueUSD, c.ROIPercent, c.RealizedPnLUSD,
		c.UnrealizedPnLUSD, c.Volume1d, c.TradeCount1d, c.WinRatePercent,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert current metrics: %w", err)
	}
	return nil
}

// GetCurrent retrieves a whale's current metrics mirror.
func (r *MetricsRepository) GetCurrent(ctx context.Context, whaleID string) (*models.CurrentWalletMetrics, error) {
	query := `
		SELECT whale_id, as_of_date, portfolio_value_usd, roi_percent, realized_pnl_usd,
			unrealized_pnl_usd, volume_1d, trade_count_1d, win_rate_percent
		FROM current_wallet_metrics WHERE whale_id = $1
	`
	var c models.CurrentWalletMetrics
	err := r.db.Pool().QueryRow(ctx, query, whaleID).Scan(
		&c.WhaleID, &c.AsOfDate, &c.PortfolioValueUSD, &c.ROIPercent, &c.RealizedPnLUSD,
		&c.UnrealizedPnLUSD, &c.Volume1d, &c.TradeCount1d, &c.WinRatePercent,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewServiceError(types.KindNotFound, "no current metrics for whale", nil)
		}
		return nil, fmt.Errorf("failed to get current metrics: %w", err)
	}
	return &c, nil
}

// TopByROI returns the top whales ranked by current ROI, for the dashboard leaderboard.
func (r *MetricsRepository) TopByROI(ctx context.Context, limit int) ([]*models.CurrentWalletMetrics, error) {
	query := `
		SELECT whale_id, as_of_date, portfolio_value_usd, roi_percent, realized_pnl_usd,
			unrealized_pnl_usd, volume_1d, trade_count_1d, win_rate_percent
		FROM current_wallet_metrics
		ORDER BY roi_percent DESC
		LIMIT $1
	`
	rows, err := r.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top whales: %w", err)
	}
	defer rows.Close()

	var out []*models.CurrentWalletMetrics
	for rows.Next() {
		var c models.CurrentWalletMetrics
		if err := rows.Scan(&c.WhaleID, &c.AsOfDate, &c.PortfolioValueUSD, &c.ROIPercent, &c.RealizedPnLUSD,
			&c.UnrealizedPnLUSD, &c.Volume1d, &c.TradeCount1d, &c.WinRatePercent); err != nil {
			return nil, fmt.Errorf("failed to scan top whale row: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}
