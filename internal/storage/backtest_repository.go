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

// BacktestRepository persists backtest runs and live copier sessions in Postgres.
type BacktestRepository struct {
	db *PostgresDB
}

// NewBacktestRepository creates a new backtest/copier repository.
func NewBacktestRepository(db *PostgresDB) *BacktestRepository {
	return &BacktestRepository{db: db}
}

// CreateRun inserts a completed backtest run.
func (r *BacktestRepository) CreateRun(ctx context.Context, run *models.BacktestRun) error {
	query := `
		INSERT INTO backtest_runs (
			id, whale_id, created_at, initial_deposit, position_pct, fee_bps, slippage_bps, leverage,
			assets_filter, window_from, window_to, roi_percent, net_pnl_usd, max_drawdown_pct,
			max_drawdown_usd, trade_count, recommended_position_pct
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := r.db.Pool().Exec(ctx, query,
		run.ID, run.WhaleID, run.CreatedAt, run.InitialDeposit, run.PositionPct, run.FeeBps, run.SlippageBps, run.Leverage,
		run.AssetsFilter, run.WindowFrom, run.WindowTo, run.ROIPercent, run.NetPnLUSD, run.MaxDrawdownPct,
		run.MaxDrawdownUSD, run.TradeCount, run.RecommendedPositionPct,
	)
	if err != nil {
		return fmt.Errorf("failed to create backtest run: %w", err)
	}
	return nil
}

// GetRun retrieves a backtest run by ID.
func (r *BacktestRepository) GetRun(ctx context.Context, id string) (*models.BacktestRun, error) {
	query := `
		SELECT id, whale_id, created_at, initial_deposit, position_pct, fee_bps, slippage_bps, leverage,
			assets_filter, window_from, window_to, roi_percent, net_pnl_usd, max_drawdown_pct,
			max_drawdown_usd, trade_count, recommended_position_pct
		FROM backtest_runs WHERE id = $1
	`
	var run models.BacktestRun
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&run.ID, &run.WhaleID, &run.CreatedAt, &run.InitialDeposit, &run.PositionPct, &run.FeeBps, &run.SlippageBps, &run.Leverage,
		&run.AssetsFilter, &run.WindowFrom, &run.WindowTo, &run.ROIPercent, &run.NetPnLUSD, &run.MaxDrawdownPct,
		&run.MaxDrawdownUSD, &run.TradeCount, &run.RecommendedPositionPct,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewServiceError(types.KindNotFound, "backtest run not found", nil)
		}
		return nil, fmt.Errorf("failed to get backtest run: %w", err)
	}
	return &run, nil
}

// CreateSession inserts a new live copier session in the created state.
func (r *BacktestRepository) CreateSession(ctx context.Context, s *models.CopierSession) error {
	query := `
		INSERT INTO copier_sessions (id, whale_id, run_id, position_pct_override, state, processed_trade_count, last_seen_trade_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Pool().Exec(ctx, query,
		s.ID, s.WhaleID, s.RunID, s.PositionPctOverride, s.State, s.ProcessedTradeCount, s.LastSeenTradeAt, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create copier session: %w", err)
	}
	return nil
}

// GetSession retrieves a copier session by ID.
func (r *BacktestRepository) GetSession(ctx context.Context, id string) (*models.CopierSession, error) {
	query := `
		SELECT id, whale_id, run_id, position_pct_override, state, processed_trade_count, last_seen_trade_at, created_at
		FROM copier_sessions WHERE id = $1
	`
	var s models.CopierSession
	err := r.db.Pool().QueryRow(ctx, query, id).Scan(
		&s.ID, &s.WhaleID, &s.RunID, &s.PositionPctOverride, &s.State, &s.ProcessedTradeCount, &s.LastSeenTradeAt, &s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewServiceError(types.KindNotFound, "copier session not found", nil)
		}
		return nil, fmt.Errorf("failed to get copier session: %w", err)
	}
	return &s, nil
}

// ListActiveSessions returns all sessions currently in the active state.
func (r *BacktestRepository) ListActiveSessions(ctx context.Context) ([]*models.CopierSession, error) {
	query := `
		SELECT id, whale_id, run_id, position_pct_override, state, processed_trade_count, last_seen_trade_at, created_at
		FROM copier_sessions WHERE state = $1
	`
	rows, err := r.db.Pool().Query(ctx, query, types.SessionActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.CopierSession
	for rows.Next() {
		var s models.CopierSession
		if err := rows.Scan(&s.ID, &s.WhaleID, &s.RunID, &s.PositionPctOverride, &s.State, &s.ProcessedTradeCount, &s.LastSeenTradeAt, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		out = append(out, &s)
	}
	return out, rows.Err()
}

// UpdateSessionState transitions a session's state, enforcing the
// created->active->stopped lifecycle at the call site in the copier package.
func (r *BacktestRepository) UpdateSessionState(ctx context.Context, id string, state types.SessionState) error {
	tag, err := r.db.Pool().Exec(ctx, `UPDATE copier_sessions SET state = $2 WHERE id = $1`, id, state)
	if err != nil {
		return fmt.Errorf("failed to update session state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewServiceError(types.KindNotFound, "copier session not found", nil)
	}
	return nil
}

// UpdateSessionProgress advances a session's processed-trade watermark.
func (r *BacktestRepository) UpdateSessionProgress(ctx context.Context, id string, processedCount int64, lastSeenTradeAt time.Time) error {
	_, err := r.db.Pool().Exec(ctx, `
		UPDATE copier_sessions SET processed_trade_count = $2, last_seen_trade_at = $3 WHERE id = $1
	`, id, processedCount, lastSeenTradeAt)
	if err != nil {
		return fmt.Errorf("failed to update session progress: %w", err)
	}
	return nil
}
