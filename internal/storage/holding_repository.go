package storage

import (
	"context"
	"fmt"

	"github.com/whalewatch/engine/internal/models"
	"github.com/whalewatch/engine/internal/types"
)

// HoldingRepository persists current-snapshot holdings in Postgres.
//
// Invariant: ReplaceAll replaces a whale's holdings wholesale inside a
// transaction, so a reader never observes a partially refreshed portfolio.
type HoldingRepository struct {
	db *PostgresDB
}

// NewHoldingRepository creates a new holding repository.
func NewHoldingRepository(db *PostgresDB) *HoldingRepository {
	return &HoldingRepository{db: db}
}

// ReplaceAll atomically replaces all holdings for a whale.
func (r *HoldingRepository) ReplaceAll(ctx context.Context, whaleID string, holdings []*models.Holding) error {
	tx, err := r.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM holdings WHERE whale_id = $1`, whaleID); err != nil {
		return fmt.Errorf("failed to clear holdings: %w", err)
	}

	for _, h := range holdings {
		_, err := tx.Exec(ctx, `
			INSERT INTO holdings (whale_id, asset, chain, amount, value_usd, portfolio_percent, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, h.WhaleID, h.Asset, h.Chain, h.Amount, h.ValueUSD, h.PortfolioPercent, h.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert holding: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit holdings refresh: %w", err)
	}
	return nil
}

// ListForWhale returns all current holdings for a whale.
func (r *HoldingRepository) ListForWhale(ctx context.Context, whaleID string) ([]*models.Holding, error) {
	query := `
		SELECT whale_id, asset, chain, amount, value_usd, portfolio_percent, updated_at
		FROM holdings WHERE whale_id = $1
		ORDER BY value_usd DESC
	`
	rows, err := r.db.Pool().Query(ctx, query, whaleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list holdings: %w", err)
	}
	defer rows.Close()

	var holdings []*models.Holding
	for rows.Next() {
		var h models.Holding
		if err := rows.Scan(&h.WhaleID, &h.Asset, &h.Chain, &h.Amount, &h.ValueUSD, &h.PortfolioPercent, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan holding row: %w", err)
		}
		holdings = append(holdings, &h)
	}
	return holdings, rows.Err()
}

// ListOpenPerpPositions returns a whale's open (non-zero) perp positions, used
// by the positions-snapshot-authoritative open-positions endpoint.
func (r *HoldingRepository) ListOpenPerpPositions(ctx context.Context, whaleID string) ([]*models.Holding, error) {
	query := `
		SELECT whale_id, asset, chain, amount, value_usd, portfolio_percent, updated_at
		FROM holdings WHERE whale_id = $1 AND chain = $2 AND amount != 0
		ORDER BY value_usd DESC
	`
	rows, err := r.db.Pool().Query(ctx, query, whaleID, types.ChainPerp)
	if err != nil {
		return nil, fmt.Errorf("failed to list open perp positions: %w", err)
	}
	defer rows.Close()

	var holdings []*models.Holding
	for rows.Next() {
		var h models.Holding
		if err := rows.Scan(&h.WhaleID, &h.Asset, &h.Chain, &h.Amount, &h.ValueUSD, &h.PortfolioPercent, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan holding row: %w", err)
		}
		holdings = append(holdings, &h)
	}
	return holdings, rows.Err()
}
