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

// WhaleRepository persists the whale registry in Postgres.
type WhaleRepository struct {
	db *PostgresDB
}

// NewWhaleRepository creates a new whale repository.
func NewWhaleRepository(db *PostgresDB) *WhaleRepository {
	return &WhaleRepository{db: db}
}

// Create inserts a new whale. It returns a CONFLICT ServiceError if the
// (chain, address) pair is already tracked.
func (r *WhaleRepository) Create(ctx context.Context, w *models.Whale) error {
	query := `
		INSERT INTO whales (id, chain, address, classification, labels, first_seen, last_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Pool().Exec(ctx, query,
		w.ID, w.Chain, w.Address, w.Classification, w.LabelsSlice(), w.FirstSeen, w.LastActive,
	)
	if err != nil {
		var pgErr interface{ SQLState() string }
		if errors.As(err, &pgErr) && pgErr.SQLState() == "23505" {
			return types.NewServiceError(types.KindConflict, fmt.Sprintf("whale already tracked: %s/%s", w.Chain, w.Address), nil)
		}
		return fmt.Errorf("failed to create whale: %w", err)
	}
	return nil
}

// Get retrieves a whale by ID.
func (r *WhaleRepository) Get(ctx context.Context, id string) (*models.Whale, error) {
	query := `
		SELECT id, chain, address, classification, labels, first_seen, last_active
		FROM whales WHERE id = $1
	`
	return r.scanOne(ctx, query, id)
}

// GetByAddress retrieves a whale by (chain, address).
func (r *WhaleRepository) GetByAddress(ctx context.Context, chain types.ChainID, address string) (*models.Whale, error) {
	query := `
		SELECT id, chain, address, classification, labels, first_seen, last_active
		FROM whales WHERE chain = $1 AND address = $2
	`
	return r.scanOne(ctx, query, chain, address)
}

func (r *WhaleRepository) scanOne(ctx context.Context, query string, args ...interface{}) (*models.Whale, error) {
	var w models.Whale
	var labels []string
	err := r.db.Pool().QueryRow(ctx, query, args...).Scan(
		&w.ID, &w.Chain, &w.Address, &w.Classification, &labels, &w.FirstSeen, &w.LastActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewServiceError(types.KindNotFound, "whale not found", nil)
		}
		return nil, fmt.Errorf("failed to get whale: %w", err)
	}
	w.SetLabels(labels)
	return &w, nil
}

// List returns whales, optionally filtered by chain and classification.
func (r *WhaleRepository) List(ctx context.Context, chain *types.ChainID, classification *types.WhaleClassification, limit, offset int) ([]*models.Whale, error) {
	query := `
		SELECT id, chain, address, classification, labels, first_seen, last_active
		FROM whales
		WHERE ($1::text IS NULL OR chain = $1)
		  AND ($2::text IS NULL OR classification = $2)
		ORDER BY last_active DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Pool().Query(ctx, query, chain, classification, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list whales: %w", err)
	}
	defer rows.Close()

	var whales []*models.Whale
	for rows.Next() {
		var w models.Whale
		var labels []string
		if err := rows.Scan(&w.ID, &w.Chain, &w.Address, &w.Classification, &labels, &w.FirstSeen, &w.LastActive); err != nil {
			return nil, fmt.Errorf("failed to scan whale row: %w", err)
		}
		w.SetLabels(labels)
		whales = append(whales, &w)
	}
	return whales, rows.Err()
}

// UpdateClassification updates a whale's classification, called by the classifier job.
func (r *WhaleRepository) UpdateClassification(ctx context.Context, id string, classification types.WhaleClassification) error {
	query := `UPDATE whales SET classification = $2 WHERE id = $1`
	tag, err := r.db.Pool().Exec(ctx, query, id, classification)
	if err != nil {
		return fmt.Errorf("failed to update classification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewServiceError(types.KindNotFound, "whale not found", nil)
	}
	return nil
}

// TouchLastActive bumps a whale's last_active timestamp from a freshly ingested trade.
func (r *WhaleRepository) TouchLastActive(ctx context.Context, id string, ts time.Time) error {
	query := `UPDATE whales SET last_active = $2 WHERE id = $1 AND last_active < $2`
	_, err := r.db.Pool().Exec(ctx, query, id, ts)
	if err != nil {
		return fmt.Errorf("failed to touch last_active: %w", err)
	}
	return nil
}

// Delete removes a whale from the registry.
func (r *WhaleRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM whales WHERE id = $1`
	tag, err := r.db.Pool().Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete whale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewServiceError(types.KindNotFound, "whale not found", nil)
	}
	return nil
}
