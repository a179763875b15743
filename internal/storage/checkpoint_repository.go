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

// CheckpointRepository persists per-(whale, source) ingestion checkpoints.
type CheckpointRepository struct {
	db *PostgresDB
}

// NewCheckpointRepository creates a new checkpoint repository.
func NewCheckpointRepository(db *PostgresDB) *CheckpointRepository {
	return &CheckpointRepository{db: db}
}

// Get returns the checkpoint for (whale, source), or nil with a NOT_FOUND
// ServiceError if ingestion has not started yet.
func (r *CheckpointRepository) Get(ctx context.Context, whaleID string, source types.ChainID) (*models.IngestionCheckpoint, error) {
	query := `
		SELECT whale_id, source, last_timestamp, last_block_height, last_position_snapshot, continuation_token, updated_at
		FROM ingestion_checkpoints WHERE whale_id = $1 AND source = $2
	`
	var c models.IngestionCheckpoint
	err := r.db.Pool().QueryRow(ctx, query, whaleID, source).Scan(
		&c.WhaleID, &c.Source, &c.LastTimestamp, &c.LastBlockHeight, &c.LastPositionSnapshot, &c.ContinuationToken, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewServiceError(types.KindNotFound, "checkpoint not found", nil)
		}
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return &c, nil
}

// Upsert persists a checkpoint, rejecting any attempt to regress
// last_timestamp (the checkpoint must advance monotonically).
func (r *CheckpointRepository) Upsert(ctx context.Context, c *models.IngestionCheckpoint) error {
	query := `
		INSERT INTO ingestion_checkpoints (whale_id, source, last_timestamp, last_block_height, last_position_snapshot, continuation_token, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (whale_id, source) DO UPDATE SET
			last_timestamp = GREATEST(ingestion_checkpoints.last_timestamp, EXCLUDED.last_timestamp),
			last_block_height = GREATEST(ingestion_checkpoints.last_block_height, EXCLUDED.last_block_height),
			last_position_snapshot = EXCLUDED.last_position_snapshot,
			continuation_token = EXCLUDED.continuation_token,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Pool().Exec(ctx, query,
		c.WhaleID, c.Source, c.LastTimestamp, c.LastBlockHeight, c.LastPositionSnapshot, c.ContinuationToken, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert checkpoint: %w", err)
	}
	return nil
}

// Delete removes the checkpoint for (whale, source), used by start_reset to
// force a full re-ingest from genesis.
func (r *CheckpointRepository) Delete(ctx context.Context, whaleID string, source types.ChainID) error {
	_, err := r.db.Pool().Exec(ctx, `DELETE FROM ingestion_checkpoints WHERE whale_id = $1 AND source = $2`, whaleID, source)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

// EnsureExists creates a zero checkpoint for (whale, source) if one does not
// already exist, called when a whale is first registered for a source.
func (r *CheckpointRepository) EnsureExists(ctx context.Context, whaleID string, source types.ChainID, epoch time.Time) error {
	query := `
		INSERT INTO ingestion_checkpoints (whale_id, source, last_timestamp, updated_at)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (whale_id, source) DO NOTHING
	`
	_, err := r.db.Pool().Exec(ctx, query, whaleID, source, epoch)
	if err != nil {
		return fmt.Errorf("failed to ensure checkpoint: %w", err)
	}
	return nil
}
