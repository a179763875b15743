package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/whalewatch/engine/internal/models"
	"github.com/whalewatch/engine/internal/types"
)

// BackfillRepository persists per-whale backfill job state in Postgres.
type BackfillRepository struct {
	db *PostgresDB
}

// NewBackfillRepository creates a new backfill repository.
func NewBackfillRepository(db *PostgresDB) *BackfillRepository {
	return &BackfillRepository{db: db}
}

// Get returns a whale's backfill status, defaulting to idle if no row exists.
func (r *BackfillRepository) Get(ctx context.Context, whaleID string) (*models.BackfillStatus, error) {
	query := `SELECT whale_id, state, progress, message, updated_at FROM backfill_status WHERE whale_id = $1`
	var s models.BackfillStatus
	err := r.db.Pool().QueryRow(ctx, query, whaleID).Scan(&s.WhaleID, &s.State, &s.Progress, &s.Message, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &models.BackfillStatus{WhaleID: whaleID, State: types.BackfillIdle}, nil
		}
		return nil, fmt.Errorf("failed to get backfill status: %w", err)
	}
	return &s, nil
}

// Upsert persists a whale's backfill status.
func (r *BackfillRepository) Upsert(ctx context.Context, s *models.BackfillStatus) error {
	query := `
		INSERT INTO backfill_status (whale_id, state, progress, message, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (whale_id) DO UPDATE SET
			state = EXCLUDED.state, progress = EXCLUDED.progress,
			message = EXCLUDED.message, updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.Pool().Exec(ctx, query, s.WhaleID, s.State, s.Progress, s.Message, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert backfill status: %w", err)
	}
	return nil
}

// TryStart atomically transitions a whale's backfill into running state,
// returning a CONFLICT ServiceError if a backfill is already running — this
// enforces the one-running-job-per-whale invariant at the storage layer.
func (r *BackfillRepository) TryStart(ctx context.Context, whaleID string) error {
	tag, err := r.db.Pool().Exec(ctx, `
		INSERT INTO backfill_status (whale_id, state, progress, updated_at)
		VALUES ($1, $2, 0, now())
		ON CONFLICT (whale_id) DO UPDATE SET state = $2, progress = 0, message = NULL, updated_at = now()
		WHERE backfill_status.state != $3
	`, whaleID, types.BackfillRunning, types.BackfillRunning)
	if err != nil {
		return fmt.Errorf("failed to start backfill: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewServiceError(types.KindConflict, "backfill already running for whale", nil)
	}
	return nil
}
