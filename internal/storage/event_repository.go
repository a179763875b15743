package storage

import (
	"context"
	"fmt"

	"github.com/whalewatch/engine/internal/models"
	"github.com/whalewatch/engine/internal/types"
)

// EventRepository persists derived broadcast-worthy events in ClickHouse.
type EventRepository struct {
	db *ClickHouseDB
}

// NewEventRepository creates a new event repository.
func NewEventRepository(db *ClickHouseDB) *EventRepository {
	return &EventRepository{db: db}
}

// Insert inserts a single event.
func (r *EventRepository) Insert(ctx context.Context, e *models.Event) error {
	query := `
		INSERT INTO events (id, whale_id, timestamp, type, summary, value_usd, tx_hash, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	err := r.db.Conn().Exec(ctx, query,
		e.ID, e.WhaleID, e.Timestamp, string(e.Type), e.Summary, e.ValueUSD, e.TxHash, string(e.Details),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// DeleteForWhale removes all events for a whale, used by start_reset to
// wipe history before a fresh backfill.
func (r *EventRepository) DeleteForWhale(ctx context.Context, whaleID string) error {
	err := r.db.Conn().Exec(ctx, `ALTER TABLE events DELETE WHERE whale_id = ?`, whaleID)
	if err != nil {
		return fmt.Errorf("failed to delete events for whale: %w", err)
	}
	return nil
}

// ListRecent returns the most recent events across all whales, newest first,
// paginated by opaque cursor over (timestamp, id).
func (r *EventRepository) ListRecent(ctx context.Context, after *types.Cursor, limit int) ([]*models.Event, error) {
	conditions := "1 = 1"
	args := []interface{}{}
	if after != nil {
		conditions = "(timestamp, id) < (?, ?)"
		args = append(args, CursorTime(*after), after.ID)
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, whale_id, timestamp, type, summary, value_usd, tx_hash, details
		FROM events
		WHERE %s
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`, conditions)

	rows, err := r.db.Conn().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		var e models.Event
		var eventType string
		var details string
		if err := rows.Scan(&e.ID, &e.WhaleID, &e.Timestamp, &eventType, &e.Summary, &e.ValueUSD, &e.TxHash, &details); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		e.Type = types.EventType(eventType)
		e.Details = []byte(details)
		events = append(events, &e)
	}
	return events, rows.Err()
}
