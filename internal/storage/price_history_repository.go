package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PriceHistoryRepository persists historical asset prices in ClickHouse.
type PriceHistoryRepository struct {
	db *ClickHouseDB
}

// NewPriceHistoryRepository creates a new price history repository.
func NewPriceHistoryRepository(db *ClickHouseDB) *PriceHistoryRepository {
	return &PriceHistoryRepository{db: db}
}

// PricePoint is a single (asset, timestamp, price) sample.
type PricePoint struct {
	Asset     string
	Timestamp time.Time
	Price     decimal.Decimal
}

// BatchInsert persists a batch of historical price points.
func (r *PriceHistoryRepository) BatchInsert(ctx context.Context, points []PricePoint) error {
	if len(points) == 0 {
		return nil
	}
	batch, err := r.db.Conn().PrepareBatch(ctx, `INSERT INTO price_history (asset, timestamp, price)`)
	if err != nil {
		return fmt.Errorf("failed to prepare price history batch: %w", err)
	}
	for _, p := range points {
		if err := batch.Append(p.Asset, p.Timestamp, p.Price); err != nil {
			return fmt.Errorf("failed to append price point: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send price history batch: %w", err)
	}
	return nil
}

// Series returns the stored price points for an asset within a window,
// ascending by timestamp, used as the basis for linear interpolation.
func (r *PriceHistoryRepository) Series(ctx context.Context, asset string, from, to time.Time) ([]PricePoint, error) {
	query := `
		SELECT asset, timestamp, price FROM price_history
		WHERE asset = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC
	`
	rows, err := r.db.Conn().Query(ctx, query, asset, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query price series: %w", err)
	}
	defer rows.Close()

	var out []PricePoint
	for rows.Next() {
		var p PricePoint
		if err := rows.Scan(&p.Asset, &p.Timestamp, &p.Price); err != nil {
			return nil, fmt.Errorf("failed to scan price point: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Nearest returns the stored price point closest to (and not after) ts,
// used when an exact interpolation window has no neighboring samples.
func (r *PriceHistoryRepository) Nearest(ctx context.Context, asset string, ts time.Time) (*PricePoint, error) {
	query := `
		SELECT asset, timestamp, price FROM price_history
		WHERE asset = ? AND timestamp <= ?
		ORDER BY timestamp DESC
		LIMIT 1
	`
	var p PricePoint
	row := r.db.Conn().QueryRow(ctx, query, asset, ts)
	if err := row.Scan(&p.Asset, &p.Timestamp, &p.Price); err != nil {
		return nil, fmt.Errorf("failed to query nearest price: %w", err)
	}
	return &p, nil
}
