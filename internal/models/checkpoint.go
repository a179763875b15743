package models

import (
	"time"

	"github.com/whalewatch/engine/internal/types"
)

// IngestionCheckpoint is the per-(whale, source) cursor marking how far
// ingestion has advanced. Advances strictly monotonically.
type IngestionCheckpoint struct {
	WhaleID             string             `json:"whaleId" db:"whale_id"`
	Source              types.ChainID      `json:"source" db:"source"`
	LastTimestamp        time.Time          `json:"lastTimestamp" db:"last_timestamp"`
	LastBlockHeight      *uint64            `json:"lastBlockHeight,omitempty" db:"last_block_height"`
	LastPositionSnapshot *time.Time         `json:"lastPositionSnapshot,omitempty" db:"last_position_snapshot"`
	ContinuationToken    string             `json:"continuationToken,omitempty" db:"continuation_token"`
	UpdatedAt            time.Time          `json:"updatedAt" db:"updated_at"`
}

// Advance returns true and mutates the checkpoint if ts/block represent
// forward progress; it never regresses.
func (c *IngestionCheckpoint) Advance(ts time.Time, block *uint64) bool {
	advanced := false
	if ts.After(c.LastTimestamp) {
		c.LastTimestamp = ts
		advanced = true
	}
	if block != nil && (c.LastBlockHeight == nil || *block > *c.LastBlockHeight) {
		c.LastBlockHeight = block
		advanced = true
	}
	if advanced {
		c.UpdatedAt = time.Now().UTC()
	}
	return advanced
}
