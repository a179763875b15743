// Package collector ingests new activity for tracked whales from each
// source network and normalizes it into Trade/Event rows.
package collector

import (
	"context"

	"github.com/whalewatch/engine/internal/models"
)

// Collector fetches and normalizes strictly-newer activity for a whale
// since its last checkpoint. Implementations exist for the EVM, UTXO, and
// PERP sources; each advances the whale's IngestionCheckpoint on success.
type Collector interface {
	// Source identifies which ChainID this collector serves.
	Source() string

	// Tick fetches new activity for whale since its last checkpoint,
	// persists it, advances the checkpoint, and returns the newly
	// observed trades so the caller can publish events and trigger a
	// metrics update.
	Tick(ctx context.Context, whale *models.Whale) (*TickResult, error)
}

// TickResult summarizes what a single collector tick produced.
type TickResult struct {
	NewTrades []*models.Trade
	NewEvents []*models.Event
}
