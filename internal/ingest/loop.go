// Package ingest drives recency-bounded per-whale collector ticks, distinct
// from the backfill orchestrator's unbounded historical replay. Each tick
// publishes any newly observed events to the live broadcaster and triggers
// an incremental metrics update.
package ingest

import (
	"context"
	"time"

	"github.com/whalewatch/engine/internal/broadcast"
	"github.com/whalewatch/engine/internal/collector"
	"github.com/whalewatch/engine/internal/logging"
	"github.com/whalewatch/engine/internal/metrics"
	"github.com/whalewatch/engine/internal/models"
	"github.com/whalewatch/engine/internal/storage"
	"github.com/whalewatch/engine/internal/types"
)

const lockTTL = 30 * time.Second

// Loop runs one collector on a fixed interval for every whale registered on
// that source, guarded by a per-(whale, source) Redis lock so multiple
// engine replicas never tick the same wallet concurrently.
type Loop struct {
	source      types.ChainID
	interval    time.Duration
	collector   collector.Collector
	whales      *storage.WhaleRepository
	engine      *metrics.Engine
	broadcaster *broadcast.Broadcaster
	locks       *storage.RedisCache
}

// NewLoop creates a new recency-bounded ingest loop for one source.
func NewLoop(
	source types.ChainID,
	interval time.Duration,
	c collector.Collector,
	whales *storage.WhaleRepository,
	engine *metrics.Engine,
	broadcaster *broadcast.Broadcaster,
	locks *storage.RedisCache,
) *Loop {
	return &Loop{
		source:      source,
		interval:    interval,
		collector:   c,
		whales:      whales,
		engine:      engine,
		broadcaster: broadcaster,
		locks:       locks,
	}
}

// Run blocks, ticking every whale on this source until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tickAll(ctx)
		}
	}
}

func (l *Loop) tickAll(ctx context.Context) {
	logger := logging.FromContext(ctx).WithField("source", string(l.source))

	chain := l.source
	whales, err := l.whales.List(ctx, &chain, nil, 10000, 0)
	if err != nil {
		logger.WithError(err).Warn("failed to list whales for ingest loop")
		return
	}

	for _, whale := range whales {
		l.tickOne(ctx, whale)
	}
}

func (l *Loop) tickOne(ctx context.Context, whale *models.Whale) {
	logger := logging.FromContext(ctx).WithField("whale", whale.ID)

	lockKey := "ingest:" + whale.ID + ":" + string(l.source)
	acquired, err := l.locks.AcquireLock(ctx, lockKey, lockTTL)
	if err != nil {
		logger.WithError(err).Warn("failed to acquire ingest lock")
		return
	}
	if !acquired {
		return
	}
	defer func() { _ = l.locks.ReleaseLock(ctx, lockKey) }()

	result, err := l.collector.Tick(ctx, whale)
	if err != nil {
		logger.WithError(err).Warn("collector tick failed")
		return
	}

	if len(result.NewTrades) == 0 {
		return
	}

	now := time.Now().UTC()
	_ = l.whales.TouchLastActive(ctx, whale.ID, now)

	for _, event := range result.NewEvents {
		l.broadcaster.Publish(event)
	}

	if err := l.engine.IncrementalUpdate(ctx, whale.ID); err != nil {
		logger.WithError(err).Warn("incremental metrics update failed")
	}
}
