// Package scheduler runs the engine's periodic jobs: whale classification,
// full metrics rebuilds, and price refreshes.
package scheduler

import (
	"context"
	"time"

	"github.com/whalewatch/engine/internal/config"
	"github.com/whalewatch/engine/internal/logging"
	"github.com/whalewatch/engine/internal/metrics"
	"github.com/whalewatch/engine/internal/priceoracle"
	"github.com/whalewatch/engine/internal/storage"
	"github.com/whalewatch/engine/internal/types"
)

const (
	classifierInterval = 24 * time.Hour
	aggregatorInterval = 24 * time.Hour
	priceInterval      = 5 * time.Minute

	lockTTL = 2 * time.Minute
)

// Scheduler runs the classifier, metrics aggregator, and price refresher
// jobs on independent tickers. Each run is gated by a cluster-wide Redis
// lock so only one replica executes a given job at a time.
type Scheduler struct {
	whales  *storage.WhaleRepository
	trades  *storage.TradeRepository
	metrics *storage.MetricsRepository
	engine  *metrics.Engine
	oracle  *priceoracle.Oracle
	locks   *storage.RedisCache
	cfg     config.ClassifierConfig

	trackedAssets []string
}

// NewScheduler creates a new scheduler.
func NewScheduler(
	whales *storage.WhaleRepository,
	trades *storage.TradeRepository,
	metricsRepo *storage.MetricsRepository,
	engine *metrics.Engine,
	oracle *priceoracle.Oracle,
	locks *storage.RedisCache,
	cfg config.ClassifierConfig,
	trackedAssets []string,
) *Scheduler {
	return &Scheduler{
		whales:        whales,
		trades:        trades,
		metrics:       metricsRepo,
		engine:        engine,
		oracle:        oracle,
		locks:         locks,
		cfg:           cfg,
		trackedAssets: trackedAssets,
	}
}

// Start launches the three job loops as goroutines, each stopped when ctx
// is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.runLoop(ctx, "classifier", classifierInterval, s.runClassifier)
	go s.runLoop(ctx, "metrics-aggregator", aggregatorInterval, s.runAggregator)
	go s.runLoop(ctx, "price-refresher", priceInterval, s.runPriceRefresh)
}

func (s *Scheduler) runLoop(ctx context.Context, name string, interval time.Duration, job func(context.Context) error) {
	logger := logging.FromContext(ctx).WithField("job", name)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			acquired, err := s.locks.AcquireLock(ctx, "scheduler:"+name, lockTTL)
			if err != nil {
				logger.WithError(err).Warn("failed to acquire scheduler lock")
				continue
			}
			if !acquired {
				continue
			}

			if err := job(ctx); err != nil {
				logger.WithError(err).Error("scheduled job failed")
			}

			if err := s.locks.ReleaseLock(ctx, "scheduler:"+name); err != nil {
				logger.WithError(err).Warn("failed to release scheduler lock")
			}
		}
	}
}

// runClassifier computes each whale's 30d trade count and its 30d
// volume/portfolio ratio, reclassifying it as holder, trader, or
// holder_trader. It does not compute average trade size or holding period.
func (s *Scheduler) runClassifier(ctx context.Context) error {
	whales, err := s.whales.List(ctx, nil, nil, 10000, 0)
	if err != nil {
		return err
	}

	since := time.Now().AddDate(0, 0, -30)
	for _, whale := range whales {
		volumeUSD, count, err := s.trades.SumVolumeSince(ctx, whale.ID, since)
		if err != nil {
			continue
		}

		frequency := float64(count)

		var volumeRatio float64
		if current, err := s.metrics.GetCurrent(ctx, whale.ID); err == nil && current.PortfolioValueUSD.IsPositive() {
			volumeRatio, _ = volumeUSD.Div(current.PortfolioValueUSD).Float64()
		}

		classification := types.ClassificationHolder
		switch {
		case frequency >= s.cfg.FreqHigh && volumeRatio >= s.cfg.VolumeHigh:
			classification = types.ClassificationHolderTrader
		case frequency >= s.cfg.FreqHigh:
			classification = types.ClassificationTrader
		}

		if classification != whale.Classification {
			_ = s.whales.UpdateClassification(ctx, whale.ID, classification)
		}
	}
	return nil
}

// runAggregator performs a full metrics rebuild for every tracked whale.
func (s *Scheduler) runAggregator(ctx context.Context) error {
	whales, err := s.whales.List(ctx, nil, nil, 10000, 0)
	if err != nil {
		return err
	}
	for _, whale := range whales {
		if err := s.engine.RebuildWhale(ctx, whale.ID); err != nil {
			logging.FromContext(ctx).WithError(err).WithField("whale", whale.ID).Warn("scheduled rebuild failed")
		}
	}
	return nil
}

// runPriceRefresh refreshes and persists spot prices for every tracked asset.
func (s *Scheduler) runPriceRefresh(ctx context.Context) error {
	if len(s.trackedAssets) == 0 {
		return nil
	}
	return s.oracle.RefreshAndPersist(ctx, s.trackedAssets)
}
