// Package backfill drives unbounded historical ingestion for a whale,
// reusing the same collector code path used by recency-bounded ticks.
package backfill

import (
	"container/heap"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/whalewatch/engine/internal/collector"
	"github.com/whalewatch/engine/internal/logging"
	"github.com/whalewatch/engine/internal/metrics"
	"github.com/whalewatch/engine/internal/models"
	"github.com/whalewatch/engine/internal/storage"
	"github.com/whalewatch/engine/internal/types"
)

// Orchestrator manages a priority queue and worker-semaphore pool that
// drive unbounded backfill jobs, one per (whale, source).
type Orchestrator struct {
	mu    sync.RWMutex
	queue *priorityQueue

	statuses    *storage.BackfillRepository
	whales      *storage.WhaleRepository
	trades      *storage.TradeRepository
	events      *storage.EventRepository
	holdings    *storage.HoldingRepository
	checkpoints *storage.CheckpointRepository
	metricsRepo *storage.MetricsRepository
	engine      *metrics.Engine

	collectors map[types.ChainID]collector.Collector

	workers   int
	workerSem chan struct{}
	stopCh    chan struct{}
	stopped   bool

	progress map[string]*JobProgress
}

// JobProgress reports the running state of a whale's backfill job.
type JobProgress struct {
	WhaleID     string
	StartedAt   time.Time
	LastUpdated time.Time
	Ticks       int
}

// NewOrchestrator creates a new backfill orchestrator.
func NewOrchestrator(
	statuses *storage.BackfillRepository,
	whales *storage.WhaleRepository,
	trades *storage.TradeRepository,
	events *storage.EventRepository,
	holdings *storage.HoldingRepository,
	checkpoints *storage.CheckpointRepository,
	metricsRepo *storage.MetricsRepository,
	engine *metrics.Engine,
	collectors map[types.ChainID]collector.Collector,
	workers int,
) *Orchestrator {
	if workers <= 0 {
		workers = 5
	}
	return &Orchestrator{
		queue:       &priorityQueue{},
		statuses:    statuses,
		whales:      whales,
		trades:      trades,
		events:      events,
		holdings:    holdings,
		checkpoints: checkpoints,
		metricsRepo: metricsRepo,
		engine:      engine,
		collectors:  collectors,
		workers:     workers,
		workerSem:   make(chan struct{}, workers),
		stopCh:      make(chan struct{}),
		progress:    make(map[string]*JobProgress),
	}
}

// Start begins processing queued backfill jobs.
func (o *Orchestrator) Start(ctx context.Context) {
	go o.processLoop(ctx)
}

// Stop halts the processing loop.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return
	}
	o.stopped = true
	close(o.stopCh)
}

// StartBackfill enqueues an unbounded ingest job for whale. A second
// request while one is already running is a no-op; the caller should read
// current status via GetStatus instead of assuming a fresh run started.
func (o *Orchestrator) StartBackfill(ctx context.Context, whale *models.Whale) error {
	if err := o.statuses.TryStart(ctx, whale.ID); err != nil {
		if types.IsKind(err, types.KindConflict) {
			return nil
		}
		return err
	}

	o.mu.Lock()
	heap.Push(o.queue, &queueItem{whale: whale, priority: 0, enqueuedAt: time.Now()})
	o.mu.Unlock()

	return nil
}

// StartReset wipes all trades/events/holdings/checkpoints/metrics for a perp
// whale and starts a fresh backfill from genesis.
func (o *Orchestrator) StartReset(ctx context.Context, whale *models.Whale) error {
	if whale.Chain != types.ChainPerp {
		return types.NewServiceError(types.KindInvalidInput, "reset is only supported for perp whales", nil)
	}

	if err := o.trades.DeleteForWhale(ctx, whale.ID); err != nil {
		return fmt.Errorf("failed to wipe trades: %w", err)
	}
	if err := o.events.DeleteForWhale(ctx, whale.ID); err != nil {
		return fmt.Errorf("failed to wipe events: %w", err)
	}
	if err := o.holdings.ReplaceAll(ctx, whale.ID, nil); err != nil {
		return fmt.Errorf("failed to wipe holdings: %w", err)
	}
	if err := o.checkpoints.Delete(ctx, whale.ID, types.ChainPerp); err != nil {
		return fmt.Errorf("failed to wipe checkpoint: %w", err)
	}
	if err := o.metricsRepo.DeleteFromDate(ctx, whale.ID, time.Unix(0, 0).UTC()); err != nil {
		return fmt.Errorf("failed to wipe metrics: %w", err)
	}

	return o.StartBackfill(ctx, whale)
}

// GetStatus returns a whale's current backfill status.
func (o *Orchestrator) GetStatus(ctx context.Context, whaleID string) (*models.BackfillStatus, error) {
	return o.statuses.Get(ctx, whaleID)
}

func (o *Orchestrator) processLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.processNext(ctx)
		}
	}
}

func (o *Orchestrator) processNext(ctx context.Context) {
	select {
	case o.workerSem <- struct{}{}:
	default:
		return
	}

	o.mu.Lock()
	if o.queue.Len() == 0 {
		o.mu.Unlock()
		<-o.workerSem
		return
	}
	item := heap.Pop(o.queue).(*queueItem)
	o.mu.Unlock()

	go func() {
		defer func() { <-o.workerSem }()
		o.runJob(ctx, item.whale)
	}()
}

func (o *Orchestrator) runJob(ctx context.Context, whale *models.Whale) {
	logger := logging.FromContext(ctx).WithField("whale", whale.ID)

	o.trackStart(whale.ID)
	defer o.untrack(whale.ID)

	c, ok := o.collectors[whale.Chain]
	if !ok {
		msg := fmt.Sprintf("no collector registered for chain %s", whale.Chain)
		o.fail(ctx, whale.ID, msg)
		return
	}

	started := time.Now()
	total := 0
	for {
		result, err := c.Tick(ctx, whale)
		if err != nil {
			o.fail(ctx, whale.ID, err.Error())
			return
		}
		total += len(result.NewTrades)
		o.tick(whale.ID)

		if len(result.NewTrades) == 0 {
			break
		}
		o.setProgress(ctx, whale.ID, rampProgress(started), nil)
	}

	if err := o.engine.RebuildWhale(ctx, whale.ID); err != nil {
		logger.WithError(err).Warn("post-backfill metrics rebuild failed")
	}

	o.complete(ctx, whale.ID)
}

// rampProgress approximates completion with a time-based ramp toward 90%
// when the total item count for a source is not known in advance.
func rampProgress(started time.Time) int {
	elapsed := time.Since(started)
	pct := int(elapsed / (2 * time.Second))
	if pct > 90 {
		pct = 90
	}
	return pct
}

func (o *Orchestrator) setProgress(ctx context.Context, whaleID string, progress int, message *string) {
	_ = o.statuses.Upsert(ctx, &models.BackfillStatus{
		WhaleID:   whaleID,
		State:     types.BackfillRunning,
		Progress:  progress,
		Message:   message,
		UpdatedAt: time.Now().UTC(),
	})
}

func (o *Orchestrator) complete(ctx context.Context, whaleID string) {
	_ = o.statuses.Upsert(ctx, &models.BackfillStatus{
		WhaleID:   whaleID,
		State:     types.BackfillDone,
		Progress:  100,
		UpdatedAt: time.Now().UTC(),
	})
}

func (o *Orchestrator) fail(ctx context.Context, whaleID string, message string) {
	_ = o.statuses.Upsert(ctx, &models.BackfillStatus{
		WhaleID:   whaleID,
		State:     types.BackfillError,
		Progress:  0,
		Message:   &message,
		UpdatedAt: time.Now().UTC(),
	})
}

func (o *Orchestrator) trackStart(whaleID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progress[whaleID] = &JobProgress{WhaleID: whaleID, StartedAt: time.Now(), LastUpdated: time.Now()}
}

func (o *Orchestrator) tick(whaleID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if p, ok := o.progress[whaleID]; ok {
		p.Ticks++
		p.LastUpdated = time.Now()
	}
}

func (o *Orchestrator) untrack(whaleID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.progress, whaleID)
}

type queueItem struct {
	whale      *models.Whale
	priority   int
	enqueuedAt time.Time
	index      int
}

// priorityQueue orders backfill jobs highest priority first, oldest first
// on ties.
type priorityQueue []*queueItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].priority != pq[j].priority {
		return pq[i].priority > pq[j].priority
	}
	return pq[i].enqueuedAt.Before(pq[j].enqueuedAt)
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x interface{}) {
	item := x.(*queueItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}
