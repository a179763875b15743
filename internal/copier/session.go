package copier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/whalewatch/engine/internal/logging"
	"github.com/whalewatch/engine/internal/models"
	"github.com/whalewatch/engine/internal/storage"
	"github.com/whalewatch/engine/internal/types"
)

const pollInterval = time.Second

// Manager runs live shadow-copy sessions: for each active CopierSession it
// polls for trades newer than the session's watermark and records one shadow
// notification per trade, sized as the session's position percentage (10% by
// default) of the whale trade's USD value, without submitting real orders.
// It does not track equity and applies no leverage, fees or slippage, so its
// sizing differs from the backtest's. Each
// session runs on its own goroutine and ticker, stopped via a per-session
// cancel function.
type Manager struct {
	sessions *storage.BacktestRepository
	trades   *storage.TradeRepository

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewManager creates a new live copier session manager.
func NewManager(sessions *storage.BacktestRepository, trades *storage.TradeRepository) *Manager {
	return &Manager{
		sessions: sessions,
		trades:   trades,
		running:  make(map[string]context.CancelFunc),
	}
}

// Start creates a new live session for whaleID and begins polling.
func (m *Manager) Start(ctx context.Context, whaleID, runID string, positionPctOverride *decimal.Decimal) (*models.CopierSession, error) {
	session := &models.CopierSession{
		ID:                  uuid.New().String(),
		WhaleID:             whaleID,
		RunID:               runID,
		PositionPctOverride: positionPctOverride,
		State:               types.SessionCreated,
		LastSeenTradeAt:     time.Now().UTC(),
		CreatedAt:           time.Now().UTC(),
	}

	if err := m.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	if err := m.sessions.UpdateSessionState(ctx, session.ID, types.SessionActive); err != nil {
		return nil, fmt.Errorf("failed to activate session: %w", err)
	}
	session.State = types.SessionActive

	m.run(ctx, session)

	return session, nil
}

// Stop halts a session's polling loop and marks it stopped.
func (m *Manager) Stop(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	cancel, ok := m.running[sessionID]
	if ok {
		delete(m.running, sessionID)
	}
	m.mu.Unlock()

	if ok {
		cancel()
	}
	return m.sessions.UpdateSessionState(ctx, sessionID, types.SessionStopped)
}

// ResumeActive restarts polling loops for every session left in the active
// state, called once at process startup so sessions survive a restart.
func (m *Manager) ResumeActive(ctx context.Context) error {
	sessions, err := m.sessions.ListActiveSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active sessions: %w", err)
	}
	for _, s := range sessions {
		m.run(ctx, s)
	}
	return nil
}

func (m *Manager) run(parent context.Context, session *models.CopierSession) {
	ctx, cancel := context.WithCancel(parent)

	m.mu.Lock()
	m.running[session.ID] = cancel
	m.mu.Unlock()

	go m.poll(ctx, session)
}

func (m *Manager) poll(ctx context.Context, session *models.CopierSession) {
	logger := logging.FromContext(ctx).WithField("session", session.ID)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	lastSeen := session.LastSeenTradeAt
	processed := session.ProcessedTradeCount

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			trades, err := m.trades.ListForWhale(ctx, session.WhaleID, types.TimeWindow{From: lastSeen}, storage.TradeFilter{}, nil, 100)
			if err != nil {
				logger.WithError(err).Warn("failed to poll trades for live session")
				continue
			}

			for i := len(trades) - 1; i >= 0; i-- {
				t := trades[i]
				if !t.Timestamp.After(lastSeen) {
					continue
				}
				m.applyFill(session, t)
				processed++
				lastSeen = t.Timestamp
			}

			if err := m.sessions.UpdateSessionProgress(ctx, session.ID, processed, lastSeen); err != nil {
				logger.WithError(err).Warn("failed to persist session progress")
			}
		}
	}
}

// applyFill sizes a copy-trade for a single new whale fill. Live sessions
// are shadow-only: no order is ever submitted.
func (m *Manager) applyFill(session *models.CopierSession, t *models.Trade) {
	positionPct := decimal.NewFromInt(10)
	if session.PositionPctOverride != nil {
		positionPct = *session.PositionPctOverride
	}

	if t.ValueUSD == nil {
		session.AppendNotification(fmt.Sprintf("skipped %s fill: no priced value", t.BaseAsset))
		return
	}

	notional := t.ValueUSD.Abs().Mul(positionPct).Div(decimal.NewFromInt(100))
	session.AppendNotification(fmt.Sprintf("shadow-copied %s %s notional $%s", t.Direction, t.BaseAsset, notional.StringFixed(2)))
}
