package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/whalewatch/engine/internal/types"
)

// BacktestRun stores a copier backtest's configuration and result summary.
type BacktestRun struct {
	ID        string    `json:"id" db:"id"`
	WhaleID   string    `json:"whaleId" db:"whale_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`

	// Inputs
	InitialDeposit decimal.Decimal `json:"initialDeposit" db:"initial_deposit"`
	PositionPct    decimal.Decimal `json:"positionPct" db:"position_pct"`
	FeeBps         int             `json:"feeBps" db:"fee_bps"`
	SlippageBps    int             `json:"slippageBps" db:"slippage_bps"`
	Leverage       decimal.Decimal `json:"leverage" db:"leverage"`
	AssetsFilter   []string        `json:"assetsFilter,omitempty" db:"assets_filter"`
	WindowFrom     *time.Time      `json:"windowFrom,omitempty" db:"window_from"`
	WindowTo       *time.Time      `json:"windowTo,omitempty" db:"window_to"`

	// Results
	ROIPercent             decimal.Decimal `json:"roiPercent" db:"roi_percent"`
	NetPnLUSD              decimal.Decimal `json:"netPnlUsd" db:"net_pnl_usd"`
	MaxDrawdownPct         decimal.Decimal `json:"maxDrawdownPct" db:"max_drawdown_pct"`
	MaxDrawdownUSD         decimal.Decimal `json:"maxDrawdownUsd" db:"max_drawdown_usd"`
	TradeCount             int             `json:"tradeCount" db:"trade_count"`
	RecommendedPositionPct decimal.Decimal `json:"recommendedPositionPct" db:"recommended_position_pct"`
}

// BacktestTradeResult is one row of a backtest's per-trade ledger: the
// sizing, cost, and mark-to-market state immediately after a single
// simulated trade was applied.
type BacktestTradeResult struct {
	TradeID          string               `json:"tradeId"`
	Timestamp        time.Time            `json:"timestamp"`
	Direction        types.TradeDirection `json:"direction"`
	BaseAsset        string               `json:"baseAsset"`
	NotionalUSD      decimal.Decimal      `json:"notionalUsd"`
	PnLUSD           decimal.Decimal      `json:"pnlUsd"`
	FeeUSD           decimal.Decimal      `json:"feeUsd"`
	SlippageUSD      decimal.Decimal      `json:"slippageUsd"`
	NetPnLUSD        decimal.Decimal      `json:"netPnlUsd"`
	CumulativePnLUSD decimal.Decimal      `json:"cumulativePnlUsd"`
	EquityUSD        decimal.Decimal      `json:"equityUsd"`
	UnrealizedPnLUSD decimal.Decimal      `json:"unrealizedPnlUsd"`
	PositionSizeBase decimal.Decimal      `json:"positionSizeBase"`
}

// EquityPoint is one sample of a backtest's equity curve.
type EquityPoint struct {
	Timestamp        time.Time       `json:"timestamp"`
	EquityUSD        decimal.Decimal `json:"equityUsd"`
	UnrealizedPnLUSD decimal.Decimal `json:"unrealizedPnlUsd"`
}

// BacktestResult bundles a backtest's persisted summary with the per-trade
// ledger and equity curve computed alongside it. Only Summary is persisted;
// Trades and EquityCurve are returned to the caller directly.
type BacktestResult struct {
	Summary     *BacktestRun          `json:"summary"`
	Trades      []BacktestTradeResult `json:"trades"`
	EquityCurve []EquityPoint         `json:"equity_curve"`
}

// CopierSessionNotification is a single human-readable note logged during a live session.
type CopierSessionNotification struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// CopierSessionError is a single error recorded in a session's ring buffer.
type CopierSessionError struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// CopierSession is a live shadow-copy session tracking a whale's new fills.
type CopierSession struct {
	ID                  string                      `json:"id" db:"id"`
	WhaleID             string                      `json:"whaleId" db:"whale_id"`
	RunID               string                      `json:"runId" db:"run_id"`
	PositionPctOverride *decimal.Decimal            `json:"positionPctOverride,omitempty" db:"position_pct_override"`
	State               types.SessionState          `json:"state" db:"state"`
	ProcessedTradeCount int64                       `json:"processedTradeCount" db:"processed_trade_count"`
	LastSeenTradeAt     time.Time                   `json:"lastSeenTradeAt" db:"last_seen_trade_at"`
	Notifications       []CopierSessionNotification `json:"notifications" db:"-"`
	Errors              []CopierSessionError        `json:"errors" db:"-"`
	CreatedAt           time.Time                   `json:"createdAt" db:"created_at"`
}

// MaxErrorBufferSize bounds the in-memory session error ring buffer.
const MaxErrorBufferSize = 50

// AppendError pushes an error onto the bounded ring buffer, dropping the oldest.
func (s *CopierSession) AppendError(msg string) {
	s.Errors = append(s.Errors, CopierSessionError{Timestamp: time.Now().UTC(), Message: msg})
	if len(s.Errors) > MaxErrorBufferSize {
		s.Errors = s.Errors[len(s.Errors)-MaxErrorBufferSize:]
	}
}

// AppendNotification pushes a notification onto the bounded ring buffer.
func (s *CopierSession) AppendNotification(msg string) {
	s.Notifications = append(s.Notifications, CopierSessionNotification{Timestamp: time.Now().UTC(), Message: msg})
	if len(s.Notifications) > MaxErrorBufferSize {
		s.Notifications = s.Notifications[len(s.Notifications)-MaxErrorBufferSize:]
	}
}
