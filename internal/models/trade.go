package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/whalewatch/engine/internal/types"
)

// Trade is an append-only normalized action attributable to a whale.
//
// Invariant: at most one row per (WhaleID, TxHash) where TxHash is non-null;
// duplicates from replays upsert rather than insert.
type Trade struct {
	ID               int64                  `json:"id" ch:"id"`
	WhaleID          string                 `json:"whaleId" ch:"whale_id"`
	Timestamp        time.Time              `json:"timestamp" ch:"timestamp"`
	Source           types.TradeSource      `json:"source" ch:"source"`
	Platform         string                 `json:"platform" ch:"platform"`
	Direction        types.TradeDirection   `json:"direction" ch:"direction"`
	BaseAsset        string                 `json:"baseAsset" ch:"base_asset"`
	QuoteAsset       *string                `json:"quoteAsset,omitempty" ch:"quote_asset"`
	BaseAmount       decimal.Decimal        `json:"baseAmount" ch:"base_amount"` // signed
	QuoteAmount      decimal.Decimal        `json:"quoteAmount" ch:"quote_amount"`
	ValueUSD         *decimal.Decimal       `json:"valueUsd,omitempty" ch:"value_usd"` // nil when price unknown
	RealizedPnLUSD   *decimal.Decimal       `json:"realizedPnlUsd,omitempty" ch:"realized_pnl_usd"`
	RealizedPnLPct   *decimal.Decimal       `json:"realizedPnlPct,omitempty" ch:"realized_pnl_pct"`
	OpenPrice        *decimal.Decimal       `json:"openPrice,omitempty" ch:"open_price"`
	ClosePrice       *decimal.Decimal       `json:"closePrice,omitempty" ch:"close_price"`
	TxHash           *string                `json:"txHash,omitempty" ch:"tx_hash"`
	CatalogVersion   *int                   `json:"catalogVersion,omitempty" ch:"catalog_version"`
}

// IsClose reports whether the trade direction closes out a position.
func (t *Trade) IsClose() bool {
	switch t.Direction {
	case types.DirectionSell, types.DirectionCloseLong, types.DirectionCloseShort:
		return true
	default:
		return false
	}
}

// IsPerpClose reports whether this is specifically a perp close (signed size semantics apply).
func (t *Trade) IsPerpClose() bool {
	return t.Direction == types.DirectionCloseLong || t.Direction == types.DirectionCloseShort
}

// DedupeKey returns the (whale, tx_hash) dedupe key, or empty if TxHash is nil.
func (t *Trade) DedupeKey() (string, bool) {
	if t.TxHash == nil || *t.TxHash == "" {
		return "", false
	}
	return t.WhaleID + ":" + *t.TxHash, true
}
