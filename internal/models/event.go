package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/whalewatch/engine/internal/types"
)

// Event is a derived notification emitted when a trade exceeds a
// per-type USD threshold.
type Event struct {
	ID        int64             `json:"id" ch:"id"`
	WhaleID   string            `json:"whaleId" ch:"whale_id"`
	Timestamp time.Time         `json:"timestamp" ch:"timestamp"`
	Type      types.EventType   `json:"type" ch:"type"`
	Summary   string            `json:"summary" ch:"summary"`
	ValueUSD  decimal.Decimal   `json:"valueUsd" ch:"value_usd"`
	TxHash    *string           `json:"txHash,omitempty" ch:"tx_hash"`
	Details   json.RawMessage   `json:"details,omitempty" ch:"details"`
}
