package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/whalewatch/engine/internal/types"
)

// Holding is a current-snapshot row per (whale, asset, chain). Replaced
// wholesale by refresh; history lives in WalletMetricsDaily instead.
type Holding struct {
	WhaleID          string          `json:"whaleId" db:"whale_id"`
	Asset            string          `json:"asset" db:"asset"`
	Chain            types.ChainID   `json:"chain" db:"chain"`
	Amount           decimal.Decimal `json:"amount" db:"amount"` // signed for perp positions
	ValueUSD         decimal.Decimal `json:"valueUsd" db:"value_usd"`
	PortfolioPercent decimal.Decimal `json:"portfolioPercent" db:"portfolio_percent"`
	UpdatedAt        time.Time       `json:"updatedAt" db:"updated_at"`
}

// IsOpenPerpPosition reports whether this holding represents a non-zero
// open perp position (as opposed to a closed/zeroed-out one).
func (h *Holding) IsOpenPerpPosition() bool {
	return h.Chain == types.ChainPerp && !h.Amount.IsZero()
}
