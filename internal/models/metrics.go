package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WalletMetricsDaily is a per-(whale, date) computed snapshot.
//
// Invariant: exactly one row per (whale, date) after a rebuild; gaps are
// acceptable only before the whale's first trade date.
type WalletMetricsDaily struct {
	WhaleID          string          `json:"whaleId" db:"whale_id"`
	Date             time.Time       `json:"date" db:"date"` // truncated to day, UTC
	PortfolioValueUSD decimal.Decimal `json:"portfolioValueUsd" db:"portfolio_value_usd"`
	ROIPercent       decimal.Decimal `json:"roiPercent" db:"roi_percent"`
	RealizedPnLUSD   decimal.Decimal `json:"realizedPnlUsd" db:"realized_pnl_usd"`
	UnrealizedPnLUSD decimal.Decimal `json:"unrealizedPnlUsd" db:"unrealized_pnl_usd"`
	Volume1d         decimal.Decimal `json:"volume1d" db:"volume_1d"`
	TradeCount1d     int64           `json:"tradeCount1d" db:"trade_count_1d"`
	WinRatePercent   decimal.Decimal `json:"winRatePercent" db:"win_rate_percent"`
}

// CurrentWalletMetrics mirrors the latest WalletMetricsDaily row for a whale.
type CurrentWalletMetrics struct {
	WhaleID          string          `json:"whaleId" db:"whale_id"`
	AsOfDate         time.Time       `json:"asOfDate" db:"as_of_date"`
	PortfolioValueUSD decimal.Decimal `json:"portfolioValueUsd" db:"portfolio_value_usd"`
	ROIPercent       decimal.Decimal `json:"roiPercent" db:"roi_percent"`
	RealizedPnLUSD   decimal.Decimal `json:"realizedPnlUsd" db:"realized_pnl_usd"`
	UnrealizedPnLUSD decimal.Decimal `json:"unrealizedPnlUsd" db:"unrealized_pnl_usd"`
	Volume1d         decimal.Decimal `json:"volume1d" db:"volume_1d"`
	TradeCount1d     int64           `json:"tradeCount1d" db:"trade_count_1d"`
	WinRatePercent   decimal.Decimal `json:"winRatePercent" db:"win_rate_percent"`
}

// FromDaily builds a CurrentWalletMetrics mirror from the latest daily row.
func FromDaily(d *WalletMetricsDaily) *CurrentWalletMetrics {
	return &CurrentWalletMetrics{
		WhaleID:           d.WhaleID,
		AsOfDate:          d.Date,
		PortfolioValueUSD: d.PortfolioValueUSD,
		ROIPercent:        d.ROIPercent,
		RealizedPnLUSD:    d.RealizedPnLUSD,
		UnrealizedPnLUSD:  d.UnrealizedPnLUSD,
		Volume1d:          d.Volume1d,
		TradeCount1d:      d.TradeCount1d,
		WinRatePercent:    d.WinRatePercent,
	}
}
