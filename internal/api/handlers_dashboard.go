package api

import (
	"net/http"
	"time"

	"github.com/whalewatch/engine/internal/types"
)

type dashboardSummary struct {
	TotalTrackedWhales int    `json:"total_tracked_whales"`
	ActiveWhales24h    int    `json:"active_whales_24h"`
	TotalVolume24hUSD  string `json:"total_volume_24h_usd"`
	PerpWhales         int    `json:"perp_whales"`
}

// handleDashboardSummary serves GET /dashboard/summary.
func (s *Server) handleDashboardSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	whales, err := s.whales.List(ctx, nil, nil, 10000, 0)
	if err != nil {
		respondInternalError(w, err)
		return
	}

	since := time.Now().Add(-24 * time.Hour)
	volume, err := s.trades.SumVolumeSinceAll(ctx, since)
	if err != nil {
		respondInternalError(w, err)
		return
	}

	var active, perp int
	for _, wh := range whales {
		if wh.LastActive.After(since) {
			active++
		}
		if wh.Chain == types.ChainPerp {
			perp++
		}
	}

	respondJSON(w, http.StatusOK, dashboardSummary{
		TotalTrackedWhales: len(whales),
		ActiveWhales24h:    active,
		TotalVolume24hUSD:  volume.StringFixed(2),
		PerpWhales:         perp,
	})
}
