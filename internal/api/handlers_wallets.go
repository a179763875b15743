package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/whalewatch/engine/internal/storage"
	"github.com/whalewatch/engine/internal/types"
)

// handleWalletDetail serves GET /wallets/{chain}/{address}.
func (s *Server) handleWalletDetail(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	chain := types.ChainID(vars["chain"])
	address := vars["address"]

	wh, err := s.whales.GetByAddress(r.Context(), chain, address)
	if err != nil {
		respondInternalError(w, err)
		return
	}

	metrics, err := s.metricsRepo.GetCurrent(r.Context(), wh.ID)
	if err != nil && !types.IsKind(err, types.KindNotFound) {
		respondInternalError(w, err)
		return
	}

	holdings, err := s.holdings.ListForWhale(r.Context(), wh.ID)
	if err != nil {
		respondInternalError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"wallet":   wh,
		"metrics":  metrics,
		"holdings": holdings,
		"notes":    wh.LabelsSlice(),
	})
}

type roiPoint struct {
	Timestamp  time.Time `json:"timestamp"`
	ROIPercent string    `json:"roi_percent"`
}

// handleROIHistory serves GET /wallets/{chain}/{address}/roi-history. It
// triggers a rebuild when the series is empty so a freshly tracked whale's
// first request is never just a permanent blank chart.
func (s *Server) handleROIHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	chain := types.ChainID(vars["chain"])
	address := vars["address"]
	days := parseIntDefault(r.URL.Query().Get("days"), 90)

	wh, err := s.whales.GetByAddress(r.Context(), chain, address)
	if err != nil {
		respondInternalError(w, err)
		return
	}

	window := types.TimeWindow{From: time.Now().AddDate(0, 0, -days).UTC()}
	rows, err := s.metricsRepo.ROIHistory(r.Context(), wh.ID, window)
	if err != nil {
		respondInternalError(w, err)
		return
	}

	if len(rows) == 0 {
		if err := s.engine.RebuildWhale(r.Context(), wh.ID); err != nil {
			respondInternalError(w, err)
			return
		}
		rows, err = s.metricsRepo.ROIHistory(r.Context(), wh.ID, window)
		if err != nil {
			respondInternalError(w, err)
			return
		}
	}

	points := make([]roiPoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, roiPoint{Timestamp: row.Date, ROIPercent: row.ROIPercent.StringFixed(4)})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"points": points})
}

type portfolioPoint struct {
	Timestamp time.Time `json:"timestamp"`
	ValueUSD  string    `json:"value_usd"`
}

// handlePortfolioHistory serves GET /wallets/{chain}/{address}/portfolio-history.
func (s *Server) handlePortfolioHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	chain := types.ChainID(vars["chain"])
	address := vars["address"]
	days := parseIntDefault(r.URL.Query().Get("days"), 90)

	wh, err := s.whales.GetByAddress(r.Context(), chain, address)
	if err != nil {
		respondInternalError(w, err)
		return
	}

	window := types.TimeWindow{From: time.Now().AddDate(0, 0, -days).UTC()}
	rows, err := s.metricsRepo.ROIHistory(r.Context(), wh.ID, window)
	if err != nil {
		respondInternalError(w, err)
		return
	}

	if len(rows) == 0 {
		if err := s.engine.RebuildWhale(r.Context(), wh.ID); err != nil {
			respondInternalError(w, err)
			return
		}
		rows, err = s.metricsRepo.ROIHistory(r.Context(), wh.ID, window)
		if err != nil {
			respondInternalError(w, err)
			return
		}
	}

	points := make([]portfolioPoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, portfolioPoint{Timestamp: row.Date, ValueUSD: row.PortfolioValueUSD.StringFixed(2)})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"points": points})
}

// handleWalletTrades serves GET /wallets/{chain}/{address}/trades.
func (s *Server) handleWalletTrades(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	chain := types.ChainID(vars["chain"])
	address := vars["address"]
	q := r.URL.Query()
	limit := parseIntDefault(q.Get("limit"), 50)

	wh, err := s.whales.GetByAddress(r.Context(), chain, address)
	if err != nil {
		respondInternalError(w, err)
		return
	}

	var cursor *types.Cursor
	if token := q.Get("cursor"); token != "" {
		c, err := storage.DecodeCursor(token)
		if err != nil {
			respondError(w, http.StatusBadRequest, types.KindInvalidInput, err.Error(), nil)
			return
		}
		cursor = &c
	}

	filter := storage.TradeFilter{
		Source:    types.TradeSource(q.Get("source")),
		Direction: types.TradeDirection(q.Get("direction")),
	}

	trades, err := s.trades.ListForWhale(r.Context(), wh.ID, types.TimeWindow{}, filter, cursor, limit)
	if err != nil {
		respondInternalError(w, err)
		return
	}

	total, err := s.trades.CountForWhale(r.Context(), wh.ID, types.TimeWindow{}, filter)
	if err != nil {
		respondInternalError(w, err)
		return
	}

	var nextCursor string
	if len(trades) == limit && len(trades) > 0 {
		last := trades[len(trades)-1]
		nextCursor = storage.EncodeCursor(storage.NewCursor(last.Timestamp, last.ID))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items":       trades,
		"next_cursor": nextCursor,
		"total":       total,
	})
}

// handleWalletPositions serves GET /wallets/{chain}/{address}/positions, the
// positions-snapshot-authoritative view of open perp exposure.
func (s *Server) handleWalletPositions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	chain := types.ChainID(vars["chain"])
	address := vars["address"]

	wh, err := s.whales.GetByAddress(r.Context(), chain, address)
	if err != nil {
		respondInternalError(w, err)
		return
	}

	positions, err := s.holdings.ListOpenPerpPositions(r.Context(), wh.ID)
	if err != nil {
		respondInternalError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"items": positions})
}
