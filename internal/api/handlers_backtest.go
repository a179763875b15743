package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/whalewatch/engine/internal/copier"
	"github.com/whalewatch/engine/internal/models"
	"github.com/whalewatch/engine/internal/storage"
	"github.com/whalewatch/engine/internal/types"
)

type backtestRequest struct {
	WhaleID        string          `json:"whale_id"`
	InitialDeposit decimal.Decimal `json:"initial_deposit"`
	PositionPct    decimal.Decimal `json:"position_pct"`
	FeeBps         int             `json:"fee_bps"`
	SlippageBps    int             `json:"slippage_bps"`
	Leverage       decimal.Decimal `json:"leverage"`
	AssetsFilter   []string        `json:"assets_filter,omitempty"`
	WindowFrom     *time.Time      `json:"window_from,omitempty"`
	WindowTo       *time.Time      `json:"window_to,omitempty"`
}

// handleBacktestCopier serves POST /backtest/copier.
func (s *Server) handleBacktestCopier(w http.ResponseWriter, r *http.Request) {
	var req backtestRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, types.KindInvalidInput, "malformed request body", nil)
		return
	}
	if req.WhaleID == "" || req.InitialDeposit.LessThanOrEqual(decimal.Zero) {
		respondError(w, http.StatusBadRequest, types.KindInvalidInput, "whale_id and a positive initial_deposit are required", nil)
		return
	}
	if req.Leverage.IsZero() {
		req.Leverage = decimal.NewFromInt(1)
	}

	trades, err := copier.LoadWhaleTrades(r.Context(), s.trades, req.WhaleID)
	if err != nil {
		respondInternalError(w, err)
		return
	}

	window := types.TimeWindow{}
	if req.WindowFrom != nil {
		window.From = *req.WindowFrom
	}
	if req.WindowTo != nil {
		window.To = *req.WindowTo
	}

	result, err := copier.RunBacktest(r.Context(), trades, s.oracle, copier.BacktestInput{
		WhaleID:        req.WhaleID,
		InitialDeposit: req.InitialDeposit,
		PositionPct:    req.PositionPct,
		FeeBps:         req.FeeBps,
		SlippageBps:    req.SlippageBps,
		Leverage:       req.Leverage,
		AssetsFilter:   req.AssetsFilter,
		Window:         window,
	})
	if err != nil {
		respondInternalError(w, err)
		return
	}

	run := result.Summary
	run.ID = uuid.New().String()
	run.CreatedAt = time.Now().UTC()
	if req.WindowFrom != nil {
		run.WindowFrom = req.WindowFrom
	}
	if req.WindowTo != nil {
		run.WindowTo = req.WindowTo
	}

	if err := s.backtests.CreateRun(r.Context(), run); err != nil {
		respondInternalError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"summary":      run,
		"trades":       result.Trades,
		"equity_curve": result.EquityCurve,
	})
}

type liveStartRequest struct {
	WhaleID             string           `json:"whale_id"`
	RunID               string           `json:"run_id"`
	PositionPctOverride *decimal.Decimal `json:"position_pct_override,omitempty"`
}

// handleLiveStart serves POST /backtest/live/start.
func (s *Server) handleLiveStart(w http.ResponseWriter, r *http.Request) {
	var req liveStartRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, types.KindInvalidInput, "malformed request body", nil)
		return
	}
	if req.WhaleID == "" {
		respondError(w, http.StatusBadRequest, types.KindInvalidInput, "whale_id is required", nil)
		return
	}

	session, err := s.sessions.Start(r.Context(), req.WhaleID, req.RunID, req.PositionPctOverride)
	if err != nil {
		respondInternalError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, session)
}

// handleLiveStop serves POST /backtest/live/stop?session_id=....
func (s *Server) handleLiveStop(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, types.KindInvalidInput, "session_id is required", nil)
		return
	}
	if err := s.sessions.Stop(r.Context(), sessionID); err != nil {
		respondInternalError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// handleLiveStatus serves GET /backtest/live/status?session_id=....
func (s *Server) handleLiveStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, types.KindInvalidInput, "session_id is required", nil)
		return
	}
	session, err := s.backtests.GetSession(r.Context(), sessionID)
	if err != nil {
		respondInternalError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

// handleLiveActive serves GET /backtest/live/active?chain&address, resuming
// UI state for a client that reconnected mid-session.
func (s *Server) handleLiveActive(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	chain := types.ChainID(q.Get("chain"))
	address := q.Get("address")

	var whaleID string
	if chain != "" && address != "" {
		wh, err := s.whales.GetByAddress(r.Context(), chain, address)
		if err != nil {
			respondInternalError(w, err)
			return
		}
		whaleID = wh.ID
	}

	sessions, err := s.backtests.ListActiveSessions(r.Context())
	if err != nil {
		respondInternalError(w, err)
		return
	}

	items := make([]*models.CopierSession, 0, len(sessions))
	for _, sess := range sessions {
		if whaleID != "" && sess.WhaleID != whaleID {
			continue
		}
		items = append(items, sess)
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

// handleLiveTrades serves GET /backtest/live-trades?chain&address&since&limit.
func (s *Server) handleLiveTrades(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	chain := types.ChainID(q.Get("chain"))
	address := q.Get("address")
	limit := parseIntDefault(q.Get("limit"), 50)

	wh, err := s.whales.GetByAddress(r.Context(), chain, address)
	if err != nil {
		respondInternalError(w, err)
		return
	}

	window := types.TimeWindow{}
	if since := q.Get("since"); since != "" {
		if ts, err := time.Parse(time.RFC3339, since); err == nil {
			window.From = ts
		}
	}

	trades, err := s.trades.ListForWhale(r.Context(), wh.ID, window, storage.TradeFilter{}, nil, limit)
	if err != nil {
		respondInternalError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"items": trades})
}
