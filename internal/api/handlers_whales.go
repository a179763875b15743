package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/whalewatch/engine/internal/models"
	"github.com/whalewatch/engine/internal/types"
)

type whaleSummary struct {
	*models.Whale
	Metrics *models.CurrentWalletMetrics `json:"metrics,omitempty"`
}

func (s *Server) enrichWhale(r *http.Request, wh *models.Whale) whaleSummary {
	summary := whaleSummary{Whale: wh}
	if current, err := s.metricsRepo.GetCurrent(r.Context(), wh.ID); err == nil {
		summary.Metrics = current
	}
	return summary
}

// handleListWhales serves GET /whales.
func (s *Server) handleListWhales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var chain *types.ChainID
	if c := q.Get("chain"); c != "" {
		cid := types.ChainID(c)
		chain = &cid
	}
	var classification *types.WhaleClassification
	if t := q.Get("type"); t != "" {
		cl := types.WhaleClassification(t)
		classification = &cl
	}

	limit := parseIntDefault(q.Get("limit"), 50)
	offset := parseIntDefault(q.Get("offset"), 0)

	whales, err := s.whales.List(r.Context(), chain, classification, limit, offset)
	if err != nil {
		respondInternalError(w, err)
		return
	}

	search := strings.ToLower(q.Get("search"))
	items := make([]whaleSummary, 0, len(whales))
	for _, wh := range whales {
		if search != "" && !strings.Contains(strings.ToLower(wh.Address), search) {
			continue
		}
		items = append(items, s.enrichWhale(r, wh))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"items": items,
		"total": len(items),
	})
}

// handleTopWhales serves GET /whales/top, sorted by ROI descending.
func (s *Server) handleTopWhales(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 20)

	top, err := s.metricsRepo.TopByROI(r.Context(), limit)
	if err != nil {
		respondInternalError(w, err)
		return
	}

	items := make([]map[string]interface{}, 0, len(top))
	for _, m := range top {
		wh, err := s.whales.Get(r.Context(), m.WhaleID)
		if err != nil {
			continue
		}
		items = append(items, map[string]interface{}{
			"whale":   wh,
			"metrics": m,
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

type createWhaleRequest struct {
	Chain   string   `json:"chain"`
	Address string   `json:"address"`
	Labels  []string `json:"labels,omitempty"`
	Type    string   `json:"type,omitempty"`
}

// handleCreateWhale serves POST /whales and kicks off an async backfill.
func (s *Server) handleCreateWhale(w http.ResponseWriter, r *http.Request) {
	var req createWhaleRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, types.KindInvalidInput, "malformed request body", nil)
		return
	}
	if req.Chain == "" || req.Address == "" {
		respondError(w, http.StatusBadRequest, types.KindInvalidInput, "chain and address are required", nil)
		return
	}

	classification := types.ClassificationUnclassified
	if req.Type != "" {
		classification = types.WhaleClassification(req.Type)
	}

	wh := &models.Whale{
		ID:             uuid.New().String(),
		Chain:          types.ChainID(req.Chain),
		Address:        req.Address,
		Classification: classification,
		FirstSeen:      time.Now().UTC(),
		LastActive:     time.Now().UTC(),
	}
	wh.SetLabels(req.Labels)

	if err := s.whales.Create(r.Context(), wh); err != nil {
		respondInternalError(w, err)
		return
	}

	if err := s.orchestrator.StartBackfill(r.Context(), wh); err != nil {
		respondInternalError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, s.enrichWhale(r, wh))
}

type patchWhaleRequest struct {
	Labels *[]string `json:"labels,omitempty"`
	Type   *string   `json:"type,omitempty"`
}

// handlePatchWhale serves PATCH /whales/{id}.
func (s *Server) handlePatchWhale(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req patchWhaleRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, types.KindInvalidInput, "malformed request body", nil)
		return
	}

	wh, err := s.whales.Get(r.Context(), id)
	if err != nil {
		respondInternalError(w, err)
		return
	}

	if req.Type != nil {
		if err := s.whales.UpdateClassification(r.Context(), id, types.WhaleClassification(*req.Type)); err != nil {
			respondInternalError(w, err)
			return
		}
		wh.Classification = types.WhaleClassification(*req.Type)
	}
	if req.Labels != nil {
		wh.SetLabels(*req.Labels)
	}

	respondJSON(w, http.StatusOK, s.enrichWhale(r, wh))
}

// handleDeleteWhale serves DELETE /whales/{id}.
func (s *Server) handleDeleteWhale(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.whales.Delete(r.Context(), id); err != nil {
		respondInternalError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// handleBackfillStatus serves GET /whales/{id}/backfill_status.
func (s *Server) handleBackfillStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	status, err := s.orchestrator.GetStatus(r.Context(), id)
	if err != nil {
		respondInternalError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// handleStartBackfill serves POST /whales/{id}/backfill.
func (s *Server) handleStartBackfill(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	wh, err := s.whales.Get(r.Context(), id)
	if err != nil {
		respondInternalError(w, err)
		return
	}
	if err := s.orchestrator.StartBackfill(r.Context(), wh); err != nil {
		respondInternalError(w, err)
		return
	}
	status, err := s.orchestrator.GetStatus(r.Context(), id)
	if err != nil {
		respondInternalError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, status)
}

// handleResetHyperliquid serves POST /whales/{id}/reset_hyperliquid.
func (s *Server) handleResetHyperliquid(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	wh, err := s.whales.Get(r.Context(), id)
	if err != nil {
		respondInternalError(w, err)
		return
	}
	if err := s.orchestrator.StartReset(r.Context(), wh); err != nil {
		respondInternalError(w, err)
		return
	}
	status, err := s.orchestrator.GetStatus(r.Context(), id)
	if err != nil {
		respondInternalError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, status)
}

func parseIntDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
