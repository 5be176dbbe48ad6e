// Package handlers provides HTTP handlers for rebalancing operations.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/lpsentinel/internal/domain"
	"github.com/aristath/lpsentinel/internal/modules/rebalancing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles rebalancing HTTP requests
type Handler struct {
	service *rebalancing.Service
	log     zerolog.Logger
}

// NewHandler creates a new rebalancing handler
func NewHandler(service *rebalancing.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "rebalancing").Logger(),
	}
}

// HandleAnalyzePosition handles GET /api/rebalancing/{owner}/positions/{id}/analysis
func (h *Handler) HandleAnalyzePosition(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	positionID := chi.URLParam(r, "id")

	analysis, err := h.service.AnalyzePosition(r.Context(), positionID, owner, r.URL.Query().Get("config"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": analysis,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"cached":    analysis.Cached,
		},
	})
}

// HandleExecute handles POST /api/rebalancing/{owner}/positions/{id}/execute.
// A fresh analysis is used unless the body carries one.
func (h *Handler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	positionID := chi.URLParam(r, "id")
	configID := r.URL.Query().Get("config")
	approve, _ := strconv.ParseBool(r.URL.Query().Get("approve"))

	var analysis *rebalancing.Analysis
	if r.ContentLength > 0 {
		analysis = &rebalancing.Analysis{}
		if err := json.NewDecoder(r.Body).Decode(analysis); err != nil {
			h.log.Error().Err(err).Msg("Failed to decode request body")
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if analysis.PositionID != positionID {
			http.Error(w, "analysis is for a different position", http.StatusBadRequest)
			return
		}
	} else {
		var err error
		analysis, err = h.service.AnalyzePosition(r.Context(), positionID, owner, configID)
		if err != nil {
			h.writeError(w, err)
			return
		}
	}

	exec, err := h.service.ExecuteRebalancing(r.Context(), analysis, owner, approve)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": exec,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"approved":  approve,
		},
	})
}

// HandleTriggerStatus handles GET /api/rebalancing/{owner}/positions/{id}/triggers
func (h *Handler) HandleTriggerStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.TriggerStatus(chi.URLParam(r, "owner"), r.URL.Query().Get("config"), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": status,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleEvaluateTriggers handles POST /api/rebalancing/{owner}/triggers/evaluate
func (h *Handler) HandleEvaluateTriggers(w http.ResponseWriter, r *http.Request) {
	fires, err := h.service.EvaluateTriggers(r.Context(), chi.URLParam(r, "owner"), r.URL.Query().Get("config"), time.Now())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if fires == nil {
		fires = []rebalancing.TriggerFire{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"fires": fires,
			"count": len(fires),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetHistory handles GET /api/rebalancing/history/{id}
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	history := h.service.History(chi.URLParam(r, "id"))

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"executions": history,
			"count":      len(history),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetExecution handles GET /api/rebalancing/executions/{id}
func (h *Handler) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	exec, ok := h.service.Execution(id)
	if !ok {
		h.writeError(w, &domain.NotFoundError{Kind: "execution", ID: id})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": exec,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleListConfigs handles GET /api/rebalancing/configs
func (h *Handler) HandleListConfigs(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"configs": h.service.Registry().IDs(),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleRegisterConfig handles POST /api/rebalancing/configs
func (h *Handler) HandleRegisterConfig(w http.ResponseWriter, r *http.Request) {
	cfg := rebalancing.DefaultConfig()
	cfg.ID = ""
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.Registry().RegisterConfig(cfg); err != nil {
		h.writeError(w, err)
		return
	}
	h.log.Info().Str("config", cfg.ID).Int("triggers", len(cfg.Triggers)).Msg("Registered rebalancing config")

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"data": cfg,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// writeError maps domain errors onto status codes
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case domain.IsValidation(err):
		status = http.StatusBadRequest
	case domain.IsNotFound(err):
		status = http.StatusNotFound
	default:
		h.log.Error().Err(err).Msg("Rebalancing request failed")
	}

	h.writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": err.Error(),
		},
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
