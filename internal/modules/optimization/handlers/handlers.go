// Package handlers provides HTTP handlers for portfolio optimization.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/lpsentinel/internal/domain"
	"github.com/aristath/lpsentinel/internal/modules/optimization"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles optimization HTTP requests
type Handler struct {
	service  *optimization.Service
	source   domain.PositionSource
	provider domain.MarketDataProvider
	log      zerolog.Logger
}

// NewHandler creates a new optimization handler
func NewHandler(
	service *optimization.Service,
	source domain.PositionSource,
	provider domain.MarketDataProvider,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		service:  service,
		source:   source,
		provider: provider,
		log:      log.With().Str("handler", "optimization").Logger(),
	}
}

// HandleOptimize handles POST /api/optimization/{owner}
func (h *Handler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	cfg := optimization.DefaultConfig()
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			h.log.Error().Err(err).Msg("Failed to decode request body")
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	// 1. Inputs
	snap, err := h.source.Snapshot(r.Context(), owner)
	if err != nil {
		h.writeError(w, fmt.Errorf("failed to load positions: %w", err))
		return
	}
	market, err := h.provider.MarketData(r.Context(), snap)
	if err != nil {
		h.writeError(w, fmt.Errorf("failed to load market data: %w", err))
		return
	}

	// 2. Solve
	result, err := h.service.OptimizePortfolio(r.Context(), snap, market, cfg, owner, force)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": result,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"cached":    result.Cached,
			"status":    result.Status,
		},
	})
}

// HandleGetSettings handles GET /api/optimization/settings
func (h *Handler) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"settings":       h.service.Settings(),
			"default_config": optimization.DefaultConfig(),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case domain.IsValidation(err):
		status = http.StatusBadRequest
	case domain.IsNotFound(err):
		status = http.StatusNotFound
	default:
		h.log.Error().Err(err).Msg("Optimization request failed")
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
