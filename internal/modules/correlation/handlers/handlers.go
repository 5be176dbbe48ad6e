// Package handlers exposes cross-position analytics over HTTP.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/lpsentinel/internal/domain"
	"github.com/aristath/lpsentinel/internal/modules/correlation"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles analytics HTTP requests
type Handler struct {
	engine   *correlation.Engine
	source   domain.PositionSource
	provider domain.MarketDataProvider
	log      zerolog.Logger
}

// NewHandler creates a new analytics handler
func NewHandler(engine *correlation.Engine, source domain.PositionSource, provider domain.MarketDataProvider, log zerolog.Logger) *Handler {
	return &Handler{
		engine:   engine,
		source:   source,
		provider: provider,
		log:      log.With().Str("handler", "analytics").Logger(),
	}
}

// RegisterRoutes registers the analytics routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/analytics", func(r chi.Router) {
		r.Get("/{owner}", h.HandleAnalyze)
		r.Get("/{owner}/pairs/{a}/{b}", h.HandleGetPair)
	})
}

func (h *Handler) analyze(r *http.Request) (*correlation.Analytics, error) {
	owner := chi.URLParam(r, "owner")
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	snap, err := h.source.Snapshot(r.Context(), owner)
	if err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}
	market, err := h.provider.MarketData(r.Context(), snap)
	if err != nil {
		return nil, fmt.Errorf("failed to load market data: %w", err)
	}
	return h.engine.AnalyzeMultiplePositions(r.Context(), snap, market, owner, force)
}

// HandleAnalyze handles GET /api/analytics/{owner}
func (h *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	analytics, err := h.analyze(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": analytics,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"cached":    analytics.Cached,
		},
	})
}

// HandleGetPair handles GET /api/analytics/{owner}/pairs/{a}/{b}
func (h *Handler) HandleGetPair(w http.ResponseWriter, r *http.Request) {
	analytics, err := h.analyze(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	a, b := chi.URLParam(r, "a"), chi.URLParam(r, "b")
	pair, ok := analytics.Pair(a, b)
	if !ok {
		h.writeError(w, &domain.NotFoundError{Kind: "position pair", ID: a + "/" + b})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": pair,
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
		h.log.Error().Err(err).Msg("Analytics request failed")
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
