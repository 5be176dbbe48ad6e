// Package handlers provides HTTP handlers for market data estimates and token prices.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/lpsentinel/internal/domain"
	"github.com/aristath/lpsentinel/internal/marketdata"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const defaultSeriesDays = 30

// Handler handles market data HTTP requests
type Handler struct {
	static   *marketdata.StaticProvider
	prices   *marketdata.PriceRepository
	source   domain.PositionSource
	provider domain.MarketDataProvider
	log      zerolog.Logger
}

// NewHandler creates a new market data handler. provider is the one the engines
// read from, which may wrap static.
func NewHandler(
	static *marketdata.StaticProvider,
	prices *marketdata.PriceRepository,
	source domain.PositionSource,
	provider domain.MarketDataProvider,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		static:   static,
		prices:   prices,
		source:   source,
		provider: provider,
		log:      log.With().Str("handler", "marketdata").Logger(),
	}
}

// RegisterRoutes registers the market data routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/marketdata", func(r chi.Router) {
		r.Put("/estimates", h.HandleLoadEstimates)
		r.Put("/estimates/{id}", h.HandleSetEstimate)
		r.Post("/prices", h.HandleRecordPrices)
		r.Get("/prices/{symbol}", h.HandleGetSeries)
		r.Get("/{owner}", h.HandleGetMarketData)
	})
}

// HandleLoadEstimates handles PUT /api/marketdata/estimates
func (h *Handler) HandleLoadEstimates(w http.ResponseWriter, r *http.Request) {
	md := domain.NewMarketData()
	if err := json.NewDecoder(r.Body).Decode(md); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.static.Load(md); err != nil {
		h.writeError(w, err)
		return
	}

	h.log.Info().
		Int("positions", len(md.Positions)).
		Int("correlations", len(md.Correlations)).
		Msg("Loaded market data estimates")

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"positions":    len(md.Positions),
			"correlations": len(md.Correlations),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleSetEstimate handles PUT /api/marketdata/estimates/{id}
func (h *Handler) HandleSetEstimate(w http.ResponseWriter, r *http.Request) {
	var est domain.PositionMarketData
	if err := json.NewDecoder(r.Body).Decode(&est); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.static.SetPosition(chi.URLParam(r, "id"), est); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRecordPrices handles POST /api/marketdata/prices
func (h *Handler) HandleRecordPrices(w http.ResponseWriter, r *http.Request) {
	var points []marketdata.PricePoint
	if err := json.NewDecoder(r.Body).Decode(&points); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	now := time.Now().UTC()
	for i := range points {
		if points[i].Time.IsZero() {
			points[i].Time = now
		}
	}

	if err := h.prices.Record(r.Context(), points...); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"data": map[string]interface{}{
			"recorded": len(points),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetSeries handles GET /api/marketdata/prices/{symbol}?days=30
func (h *Handler) HandleGetSeries(w http.ResponseWriter, r *http.Request) {
	days := defaultSeriesDays
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			h.writeError(w, domain.NewValidationError("days", "must be a positive integer"))
			return
		}
		days = parsed
	}

	symbol := chi.URLParam(r, "symbol")
	series, err := h.prices.Series(r.Context(), symbol, time.Now().AddDate(0, 0, -days))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if series == nil {
		series = []marketdata.PricePoint{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": series,
		"metadata": map[string]interface{}{
			"symbol":    symbol,
			"days":      days,
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetMarketData handles GET /api/marketdata/{owner}
// Returns the market data the engines would see for the owner's snapshot.
func (h *Handler) HandleGetMarketData(w http.ResponseWriter, r *http.Request) {
	snap, err := h.source.Snapshot(r.Context(), chi.URLParam(r, "owner"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	md, err := h.provider.MarketData(r.Context(), snap)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": md,
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
		h.log.Error().Err(err).Msg("Market data request failed")
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
