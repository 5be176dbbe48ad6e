// Package handlers provides HTTP handlers for the health monitor.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/lpsentinel/internal/domain"
	"github.com/aristath/lpsentinel/internal/modules/monitoring"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler handles monitoring HTTP requests
type Handler struct {
	monitor *monitoring.Monitor
	log     zerolog.Logger
}

// NewHandler creates a new monitoring handler
func NewHandler(monitor *monitoring.Monitor, log zerolog.Logger) *Handler {
	return &Handler{
		monitor: monitor,
		log:     log.With().Str("handler", "monitoring").Logger(),
	}
}

// StartRequest starts monitoring an owner
type StartRequest struct {
	OwnerKey        string   `json:"owner_key"`
	ConfigIDs       []string `json:"config_ids"`
	IntervalMinutes int      `json:"interval_minutes"`
}

// RegisterRoutes registers all monitoring routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/monitoring", func(r chi.Router) {
		r.Get("/status", h.HandleGetStatus)
		r.Post("/start", h.HandleStart)
		r.Post("/stop", h.HandleStop)
		r.Post("/run", h.HandleRunCycle)
		r.Get("/alerts", h.HandleGetAlerts)
		r.Post("/alerts/{id}/ack", h.HandleAcknowledge)
		r.Get("/health/{id}", h.HandleGetHealth)
	})
}

// HandleStart handles POST /api/monitoring/start
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.monitor.StartMonitoring(req.OwnerKey, req.ConfigIDs, req.IntervalMinutes); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeStatus(w)
}

// HandleStop handles POST /api/monitoring/stop
func (h *Handler) HandleStop(w http.ResponseWriter, r *http.Request) {
	h.monitor.StopMonitoring()
	h.writeStatus(w)
}

// HandleGetStatus handles GET /api/monitoring/status
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	h.writeStatus(w)
}

// HandleRunCycle handles POST /api/monitoring/run
func (h *Handler) HandleRunCycle(w http.ResponseWriter, r *http.Request) {
	report, err := h.monitor.RunCycle(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": report,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetAlerts handles GET /api/monitoring/alerts?owner=&active=
func (h *Handler) HandleGetAlerts(w http.ResponseWriter, r *http.Request) {
	activeOnly := true
	if v := r.URL.Query().Get("active"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			activeOnly = parsed
		}
	}
	alerts := h.monitor.Alerts().List(r.URL.Query().Get("owner"), activeOnly)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"alerts": alerts,
			"count":  len(alerts),
		},
		"metadata": map[string]interface{}{
			"timestamp":   time.Now().Format(time.RFC3339),
			"active_only": activeOnly,
		},
	})
}

// HandleAcknowledge handles POST /api/monitoring/alerts/{id}/ack
func (h *Handler) HandleAcknowledge(w http.ResponseWriter, r *http.Request) {
	alert, err := h.monitor.Alerts().Acknowledge(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": alert,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetHealth handles GET /api/monitoring/health/{id}
func (h *Handler) HandleGetHealth(w http.ResponseWriter, r *http.Request) {
	agg, err := h.monitor.Health(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": agg,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeStatus(w http.ResponseWriter) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": h.monitor.Status(),
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
		h.log.Error().Err(err).Msg("Monitoring request failed")
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
