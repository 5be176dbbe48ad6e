package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all rebalancing routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/rebalancing", func(r chi.Router) {
		r.Get("/configs", h.HandleListConfigs)
		r.Post("/configs", h.HandleRegisterConfig)
		r.Get("/history/{id}", h.HandleGetHistory)
		r.Get("/executions/{id}", h.HandleGetExecution)

		r.Route("/{owner}", func(r chi.Router) {
			r.Post("/triggers/evaluate", h.HandleEvaluateTriggers)
			r.Get("/positions/{id}/analysis", h.HandleAnalyzePosition)
			r.Get("/positions/{id}/triggers", h.HandleTriggerStatus)
			r.Post("/positions/{id}/execute", h.HandleExecute)
		})
	})
}
