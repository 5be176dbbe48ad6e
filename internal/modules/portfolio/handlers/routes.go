package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolio", func(r chi.Router) {
		r.Get("/", h.HandleListOwners) // Owners with stored snapshots

		r.Route("/{owner}", func(r chi.Router) {
			r.Post("/snapshot", h.HandleSaveSnapshot)
			r.Get("/snapshot", h.HandleGetSnapshot)
			r.Delete("/snapshot", h.HandleDeleteSnapshot)
			r.Get("/summary", h.HandleGetSummary)
		})
	})
}
