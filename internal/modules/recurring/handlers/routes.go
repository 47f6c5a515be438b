package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all recurring order routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/recurring-orders", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)

		r.Get("/history", h.HandleGetRecentHistory)
		r.Post("/check", h.HandleCheck)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.withID(h.HandleGet))
			r.Put("/", h.withID(h.HandleUpdate))
			r.Delete("/", h.withID(h.HandleCancel))

			r.Post("/pause", h.withID(h.HandlePause))
			r.Post("/resume", h.withID(h.HandleResume))
			r.Post("/cancel", h.withID(h.HandleCancel))

			r.Get("/history", h.withID(h.HandleGetOrderHistory))
			r.Get("/summary", h.withID(h.HandleGetOrderSummary))
		})
	})
}

func (h *Handler) withID(fn func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fn(w, r, chi.URLParam(r, "id"))
	}
}
