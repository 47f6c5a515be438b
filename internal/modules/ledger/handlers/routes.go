package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all ledger routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/ledger", func(r chi.Router) {
		r.Get("/cash", h.HandleGetCash)
		r.Get("/holdings", h.HandleGetHoldings)
		r.Get("/events", h.HandleGetEvents)

		// Cash movements and manual sells
		r.Post("/deposit", h.HandleDeposit)
		r.Post("/withdraw", h.HandleWithdraw)
		r.Post("/sell", h.HandleSell)
	})
}
