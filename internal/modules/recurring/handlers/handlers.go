// Package handlers provides HTTP handlers for recurring orders.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/autoinvest/internal/modules/history"
	"github.com/aristath/autoinvest/internal/modules/recurring"
	"github.com/aristath/autoinvest/internal/services"
)

// OrderService is the order store surface used by the handlers
type OrderService interface {
	Add(req recurring.NewOrder) (string, error)
	Get(id string) (recurring.RecurringOrder, error)
	List() []recurring.RecurringOrder
	Update(id string, amount float64, frequency recurring.Frequency) (recurring.RecurringOrder, error)
	Pause(id string) error
	Resume(id string) error
	Cancel(id string) error
}

// HistoryService exposes execution records
type HistoryService interface {
	ForOrder(orderID string) []history.ExecutionRecord
	Recent(limit int) []history.ExecutionRecord
	Summarize(orderID string) history.Summary
}

// ScanTrigger runs an immediate scan
type ScanTrigger interface {
	RunScan(ctx context.Context) (services.ScanResult, error)
}

// StateSaver persists state after a mutation
type StateSaver interface {
	SaveAll(ctx context.Context) error
}

// Handler handles recurring order HTTP requests
type Handler struct {
	orders  OrderService
	history HistoryService
	scanner ScanTrigger
	saver   StateSaver
	log     zerolog.Logger
}

// NewHandler creates a new recurring order handler. scanner and saver may be nil.
func NewHandler(
	orders OrderService,
	historyService HistoryService,
	scanner ScanTrigger,
	saver StateSaver,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		orders:  orders,
		history: historyService,
		scanner: scanner,
		saver:   saver,
		log:     log.With().Str("handler", "recurring_orders").Logger(),
	}
}

// HandleList handles GET /api/recurring-orders
// Optional status filter: active, paused, cancelled.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	status := recurring.Status(r.URL.Query().Get("status"))

	orders := make([]recurring.RecurringOrder, 0)
	for _, order := range h.orders.List() {
		if status != "" && order.Status != status {
			continue
		}
		orders = append(orders, order)
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"orders": orders,
		"count":  len(orders),
	})
}

// HandleCreate handles POST /api/recurring-orders
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InstrumentID string  `json:"instrument_id"`
		Label        string  `json:"label"`
		Currency     string  `json:"currency"`
		Amount       float64 `json:"amount"`
		Frequency    string  `json:"frequency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	frequency, err := recurring.ParseFrequency(req.Frequency)
	if err != nil {
		h.writeOrderError(w, err)
		return
	}

	id, err := h.orders.Add(recurring.NewOrder{
		InstrumentID: req.InstrumentID,
		Label:        req.Label,
		Currency:     req.Currency,
		Amount:       req.Amount,
		Frequency:    frequency,
	})
	if err != nil {
		h.writeOrderError(w, err)
		return
	}
	h.persist(r.Context())

	order, err := h.orders.Get(id)
	if err != nil {
		h.writeOrderError(w, err)
		return
	}
	h.writeData(w, http.StatusCreated, order)
}

// HandleGet handles GET /api/recurring-orders/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request, id string) {
	order, err := h.orders.Get(id)
	if err != nil {
		h.writeOrderError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, order)
}

// HandleUpdate handles PUT /api/recurring-orders/{id}
// Omitted fields keep their current value.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Amount    *float64 `json:"amount"`
		Frequency *string  `json:"frequency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	current, err := h.orders.Get(id)
	if err != nil {
		h.writeOrderError(w, err)
		return
	}

	amount := current.Amount
	if req.Amount != nil {
		amount = *req.Amount
	}
	frequency := current.Frequency
	if req.Frequency != nil {
		frequency, err = recurring.ParseFrequency(*req.Frequency)
		if err != nil {
			h.writeOrderError(w, err)
			return
		}
	}

	updated, err := h.orders.Update(id, amount, frequency)
	if err != nil {
		h.writeOrderError(w, err)
		return
	}
	h.persist(r.Context())

	h.writeData(w, http.StatusOK, updated)
}

// HandlePause handles POST /api/recurring-orders/{id}/pause
func (h *Handler) HandlePause(w http.ResponseWriter, r *http.Request, id string) {
	h.applyTransition(w, r, id, h.orders.Pause)
}

// HandleResume handles POST /api/recurring-orders/{id}/resume
func (h *Handler) HandleResume(w http.ResponseWriter, r *http.Request, id string) {
	h.applyTransition(w, r, id, h.orders.Resume)
}

// HandleCancel handles POST /api/recurring-orders/{id}/cancel and DELETE /api/recurring-orders/{id}
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request, id string) {
	h.applyTransition(w, r, id, h.orders.Cancel)
}

func (h *Handler) applyTransition(w http.ResponseWriter, r *http.Request, id string, transition func(string) error) {
	if err := transition(id); err != nil {
		h.writeOrderError(w, err)
		return
	}
	h.persist(r.Context())

	order, err := h.orders.Get(id)
	if err != nil {
		h.writeOrderError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, order)
}

// HandleGetOrderHistory handles GET /api/recurring-orders/{id}/history
func (h *Handler) HandleGetOrderHistory(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := h.orders.Get(id); err != nil {
		h.writeOrderError(w, err)
		return
	}

	records := h.history.ForOrder(id)
	h.writeData(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

// HandleGetOrderSummary handles GET /api/recurring-orders/{id}/summary
func (h *Handler) HandleGetOrderSummary(w http.ResponseWriter, r *http.Request, id string) {
	if _, err := h.orders.Get(id); err != nil {
		h.writeOrderError(w, err)
		return
	}
	h.writeData(w, http.StatusOK, h.history.Summarize(id))
}

// HandleGetRecentHistory handles GET /api/recurring-orders/history
func (h *Handler) HandleGetRecentHistory(w http.ResponseWriter, r *http.Request) {
	limit := 100 // default
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}

	records := h.history.Recent(limit)
	h.writeData(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

// HandleCheck handles POST /api/recurring-orders/check
func (h *Handler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	if h.scanner == nil {
		h.writeError(w, http.StatusServiceUnavailable, "Scanner not configured")
		return
	}

	result, err := h.scanner.RunScan(r.Context())
	if err != nil {
		// The scan itself ran; only persisting its outcome failed
		h.log.Error().Err(err).Msg("Manual scan completed with errors")
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"due":         result.Due,
		"succeeded":   result.Succeeded,
		"failed":      result.Failed,
		"skipped":     result.Skipped,
		"records":     result.Records,
		"duration_ms": result.Duration.Milliseconds(),
		"persisted":   err == nil,
	})
}

func (h *Handler) persist(ctx context.Context) {
	if h.saver == nil {
		return
	}
	// The save outlives the request so a client hanging up cannot abort it
	if err := h.saver.SaveAll(context.WithoutCancel(ctx)); err != nil {
		h.log.Error().Err(err).Msg("Failed to persist recurring orders")
	}
}

// writeOrderError maps order store errors onto status codes
func (h *Handler) writeOrderError(w http.ResponseWriter, err error) {
	var validationErr *recurring.ValidationError
	switch {
	case errors.As(err, &validationErr):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": validationErr.Error(),
			"field": validationErr.Field,
		})
	case errors.Is(err, recurring.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "Recurring order not found")
	case errors.Is(err, recurring.ErrOrderCancelled):
		h.writeError(w, http.StatusConflict, err.Error())
	default:
		h.log.Error().Err(err).Msg("Recurring order operation failed")
		h.writeError(w, http.StatusInternalServerError, "Recurring order operation failed")
	}
}

func (h *Handler) writeData(w http.ResponseWriter, status int, data interface{}) {
	h.writeJSON(w, status, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
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

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
