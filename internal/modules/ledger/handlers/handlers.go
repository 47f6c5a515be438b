// Package handlers provides HTTP handlers for ledger operations.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/autoinvest/internal/modules/ledger"
)

// LedgerService is the ledger surface the handlers expose
type LedgerService interface {
	CashBalance() float64
	TotalValue() float64
	Holdings() map[string]ledger.Holding
	LastPrice(instrumentID string) (float64, bool)
	Events() []ledger.Event
	Deposit(amount float64) error
	Withdraw(amount float64) (float64, error)
	Sell(instrumentID string, shares, price float64) error
}

// StateSaver persists state after a mutation
type StateSaver interface {
	SaveAll(ctx context.Context) error
}

// Handler handles ledger HTTP requests
type Handler struct {
	ledger LedgerService
	saver  StateSaver
	log    zerolog.Logger
}

// NewHandler creates a new ledger handler. saver may be nil.
func NewHandler(
	ledgerService LedgerService,
	saver StateSaver,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		ledger: ledgerService,
		saver:  saver,
		log:    log.With().Str("handler", "ledger").Logger(),
	}
}

type holdingResponse struct {
	InstrumentID string   `json:"instrument_id"`
	Shares       float64  `json:"shares"`
	AverageCost  float64  `json:"average_cost"`
	CostBasis    float64  `json:"cost_basis"`
	LastPrice    *float64 `json:"last_price,omitempty"`
	MarketValue  *float64 `json:"market_value,omitempty"`
}

// HandleGetCash handles GET /api/ledger/cash
func (h *Handler) HandleGetCash(w http.ResponseWriter, r *http.Request) {
	h.writeData(w, http.StatusOK, map[string]interface{}{
		"cash_balance": h.ledger.CashBalance(),
		"total_value":  h.ledger.TotalValue(),
	})
}

// HandleGetHoldings handles GET /api/ledger/holdings
func (h *Handler) HandleGetHoldings(w http.ResponseWriter, r *http.Request) {
	holdings := h.ledger.Holdings()

	ids := make([]string, 0, len(holdings))
	for id := range holdings {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := make([]holdingResponse, 0, len(ids))
	for _, id := range ids {
		holding := holdings[id]
		item := holdingResponse{
			InstrumentID: id,
			Shares:       holding.Shares,
			AverageCost:  holding.AverageCost,
			CostBasis:    holding.CostBasis(),
		}
		if price, ok := h.ledger.LastPrice(id); ok {
			value := holding.Shares * price
			item.LastPrice = &price
			item.MarketValue = &value
		}
		result = append(result, item)
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"holdings": result,
		"count":    len(result),
	})
}

// HandleGetEvents handles GET /api/ledger/events
// Newest first; limit defaults to 100.
func (h *Handler) HandleGetEvents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 {
			limit = parsedLimit
		}
	}
	instrumentID := r.URL.Query().Get("instrument_id")

	all := h.ledger.Events()
	result := make([]ledger.Event, 0, limit)
	for i := len(all) - 1; i >= 0 && len(result) < limit; i-- {
		if instrumentID != "" && all[i].InstrumentID != instrumentID {
			continue
		}
		result = append(result, all[i])
	}

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"events": result,
		"count":  len(result),
	})
}

// HandleDeposit handles POST /api/ledger/deposit
func (h *Handler) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := h.ledger.Deposit(req.Amount); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.persist(r.Context())

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"deposited":    req.Amount,
		"cash_balance": h.ledger.CashBalance(),
	})
}

// HandleWithdraw handles POST /api/ledger/withdraw
func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	withdrawn, err := h.ledger.Withdraw(req.Amount)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.persist(r.Context())

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"requested":    req.Amount,
		"withdrawn":    withdrawn,
		"cash_balance": h.ledger.CashBalance(),
	})
}

// HandleSell handles POST /api/ledger/sell
func (h *Handler) HandleSell(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InstrumentID string  `json:"instrument_id"`
		Shares       float64 `json:"shares"`
		Price        float64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.InstrumentID == "" {
		h.writeError(w, http.StatusBadRequest, "instrument_id is required")
		return
	}

	if err := h.ledger.Sell(req.InstrumentID, req.Shares, req.Price); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	h.persist(r.Context())

	h.writeData(w, http.StatusOK, map[string]interface{}{
		"instrument_id": req.InstrumentID,
		"shares":        req.Shares,
		"proceeds":      req.Shares * req.Price,
		"cash_balance":  h.ledger.CashBalance(),
	})
}

func (h *Handler) persist(ctx context.Context) {
	if h.saver == nil {
		return
	}
	// The save outlives the request so a client hanging up cannot abort it
	if err := h.saver.SaveAll(context.WithoutCancel(ctx)); err != nil {
		h.log.Error().Err(err).Msg("Failed to persist ledger state")
	}
}

// writeLedgerError maps ledger errors onto status codes
func (h *Handler) writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount), errors.Is(err, ledger.ErrInvalidTrade):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInsufficientShares),
		errors.Is(err, ledger.ErrUnknownInstrument):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.log.Error().Err(err).Msg("Ledger operation failed")
		h.writeError(w, http.StatusInternalServerError, "Ledger operation failed")
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
