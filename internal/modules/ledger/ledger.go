package ledger

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/aristath/autoinvest/internal/domain"
	"github.com/aristath/autoinvest/internal/events"
	"github.com/rs/zerolog"
)

const eventModule = "ledger"

// EventEmitter is the subset of events.Manager the ledger uses
type EventEmitter interface {
	EmitTyped(eventType events.EventType, module string, data events.EventData)
}

// Ledger tracks cash and holdings with weighted-average-cost accounting.
// It is safe for concurrent use.
type Ledger struct {
	mu         sync.Mutex
	cash       float64
	holdings   map[string]Holding
	lastPrices map[string]float64
	history    []Event

	clock  domain.Clock
	events EventEmitter
	log    zerolog.Logger
}

// New creates a ledger holding initialCash and no positions. emitter may be nil.
func New(initialCash float64, clock domain.Clock, emitter EventEmitter, log zerolog.Logger) *Ledger {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if !(initialCash > 0) {
		initialCash = 0
	}
	return &Ledger{
		cash:       initialCash,
		holdings:   make(map[string]Holding),
		lastPrices: make(map[string]float64),
		clock:      clock,
		events:     emitter,
		log:        log.With().Str("service", "ledger").Logger(),
	}
}

// Buy debits shares*price from cash and adds to the holding at a weighted
// average cost. A buy that would overdraw is rejected with ErrInsufficientFunds.
func (l *Ledger) Buy(instrumentID string, shares, price float64) error {
	return l.BuyAt(instrumentID, shares, price, l.clock.Now())
}

// BuyAt is Buy with the event stamped at executedAt instead of the clock.
func (l *Ledger) BuyAt(instrumentID string, shares, price float64, executedAt time.Time) error {
	if !validTrade(shares, price) {
		return fmt.Errorf("buy %s: %w", instrumentID, ErrInvalidTrade)
	}
	cost := shares * price

	l.mu.Lock()
	if cost > l.cash+cashTolerance {
		cash := l.cash
		l.mu.Unlock()
		return fmt.Errorf("buy %s costing %.2f with %.2f available: %w", instrumentID, cost, cash, ErrInsufficientFunds)
	}

	l.cash = math.Max(0, l.cash-cost)

	h := l.holdings[instrumentID]
	total := h.Shares + shares
	h.AverageCost = (h.Shares*h.AverageCost + shares*price) / total
	h.Shares = total
	l.holdings[instrumentID] = h
	l.lastPrices[instrumentID] = price

	l.appendEvent(executedAt, Buy, instrumentID, shares, price)
	balance := l.cash
	l.mu.Unlock()

	l.log.Info().
		Str("instrument_id", instrumentID).
		Float64("shares", shares).
		Float64("price", price).
		Float64("average_cost", h.AverageCost).
		Float64("cash_balance", balance).
		Msg("Buy recorded")
	l.emitCash(balance, -cost, "buy")
	return nil
}

// Sell credits shares*price to cash. The average cost of what remains is
// unchanged; a position that falls below 1e-4 shares is removed.
func (l *Ledger) Sell(instrumentID string, shares, price float64) error {
	if !validTrade(shares, price) {
		return fmt.Errorf("sell %s: %w", instrumentID, ErrInvalidTrade)
	}

	l.mu.Lock()
	h, ok := l.holdings[instrumentID]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("sell %s: %w", instrumentID, ErrUnknownInstrument)
	}
	if shares > h.Shares+cashTolerance {
		held := h.Shares
		l.mu.Unlock()
		return fmt.Errorf("sell %.6f of %s holding %.6f: %w", shares, instrumentID, held, ErrInsufficientShares)
	}

	proceeds := shares * price
	l.cash += proceeds

	h.Shares -= shares
	if h.Shares < dustShares {
		delete(l.holdings, instrumentID)
	} else {
		l.holdings[instrumentID] = h
	}
	l.lastPrices[instrumentID] = price

	l.appendEvent(l.clock.Now(), Sell, instrumentID, shares, price)
	balance := l.cash
	l.mu.Unlock()

	l.log.Info().
		Str("instrument_id", instrumentID).
		Float64("shares", shares).
		Float64("price", price).
		Float64("cash_balance", balance).
		Msg("Sell recorded")
	l.emitCash(balance, proceeds, "sell")
	return nil
}

// Deposit adds amount to the cash balance
func (l *Ledger) Deposit(amount float64) error {
	if !(amount > 0) || math.IsInf(amount, 1) {
		return ErrInvalidAmount
	}

	l.mu.Lock()
	l.cash += amount
	balance := l.cash
	l.mu.Unlock()

	l.log.Info().Float64("amount", amount).Float64("cash_balance", balance).Msg("Cash deposited")
	l.emitCash(balance, amount, "deposit")
	return nil
}

// Withdraw removes up to amount from the cash balance, clamping at zero.
// It returns the amount actually withdrawn.
func (l *Ledger) Withdraw(amount float64) (float64, error) {
	if !(amount > 0) {
		return 0, ErrInvalidAmount
	}

	l.mu.Lock()
	withdrawn := math.Min(amount, l.cash)
	l.cash -= withdrawn
	balance := l.cash
	l.mu.Unlock()

	l.log.Info().
		Float64("requested", amount).
		Float64("withdrawn", withdrawn).
		Float64("cash_balance", balance).
		Msg("Cash withdrawn")
	l.emitCash(balance, -withdrawn, "withdraw")
	return withdrawn, nil
}

// CashBalance returns the current cash balance
func (l *Ledger) CashBalance() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash
}

// Holding returns the position in one instrument; ok is false for no position
func (l *Ledger) Holding(instrumentID string) (Holding, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.holdings[instrumentID]
	return h, ok
}

// Holdings returns a copy of every position
func (l *Ledger) Holdings() map[string]Holding {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]Holding, len(l.holdings))
	for id, h := range l.holdings {
		out[id] = h
	}
	return out
}

// Events returns the trade history in insertion order
func (l *Ledger) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.history))
	copy(out, l.history)
	return out
}

// LastPrice returns the most recent trade price seen for an instrument
func (l *Ledger) LastPrice(instrumentID string) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.lastPrices[instrumentID]
	return p, ok
}

// TotalValue is cash plus every holding valued at its last seen price
func (l *Ledger) TotalValue() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalValueLocked()
}

// Snapshot returns a deep copy of the ledger for persistence
func (l *Ledger) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	state := State{
		CashBalance: l.cash,
		Holdings:    make(map[string]Holding, len(l.holdings)),
		LastPrices:  make(map[string]float64, len(l.lastPrices)),
		Events:      make([]Event, len(l.history)),
	}
	for id, h := range l.holdings {
		state.Holdings[id] = h
	}
	for id, p := range l.lastPrices {
		state.LastPrices[id] = p
	}
	copy(state.Events, l.history)
	return state
}

// Restore replaces the ledger's contents with a persisted state
func (l *Ledger) Restore(state State) {
	holdings := make(map[string]Holding, len(state.Holdings))
	for id, h := range state.Holdings {
		holdings[id] = h
	}
	lastPrices := make(map[string]float64, len(state.LastPrices))
	for id, p := range state.LastPrices {
		lastPrices[id] = p
	}
	history := make([]Event, len(state.Events))
	copy(history, state.Events)

	l.mu.Lock()
	l.cash = math.Max(0, state.CashBalance)
	l.holdings = holdings
	l.lastPrices = lastPrices
	l.history = history
	l.mu.Unlock()

	l.log.Info().
		Float64("cash_balance", state.CashBalance).
		Int("holdings", len(holdings)).
		Int("events", len(history)).
		Msg("Ledger restored")
}

// appendEvent must be called with mu held
func (l *Ledger) appendEvent(at time.Time, t EventType, instrumentID string, shares, price float64) {
	l.history = append(l.history, Event{
		Timestamp:       at,
		Type:            t,
		InstrumentID:    instrumentID,
		Shares:          shares,
		PricePerShare:   price,
		TotalValueAfter: l.totalValueLocked(),
	})
}

// totalValueLocked sums in a fixed order so the result is reproducible
func (l *Ledger) totalValueLocked() float64 {
	ids := make([]string, 0, len(l.holdings))
	for id := range l.holdings {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	total := l.cash
	for _, id := range ids {
		total += l.holdings[id].Shares * l.lastPrices[id]
	}
	return total
}

func (l *Ledger) emitCash(balance, delta float64, reason string) {
	if l.events == nil {
		return
	}
	l.events.EmitTyped(events.CashUpdated, eventModule, &events.CashUpdatedData{
		Balance: balance,
		Delta:   delta,
		Reason:  reason,
	})
}

func validTrade(shares, price float64) bool {
	return shares > 0 && price > 0 && !math.IsInf(shares, 1) && !math.IsInf(price, 1)
}
