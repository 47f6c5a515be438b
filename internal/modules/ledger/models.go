// Package ledger holds the cash balance and per-instrument holdings that
// recurring orders buy into. The Ledger is the only mutator of holdings.
package ledger

import "time"

// dustShares is the position size below which a holding is dropped on Sell
const dustShares = 1e-4

// cashTolerance absorbs float rounding when a buy spends the entire balance,
// e.g. shares computed as amount/price and multiplied back.
const cashTolerance = 1e-9

// Holding is a position in one instrument
type Holding struct {
	Shares      float64 `json:"shares" msgpack:"shares"`
	AverageCost float64 `json:"average_cost" msgpack:"average_cost"`
}

// CostBasis is the total cost of the position at its average cost
func (h Holding) CostBasis() float64 {
	return h.Shares * h.AverageCost
}

// EventType is the side of a ledger event
type EventType string

const (
	Buy  EventType = "BUY"
	Sell EventType = "SELL"
)

// Event is one entry of the append-only trade history
type Event struct {
	Timestamp       time.Time `json:"timestamp" msgpack:"timestamp"`
	Type            EventType `json:"type" msgpack:"type"`
	InstrumentID    string    `json:"instrument_id" msgpack:"instrument_id"`
	Shares          float64   `json:"shares" msgpack:"shares"`
	PricePerShare   float64   `json:"price_per_share" msgpack:"price_per_share"`
	TotalValueAfter float64   `json:"total_value_after" msgpack:"total_value_after"`
}

// State is the persisted form of a Ledger
type State struct {
	CashBalance float64            `json:"cash_balance" msgpack:"cash_balance"`
	Holdings    map[string]Holding `json:"holdings" msgpack:"holdings"`
	LastPrices  map[string]float64 `json:"last_prices" msgpack:"last_prices"`
	Events      []Event            `json:"events" msgpack:"events"`
}
