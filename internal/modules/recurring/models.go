// Package recurring owns recurring orders: their data model, the due-date
// calculator and the in-memory order store that is the single source of truth
// for schedule advancement.
package recurring

import (
	"fmt"
	"strings"
	"time"
)

// Amount bounds for a single execution, in the order's currency
const (
	MinAmount = 10.0
	MaxAmount = 1000.0
)

// DefaultCurrency is used when an order is created without one.
const DefaultCurrency = "GBP"

// Frequency is how often an order executes
type Frequency string

const (
	Daily    Frequency = "daily"
	Weekly   Frequency = "weekly"
	Biweekly Frequency = "biweekly"
	Monthly  Frequency = "monthly"
)

// Valid reports whether f is one of the four supported frequencies
func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Biweekly, Monthly:
		return true
	default:
		return false
	}
}

// ParseFrequency parses a case-insensitive frequency name
func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", &ValidationError{Field: "frequency", Reason: fmt.Sprintf("unrecognized value %q", s)}
	}
	return f, nil
}

// Status is the lifecycle state of an order
type Status string

const (
	Active    Status = "active"
	Paused    Status = "paused"
	Cancelled Status = "cancelled"
)

// RecurringOrder is a standing instruction to buy a fixed amount of an
// instrument on a schedule.
type RecurringOrder struct {
	ID             string     `json:"id" msgpack:"id"`
	InstrumentID   string     `json:"instrument_id" msgpack:"instrument_id"`
	Label          string     `json:"label,omitempty" msgpack:"label"`
	Currency       string     `json:"currency" msgpack:"currency"`
	Amount         float64    `json:"amount" msgpack:"amount"`
	Frequency      Frequency  `json:"frequency" msgpack:"frequency"`
	Status         Status     `json:"status" msgpack:"status"`
	CreatedAt      time.Time  `json:"created_at" msgpack:"created_at"`
	LastExecutedAt *time.Time `json:"last_executed_at,omitempty" msgpack:"last_executed_at"`
	NextDueAt      time.Time  `json:"next_due_at" msgpack:"next_due_at"`
	PurchaseCount  int        `json:"purchase_count" msgpack:"purchase_count"`
	TotalInvested  float64    `json:"total_invested" msgpack:"total_invested"`
}

// IsDue reports whether the order is active and its due time has passed
func (o RecurringOrder) IsDue(now time.Time) bool {
	return o.Status == Active && !o.NextDueAt.After(now)
}

// scheduleAnchor is the time the next due date is computed from
func (o RecurringOrder) scheduleAnchor() time.Time {
	if o.LastExecutedAt != nil {
		return *o.LastExecutedAt
	}
	return o.CreatedAt
}

func (o RecurringOrder) clone() RecurringOrder {
	c := o
	if o.LastExecutedAt != nil {
		t := *o.LastExecutedAt
		c.LastExecutedAt = &t
	}
	return c
}

// NewOrder is the input to OrderStore.Add
type NewOrder struct {
	InstrumentID string    `json:"instrument_id"`
	Label        string    `json:"label,omitempty"`
	Currency     string    `json:"currency,omitempty"`
	Amount       float64   `json:"amount"`
	Frequency    Frequency `json:"frequency"`
}

// Validate checks the amount range, the frequency and the instrument
func (n NewOrder) Validate() error {
	if strings.TrimSpace(n.InstrumentID) == "" {
		return &ValidationError{Field: "instrument_id", Reason: "must not be empty"}
	}
	if err := validateAmount(n.Amount); err != nil {
		return err
	}
	if !n.Frequency.Valid() {
		return &ValidationError{Field: "frequency", Reason: fmt.Sprintf("unrecognized value %q", n.Frequency)}
	}
	return nil
}

func validateAmount(amount float64) error {
	// Written so NaN fails too
	if !(amount >= MinAmount && amount <= MaxAmount) {
		return &ValidationError{
			Field:  "amount",
			Reason: fmt.Sprintf("%v outside [%v, %v]", amount, MinAmount, MaxAmount),
		}
	}
	return nil
}
