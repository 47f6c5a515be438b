// Package history is the append-only log of recurring order executions.
package history

import (
	"time"

	"github.com/google/uuid"
)

// FailureReason is why an execution attempt did not buy anything
type FailureReason string

const (
	PriceUnavailable  FailureReason = "PriceUnavailable"
	InsufficientFunds FailureReason = "InsufficientFunds"
	LedgerRejected    FailureReason = "LedgerRejected"
	OrderCancelled    FailureReason = "OrderCancelled"
)

// Where the execution price came from
const (
	PriceSourceLive      = "live"
	PriceSourceLastKnown = "last_known"
)

// ExecutionRecord describes one attempted execution. Records are never
// mutated after they are appended.
type ExecutionRecord struct {
	ID             string        `json:"id" msgpack:"id"`
	OrderID        string        `json:"order_id" msgpack:"order_id"`
	InstrumentID   string        `json:"instrument_id" msgpack:"instrument_id"`
	Timestamp      time.Time     `json:"timestamp" msgpack:"timestamp"`
	Amount         float64       `json:"amount" msgpack:"amount"`
	PricePerShare  float64       `json:"price_per_share" msgpack:"price_per_share"`
	SharesAcquired float64       `json:"shares_acquired" msgpack:"shares_acquired"`
	Success        bool          `json:"success" msgpack:"success"`
	ErrorReason    FailureReason `json:"error_reason,omitempty" msgpack:"error_reason"`
	PriceSource    string        `json:"price_source,omitempty" msgpack:"price_source"`
}

// NewSuccess builds a record for a completed purchase
func NewSuccess(orderID, instrumentID string, at time.Time, amount, price, shares float64, priceSource string) ExecutionRecord {
	return ExecutionRecord{
		ID:             uuid.New().String(),
		OrderID:        orderID,
		InstrumentID:   instrumentID,
		Timestamp:      at,
		Amount:         amount,
		PricePerShare:  price,
		SharesAcquired: shares,
		Success:        true,
		PriceSource:    priceSource,
	}
}

// NewFailure builds a record for a failed attempt; price and shares are zero
func NewFailure(orderID, instrumentID string, at time.Time, amount float64, reason FailureReason) ExecutionRecord {
	return ExecutionRecord{
		ID:           uuid.New().String(),
		OrderID:      orderID,
		InstrumentID: instrumentID,
		Timestamp:    at,
		Amount:       amount,
		Success:      false,
		ErrorReason:  reason,
	}
}
