// Package events provides in-process domain events for the recurring-order engine.
package events

import "time"

// EventType represents different event types
type EventType string

const (
	// Order lifecycle
	OrderCreated   EventType = "ORDER_CREATED"
	OrderUpdated   EventType = "ORDER_UPDATED"
	OrderPaused    EventType = "ORDER_PAUSED"
	OrderResumed   EventType = "ORDER_RESUMED"
	OrderCancelled EventType = "ORDER_CANCELLED"

	// Execution
	OrderExecuted        EventType = "ORDER_EXECUTED"
	OrderExecutionFailed EventType = "ORDER_EXECUTION_FAILED"
	ScanCompleted        EventType = "SCAN_COMPLETED"

	// Ledger
	CashUpdated EventType = "CASH_UPDATED"
)

// Event is a single emitted event
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Module    string    `json:"module"`
	Data      EventData `json:"data,omitempty"`
}
