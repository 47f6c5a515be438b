package events

import "time"

// EventData is the interface that all event data types must implement
type EventData interface {
	// EventType returns the event type this data is associated with
	EventType() EventType
}

// OrderLifecycleData accompanies ORDER_CREATED/UPDATED/PAUSED/RESUMED/CANCELLED
type OrderLifecycleData struct {
	Type         EventType `json:"-"`
	OrderID      string    `json:"order_id"`
	InstrumentID string    `json:"instrument_id"`
	Status       string    `json:"status"`
}

// EventType returns the lifecycle transition this data describes
func (d *OrderLifecycleData) EventType() EventType {
	return d.Type
}

// OrderExecutedData contains data for ORDER_EXECUTED events
type OrderExecutedData struct {
	OrderID      string    `json:"order_id"`
	RecordID     string    `json:"record_id"`
	InstrumentID string    `json:"instrument_id"`
	Amount       float64   `json:"amount"`
	Price        float64   `json:"price"`
	Shares       float64   `json:"shares"`
	PriceSource  string    `json:"price_source"`
	ExecutedAt   time.Time `json:"executed_at"`
}

// EventType returns the event type for OrderExecutedData
func (d *OrderExecutedData) EventType() EventType {
	return OrderExecuted
}

// OrderExecutionFailedData contains data for ORDER_EXECUTION_FAILED events
type OrderExecutionFailedData struct {
	OrderID      string    `json:"order_id"`
	RecordID     string    `json:"record_id"`
	InstrumentID string    `json:"instrument_id"`
	Amount       float64   `json:"amount"`
	Reason       string    `json:"reason"`
	AttemptedAt  time.Time `json:"attempted_at"`
}

// EventType returns the event type for OrderExecutionFailedData
func (d *OrderExecutionFailedData) EventType() EventType {
	return OrderExecutionFailed
}

// ScanCompletedData summarises one scan
type ScanCompletedData struct {
	Due       int           `json:"due"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}

// EventType returns the event type for ScanCompletedData
func (d *ScanCompletedData) EventType() EventType {
	return ScanCompleted
}

// CashUpdatedData contains data for CASH_UPDATED events
type CashUpdatedData struct {
	Balance float64 `json:"balance"`
	Delta   float64 `json:"delta"`
	Reason  string  `json:"reason"` // buy, sell, deposit, withdraw
}

// EventType returns the event type for CashUpdatedData
func (d *CashUpdatedData) EventType() EventType {
	return CashUpdated
}
