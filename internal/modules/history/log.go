package history

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Log is an in-memory, append-only list of execution records kept in
// insertion order. It is safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	records []ExecutionRecord
	log     zerolog.Logger
}

// NewLog creates an empty log
func NewLog(log zerolog.Logger) *Log {
	return &Log{
		log: log.With().Str("repo", "execution_history").Logger(),
	}
}

// Append adds a record. A record without an ID is given one.
func (l *Log) Append(rec ExecutionRecord) ExecutionRecord {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Success {
		rec.ErrorReason = ""
	}

	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()

	l.log.Debug().
		Str("record_id", rec.ID).
		Str("order_id", rec.OrderID).
		Bool("success", rec.Success).
		Str("error_reason", string(rec.ErrorReason)).
		Msg("Execution recorded")
	return rec
}

// All returns every record in insertion order
func (l *Log) All() []ExecutionRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]ExecutionRecord, len(l.records))
	copy(out, l.records)
	return out
}

// ForOrder returns the records of one order, newest first
func (l *Log) ForOrder(orderID string) []ExecutionRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]ExecutionRecord, 0)
	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].OrderID == orderID {
			out = append(out, l.records[i])
		}
	}
	return out
}

// Recent returns up to limit records across all orders, newest first.
// A non-positive limit returns everything.
func (l *Log) Recent(limit int) []ExecutionRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.records)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]ExecutionRecord, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, l.records[i])
	}
	return out
}

// Len is the number of records
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Snapshot returns the records for persistence, in insertion order
func (l *Log) Snapshot() []ExecutionRecord {
	return l.All()
}

// Restore replaces the log with persisted records, keeping their order
func (l *Log) Restore(records []ExecutionRecord) {
	restored := make([]ExecutionRecord, len(records))
	copy(restored, records)

	l.mu.Lock()
	l.records = restored
	l.mu.Unlock()

	l.log.Info().Int("records", len(restored)).Msg("Execution history restored")
}
