package persistence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aristath/autoinvest/internal/domain"
	"github.com/aristath/autoinvest/internal/modules/history"
	"github.com/aristath/autoinvest/internal/modules/ledger"
	"github.com/aristath/autoinvest/internal/modules/recurring"
	"github.com/rs/zerolog"
)

// Keys under which state is saved
const (
	KeyOrders  = "recurring_orders"
	KeyHistory = "execution_history"
	KeyLedger  = "ledger_state"
)

// OrderState is the order store's persistence surface
type OrderState interface {
	Snapshot() []recurring.RecurringOrder
	Restore(orders []recurring.RecurringOrder)
}

// HistoryState is the history log's persistence surface
type HistoryState interface {
	Snapshot() []history.ExecutionRecord
	Restore(records []history.ExecutionRecord)
}

// LedgerState is the ledger's persistence surface
type LedgerState interface {
	Snapshot() ledger.State
	Restore(state ledger.State)
}

// Snapshotter saves and restores orders, history and ledger as three blobs.
// Saves are serialised, and a blob identical to the last one saved is skipped.
type Snapshotter struct {
	store   domain.DurableStore
	orders  OrderState
	history HistoryState
	ledger  LedgerState

	mu        sync.Mutex
	lastSaved map[string][]byte
	log       zerolog.Logger
}

// NewSnapshotter creates a snapshotter over the three components
func NewSnapshotter(store domain.DurableStore, orders OrderState, historyLog HistoryState, l LedgerState, log zerolog.Logger) *Snapshotter {
	return &Snapshotter{
		store:     store,
		orders:    orders,
		history:   historyLog,
		ledger:    l,
		lastSaved: make(map[string][]byte),
		log:       log.With().Str("component", "snapshotter").Logger(),
	}
}

// SaveAll encodes and saves every component. Each blob is saved even if an
// earlier one fails; the errors are joined.
func (s *Snapshotter) SaveAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	saved := 0
	for _, item := range []struct {
		key   string
		value interface{}
	}{
		{KeyOrders, s.orders.Snapshot()},
		{KeyHistory, s.history.Snapshot()},
		{KeyLedger, s.ledger.Snapshot()},
	} {
		blob, err := Encode(item.value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", item.key, err))
			continue
		}
		if bytes.Equal(blob, s.lastSaved[item.key]) {
			continue
		}
		if err := s.store.Save(ctx, item.key, blob); err != nil {
			errs = append(errs, err)
			continue
		}
		s.lastSaved[item.key] = blob
		saved++
	}

	if err := errors.Join(errs...); err != nil {
		s.log.Error().Err(err).Msg("Failed to save state")
		return err
	}
	if saved > 0 {
		s.log.Debug().Int("blobs", saved).Msg("State saved")
	}
	return nil
}

// LoadAll restores every component that has saved state. Components with
// nothing saved are left as they are.
func (s *Snapshotter) LoadAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var orders []recurring.RecurringOrder
	foundOrders, err := s.load(ctx, KeyOrders, &orders)
	if err != nil {
		return err
	}
	var records []history.ExecutionRecord
	foundHistory, err := s.load(ctx, KeyHistory, &records)
	if err != nil {
		return err
	}
	var state ledger.State
	foundLedger, err := s.load(ctx, KeyLedger, &state)
	if err != nil {
		return err
	}

	// Restore only once everything decoded, so a corrupt blob changes nothing
	if foundOrders {
		s.orders.Restore(orders)
	}
	if foundHistory {
		s.history.Restore(records)
	}
	if foundLedger {
		s.ledger.Restore(state)
	}

	s.log.Info().
		Bool("orders", foundOrders).
		Bool("history", foundHistory).
		Bool("ledger", foundLedger).
		Msg("State loaded")
	return nil
}

func (s *Snapshotter) load(ctx context.Context, key string, v interface{}) (bool, error) {
	blob, ok, err := s.store.Load(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to load %s: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	if err := Decode(blob, v); err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	s.lastSaved[key] = blob
	return true, nil
}
