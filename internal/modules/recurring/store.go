package recurring

import (
	"sort"
	"sync"
	"time"

	"github.com/aristath/autoinvest/internal/domain"
	"github.com/aristath/autoinvest/internal/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const eventModule = "recurring"

// EventEmitter is the subset of events.Manager the store uses
type EventEmitter interface {
	EmitTyped(eventType events.EventType, module string, data events.EventData)
}

// OrderStore holds every recurring order in memory and is the only place
// their fields are mutated. All methods are safe for concurrent use; none of
// them performs I/O while holding the lock.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]*RecurringOrder

	clock  domain.Clock
	events EventEmitter
	newID  func() string
	log    zerolog.Logger
}

// NewOrderStore creates an empty store. emitter may be nil.
func NewOrderStore(clock domain.Clock, emitter EventEmitter, log zerolog.Logger) *OrderStore {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &OrderStore{
		orders: make(map[string]*RecurringOrder),
		clock:  clock,
		events: emitter,
		newID:  func() string { return uuid.New().String() },
		log:    log.With().Str("repo", "recurring_orders").Logger(),
	}
}

// Add validates req and registers a new active order due one period after now.
func (s *OrderStore) Add(req NewOrder) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	currency := req.Currency
	if currency == "" {
		currency = DefaultCurrency
	}

	now := s.clock.Now()
	order := &RecurringOrder{
		ID:           s.newID(),
		InstrumentID: req.InstrumentID,
		Label:        req.Label,
		Currency:     currency,
		Amount:       req.Amount,
		Frequency:    req.Frequency,
		Status:       Active,
		CreatedAt:    now,
		NextDueAt:    NextDue(req.Frequency, now),
	}

	s.mu.Lock()
	s.orders[order.ID] = order
	s.mu.Unlock()

	s.log.Info().
		Str("order_id", order.ID).
		Str("instrument_id", order.InstrumentID).
		Float64("amount", order.Amount).
		Str("frequency", string(order.Frequency)).
		Time("next_due_at", order.NextDueAt).
		Msg("Recurring order created")
	s.emit(events.OrderCreated, *order)

	return order.ID, nil
}

// Get returns a copy of one order
func (s *OrderStore) Get(id string) (RecurringOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return RecurringOrder{}, notFound(id)
	}
	return order.clone(), nil
}

// List returns copies of all orders, oldest first
func (s *OrderStore) List() []RecurringOrder {
	s.mu.RLock()
	result := make([]RecurringOrder, 0, len(s.orders))
	for _, order := range s.orders {
		result = append(result, order.clone())
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// Update changes the amount and frequency of a non-cancelled order.
// A frequency change recomputes NextDueAt from the order's schedule anchor.
func (s *OrderStore) Update(id string, amount float64, frequency Frequency) (RecurringOrder, error) {
	if err := validateAmount(amount); err != nil {
		return RecurringOrder{}, err
	}
	if !frequency.Valid() {
		return RecurringOrder{}, &ValidationError{Field: "frequency", Reason: "unrecognized value " + string(frequency)}
	}

	s.mu.Lock()
	order, ok := s.orders[id]
	if !ok {
		s.mu.Unlock()
		return RecurringOrder{}, notFound(id)
	}
	if order.Status == Cancelled {
		s.mu.Unlock()
		return RecurringOrder{}, ErrOrderCancelled
	}

	order.Amount = amount
	if order.Frequency != frequency {
		order.Frequency = frequency
		order.NextDueAt = NextDue(frequency, order.scheduleAnchor())
	}
	updated := order.clone()
	s.mu.Unlock()

	s.log.Info().
		Str("order_id", id).
		Float64("amount", amount).
		Str("frequency", string(frequency)).
		Msg("Recurring order updated")
	s.emit(events.OrderUpdated, updated)

	return updated, nil
}

// Pause moves an active order to paused. Pausing a paused order is a no-op.
func (s *OrderStore) Pause(id string) error {
	return s.transition(id, Paused, events.OrderPaused)
}

// Resume moves a paused order back to active. NextDueAt is left untouched,
// so an order that fell due while paused runs on the next scan.
func (s *OrderStore) Resume(id string) error {
	return s.transition(id, Active, events.OrderResumed)
}

func (s *OrderStore) transition(id string, to Status, eventType events.EventType) error {
	s.mu.Lock()
	order, ok := s.orders[id]
	if !ok {
		s.mu.Unlock()
		return notFound(id)
	}
	if order.Status == Cancelled {
		s.mu.Unlock()
		return ErrOrderCancelled
	}
	if order.Status == to {
		s.mu.Unlock()
		return nil
	}
	order.Status = to
	snapshot := order.clone()
	s.mu.Unlock()

	s.log.Info().Str("order_id", id).Str("status", string(to)).Msg("Recurring order status changed")
	s.emit(eventType, snapshot)
	return nil
}

// Cancel makes an order permanently ineligible. Cancelling twice is a no-op.
func (s *OrderStore) Cancel(id string) error {
	s.mu.Lock()
	order, ok := s.orders[id]
	if !ok {
		s.mu.Unlock()
		return notFound(id)
	}
	if order.Status == Cancelled {
		s.mu.Unlock()
		return nil
	}
	order.Status = Cancelled
	snapshot := order.clone()
	s.mu.Unlock()

	s.log.Info().Str("order_id", id).Msg("Recurring order cancelled")
	s.emit(events.OrderCancelled, snapshot)
	return nil
}

// DueOrders returns copies of every active order with NextDueAt <= now.
// No ordering is guaranteed.
func (s *OrderStore) DueOrders(now time.Time) []RecurringOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()

	due := make([]RecurringOrder, 0)
	for _, order := range s.orders {
		if order.IsDue(now) {
			due = append(due, order.clone())
		}
	}
	return due
}

// IsActive reports whether the order currently has status Active
func (s *OrderStore) IsActive(id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return false, notFound(id)
	}
	return order.Status == Active, nil
}

// RecordSuccess applies one successful execution: purchase count and total
// invested move together, and the schedule advances from executedAt.
func (s *OrderStore) RecordSuccess(id string, executedAt time.Time, amount float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return notFound(id)
	}

	executed := executedAt
	order.PurchaseCount++
	order.TotalInvested += amount
	order.LastExecutedAt = &executed
	order.NextDueAt = NextDue(order.Frequency, executedAt)
	return nil
}

// RecordFailure acknowledges a failed execution. The schedule is untouched
// so the order stays due and is retried on the next scan.
func (s *OrderStore) RecordFailure(id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.orders[id]; !ok {
		return notFound(id)
	}
	return nil
}

// Snapshot returns every order for persistence, oldest first
func (s *OrderStore) Snapshot() []RecurringOrder {
	return s.List()
}

// Restore replaces the store's contents with previously persisted orders
func (s *OrderStore) Restore(orders []RecurringOrder) {
	restored := make(map[string]*RecurringOrder, len(orders))
	for i := range orders {
		order := orders[i].clone()
		restored[order.ID] = &order
	}

	s.mu.Lock()
	s.orders = restored
	s.mu.Unlock()

	s.log.Info().Int("orders", len(restored)).Msg("Recurring orders restored")
}

func (s *OrderStore) emit(eventType events.EventType, order RecurringOrder) {
	if s.events == nil {
		return
	}
	s.events.EmitTyped(eventType, eventModule, &events.OrderLifecycleData{
		Type:         eventType,
		OrderID:      order.ID,
		InstrumentID: order.InstrumentID,
		Status:       string(order.Status),
	})
}
