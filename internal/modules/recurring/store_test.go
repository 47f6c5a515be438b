package recurring

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aristath/autoinvest/internal/events"
	testingpkg "github.com/aristath/autoinvest/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	eventType events.EventType
	data      events.EventData
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingEmitter) EmitTyped(eventType events.EventType, module string, data events.EventData) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{eventType: eventType, data: data})
}

func (r *recordingEmitter) types() []events.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.eventType)
	}
	return out
}

func newTestStore(t *testing.T, now time.Time) (*OrderStore, *testingpkg.FakeClock, *recordingEmitter) {
	t.Helper()
	clock := testingpkg.NewFakeClock(now)
	emitter := &recordingEmitter{}
	return NewOrderStore(clock, emitter, zerolog.Nop()), clock, emitter
}

func validOrder() NewOrder {
	return NewOrder{InstrumentID: "VWRL", Amount: 50, Frequency: Weekly}
}

func TestOrderStore_Add(t *testing.T) {
	withLocal(t, time.UTC)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	store, _, emitter := newTestStore(t, now)

	id, err := store.Add(validOrder())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	order, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "VWRL", order.InstrumentID)
	assert.Equal(t, 50.0, order.Amount)
	assert.Equal(t, Weekly, order.Frequency)
	assert.Equal(t, Active, order.Status)
	assert.Equal(t, DefaultCurrency, order.Currency)
	assert.True(t, now.Equal(order.CreatedAt))
	assert.True(t, now.AddDate(0, 0, 7).Equal(order.NextDueAt))
	assert.Nil(t, order.LastExecutedAt)
	assert.Zero(t, order.PurchaseCount)
	assert.Zero(t, order.TotalInvested)

	assert.Equal(t, []events.EventType{events.OrderCreated}, emitter.types())
}

func TestOrderStore_AddValidation(t *testing.T) {
	store, _, emitter := newTestStore(t, time.Now())

	testCases := []struct {
		name  string
		order NewOrder
		field string
	}{
		{"amount below minimum", NewOrder{InstrumentID: "X", Amount: 9.99, Frequency: Daily}, "amount"},
		{"amount above maximum", NewOrder{InstrumentID: "X", Amount: 1000.01, Frequency: Daily}, "amount"},
		{"zero amount", NewOrder{InstrumentID: "X", Amount: 0, Frequency: Daily}, "amount"},
		{"unknown frequency", NewOrder{InstrumentID: "X", Amount: 50, Frequency: "hourly"}, "frequency"},
		{"empty frequency", NewOrder{InstrumentID: "X", Amount: 50}, "frequency"},
		{"missing instrument", NewOrder{Amount: 50, Frequency: Daily}, "instrument_id"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			id, err := store.Add(tc.order)
			require.Error(t, err)
			assert.Empty(t, id)
			assert.ErrorIs(t, err, ErrValidation)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}

	assert.Empty(t, store.List(), "rejected orders are never stored")
	assert.Empty(t, emitter.types())
}

func TestOrderStore_AddBoundaryAmounts(t *testing.T) {
	store, _, _ := newTestStore(t, time.Now())

	for _, amount := range []float64{MinAmount, MaxAmount} {
		_, err := store.Add(NewOrder{InstrumentID: "X", Amount: amount, Frequency: Monthly})
		assert.NoError(t, err, "amount %v", amount)
	}
}

func TestOrderStore_MonthEndFirstDueDate(t *testing.T) {
	withLocal(t, time.UTC)
	created := time.Date(2025, 1, 31, 12, 0, 0, 0, time.UTC)
	store, _, _ := newTestStore(t, created)

	id, err := store.Add(NewOrder{InstrumentID: "X", Amount: 100, Frequency: Monthly})
	require.NoError(t, err)

	order, err := store.Get(id)
	require.NoError(t, err)
	assert.True(t, time.Date(2025, 2, 28, 12, 0, 0, 0, time.UTC).Equal(order.NextDueAt), "got %s", order.NextDueAt)
}

func TestOrderStore_PauseResumeCancel(t *testing.T) {
	store, _, emitter := newTestStore(t, time.Now())
	id, err := store.Add(validOrder())
	require.NoError(t, err)

	require.NoError(t, store.Pause(id))
	order, _ := store.Get(id)
	assert.Equal(t, Paused, order.Status)

	// Pausing twice is a no-op without an event
	require.NoError(t, store.Pause(id))

	require.NoError(t, store.Resume(id))
	order, _ = store.Get(id)
	assert.Equal(t, Active, order.Status)

	require.NoError(t, store.Cancel(id))
	order, _ = store.Get(id)
	assert.Equal(t, Cancelled, order.Status)

	// Cancel is idempotent
	require.NoError(t, store.Cancel(id))

	// Cancelled is terminal
	assert.ErrorIs(t, store.Pause(id), ErrOrderCancelled)
	assert.ErrorIs(t, store.Resume(id), ErrOrderCancelled)
	_, err = store.Update(id, 20, Daily)
	assert.ErrorIs(t, err, ErrOrderCancelled)

	order, _ = store.Get(id)
	assert.Equal(t, Cancelled, order.Status)

	assert.Equal(t, []events.EventType{
		events.OrderCreated,
		events.OrderPaused,
		events.OrderResumed,
		events.OrderCancelled,
	}, emitter.types())
}

func TestOrderStore_UnknownID(t *testing.T) {
	store, _, _ := newTestStore(t, time.Now())

	_, err := store.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Pause("missing"), ErrNotFound)
	assert.ErrorIs(t, store.Resume("missing"), ErrNotFound)
	assert.ErrorIs(t, store.Cancel("missing"), ErrNotFound)
	assert.ErrorIs(t, store.RecordSuccess("missing", time.Now(), 10), ErrNotFound)
	assert.ErrorIs(t, store.RecordFailure("missing"), ErrNotFound)
	_, err = store.IsActive("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Update("missing", 50, Daily)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOrderStore_DueOrders(t *testing.T) {
	withLocal(t, time.UTC)
	start := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	store, clock, _ := newTestStore(t, start)

	daily, err := store.Add(NewOrder{InstrumentID: "A", Amount: 20, Frequency: Daily})
	require.NoError(t, err)
	weekly, err := store.Add(NewOrder{InstrumentID: "B", Amount: 20, Frequency: Weekly})
	require.NoError(t, err)
	paused, err := store.Add(NewOrder{InstrumentID: "C", Amount: 20, Frequency: Daily})
	require.NoError(t, err)
	cancelled, err := store.Add(NewOrder{InstrumentID: "D", Amount: 20, Frequency: Daily})
	require.NoError(t, err)
	require.NoError(t, store.Pause(paused))
	require.NoError(t, store.Cancel(cancelled))

	assert.Empty(t, store.DueOrders(start))

	// Exactly at the due instant counts as due
	now := clock.Advance(24 * time.Hour)
	due := store.DueOrders(now)
	require.Len(t, due, 1)
	assert.Equal(t, daily, due[0].ID)

	now = clock.Advance(6 * 24 * time.Hour)
	ids := make([]string, 0)
	for _, o := range store.DueOrders(now) {
		ids = append(ids, o.ID)
	}
	assert.ElementsMatch(t, []string{daily, weekly}, ids)
}

func TestOrderStore_PausedPastDueIsDueAfterResume(t *testing.T) {
	withLocal(t, time.UTC)
	start := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	store, clock, _ := newTestStore(t, start)

	id, err := store.Add(NewOrder{InstrumentID: "A", Amount: 20, Frequency: Daily})
	require.NoError(t, err)
	before, _ := store.Get(id)

	require.NoError(t, store.Pause(id))
	now := clock.Advance(3 * 24 * time.Hour)
	assert.Empty(t, store.DueOrders(now))

	require.NoError(t, store.Resume(id))
	after, _ := store.Get(id)
	assert.True(t, before.NextDueAt.Equal(after.NextDueAt), "resume does not recompute the due date")

	due := store.DueOrders(now)
	require.Len(t, due, 1)
	assert.Equal(t, id, due[0].ID)
}

func TestOrderStore_RecordSuccess(t *testing.T) {
	withLocal(t, time.UTC)
	start := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	store, _, _ := newTestStore(t, start)

	id, err := store.Add(NewOrder{InstrumentID: "A", Amount: 50, Frequency: Weekly})
	require.NoError(t, err)

	executedAt := start.AddDate(0, 0, 7).Add(2 * time.Hour)
	require.NoError(t, store.RecordSuccess(id, executedAt, 50))

	order, _ := store.Get(id)
	assert.Equal(t, 1, order.PurchaseCount)
	assert.Equal(t, 50.0, order.TotalInvested)
	require.NotNil(t, order.LastExecutedAt)
	assert.True(t, executedAt.Equal(*order.LastExecutedAt))
	assert.True(t, executedAt.AddDate(0, 0, 7).Equal(order.NextDueAt))

	require.NoError(t, store.RecordSuccess(id, executedAt.AddDate(0, 0, 7), 50))
	order, _ = store.Get(id)
	assert.Equal(t, 2, order.PurchaseCount)
	assert.Equal(t, 100.0, order.TotalInvested)
}

func TestOrderStore_RecordFailureLeavesScheduleUntouched(t *testing.T) {
	store, _, _ := newTestStore(t, time.Now())
	id, err := store.Add(validOrder())
	require.NoError(t, err)

	before, _ := store.Get(id)
	require.NoError(t, store.RecordFailure(id))
	after, _ := store.Get(id)

	assert.Equal(t, before, after)
}

func TestOrderStore_Update(t *testing.T) {
	withLocal(t, time.UTC)
	start := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	store, _, emitter := newTestStore(t, start)

	id, err := store.Add(NewOrder{InstrumentID: "A", Amount: 50, Frequency: Weekly})
	require.NoError(t, err)

	updated, err := store.Update(id, 75, Weekly)
	require.NoError(t, err)
	assert.Equal(t, 75.0, updated.Amount)
	assert.True(t, start.AddDate(0, 0, 7).Equal(updated.NextDueAt))

	// Frequency change re-anchors on CreatedAt (never executed)
	updated, err = store.Update(id, 75, Monthly)
	require.NoError(t, err)
	assert.True(t, start.AddDate(0, 1, 0).Equal(updated.NextDueAt))

	// ...and on LastExecutedAt once executed
	executed := start.AddDate(0, 1, 0)
	require.NoError(t, store.RecordSuccess(id, executed, 75))
	updated, err = store.Update(id, 75, Daily)
	require.NoError(t, err)
	assert.True(t, executed.AddDate(0, 0, 1).Equal(updated.NextDueAt))

	_, err = store.Update(id, 5000, Daily)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = store.Update(id, 50, "yearly")
	assert.ErrorIs(t, err, ErrValidation)

	assert.Contains(t, emitter.types(), events.OrderUpdated)
}

func TestOrderStore_ReturnsCopies(t *testing.T) {
	store, _, _ := newTestStore(t, time.Now())
	id, err := store.Add(validOrder())
	require.NoError(t, err)
	require.NoError(t, store.RecordSuccess(id, time.Now(), 50))

	order, _ := store.Get(id)
	order.Amount = 999
	order.Status = Cancelled
	*order.LastExecutedAt = time.Time{}

	fresh, _ := store.Get(id)
	assert.Equal(t, 50.0, fresh.Amount)
	assert.Equal(t, Active, fresh.Status)
	assert.False(t, fresh.LastExecutedAt.IsZero())
}

func TestOrderStore_SnapshotRestore(t *testing.T) {
	store, clock, _ := newTestStore(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	for i := 0; i < 3; i++ {
		clock.Advance(time.Minute)
		_, err := store.Add(NewOrder{InstrumentID: fmt.Sprintf("I%d", i), Amount: 25, Frequency: Daily})
		require.NoError(t, err)
	}

	snapshot := store.Snapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, "I0", snapshot[0].InstrumentID)
	assert.Equal(t, "I2", snapshot[2].InstrumentID)

	restored, _, _ := newTestStore(t, time.Now())
	restored.Restore(snapshot)
	assert.Equal(t, snapshot, restored.Snapshot())
}

func TestOrderStore_ConcurrentMutations(t *testing.T) {
	store, clock, _ := newTestStore(t, time.Now())

	ids := make([]string, 20)
	for i := range ids {
		id, err := store.Add(NewOrder{InstrumentID: "A", Amount: 10, Frequency: Daily})
		require.NoError(t, err)
		ids[i] = id
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(3)
		go func(id string) {
			defer wg.Done()
			_ = store.Pause(id)
			_ = store.Resume(id)
		}(id)
		go func(id string) {
			defer wg.Done()
			_ = store.RecordSuccess(id, clock.Now(), 10)
		}(id)
		go func() {
			defer wg.Done()
			_ = store.DueOrders(clock.Now().Add(48 * time.Hour))
		}()
	}
	wg.Wait()

	for _, id := range ids {
		order, err := store.Get(id)
		require.NoError(t, err)
		assert.Equal(t, 1, order.PurchaseCount)
		assert.Equal(t, 10.0, order.TotalInvested)
	}
}
