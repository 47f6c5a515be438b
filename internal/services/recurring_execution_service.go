// Package services provides the services that orchestrate work across modules.
//
// RecurringExecutionService runs due recurring orders against the ledger and
// records every attempt in the execution history.
package services

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/aristath/autoinvest/internal/domain"
	"github.com/aristath/autoinvest/internal/events"
	"github.com/aristath/autoinvest/internal/modules/history"
	"github.com/aristath/autoinvest/internal/modules/recurring"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const eventModule = "recurring_execution"

// Defaults used when ExecutionConfig leaves a field zero
const (
	DefaultPriceTimeout = 10 * time.Second
	DefaultConcurrency  = 4
)

// OrderStoreInterface is what the engine needs from the order store
type OrderStoreInterface interface {
	DueOrders(now time.Time) []recurring.RecurringOrder
	Get(orderID string) (recurring.RecurringOrder, error)
	IsActive(orderID string) (bool, error)
	RecordSuccess(orderID string, executedAt time.Time, amount float64) error
	RecordFailure(orderID string) error
}

// LedgerInterface is what the engine needs from the ledger
type LedgerInterface interface {
	CashBalance() float64
	BuyAt(instrumentID string, shares, pricePerShare float64, executedAt time.Time) error
}

// HistoryLogInterface is what the engine needs from the history log
type HistoryLogInterface interface {
	Append(rec history.ExecutionRecord) history.ExecutionRecord
}

// LastKnownPrices serves the most recent price seen for an instrument
type LastKnownPrices interface {
	LastKnown(instrumentID string) (float64, bool)
}

// EventEmitter is the subset of events.Manager the engine uses
type EventEmitter interface {
	EmitTyped(eventType events.EventType, module string, data events.EventData)
}

// ExecutionConfig tunes a RecurringExecutionService
type ExecutionConfig struct {
	// PriceTimeout bounds every price lookup; a timeout counts as unavailable
	PriceTimeout time.Duration
	// Concurrency is how many distinct orders a scan executes at once
	Concurrency int
	// StalePriceFallback allows the last known price when the live one is missing
	StalePriceFallback bool
}

// ScanResult summarises one ScanOnce call
type ScanResult struct {
	Due       int                       `json:"due"`
	Succeeded int                       `json:"succeeded"`
	Failed    int                       `json:"failed"`
	Skipped   int                       `json:"skipped"`
	Records   []history.ExecutionRecord `json:"records"`
	Duration  time.Duration             `json:"duration"`
}

// RecurringExecutionService executes due recurring orders:
// - price lookup bounded by a timeout
// - funds check against the ledger cash balance
// - a status re-check right before the buy, so a racing cancel is honoured
// - one execution record per attempt
//
// Per-order failures are recorded, never returned. The order store lock is
// never held while waiting on the price feed.
type RecurringExecutionService struct {
	store      OrderStoreInterface
	ledger     LedgerInterface
	history    HistoryLogInterface
	feed       domain.PriceFeed
	lastKnown  LastKnownPrices
	events     EventEmitter
	cfg        ExecutionConfig
	inFlightMu sync.Mutex
	inFlight   map[string]bool
	log        zerolog.Logger
}

// NewRecurringExecutionService creates the engine. lastKnown and emitter may be nil.
func NewRecurringExecutionService(
	store OrderStoreInterface,
	ledger LedgerInterface,
	historyLog HistoryLogInterface,
	feed domain.PriceFeed,
	lastKnown LastKnownPrices,
	emitter EventEmitter,
	cfg ExecutionConfig,
	log zerolog.Logger,
) *RecurringExecutionService {
	if cfg.PriceTimeout <= 0 {
		cfg.PriceTimeout = DefaultPriceTimeout
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &RecurringExecutionService{
		store:     store,
		ledger:    ledger,
		history:   historyLog,
		feed:      feed,
		lastKnown: lastKnown,
		events:    emitter,
		cfg:       cfg,
		inFlight:  make(map[string]bool),
		log:       log.With().Str("service", "recurring_execution").Logger(),
	}
}

// outcome of one order within a scan
type outcome struct {
	record  history.ExecutionRecord
	skipped bool
}

// ScanOnce executes every order due at now. It is safe to call repeatedly
// and concurrently; an order already executing in another scan is skipped.
// Distinct orders may execute in parallel, in no particular order.
func (s *RecurringExecutionService) ScanOnce(ctx context.Context, now time.Time) ScanResult {
	start := time.Now()
	due := s.store.DueOrders(now)

	s.log.Debug().Int("due", len(due)).Time("now", now).Msg("Scanning recurring orders")

	var (
		mu       sync.Mutex
		outcomes = make([]outcome, 0, len(due))
		g        errgroup.Group
	)
	g.SetLimit(s.cfg.Concurrency)

	for _, order := range due {
		order := order
		g.Go(func() error {
			o := s.executeGuarded(ctx, order, now)
			mu.Lock()
			outcomes = append(outcomes, o)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	result := ScanResult{
		Due:     len(due),
		Records: make([]history.ExecutionRecord, 0, len(outcomes)),
	}
	for _, o := range outcomes {
		switch {
		case o.skipped:
			result.Skipped++
		case o.record.Success:
			result.Succeeded++
			result.Records = append(result.Records, o.record)
		default:
			result.Failed++
			result.Records = append(result.Records, o.record)
		}
	}
	result.Duration = time.Since(start)

	s.log.Info().
		Int("due", result.Due).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Dur("duration", result.Duration).
		Msg("Recurring order scan completed")
	s.emit(events.ScanCompleted, &events.ScanCompletedData{
		Due:       result.Due,
		Succeeded: result.Succeeded,
		Failed:    result.Failed,
		Skipped:   result.Skipped,
		Duration:  result.Duration,
	})

	return result
}

func (s *RecurringExecutionService) executeGuarded(ctx context.Context, order recurring.RecurringOrder, now time.Time) outcome {
	if ctx.Err() != nil {
		s.log.Debug().Str("order_id", order.ID).Msg("Scan cancelled, order left for next scan")
		return outcome{skipped: true}
	}
	if !s.acquire(order.ID) {
		s.log.Debug().Str("order_id", order.ID).Msg("Order already executing, skipping")
		return outcome{skipped: true}
	}
	defer s.release(order.ID)

	// Another scan may have executed the order between DueOrders and acquire
	current, err := s.store.Get(order.ID)
	if err != nil || !current.IsDue(now) {
		s.log.Debug().Str("order_id", order.ID).Msg("Order no longer due, skipping")
		return outcome{skipped: true}
	}

	return outcome{record: s.execute(ctx, current, now)}
}

func (s *RecurringExecutionService) execute(ctx context.Context, order recurring.RecurringOrder, now time.Time) history.ExecutionRecord {
	price, source, ok := s.lookupPrice(ctx, order.InstrumentID)
	if !ok {
		return s.fail(order, now, history.PriceUnavailable)
	}

	if order.Amount > s.ledger.CashBalance() {
		return s.fail(order, now, history.InsufficientFunds)
	}

	shares := order.Amount / price

	active, err := s.store.IsActive(order.ID)
	if err != nil || !active {
		return s.fail(order, now, history.OrderCancelled)
	}

	if err := s.ledger.BuyAt(order.InstrumentID, shares, price, now); err != nil {
		s.log.Warn().Err(err).Str("order_id", order.ID).Msg("Ledger rejected buy")
		return s.fail(order, now, history.LedgerRejected)
	}

	// The purchase happened, so the schedule advances even if the order was
	// cancelled after the re-check.
	if err := s.store.RecordSuccess(order.ID, now, order.Amount); err != nil {
		s.log.Error().Err(err).Str("order_id", order.ID).Msg("Failed to record success on order")
	}

	rec := s.history.Append(history.NewSuccess(order.ID, order.InstrumentID, now, order.Amount, price, shares, source))

	s.log.Info().
		Str("order_id", order.ID).
		Str("instrument_id", order.InstrumentID).
		Float64("amount", order.Amount).
		Float64("price", price).
		Float64("shares", shares).
		Str("price_source", source).
		Msg("Recurring order executed")
	s.emit(events.OrderExecuted, &events.OrderExecutedData{
		OrderID:      order.ID,
		RecordID:     rec.ID,
		InstrumentID: order.InstrumentID,
		Amount:       order.Amount,
		Price:        price,
		Shares:       shares,
		PriceSource:  source,
		ExecutedAt:   now,
	})
	return rec
}

// lookupPrice asks the live feed under a timeout, then the last known price
// if the fallback is enabled.
func (s *RecurringExecutionService) lookupPrice(ctx context.Context, instrumentID string) (float64, string, bool) {
	priceCtx, cancel := context.WithTimeout(ctx, s.cfg.PriceTimeout)
	defer cancel()

	if price, ok := s.fetchLive(priceCtx, instrumentID); ok {
		return price, history.PriceSourceLive, true
	}

	if !s.cfg.StalePriceFallback || s.lastKnown == nil {
		return 0, "", false
	}
	stale, ok := s.lastKnown.LastKnown(instrumentID)
	if !ok || !usablePrice(stale) {
		return 0, "", false
	}

	s.log.Warn().
		Str("instrument_id", instrumentID).
		Float64("price", stale).
		Str("transition", "PriceUnavailable->FallbackUsed").
		Msg("Live price unavailable, using last known price")
	return stale, history.PriceSourceLastKnown, true
}

type livePrice struct {
	price float64
	ok    bool
}

// fetchLive gives up when ctx is done even if the feed ignores ctx. The feed
// call is left to finish on its own; its result is discarded.
func (s *RecurringExecutionService) fetchLive(ctx context.Context, instrumentID string) (float64, bool) {
	ch := make(chan livePrice, 1)
	go func() {
		price, ok := s.feed.GetPrice(ctx, instrumentID)
		ch <- livePrice{price: price, ok: ok}
	}()

	select {
	case res := <-ch:
		if !res.ok || ctx.Err() != nil || !usablePrice(res.price) {
			return 0, false
		}
		return res.price, true
	case <-ctx.Done():
		s.log.Warn().
			Str("instrument_id", instrumentID).
			Dur("timeout", s.cfg.PriceTimeout).
			Msg("Price lookup timed out")
		return 0, false
	}
}

func (s *RecurringExecutionService) fail(order recurring.RecurringOrder, now time.Time, reason history.FailureReason) history.ExecutionRecord {
	rec := s.history.Append(history.NewFailure(order.ID, order.InstrumentID, now, order.Amount, reason))

	if err := s.store.RecordFailure(order.ID); err != nil {
		s.log.Error().Err(err).Str("order_id", order.ID).Msg("Failed to record failure on order")
	}

	s.log.Warn().
		Str("order_id", order.ID).
		Str("instrument_id", order.InstrumentID).
		Float64("amount", order.Amount).
		Str("reason", string(reason)).
		Msg("Recurring order execution failed")
	s.emit(events.OrderExecutionFailed, &events.OrderExecutionFailedData{
		OrderID:      order.ID,
		RecordID:     rec.ID,
		InstrumentID: order.InstrumentID,
		Amount:       order.Amount,
		Reason:       string(reason),
		AttemptedAt:  now,
	})
	return rec
}

func (s *RecurringExecutionService) acquire(orderID string) bool {
	s.inFlightMu.Lock()
	defer s.inFlightMu.Unlock()
	if s.inFlight[orderID] {
		return false
	}
	s.inFlight[orderID] = true
	return true
}

func (s *RecurringExecutionService) release(orderID string) {
	s.inFlightMu.Lock()
	delete(s.inFlight, orderID)
	s.inFlightMu.Unlock()
}

func (s *RecurringExecutionService) emit(eventType events.EventType, data events.EventData) {
	if s.events == nil {
		return
	}
	s.events.EmitTyped(eventType, eventModule, data)
}

func usablePrice(p float64) bool {
	return p > 0 && !math.IsInf(p, 1)
}
