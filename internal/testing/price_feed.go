package testing

import (
	"context"
	"sync"
	"time"
)

// MockPriceFeed is a controllable price feed.
// Unknown instruments are unavailable.
type MockPriceFeed struct {
	mu     sync.RWMutex
	prices map[string]float64
	delay  time.Duration
	calls  map[string]int
	onCall func(instrumentID string)
}

// NewMockPriceFeed creates a feed with the given prices
func NewMockPriceFeed(prices map[string]float64) *MockPriceFeed {
	m := &MockPriceFeed{
		prices: make(map[string]float64),
		calls:  make(map[string]int),
	}
	for id, p := range prices {
		m.prices[id] = p
	}
	return m
}

// SetPrice sets the price returned for an instrument
func (m *MockPriceFeed) SetPrice(instrumentID string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[instrumentID] = price
}

// SetUnavailable makes the instrument report no price
func (m *MockPriceFeed) SetUnavailable(instrumentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.prices, instrumentID)
}

// SetDelay makes every lookup wait d (or until ctx is done)
func (m *MockPriceFeed) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// OnCall registers a hook run at the start of every lookup
func (m *MockPriceFeed) OnCall(fn func(instrumentID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCall = fn
}

// Calls returns how many lookups were made for an instrument
func (m *MockPriceFeed) Calls(instrumentID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[instrumentID]
}

// GetPrice implements domain.PriceFeed
func (m *MockPriceFeed) GetPrice(ctx context.Context, instrumentID string) (float64, bool) {
	m.mu.Lock()
	m.calls[instrumentID]++
	delay := m.delay
	hook := m.onCall
	m.mu.Unlock()

	if hook != nil {
		hook(instrumentID)
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return 0, false
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	price, ok := m.prices[instrumentID]
	return price, ok
}
