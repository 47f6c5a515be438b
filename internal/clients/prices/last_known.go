package prices

import (
	"context"
	"sync"
	"time"

	"github.com/aristath/autoinvest/internal/domain"
)

type observedPrice struct {
	price float64
	at    time.Time
}

// LastKnownCache wraps a feed and remembers every price it returns.
// GetPrice never answers from the cache; only LastKnown does.
type LastKnownCache struct {
	feed  domain.PriceFeed
	clock domain.Clock

	mu     sync.RWMutex
	prices map[string]observedPrice
}

// NewLastKnownCache wraps feed
func NewLastKnownCache(feed domain.PriceFeed, clock domain.Clock) *LastKnownCache {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &LastKnownCache{
		feed:   feed,
		clock:  clock,
		prices: make(map[string]observedPrice),
	}
}

// GetPrice implements domain.PriceFeed
func (c *LastKnownCache) GetPrice(ctx context.Context, instrumentID string) (float64, bool) {
	price, ok := c.feed.GetPrice(ctx, instrumentID)
	if ok && price > 0 {
		c.Remember(instrumentID, price)
	}
	return price, ok
}

// Remember records a price observed elsewhere, e.g. restored ledger prices
func (c *LastKnownCache) Remember(instrumentID string, price float64) {
	c.mu.Lock()
	c.prices[instrumentID] = observedPrice{price: price, at: c.clock.Now()}
	c.mu.Unlock()
}

// LastKnown returns the most recent price seen for an instrument
func (c *LastKnownCache) LastKnown(instrumentID string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[instrumentID]
	return p.price, ok
}

// ObservedAt returns when the last known price was seen
func (c *LastKnownCache) ObservedAt(instrumentID string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[instrumentID]
	return p.at, ok
}
