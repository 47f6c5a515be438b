// Package prices provides the price feeds the execution engine reads from:
// a static table, an HTTP JSON endpoint, a websocket stream and a
// last-known-price cache that can wrap any of them.
package prices

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// StaticFeed serves prices from an in-memory table
type StaticFeed struct {
	mu     sync.RWMutex
	prices map[string]float64
}

// NewStaticFeed creates a feed serving a copy of prices
func NewStaticFeed(prices map[string]float64) *StaticFeed {
	f := &StaticFeed{prices: make(map[string]float64, len(prices))}
	for id, p := range prices {
		f.prices[id] = p
	}
	return f
}

// ParseStaticPrices parses "ID=price,ID=price"
func ParseStaticPrices(s string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		id, raw, ok := strings.Cut(pair, "=")
		id = strings.TrimSpace(id)
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid price entry %q: expected ID=price", pair)
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil || price <= 0 {
			return nil, fmt.Errorf("invalid price for %s: %q", id, raw)
		}
		out[id] = price
	}
	return out, nil
}

// SetPrice sets or replaces one price
func (f *StaticFeed) SetPrice(instrumentID string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[instrumentID] = price
}

// GetPrice implements domain.PriceFeed
func (f *StaticFeed) GetPrice(ctx context.Context, instrumentID string) (float64, bool) {
	if ctx.Err() != nil {
		return 0, false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.prices[instrumentID]
	return p, ok
}
