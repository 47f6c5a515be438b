// Package domain holds the contracts of the collaborators the engine consumes
// but does not implement: the price feed, the clock and the durable store.
package domain

import (
	"context"
	"time"
)

// PriceFeed returns a current price for an instrument.
// ok is false when no price is available. Implementations must honour ctx
// cancellation so the engine can bound every lookup with a timeout.
type PriceFeed interface {
	GetPrice(ctx context.Context, instrumentID string) (price float64, ok bool)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// DurableStore saves and loads opaque blobs by key.
// A single Save call is assumed crash-consistent.
type DurableStore interface {
	Save(ctx context.Context, key string, blob []byte) error
	// Load returns ok=false (and no error) when key has never been saved.
	Load(ctx context.Context, key string) (blob []byte, ok bool, err error)
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now()
func (SystemClock) Now() time.Time {
	return time.Now()
}

// PriceFeedFunc adapts a function to PriceFeed.
type PriceFeedFunc func(ctx context.Context, instrumentID string) (float64, bool)

// GetPrice calls f.
func (f PriceFeedFunc) GetPrice(ctx context.Context, instrumentID string) (float64, bool) {
	return f(ctx, instrumentID)
}
