package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// HTTPFeed fetches prices from a JSON endpoint:
// GET {baseURL}/{instrumentID} -> {"instrument_id": "...", "price": 123.4}
type HTTPFeed struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

type priceResponse struct {
	InstrumentID string  `json:"instrument_id"`
	Price        float64 `json:"price"`
}

// NewHTTPFeed creates an HTTP price feed. Requests are bounded by the
// caller's context; timeout is a backstop for callers without a deadline.
func NewHTTPFeed(baseURL string, timeout time.Duration, log zerolog.Logger) *HTTPFeed {
	return &HTTPFeed{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		log:     log.With().Str("client", "price_http").Logger(),
	}
}

// GetPrice implements domain.PriceFeed
func (f *HTTPFeed) GetPrice(ctx context.Context, instrumentID string) (float64, bool) {
	price, err := f.fetch(ctx, instrumentID)
	if err != nil {
		f.log.Debug().Err(err).Str("instrument_id", instrumentID).Msg("Price fetch failed")
		return 0, false
	}
	return price, true
}

func (f *HTTPFeed) fetch(ctx context.Context, instrumentID string) (float64, error) {
	endpoint := fmt.Sprintf("%s/%s", f.baseURL, url.PathEscape(instrumentID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price endpoint returned status %d", resp.StatusCode)
	}

	var body priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to parse response: %w", err)
	}
	if body.Price <= 0 {
		return 0, fmt.Errorf("non-positive price %v", body.Price)
	}
	return body.Price, nil
}
