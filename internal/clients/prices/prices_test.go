package prices

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	testingpkg "github.com/aristath/autoinvest/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

func TestParseStaticPrices(t *testing.T) {
	prices, err := ParseStaticPrices(" VWRL=101.5, ISF = 7.2 ,,")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"VWRL": 101.5, "ISF": 7.2}, prices)

	empty, err := ParseStaticPrices("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, bad := range []string{"VWRL", "=5", "VWRL=abc", "VWRL=-1", "VWRL=0"} {
		_, err := ParseStaticPrices(bad)
		assert.Error(t, err, bad)
	}
}

func TestStaticFeed(t *testing.T) {
	feed := NewStaticFeed(map[string]float64{"A": 10})

	p, ok := feed.GetPrice(context.Background(), "A")
	assert.True(t, ok)
	assert.Equal(t, 10.0, p)

	_, ok = feed.GetPrice(context.Background(), "B")
	assert.False(t, ok)

	feed.SetPrice("B", 3)
	p, ok = feed.GetPrice(context.Background(), "B")
	assert.True(t, ok)
	assert.Equal(t, 3.0, p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok = feed.GetPrice(ctx, "A")
	assert.False(t, ok)
}

func TestHTTPFeed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/prices/VWRL":
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(priceResponse{InstrumentID: "VWRL", Price: 98.25})
		case "/prices/BAD":
			_, _ = w.Write([]byte("not json"))
		case "/prices/ZERO":
			_ = json.NewEncoder(w).Encode(priceResponse{InstrumentID: "ZERO", Price: 0})
		case "/prices/SLOW":
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	feed := NewHTTPFeed(server.URL+"/prices/", 5*time.Second, zerolog.Nop())

	p, ok := feed.GetPrice(context.Background(), "VWRL")
	require.True(t, ok)
	assert.Equal(t, 98.25, p)

	for _, id := range []string{"MISSING", "BAD", "ZERO"} {
		_, ok := feed.GetPrice(context.Background(), id)
		assert.False(t, ok, id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, ok = feed.GetPrice(ctx, "SLOW")
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestLastKnownCache(t *testing.T) {
	clock := testingpkg.NewFakeClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	inner := testingpkg.NewMockPriceFeed(map[string]float64{"A": 10})
	cache := NewLastKnownCache(inner, clock)

	_, ok := cache.LastKnown("A")
	assert.False(t, ok)

	p, ok := cache.GetPrice(context.Background(), "A")
	require.True(t, ok)
	assert.Equal(t, 10.0, p)

	inner.SetUnavailable("A")
	clock.Advance(time.Hour)

	_, ok = cache.GetPrice(context.Background(), "A")
	assert.False(t, ok, "GetPrice never answers from the cache")

	last, ok := cache.LastKnown("A")
	require.True(t, ok)
	assert.Equal(t, 10.0, last)
	at, _ := cache.ObservedAt("A")
	assert.True(t, at.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))

	cache.Remember("B", 4)
	last, ok = cache.LastKnown("B")
	require.True(t, ok)
	assert.Equal(t, 4.0, last)
}

// newStreamServer accepts one websocket client, waits for the subscription
// and then sends every message pushed on the returned channel.
func newStreamServer(t *testing.T) (*httptest.Server, chan<- string, <-chan string) {
	t.Helper()
	outgoing := make(chan string, 8)
	subscriptions := make(chan string, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx := r.Context()
		_, msg, err := conn.Read(ctx)
		if err != nil {
			return
		}
		subscriptions <- string(msg)

		for {
			select {
			case m := <-outgoing:
				if err := conn.Write(ctx, websocket.MessageText, []byte(m)); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}))
	t.Cleanup(server.Close)
	return server, outgoing, subscriptions
}

func TestStreamFeed_ReceivesQuotes(t *testing.T) {
	server, outgoing, subscriptions := newStreamServer(t)
	url := "ws" + strings.TrimPrefix(server.URL, "http")

	feed := NewStreamFeed(url, time.Minute, zerolog.Nop())
	require.NoError(t, feed.Start())
	t.Cleanup(func() { _ = feed.Stop() })

	select {
	case sub := <-subscriptions:
		assert.JSONEq(t, `["prices"]`, sub)
	case <-time.After(2 * time.Second):
		t.Fatal("no subscription received")
	}
	assert.True(t, feed.IsConnected())

	_, ok := feed.GetPrice(context.Background(), "VWRL")
	assert.False(t, ok)

	outgoing <- `["other", {"x": 1}]`
	outgoing <- `not json`
	outgoing <- `["prices", [{"instrument_id": "VWRL", "price": 101.5}, {"instrument_id": "BAD", "price": -1}]]`

	require.Eventually(t, func() bool {
		_, ok := feed.GetPrice(context.Background(), "VWRL")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	p, _ := feed.GetPrice(context.Background(), "VWRL")
	assert.Equal(t, 101.5, p)
	_, ok = feed.GetPrice(context.Background(), "BAD")
	assert.False(t, ok)
}

func TestStreamFeed_HandleMessageAndStaleness(t *testing.T) {
	feed := NewStreamFeed("ws://unused", time.Minute, zerolog.Nop())

	var mu sync.Mutex
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	feed.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	require.NoError(t, feed.handleMessage([]byte(`["prices", [{"instrument_id": "A", "price": 2.5}]]`)))
	assert.Error(t, feed.handleMessage([]byte(`["prices"]`)))
	assert.Error(t, feed.handleMessage([]byte(`{"prices": 1}`)))
	assert.Error(t, feed.handleMessage([]byte(`["prices", {"instrument_id": "A"}]`)))

	p, ok := feed.GetPrice(context.Background(), "A")
	require.True(t, ok)
	assert.Equal(t, 2.5, p)

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()
	_, ok = feed.GetPrice(context.Background(), "A")
	assert.False(t, ok, "stale quote is unavailable")
}

func TestStreamFeed_StartFailsWithoutServer(t *testing.T) {
	feed := NewStreamFeed("ws://127.0.0.1:1", time.Minute, zerolog.Nop())
	assert.Error(t, feed.Start())
	assert.False(t, feed.IsConnected())
	assert.NoError(t, feed.Stop())
}

func TestCalculateBackoff(t *testing.T) {
	assert.Equal(t, baseReconnectDelay, calculateBackoff(1))
	assert.Equal(t, 2*baseReconnectDelay, calculateBackoff(2))
	assert.Equal(t, maxReconnectDelay, calculateBackoff(20))
}
