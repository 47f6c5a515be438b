package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
)

const (
	writeWait   = 10 * time.Second
	dialTimeout = 30 * time.Second

	baseReconnectDelay   = 5 * time.Second
	maxReconnectDelay    = 5 * time.Minute
	maxReconnectAttempts = 10

	pricesChannel = "prices"
)

// Quote is one streamed price
type Quote struct {
	InstrumentID string  `json:"instrument_id"`
	Price        float64 `json:"price"`
}

type cachedQuote struct {
	price     float64
	updatedAt time.Time
}

// StreamFeed keeps a cache of prices pushed over a websocket.
//
// Protocol: after connecting the client sends ["prices"]; the server then
// pushes ["prices", [{"instrument_id": "...", "price": 1.23}, ...]].
// A cached price older than maxAge is reported unavailable.
type StreamFeed struct {
	url    string
	maxAge time.Duration

	conn       *websocket.Conn
	connCtx    context.Context
	cancelFunc context.CancelFunc
	mu         sync.RWMutex

	connected    bool
	reconnecting bool
	stopChan     chan struct{}
	stopped      bool

	cache   map[string]cachedQuote
	cacheMu sync.RWMutex
	now     func() time.Time

	log zerolog.Logger
}

// NewStreamFeed creates a websocket price feed for url
func NewStreamFeed(url string, maxAge time.Duration, log zerolog.Logger) *StreamFeed {
	return &StreamFeed{
		url:      url,
		maxAge:   maxAge,
		stopChan: make(chan struct{}),
		cache:    make(map[string]cachedQuote),
		now:      time.Now,
		log:      log.With().Str("component", "price_stream").Logger(),
	}
}

// Start connects and starts the read loop. If the first connection fails
// the feed keeps retrying in the background and the error is returned.
func (s *StreamFeed) Start() error {
	s.log.Info().Str("url", s.url).Msg("Starting price stream")

	if err := s.Connect(); err != nil {
		s.log.Warn().Err(err).Msg("Initial price stream connection failed, will retry in background")
		go s.reconnectLoop()
		return err
	}

	s.mu.RLock()
	ctx := s.connCtx
	s.mu.RUnlock()
	go s.readMessages(ctx)
	return nil
}

// Stop closes the connection and ends reconnection attempts
func (s *StreamFeed) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	s.log.Info().Msg("Stopping price stream")
	close(s.stopChan)
	return s.Disconnect()
}

// Connect dials the stream and subscribes to the prices channel
func (s *StreamFeed) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), dialTimeout)
	defer dialCancel()

	conn, _, err := websocket.Dial(dialCtx, s.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial price stream: %w", err)
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	s.conn = conn
	s.connCtx = connCtx
	s.cancelFunc = connCancel
	s.connected = true

	if err := s.subscribe(connCtx); err != nil {
		connCancel()
		conn.Close(websocket.StatusNormalClosure, "subscribe failed")
		s.conn = nil
		s.connCtx = nil
		s.cancelFunc = nil
		s.connected = false
		return fmt.Errorf("failed to subscribe to prices: %w", err)
	}

	s.log.Info().Msg("Connected to price stream")
	return nil
}

// Disconnect closes the current connection, if any
func (s *StreamFeed) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}

	if s.cancelFunc != nil {
		s.cancelFunc()
		s.cancelFunc = nil
	}

	err := s.conn.Close(websocket.StatusNormalClosure, "")
	s.conn = nil
	s.connCtx = nil
	s.connected = false

	if err != nil {
		return fmt.Errorf("error closing price stream: %w", err)
	}
	return nil
}

// subscribe must be called with mu held
func (s *StreamFeed) subscribe(ctx context.Context) error {
	data, err := json.Marshal([]string{pricesChannel})
	if err != nil {
		return fmt.Errorf("failed to marshal subscription message: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()

	return s.conn.Write(writeCtx, websocket.MessageText, data)
}

func (s *StreamFeed) readMessages(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.connected = false
		stopped := s.stopped
		s.mu.Unlock()
		if !stopped {
			go s.reconnectLoop()
		}
	}()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		default:
		}

		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}

		msgType, message, err := conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			switch {
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				s.log.Info().Int("status", int(status)).Msg("Price stream closed")
			case ctx.Err() != nil:
				s.log.Debug().Msg("Price stream read cancelled")
			default:
				s.log.Error().Err(err).Msg("Unexpected price stream read error")
			}
			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		if err := s.handleMessage(message); err != nil {
			s.log.Warn().Err(err).Str("message", string(message)).Msg("Failed to handle price message")
		}
	}
}

func (s *StreamFeed) handleMessage(message []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(message, &raw); err != nil {
		return fmt.Errorf("failed to parse message array: %w", err)
	}
	if len(raw) < 2 {
		return fmt.Errorf("message array too short: expected 2 elements, got %d", len(raw))
	}

	var channel string
	if err := json.Unmarshal(raw[0], &channel); err != nil {
		return fmt.Errorf("failed to parse channel: %w", err)
	}
	if channel != pricesChannel {
		return nil
	}

	var quotes []Quote
	if err := json.Unmarshal(raw[1], &quotes); err != nil {
		return fmt.Errorf("failed to parse quotes: %w", err)
	}

	now := s.now()
	updated := 0
	s.cacheMu.Lock()
	for _, q := range quotes {
		if q.InstrumentID == "" || !(q.Price > 0) {
			continue
		}
		s.cache[q.InstrumentID] = cachedQuote{price: q.Price, updatedAt: now}
		updated++
	}
	s.cacheMu.Unlock()

	s.log.Debug().Int("quotes", updated).Msg("Price cache updated")
	return nil
}

func (s *StreamFeed) reconnectLoop() {
	s.mu.Lock()
	if s.reconnecting || s.stopped {
		s.mu.Unlock()
		return
	}
	s.reconnecting = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.reconnecting = false
		s.mu.Unlock()
	}()

	for attempt := 1; ; attempt++ {
		delay := calculateBackoff(attempt)
		if attempt <= maxReconnectAttempts {
			s.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("Reconnecting to price stream")
		} else {
			s.log.Warn().Int("attempt", attempt).Dur("delay", delay).Msg("Reconnecting to price stream (exceeded max attempts, will keep retrying)")
		}

		select {
		case <-time.After(delay):
		case <-s.stopChan:
			return
		}

		if err := s.Connect(); err != nil {
			s.log.Error().Err(err).Int("attempt", attempt).Msg("Price stream reconnection failed")
			continue
		}

		s.mu.RLock()
		ctx := s.connCtx
		s.mu.RUnlock()
		go s.readMessages(ctx)
		return
	}
}

func calculateBackoff(attempt int) time.Duration {
	delay := float64(baseReconnectDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxReconnectDelay) {
		delay = float64(maxReconnectDelay)
	}
	return time.Duration(delay)
}

// GetPrice implements domain.PriceFeed from the cache. It never blocks.
func (s *StreamFeed) GetPrice(ctx context.Context, instrumentID string) (float64, bool) {
	if ctx.Err() != nil {
		return 0, false
	}

	s.cacheMu.RLock()
	q, ok := s.cache[instrumentID]
	s.cacheMu.RUnlock()
	if !ok {
		return 0, false
	}
	if s.maxAge > 0 && s.now().Sub(q.updatedAt) > s.maxAge {
		return 0, false
	}
	return q.price, true
}

// IsConnected reports whether the stream is currently connected
func (s *StreamFeed) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}
