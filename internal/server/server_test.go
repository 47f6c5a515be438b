package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/autoinvest/internal/config"
	"github.com/aristath/autoinvest/internal/di"
	"github.com/aristath/autoinvest/internal/events"
	"github.com/aristath/autoinvest/internal/modules/recurring"
)

func newTestServer(t *testing.T, backend string) (*Server, *di.Container) {
	t.Helper()
	cfg := &config.Config{
		DataDir:         t.TempDir(),
		Port:            0,
		DevMode:         true,
		ScanSchedule:    "@every 1h",
		ScanConcurrency: 1,
		InitialCash:     500,
		PriceFeed: config.PriceFeedConfig{
			Mode:         config.PriceFeedStatic,
			Timeout:      time.Second,
			MaxAge:       time.Minute,
			StaticPrices: "VWRL=100",
		},
		Store: config.StoreConfig{Backend: backend},
	}

	container, err := di.Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(container.Close)

	s := New(Config{Log: zerolog.Nop(), Config: cfg, Container: container})
	s.systemHandlers.systemStats = func() (float64, float64) { return 12.5, 40 }
	return s, container
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
	return w
}

func TestServer_Health(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		s, _ := newTestServer(t, config.StoreMemory)
		w := get(t, s.Handler(), "/health")
		assert.Equal(t, http.StatusOK, w.Code)

		var response map[string]interface{}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, "healthy", response["status"])
		assert.Equal(t, "memory", response["store"])
	})

	t.Run("sqlite", func(t *testing.T) {
		s, container := newTestServer(t, config.StoreSQLite)
		assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/health").Code)

		require.NoError(t, container.StateDB.Close())
		assert.Equal(t, http.StatusServiceUnavailable, get(t, s.Handler(), "/health").Code)
	})
}

func TestServer_Metrics(t *testing.T) {
	s, _ := newTestServer(t, config.StoreMemory)

	w := get(t, s.Handler(), "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "autoinvest_cash_balance 500")
}

func TestServer_SystemStatus(t *testing.T) {
	s, container := newTestServer(t, config.StoreMemory)

	_, err := container.OrderStore.Add(recurring.NewOrder{InstrumentID: "VWRL", Amount: 50, Frequency: recurring.Weekly})
	require.NoError(t, err)
	paused, err := container.OrderStore.Add(recurring.NewOrder{InstrumentID: "VWRL", Amount: 20, Frequency: recurring.Daily})
	require.NoError(t, err)
	require.NoError(t, container.OrderStore.Pause(paused))

	_, err = container.ScanJob.RunScan(context.Background())
	require.NoError(t, err)

	w := get(t, s.Handler(), "/api/system/status")
	assert.Equal(t, http.StatusOK, w.Code)

	var response SystemStatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "healthy", response.Status)
	assert.Equal(t, 12.5, response.CPUPercent)
	assert.Equal(t, 40.0, response.MemoryPercent)
	assert.Equal(t, 2, response.Orders.Total)
	assert.Equal(t, 1, response.Orders.Active)
	assert.Equal(t, 1, response.Orders.Paused)
	assert.Equal(t, 500.0, response.CashBalance)
	require.NotNil(t, response.LastScan)
	assert.Equal(t, 0, response.LastScan.Due)
	require.Len(t, response.Jobs, 1)
	assert.Equal(t, "recurring_scan", response.Jobs[0].Name)
	assert.Equal(t, container.Config.ScanSchedule, response.Jobs[0].Schedule)
}

func TestServer_DiskUsage(t *testing.T) {
	s, _ := newTestServer(t, config.StoreSQLite)

	w := get(t, s.Handler(), "/api/system/disk")
	assert.Equal(t, http.StatusOK, w.Code)

	var response DiskUsageResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Greater(t, response.StateDBMB, 0.0)
}

func TestServer_RoutesMounted(t *testing.T) {
	s, _ := newTestServer(t, config.StoreMemory)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest("POST", "/api/recurring-orders",
		strings.NewReader(`{"instrument_id": "VWRL", "amount": 25, "frequency": "daily"}`)))
	assert.Equal(t, http.StatusCreated, w.Code)

	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/api/recurring-orders").Code)
	assert.Equal(t, http.StatusOK, get(t, s.Handler(), "/api/ledger/cash").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s.Handler(), "/api/unknown").Code)
}

func TestServer_EventStream(t *testing.T) {
	s, container := newTestServer(t, config.StoreMemory)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/events/stream?types=ORDER_CREATED", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	reader := bufio.NewReader(resp.Body)

	first := readSSE(t, reader)
	assert.Equal(t, "connected", first["type"])

	// Filtered out
	container.EventManager.EmitTyped(events.ScanCompleted, "test", &events.ScanCompletedData{})
	_, err = container.OrderStore.Add(recurring.NewOrder{InstrumentID: "VWRL", Amount: 25, Frequency: recurring.Daily})
	require.NoError(t, err)

	next := readSSE(t, reader)
	assert.Equal(t, string(events.OrderCreated), next["type"])
	assert.Equal(t, "VWRL", next["data"].(map[string]interface{})["instrument_id"])
}

func readSSE(t *testing.T, r *bufio.Reader) map[string]interface{} {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		if err == io.EOF {
			t.Fatal("event stream closed")
		}
		require.NoError(t, err)

		payload, ok := strings.CutPrefix(strings.TrimSpace(line), "data: ")
		if !ok {
			continue
		}
		var event map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(payload), &event))
		return event
	}
}
