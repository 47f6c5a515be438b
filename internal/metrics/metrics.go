// Package metrics exposes Prometheus collectors fed from the event bus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/aristath/autoinvest/internal/events"
)

const namespace = "autoinvest"

// Metrics holds the collectors for one registry
type Metrics struct {
	registry *prometheus.Registry

	ordersExecuted  *prometheus.CounterVec
	orderFailures   *prometheus.CounterVec
	investedTotal   prometheus.Counter
	lifecycleEvents *prometheus.CounterVec
	scans           prometheus.Counter
	scanDuration    prometheus.Histogram
	lastScanDue     prometheus.Gauge
	cashBalance     prometheus.Gauge

	log zerolog.Logger
}

// New creates the collectors and registers them on a fresh registry
// alongside the Go runtime and process collectors.
func New(log zerolog.Logger) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ordersExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_executed_total",
			Help:      "Successful recurring order executions, by price source",
		}, []string{"price_source"}),
		orderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_failures_total",
			Help:      "Failed recurring order executions, by reason",
		}, []string{"reason"}),
		investedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invested_amount_total",
			Help:      "Cash spent by successful recurring executions",
		}),
		lifecycleEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_lifecycle_events_total",
			Help:      "Recurring order lifecycle transitions, by event type",
		}, []string{"event"}),
		scans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Completed execution scans",
		}),
		scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Wall time of execution scans",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}),
		lastScanDue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_scan_due_orders",
			Help:      "Orders found due by the most recent scan",
		}),
		cashBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cash_balance",
			Help:      "Ledger cash balance after the latest cash movement",
		}),
		log: log.With().Str("component", "metrics").Logger(),
	}

	m.registry.MustRegister(
		m.ordersExecuted,
		m.orderFailures,
		m.investedTotal,
		m.lifecycleEvents,
		m.scans,
		m.scanDuration,
		m.lastScanDue,
		m.cashBalance,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Subscribe wires the collectors to the bus
func (m *Metrics) Subscribe(bus *events.Bus) {
	bus.Subscribe(m.Observe)
}

// Observe updates collectors for a single event
func (m *Metrics) Observe(ev events.Event) {
	switch data := ev.Data.(type) {
	case *events.OrderExecutedData:
		m.ordersExecuted.WithLabelValues(data.PriceSource).Inc()
		m.investedTotal.Add(data.Amount)
	case *events.OrderExecutionFailedData:
		m.orderFailures.WithLabelValues(data.Reason).Inc()
	case *events.ScanCompletedData:
		m.scans.Inc()
		m.scanDuration.Observe(data.Duration.Seconds())
		m.lastScanDue.Set(float64(data.Due))
	case *events.CashUpdatedData:
		m.cashBalance.Set(data.Balance)
	case *events.OrderLifecycleData:
		m.lifecycleEvents.WithLabelValues(string(ev.Type)).Inc()
	default:
		m.log.Debug().Str("event_type", string(ev.Type)).Msg("Event not tracked")
	}
}

// SetCashBalance seeds the cash gauge, used at startup before any movement
func (m *Metrics) SetCashBalance(balance float64) {
	m.cashBalance.Set(balance)
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
