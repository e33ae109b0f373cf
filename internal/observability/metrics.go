package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by API, worker and reconciler flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec
	paymentTransitionsTotal *prometheus.CounterVec
	paymentAmountTotal      *prometheus.CounterVec
	webhookDeliveriesTotal  *prometheus.CounterVec
	webhookDeliveryDuration *prometheus.HistogramVec
	webhookDisabledTotal    prometheus.Counter
	deliveryInflight        prometheus.Gauge
	stuckAttemptsFound      prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "payment_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "payment_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		paymentTransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "payment_engine",
				Name:      "payment_transitions_total",
				Help:      "Total number of payment attempt status transitions by target status.",
			},
			[]string{"to_status"},
		),
		paymentAmountTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "payment_engine",
				Name:      "payment_amount_minor_units_total",
				Help:      "Total ledger amounts in minor units by transaction type.",
			},
			[]string{"type"},
		),
		webhookDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "payment_engine",
				Name:      "webhook_deliveries_total",
				Help:      "Total number of webhook delivery attempts by outcome.",
			},
			[]string{"outcome"},
		),
		webhookDeliveryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "payment_engine",
				Name:      "webhook_delivery_duration_seconds",
				Help:      "Webhook delivery attempt duration in seconds by outcome.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"outcome"},
		),
		webhookDisabledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "payment_engine",
				Name:      "webhook_auto_disabled_total",
				Help:      "Total number of webhooks disabled by the failure circuit breaker.",
			},
		),
		deliveryInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "payment_engine",
				Name:      "webhook_delivery_inflight",
				Help:      "Current number of in-flight webhook delivery jobs.",
			},
		),
		stuckAttemptsFound: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "payment_engine",
				Name:      "reconciliation_stuck_attempts",
				Help:      "Number of stuck payment attempts found by the last reconciliation scan.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.paymentTransitionsTotal,
		m.paymentAmountTotal,
		m.webhookDeliveriesTotal,
		m.webhookDeliveryDuration,
		m.webhookDisabledTotal,
		m.deliveryInflight,
		m.stuckAttemptsFound,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncPaymentTransition(toStatus string) {
	if m == nil {
		return
	}
	m.paymentTransitionsTotal.WithLabelValues(normalizeLabel(toStatus)).Inc()
}

func (m *Metrics) AddLedgerAmount(txType string, amount int64) {
	if m == nil || amount <= 0 {
		return
	}
	m.paymentAmountTotal.WithLabelValues(normalizeLabel(txType)).Add(float64(amount))
}

func (m *Metrics) ObserveWebhookDelivery(success bool, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.webhookDeliveriesTotal.WithLabelValues(outcome).Inc()
	m.webhookDeliveryDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *Metrics) IncWebhookDisabled() {
	if m == nil {
		return
	}
	m.webhookDisabledTotal.Inc()
}

func (m *Metrics) IncDeliveryInFlight() {
	if m == nil {
		return
	}
	m.deliveryInflight.Inc()
}

func (m *Metrics) DecDeliveryInFlight() {
	if m == nil {
		return
	}
	m.deliveryInflight.Dec()
}

func (m *Metrics) SetStuckAttempts(count int) {
	if m == nil {
		return
	}
	m.stuckAttemptsFound.Set(float64(count))
}

func (m *Metrics) recordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}

	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
