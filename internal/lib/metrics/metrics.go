// Package metrics объявляет счётчики Prometheus сервиса. Все методы безопасно
// вызывать на nil *Metrics, что удобно в тестах.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "drivemetrics"

// Metrics набор метрик.
type Metrics struct {
	accessDecisions *prometheus.CounterVec
	lazyExpirations prometheus.Counter
	webhookEvents   *prometheus.CounterVec
	sweepExpired    *prometheus.CounterVec
	sweepDuration   prometheus.Histogram
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New регистрирует метрики в reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		accessDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_decisions_total",
			Help:      "Access checks by resulting mode.",
		}, []string{"mode"}),
		lazyExpirations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lazy_expirations_total",
			Help:      "Users moved to expired on read.",
		}),
		webhookEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_notifications_total",
			Help:      "Payment notifications by outcome.",
		}, []string{"outcome"}),
		sweepExpired: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_expired_total",
			Help:      "Users expired by the periodic sweep.",
		}, []string{"reason"}),
		sweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of expiry sweeps.",
			Buckets:   prometheus.DefBuckets,
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// AccessDecision учитывает результат проверки доступа.
func (m *Metrics) AccessDecision(mode string) {
	if m == nil {
		return
	}
	m.accessDecisions.WithLabelValues(mode).Inc()
}

// LazyExpiration учитывает перевод в expired при чтении.
func (m *Metrics) LazyExpiration() {
	if m == nil {
		return
	}
	m.lazyExpirations.Inc()
}

// WebhookEvent учитывает обработанное уведомление провайдера.
func (m *Metrics) WebhookEvent(outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(outcome).Inc()
}

// Sweep учитывает результат прохода.
func (m *Metrics) Sweep(trials, subscriptions int, took time.Duration) {
	if m == nil {
		return
	}
	m.sweepExpired.WithLabelValues("trial").Add(float64(trials))
	m.sweepExpired.WithLabelValues("subscription").Add(float64(subscriptions))
	m.sweepDuration.Observe(took.Seconds())
}

// HTTPRequest учитывает обработанный HTTP-запрос.
func (m *Metrics) HTTPRequest(method, route string, code int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}
