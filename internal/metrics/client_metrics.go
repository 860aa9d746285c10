package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Причины отказа в создании клиента.
const (
	ReasonValidation   = "validation"
	ReasonBusinessRule = "business_rule"
	ReasonConflict     = "conflict"
	ReasonInternal     = "internal"
)

// ClientMetrics содержит метрики создания клиентов и HTTP-слоя.
type ClientMetrics struct {
	clientsCreated   prometheus.Counter
	ordersCreated    prometheus.Counter
	clientsDeleted   prometheus.Counter
	creationRejected *prometheus.CounterVec
	createDuration   prometheus.Histogram

	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	rateLimited       prometheus.Counter
	idempotentReplays prometheus.Counter
}

// NewClientMetricsWithRegisterer регистрирует метрики в переданном registerer; nil означает DefaultRegisterer.
func NewClientMetricsWithRegisterer(registerer prometheus.Registerer) *ClientMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ClientMetrics{
		clientsCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "commandes_clients_created_total",
			Help: "Total number of clients created together with their orders",
		}),
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "commandes_orders_created_total",
			Help: "Total number of orders persisted",
		}),
		clientsDeleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "commandes_clients_deleted_total",
			Help: "Total number of clients deleted",
		}),
		creationRejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "commandes_client_creation_rejected_total",
			Help: "Total number of rejected client creations grouped by reason",
		}, []string{"reason"}),
		createDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "commandes_client_create_duration_seconds",
			Help:    "Duration of client creation in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		httpRequests: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "commandes_http_requests_total",
			Help: "Total number of HTTP requests grouped by route and status code",
		}, []string{"method", "route", "code"}),
		httpDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "commandes_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		rateLimited: registerCounter(registerer, prometheus.CounterOpts{
			Name: "commandes_http_rate_limited_total",
			Help: "Total number of HTTP requests rejected by the rate limiter",
		}),
		idempotentReplays: registerCounter(registerer, prometheus.CounterOpts{
			Name: "commandes_idempotent_replays_total",
			Help: "Total number of responses replayed for a repeated Idempotency-Key",
		}),
	}
}

// RecordClientCreated учитывает созданного клиента и его заказы.
func (m *ClientMetrics) RecordClientCreated(orders int, duration time.Duration) {
	if m == nil {
		return
	}
	m.clientsCreated.Inc()
	m.ordersCreated.Add(float64(orders))
	m.createDuration.Observe(duration.Seconds())
}

// RecordCreationRejected учитывает отказ в создании клиента.
func (m *ClientMetrics) RecordCreationRejected(reason string) {
	if m == nil {
		return
	}
	m.creationRejected.WithLabelValues(reason).Inc()
}

// RecordClientDeleted учитывает удалённого клиента.
func (m *ClientMetrics) RecordClientDeleted() {
	if m == nil {
		return
	}
	m.clientsDeleted.Inc()
}

// RecordHTTPRequest учитывает завершённый HTTP-запрос.
func (m *ClientMetrics) RecordHTTPRequest(method, route string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordRateLimited учитывает запрос, отклонённый лимитером.
func (m *ClientMetrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// RecordIdempotentReplay учитывает повторно отданный сохранённый ответ.
func (m *ClientMetrics) RecordIdempotentReplay() {
	if m == nil {
		return
	}
	m.idempotentReplays.Inc()
}
