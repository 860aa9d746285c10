// Package httpapi публикует сценарии работы с клиентами по HTTP.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commandes/internal/domain"
	"github.com/vladislavdragonenkov/commandes/internal/metrics"
	"github.com/vladislavdragonenkov/commandes/internal/service/clients"
)

func init() {
	// montant отдаётся JSON-числом.
	decimal.MarshalJSONWithoutQuotes = true
}

const defaultIdempotencyTTL = 24 * time.Hour

// API держит зависимости HTTP-обработчиков.
type API struct {
	svc          *clients.Service
	idem         domain.IdempotencyRepository
	idemTTL      time.Duration
	limiter      *RateLimiter
	logger       *log.Entry
	metrics      *metrics.ClientMetrics
	maxBodyBytes int64
	now          func() time.Time
}

// Option настраивает API.
type Option func(*API)

// WithLogger задаёт logger HTTP-слоя.
func WithLogger(logger *log.Entry) Option {
	return func(a *API) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithMetrics задаёт метрики HTTP-слоя.
func WithMetrics(m *metrics.ClientMetrics) Option {
	return func(a *API) {
		a.metrics = m
	}
}

// WithIdempotency включает поддержку заголовка Idempotency-Key для POST.
func WithIdempotency(repo domain.IdempotencyRepository, ttl time.Duration) Option {
	return func(a *API) {
		a.idem = repo
		if ttl > 0 {
			a.idemTTL = ttl
		}
	}
}

// WithRateLimiter включает ограничение частоты запросов по IP клиента.
func WithRateLimiter(limiter *RateLimiter) Option {
	return func(a *API) {
		a.limiter = limiter
	}
}

// NewAPI конструирует API поверх сервиса клиентов.
func NewAPI(svc *clients.Service, options ...Option) *API {
	a := &API{
		svc:          svc,
		idemTTL:      defaultIdempotencyTTL,
		logger:       log.WithField("component", "http-api"),
		maxBodyBytes: 1 << 20,
		now:          time.Now,
	}
	for _, option := range options {
		option(a)
	}
	return a
}

// Handler возвращает таблицу маршрутов, обёрнутую middleware.
func (a *API) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/clients/{id}/commandes", a.withIdempotency(a.createClientWithOrders)).Methods(http.MethodPost)
	r.HandleFunc("/clients/{id}/commandes", a.listClientOrders).Methods(http.MethodGet)
	r.HandleFunc("/clients/{id}/commandes/page", a.listOrdersPage).Methods(http.MethodGet)
	r.HandleFunc("/clients/{id}", a.deleteClient).Methods(http.MethodDelete)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Code: codeNotFound, Message: "route not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Code: codeMethodNotAllowed, Message: "method not allowed"})
	})
	r.Use(a.metricsMiddleware)

	var handler http.Handler = r
	if a.limiter != nil {
		handler = a.limiter.Middleware(handler, a.onRateLimited)
	}
	handler = a.loggingMiddleware(handler)
	handler = a.recoveryMiddleware(handler)
	return requestIDMiddleware(handler)
}
