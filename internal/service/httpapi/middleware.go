package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// RequestIDHeader несёт идентификатор запроса в обе стороны.
const RequestIDHeader = "X-Request-ID"

type ctxKey int

const requestIDKey ctxKey = iota

// RequestIDFromContext возвращает идентификатор текущего запроса.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func requestLogger(ctx context.Context, base *log.Entry) *log.Entry {
	if id := RequestIDFromContext(ctx); id != "" {
		return base.WithField("request_id", id)
	}
	return base
}

// statusRecorder запоминает код ответа.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) code() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func (a *API) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := a.now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		requestLogger(r.Context(), a.logger).WithFields(log.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.code(),
			"remote_addr": r.RemoteAddr,
			"duration_ms": a.now().Sub(started).Milliseconds(),
		}).Info("http request")
	})
}

func (a *API) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				requestLogger(r.Context(), a.logger).WithField("panic", p).Error("panic while handling request")
				writeJSON(w, http.StatusInternalServerError, errorResponse{Code: codeInternal, Message: "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// metricsMiddleware подключается к mux.Router и подписывает запросы шаблоном маршрута.
func (a *API) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := a.now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		a.metrics.RecordHTTPRequest(r.Method, route, rec.code(), time.Since(started))
	})
}

func (a *API) onRateLimited(w http.ResponseWriter, r *http.Request, key string) {
	a.metrics.RecordRateLimited()
	requestLogger(r.Context(), a.logger).WithField("client", key).Warn("rate limit exceeded")
	w.Header().Set("Retry-After", "1")
	writeJSON(w, http.StatusTooManyRequests, errorResponse{Code: codeRateLimited, Message: "too many requests"})
}
