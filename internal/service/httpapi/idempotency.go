package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commandes/internal/domain"
)

const (
	// IdempotencyKeyHeader — заголовок ключа идемпотентности.
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotentReplayHeader выставляется, когда ответ взят из сохранённой записи.
	IdempotentReplayHeader = "Idempotent-Replayed"
)

// captureWriter пишет ответ клиенту и одновременно сохраняет его копию.
type captureWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (c *captureWriter) WriteHeader(status int) {
	if c.status == 0 {
		c.status = status
	}
	c.ResponseWriter.WriteHeader(status)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

// withIdempotency оборачивает POST: без ключа запрос выполняется как обычно.
func (a *API) withIdempotency(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
		if a.idem == nil || key == "" {
			next(w, r)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.maxBodyBytes))
		if err != nil {
			a.writeError(w, r, domain.NewValidationError("body", "cannot read request body"))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		logger := requestLogger(r.Context(), a.logger).WithField("idempotency_key", key)
		record, err := a.idem.CreateProcessing(r.Context(), key, requestHash(r, body), a.now().UTC().Add(a.idemTTL))
		if err != nil {
			a.replay(w, r, logger, record, err)
			return
		}

		defer func() {
			if p := recover(); p != nil {
				a.failPanicked(r, logger, key)
				panic(p)
			}
		}()

		capture := &captureWriter{ResponseWriter: w}
		next(capture, r)

		status := capture.status
		if status == 0 {
			status = http.StatusOK
		}
		store := a.idem.MarkDone
		if status >= http.StatusBadRequest {
			store = a.idem.MarkFailed
		}
		if err := store(r.Context(), key, capture.body.Bytes(), status); err != nil {
			logger.WithError(err).Warn("failed to store idempotent response")
		}
	}
}

// failPanicked закрывает запись ключа ответом 500 после паники обработчика.
func (a *API) failPanicked(r *http.Request, logger *log.Entry, key string) {
	body, err := json.Marshal(errorResponse{Code: codeInternal, Message: "internal server error"})
	if err != nil {
		logger.WithError(err).Error("failed to encode idempotent failure")
		return
	}
	if err := a.idem.MarkFailed(context.WithoutCancel(r.Context()), key, body, http.StatusInternalServerError); err != nil {
		logger.WithError(err).Warn("failed to store idempotent failure after panic")
	}
}

func (a *API) replay(w http.ResponseWriter, r *http.Request, logger *log.Entry, record domain.IdempotencyRecord, createErr error) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Code:    codeIdempotencyMismatch,
			Message: "idempotency key is already used with a different request",
		})
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists) && record.Status.Final():
		a.metrics.RecordIdempotentReplay()
		logger.Debug("replaying stored response")
		w.Header().Set(IdempotentReplayHeader, "true")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(record.HTTPStatus)
		_, _ = w.Write(record.ResponseBody)
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		writeJSON(w, http.StatusConflict, errorResponse{
			Code:    codeIdempotencyInFlight,
			Message: "request with the same idempotency key is already processing",
		})
	default:
		a.writeError(w, r, createErr)
	}
}

// requestHash связывает ключ с методом, путём и телом запроса.
func requestHash(r *http.Request, body []byte) string {
	h := sha256.New()
	h.Write([]byte(r.Method))
	h.Write([]byte{':'})
	h.Write([]byte(r.URL.Path))
	h.Write([]byte{':'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
