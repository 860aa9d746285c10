package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commandes/internal/domain"
)

const (
	codeValidation          = "validation_error"
	codeBusinessRule        = "business_rule_violation"
	codeConflict            = "conflict"
	codeNotFound            = "not_found"
	codeInternal            = "internal"
	codeMethodNotAllowed    = "method_not_allowed"
	codeRateLimited         = "rate_limited"
	codeIdempotencyMismatch = "idempotency_key_reused"
	codeIdempotencyInFlight = "idempotency_request_in_progress"
)

// errorResponse — тело ответа об ошибке.
type errorResponse struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  []domain.FieldError `json:"fields,omitempty"`
}

// classify сопоставляет доменную ошибку с HTTP-статусом и телом ответа.
func classify(err error) (int, errorResponse) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, errorResponse{
			Code:    codeValidation,
			Message: domain.ErrValidation.Error(),
			Fields:  verr.Fields,
		}
	case domain.IsValidation(err):
		return http.StatusBadRequest, errorResponse{Code: codeValidation, Message: err.Error()}
	case domain.IsBusinessRule(err):
		return http.StatusBadRequest, errorResponse{Code: codeBusinessRule, Message: domain.Message(err)}
	case domain.IsConflict(err):
		return http.StatusConflict, errorResponse{Code: codeConflict, Message: domain.Message(err)}
	case domain.IsNotFound(err):
		return http.StatusNotFound, errorResponse{Code: codeNotFound, Message: domain.Message(err)}
	default:
		return http.StatusInternalServerError, errorResponse{Code: codeInternal, Message: "internal server error"}
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := classify(err)
	logger := requestLogger(r.Context(), a.logger).WithError(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed")
	} else {
		logger.WithField("status", status).Debug("request rejected")
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).Warn("failed to encode response body")
	}
}
