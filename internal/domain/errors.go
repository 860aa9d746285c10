package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Классы ошибок, по которым HTTP-слой выбирает код ответа.
var (
	// ErrValidation — входные данные не прошли проверку формы.
	ErrValidation = errors.New("validation failed")
	// ErrBusinessRule — нарушено бизнес-правило.
	ErrBusinessRule = errors.New("business rule violation")
	// ErrConflict — нарушена уникальность.
	ErrConflict = errors.New("conflict")
	// ErrNotFound — запрошенная сущность отсутствует.
	ErrNotFound = errors.New("not found")
)

var (
	// ErrOrdersRequired возвращается, если клиент создаётся без заказов.
	ErrOrdersRequired = fmt.Errorf("%w: at least one order is required", ErrBusinessRule)
	// ErrPhoneAlreadyExists возвращается, если телефон уже принадлежит другому клиенту.
	ErrPhoneAlreadyExists = fmt.Errorf("%w: this phone number already exists", ErrConflict)
	// ErrClientNotFound возвращается, если клиента с таким идентификатором нет.
	ErrClientNotFound = fmt.Errorf("%w: client not found", ErrNotFound)

	// Ошибка отсутствующего ключа идемпотентности.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// Ошибка отсутствующего хеша запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyNotFound — записи с таким ключом нет.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyKeyAlreadyExists — ключ уже использован тем же запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — ключ уже использован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// FieldError описывает одно невалидное поле.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError перечисляет все невалидные поля запроса.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

// Is позволяет проверять ValidationError через errors.Is(err, ErrValidation).
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Add добавляет замечание по полю.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// OrNil возвращает nil, если замечаний нет.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// NewValidationError создаёт ошибку валидации для одного поля.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// IsValidation проверяет, что ошибка относится к валидации входа.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsBusinessRule проверяет, что ошибка — нарушение бизнес-правила.
func IsBusinessRule(err error) bool {
	return errors.Is(err, ErrBusinessRule)
}

// IsConflict проверяет, что ошибка — конфликт уникальности.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsNotFound проверяет, что сущность не найдена.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsIdempotencyConflict проверяет, что ключ идемпотентности уже занят.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}

// Message возвращает человекочитаемую часть доменной ошибки без префикса класса.
func Message(err error) string {
	if err == nil {
		return ""
	}
	for _, class := range []error{ErrBusinessRule, ErrConflict, ErrNotFound} {
		prefix := class.Error() + ": "
		if msg := err.Error(); errors.Is(err, class) && strings.HasPrefix(msg, prefix) {
			return strings.TrimPrefix(msg, prefix)
		}
	}
	return err.Error()
}
