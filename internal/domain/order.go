package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout — формат даты заказа в API.
const DateLayout = "2006-01-02"

// Date хранит календарный день без времени и часового пояса.
type Date struct {
	time.Time
}

// NewDate усекает время до дня в UTC.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate разбирает дату в формате YYYY-MM-DD.
func ParseDate(value string) (Date, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", value, err)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// MarshalJSON кодирует дату как "YYYY-MM-DD".
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON принимает "YYYY-MM-DD"; null оставляет нулевое значение.
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

const (
	// AmountScale — число знаков после запятой в montant, как в NUMERIC(19,2).
	AmountScale = 2
	// amountIntegerDigits — число разрядов целой части montant.
	amountIntegerDigits = 17
)

// maxAmount — первое значение, которое не помещается в NUMERIC(19,2).
var maxAmount = decimal.New(1, amountIntegerDigits)

// Order — заказ (commande), принадлежащий ровно одному клиенту.
type Order struct {
	ID       int64               `json:"id"`
	Date     *Date               `json:"date"`
	Amount   decimal.NullDecimal `json:"montant"`
	ClientID int64               `json:"clientId"`
}

// validate проверяет поля заказа; idx нужен для пути поля в ответе.
func (o Order) validate(idx int, verr *ValidationError) {
	if !o.Amount.Valid {
		return
	}
	field := fmt.Sprintf("commandes[%d].montant", idx)
	amount := o.Amount.Decimal
	switch {
	case amount.IsNegative():
		verr.Add(field, "must be non-negative")
	case amount.GreaterThanOrEqual(maxAmount):
		verr.Add(field, fmt.Sprintf("must be less than 1e%d", amountIntegerDigits))
	case !amount.Equal(amount.Round(AmountScale)):
		verr.Add(field, fmt.Sprintf("must have at most %d decimal places", AmountScale))
	}
}
