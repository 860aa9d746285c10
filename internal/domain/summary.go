package domain

import (
	"fmt"
	"math"
)

// ClientSummary — публичное представление клиента: только имя и телефон.
type ClientSummary struct {
	FullName string `json:"nomComplet"`
	Phone    string `json:"telephone"`
}

// ClientOrdersPage — конверт ответа на запрос заказов клиента.
type ClientOrdersPage struct {
	Results []ClientSummary `json:"results"`
}

// SummarizeClient сужает клиента до публичного представления.
func SummarizeClient(c Client) ClientSummary {
	return ClientSummary{
		FullName: c.FullName,
		Phone:    c.Phone,
	}
}

// OrdersPage — страница заказов клиента.
type OrdersPage struct {
	ClientID int64   `json:"clientId"`
	Page     int     `json:"page"`
	Size     int     `json:"size"`
	Results  []Order `json:"results"`
}

const (
	// DefaultPageSize — размер страницы по умолчанию.
	DefaultPageSize = 10
	// MaxPageSize ограничивает размер страницы сверху.
	MaxPageSize = 100
	// MaxPageIndex — наибольший номер страницы, при котором смещение не переполняет int.
	MaxPageIndex = math.MaxInt / MaxPageSize
)

// Page описывает параметры пагинации.
type Page struct {
	Index int
	Size  int
}

// DefaultPage возвращает первую страницу размера DefaultPageSize.
func DefaultPage() Page {
	return Page{Index: 0, Size: DefaultPageSize}
}

// Validate проверяет границы пагинации.
func (p Page) Validate() error {
	verr := &ValidationError{}
	switch {
	case p.Index < 0:
		verr.Add("page", "must be >= 0")
	case p.Index > MaxPageIndex:
		verr.Add("page", fmt.Sprintf("must be <= %d", MaxPageIndex))
	}
	if p.Size < 1 {
		verr.Add("size", "must be >= 1")
	}
	return verr.OrNil()
}

// Limit возвращает размер страницы с учётом MaxPageSize.
func (p Page) Limit() int {
	if p.Size > MaxPageSize {
		return MaxPageSize
	}
	return p.Size
}

// Offset возвращает смещение первой записи страницы.
func (p Page) Offset() int {
	return p.Index * p.Limit()
}
