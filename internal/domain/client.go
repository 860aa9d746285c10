package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// AggregateClient — тип агрегата для outbox.
	AggregateClient = "client"
	// EventClientCreated публикуется после сохранения клиента с заказами.
	EventClientCreated = "client.created"
)

// Client — владелец заказов; телефон уникален среди всех клиентов.
type Client struct {
	ID        int64     `json:"id"`
	FullName  string    `json:"nomComplet"`
	Phone     string    `json:"telephone"`
	Orders    []Order   `json:"commandes"`
	CreatedAt time.Time `json:"-"`
}

// NormalizeClient убирает пробелы по краям имени и телефона.
func NormalizeClient(c Client) Client {
	c.FullName = strings.TrimSpace(c.FullName)
	c.Phone = strings.TrimSpace(c.Phone)
	return c
}

// RequireOrders проверяет, что у клиента есть хотя бы один заказ.
func (c Client) RequireOrders() error {
	if len(c.Orders) == 0 {
		return ErrOrdersRequired
	}
	return nil
}

// Validate проверяет обязательные поля клиента и его заказов.
func (c Client) Validate() error {
	verr := &ValidationError{}
	if strings.TrimSpace(c.FullName) == "" {
		verr.Add("nomComplet", "must not be blank")
	}
	if strings.TrimSpace(c.Phone) == "" {
		verr.Add("telephone", "must not be blank")
	}
	for i, o := range c.Orders {
		o.validate(i, verr)
	}
	return verr.OrNil()
}

// AttachOrders проставляет всем заказам ссылку на клиента, игнорируя присланное значение.
func (c *Client) AttachOrders() {
	for i := range c.Orders {
		c.Orders[i].ClientID = c.ID
	}
}

// ResetIdentity сбрасывает идентификаторы, присланные снаружи: их назначает хранилище.
func (c *Client) ResetIdentity() {
	c.ID = 0
	for i := range c.Orders {
		c.Orders[i].ID = 0
	}
}

type clientCreatedPayload struct {
	ClientID   int64   `json:"client_id"`
	FullName   string  `json:"nom_complet"`
	Phone      string  `json:"telephone"`
	OrderIDs   []int64 `json:"commande_ids"`
	OccurredAt string  `json:"occurred_at"`
}

// NewClientCreatedMessage формирует outbox-событие для сохранённого клиента.
func NewClientCreatedMessage(c Client) (OutboxMessage, error) {
	ids := make([]int64, 0, len(c.Orders))
	for _, o := range c.Orders {
		ids = append(ids, o.ID)
	}
	occurred := c.CreatedAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}
	payload, err := json.Marshal(clientCreatedPayload{
		ClientID:   c.ID,
		FullName:   c.FullName,
		Phone:      c.Phone,
		OrderIDs:   ids,
		OccurredAt: occurred.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal client created payload: %w", err)
	}
	return OutboxMessage{
		AggregateType: AggregateClient,
		AggregateID:   strconv.FormatInt(c.ID, 10),
		EventType:     EventClientCreated,
		Payload:       payload,
	}, nil
}
