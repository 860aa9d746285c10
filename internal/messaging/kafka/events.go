package kafka

import (
	"encoding/json"
	"time"
)

// Topics для Kafka.
const (
	TopicClientEvents    = "commandes.client.events"
	TopicDeadLetterQueue = "commandes.dlq"
)

// Заголовки сообщений.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
)

// Envelope — формат сообщения, которое получают подписчики.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}
