package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/vladislavdragonenkov/commandes/internal/domain"
)

var errPublisherNotInitialized = errors.New("kafka outbox publisher is not initialized")

// OutboxTopicPublisher публикует outbox-сообщения в заданный topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher создаёт publisher; пустой topic означает TopicClientEvents.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicClientEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
		now:      time.Now,
	}
}

// Publish отправляет сообщение с ключом по идентификатору клиента,
// чтобы события одного клиента попадали в одну партицию.
func (p *OutboxTopicPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotInitialized
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	envelope := Envelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishedAt:   p.now().UTC(),
	}
	headers := map[string]string{
		HeaderEventType:     event.EventType,
		HeaderAggregateType: event.AggregateType,
		HeaderOutboxID:      event.ID,
	}

	return p.producer.PublishEvent(ctx, p.topic, key, envelope, headers)
}

// Topic возвращает topic публикации.
func (p *OutboxTopicPublisher) Topic() string { return p.topic }

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
