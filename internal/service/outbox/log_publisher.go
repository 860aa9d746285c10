package outbox

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commandes/internal/domain"
)

// LogPublisher пишет события в лог; используется, когда Kafka отключена.
type LogPublisher struct {
	logger *log.Entry
}

// NewLogPublisher создаёт publisher поверх logger; nil даёт компонентный logger по умолчанию.
func NewLogPublisher(logger *log.Entry) *LogPublisher {
	if logger == nil {
		logger = log.WithField("component", "outbox-log-publisher")
	}
	return &LogPublisher{logger: logger}
}

// Publish логирует событие и никогда не возвращает ошибку, пока жив ctx.
func (p *LogPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.logger.WithFields(log.Fields{
		"outbox_id":      event.ID,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"event_type":     event.EventType,
	}).Info(string(event.Payload))
	return nil
}

var _ domain.OutboxPublisher = (*LogPublisher)(nil)
