package app

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commandes/internal/domain"
	"github.com/vladislavdragonenkov/commandes/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/commandes/internal/service/outbox"
)

// initKafkaProducer создаёт producer, если заданы брокеры.
// Ошибка подключения не фатальна: сервис продолжает работу с логирующим publisher.
func initKafkaProducer(brokers []string, logger *log.Entry) *kafka.Producer {
	if len(brokers) == 0 {
		return nil
	}

	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer
}

// outboxPublishers выбирает основной и DLQ publisher для outbox worker.
func outboxPublishers(producer *kafka.Producer, cfg Config, logger *log.Entry) (domain.OutboxPublisher, domain.OutboxPublisher) {
	if producer == nil {
		return outbox.NewLogPublisher(logger.WithField("publisher", "log")), nil
	}
	return kafka.NewOutboxPublisher(producer, cfg.KafkaTopic), kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic)
}

// closeKafka закрывает producer, если он был создан.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}
