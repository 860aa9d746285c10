package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commandes/internal/health"
	"github.com/vladislavdragonenkov/commandes/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/commandes/internal/metrics"
	"github.com/vladislavdragonenkov/commandes/internal/service/clients"
	"github.com/vladislavdragonenkov/commandes/internal/service/httpapi"
	"github.com/vladislavdragonenkov/commandes/internal/service/idempotency"
	"github.com/vladislavdragonenkov/commandes/internal/service/outbox"
	"github.com/vladislavdragonenkov/commandes/internal/version"
)

// Dependencies содержит собранные компоненты приложения.
type Dependencies struct {
	Registry      *prometheus.Registry
	Storage       *storage
	Service       *clients.Service
	API           *httpapi.API
	RateLimiter   *httpapi.RateLimiter
	Health        *health.Handler
	OutboxWorker  *outbox.Worker
	CleanupWorker *idempotency.CleanupWorker
	Producer      *kafka.Producer
	Logger        *log.Entry
}

// NewDependencies открывает хранилище и связывает сервис, HTTP API и воркеры.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*Dependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	store, err := initStorage(ctx, cfg, logger.WithField("layer", "storage"))
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	clientMetrics := metrics.NewClientMetricsWithRegisterer(registry)

	svc := clients.NewService(store.Clients,
		clients.WithLogger(log.WithField("component", "clients-service")),
		clients.WithMetrics(clientMetrics),
	)

	limiter := httpapi.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	api := httpapi.NewAPI(svc,
		httpapi.WithMetrics(clientMetrics),
		httpapi.WithIdempotency(store.Idempotency, cfg.IdempotencyTTL),
		httpapi.WithRateLimiter(limiter),
	)

	healthHandler := health.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", store.Checker)

	producer := initKafkaProducer(cfg.KafkaBrokers, logger.WithField("layer", "kafka"))
	publisher, dlq := outboxPublishers(producer, cfg, logger)

	outboxWorker := outbox.NewWorker(store.Outbox, publisher,
		outbox.WithDLQPublisher(dlq),
		outbox.WithMetrics(metrics.NewOutboxMetricsWithRegisterer(registry)),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)

	cleanupWorker := idempotency.NewCleanupWorker(store.Idempotency,
		idempotency.WithMetrics(metrics.NewCleanupMetricsWithRegisterer(registry)),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)

	return &Dependencies{
		Registry:      registry,
		Storage:       store,
		Service:       svc,
		API:           api,
		RateLimiter:   limiter,
		Health:        healthHandler,
		OutboxWorker:  outboxWorker,
		CleanupWorker: cleanupWorker,
		Producer:      producer,
		Logger:        logger,
	}, nil
}

// Close освобождает внешние ресурсы.
func (d *Dependencies) Close() error {
	closeKafka(d.Producer, d.Logger)
	if err := d.Storage.Close(); err != nil {
		return fmt.Errorf("close storage: %w", err)
	}
	return nil
}
