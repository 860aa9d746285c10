package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commandes/internal/domain"
	"github.com/vladislavdragonenkov/commandes/internal/health"
	"github.com/vladislavdragonenkov/commandes/internal/storage/memory"
	"github.com/vladislavdragonenkov/commandes/internal/storage/postgres"
)

// storage объединяет репозитории одного драйвера.
type storage struct {
	Clients     domain.ClientRepository
	Outbox      domain.OutboxRepository
	Idempotency domain.IdempotencyRepository
	Checker     health.Checker
	close       func() error
}

// Close освобождает подключения хранилища.
func (s *storage) Close() error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close()
}

// initStorage открывает хранилище выбранного драйвера.
func initStorage(ctx context.Context, cfg Config, logger *log.Entry) (*storage, error) {
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		outbox := memory.NewOutboxRepository()
		logger.Info("using in-memory storage")
		return &storage{
			Clients:     memory.NewClientRepository(outbox),
			Outbox:      outbox,
			Idempotency: memory.NewIdempotencyRepository(),
			Checker: health.NewSimpleChecker("storage", func(context.Context) error {
				return nil
			}),
		}, nil

	case StorageDriverPostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}

		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
			logger.Info("postgres migrations applied")
		}

		logger.Info("using postgres storage")
		return &storage{
			Clients:     postgres.NewClientRepository(store),
			Outbox:      postgres.NewOutboxRepository(store),
			Idempotency: postgres.NewIdempotencyRepository(store),
			Checker:     health.NewStorageChecker("storage", store),
			close:       store.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
