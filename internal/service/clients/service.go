// Package clients реализует сценарии работы с клиентами и их заказами.
package clients

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/commandes/internal/domain"
	"github.com/vladislavdragonenkov/commandes/internal/metrics"
)

// Service связывает правила домена с хранилищем клиентов.
type Service struct {
	repo    domain.ClientRepository
	logger  *log.Entry
	metrics *metrics.ClientMetrics
	now     func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics задаёт метрики сервиса.
func WithMetrics(m *metrics.ClientMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService конструирует сервис поверх репозитория.
func NewService(repo domain.ClientRepository, options ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: log.WithField("component", "clients-service"),
		now:    time.Now,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// CreateWithOrders создаёт клиента вместе с заказами.
//
// Порядок проверок: наличие заказов, затем поля, затем уникальность телефона.
// Идентификатор из пути не используется: запрос всегда создаёт нового клиента.
func (s *Service) CreateWithOrders(ctx context.Context, pathClientID string, input domain.Client) (domain.Client, error) {
	started := s.now()
	logger := s.logger.WithField("path_client_id", pathClientID)
	logger.Debug("create client with orders requested")

	if err := input.RequireOrders(); err != nil {
		s.metrics.RecordCreationRejected(metrics.ReasonBusinessRule)
		return domain.Client{}, err
	}

	client := domain.NormalizeClient(input)
	if err := client.Validate(); err != nil {
		s.metrics.RecordCreationRejected(metrics.ReasonValidation)
		return domain.Client{}, err
	}

	exists, err := s.repo.ExistsByPhone(ctx, client.Phone)
	if err != nil {
		s.metrics.RecordCreationRejected(metrics.ReasonInternal)
		return domain.Client{}, fmt.Errorf("check phone uniqueness: %w", err)
	}
	if exists {
		s.metrics.RecordCreationRejected(metrics.ReasonConflict)
		return domain.Client{}, domain.ErrPhoneAlreadyExists
	}

	client.ResetIdentity()
	client.AttachOrders()

	saved, err := s.repo.Create(ctx, client)
	if err != nil {
		if domain.IsConflict(err) {
			// Параллельный запрос успел занять телефон между проверкой и записью.
			s.metrics.RecordCreationRejected(metrics.ReasonConflict)
			return domain.Client{}, err
		}
		s.metrics.RecordCreationRejected(metrics.ReasonInternal)
		return domain.Client{}, fmt.Errorf("create client: %w", err)
	}

	s.metrics.RecordClientCreated(len(saved.Orders), s.now().Sub(started))
	logger.WithFields(log.Fields{
		"client_id": saved.ID,
		"orders":    len(saved.Orders),
	}).Info("client created")

	return saved, nil
}

// ListClientOrders возвращает конверт с одной сводкой клиента.
// Параметры страницы проверяются, но на результат не влияют.
func (s *Service) ListClientOrders(ctx context.Context, clientID int64, page domain.Page) (domain.ClientOrdersPage, error) {
	if err := page.Validate(); err != nil {
		return domain.ClientOrdersPage{}, err
	}

	client, err := s.findClient(ctx, clientID)
	if err != nil {
		return domain.ClientOrdersPage{}, err
	}

	return domain.ClientOrdersPage{
		Results: []domain.ClientSummary{domain.SummarizeClient(client)},
	}, nil
}

// ListOrders возвращает страницу заказов клиента.
func (s *Service) ListOrders(ctx context.Context, clientID int64, page domain.Page) (domain.OrdersPage, error) {
	if err := page.Validate(); err != nil {
		return domain.OrdersPage{}, err
	}

	orders, err := s.repo.ListOrders(ctx, clientID, page)
	if err != nil {
		if domain.IsNotFound(err) {
			return domain.OrdersPage{}, err
		}
		return domain.OrdersPage{}, fmt.Errorf("list orders of client %d: %w", clientID, err)
	}

	return domain.OrdersPage{
		ClientID: clientID,
		Page:     page.Index,
		Size:     page.Limit(),
		Results:  orders,
	}, nil
}

// DeleteClient удаляет клиента вместе с заказами.
func (s *Service) DeleteClient(ctx context.Context, clientID int64) error {
	if err := s.repo.Delete(ctx, clientID); err != nil {
		if domain.IsNotFound(err) {
			return err
		}
		return fmt.Errorf("delete client %d: %w", clientID, err)
	}

	s.metrics.RecordClientDeleted()
	s.logger.WithField("client_id", clientID).Info("client deleted")
	return nil
}

func (s *Service) findClient(ctx context.Context, clientID int64) (domain.Client, error) {
	client, err := s.repo.FindByID(ctx, clientID)
	if err != nil {
		if domain.IsNotFound(err) {
			return domain.Client{}, err
		}
		return domain.Client{}, fmt.Errorf("find client %d: %w", clientID, err)
	}
	return client, nil
}
