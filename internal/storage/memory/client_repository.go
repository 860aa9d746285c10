package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/commandes/internal/domain"
)

// clientRepositoryInMemory — in-memory реализация ClientRepository.
// Индекс телефонов — авторитетная проверка уникальности, как UNIQUE в PostgreSQL.
type clientRepositoryInMemory struct {
	mu        sync.RWMutex
	clients   map[int64]domain.Client
	phones    map[string]int64
	clientSeq int64
	orderSeq  int64
	outbox    domain.OutboxRepository
}

// NewClientRepository возвращает in-memory репозиторий для локальной разработки и тестов.
// outbox может быть nil: тогда событие client.created не сохраняется.
func NewClientRepository(outbox domain.OutboxRepository) domain.ClientRepository {
	return &clientRepositoryInMemory{
		clients: make(map[int64]domain.Client),
		phones:  make(map[string]int64),
		outbox:  outbox,
	}
}

// ExistsByPhone проверяет, занят ли телефон.
func (r *clientRepositoryInMemory) ExistsByPhone(_ context.Context, phone string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.phones[phone]
	return ok, nil
}

// FindByID возвращает копию клиента вместе с заказами.
func (r *clientRepositoryInMemory) FindByID(_ context.Context, id int64) (domain.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.clients[id]
	if !ok {
		return domain.Client{}, domain.ErrClientNotFound
	}
	return cloneClient(client), nil
}

// Create назначает идентификаторы и сохраняет клиента с заказами под одной блокировкой.
func (r *clientRepositoryInMemory) Create(ctx context.Context, client domain.Client) (domain.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.phones[client.Phone]; exists {
		return domain.Client{}, domain.ErrPhoneAlreadyExists
	}

	saved := cloneClient(client)
	saved.ID = r.clientSeq + 1
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = time.Now().UTC()
	}
	orderSeq := r.orderSeq
	for i := range saved.Orders {
		orderSeq++
		saved.Orders[i].ID = orderSeq
	}
	saved.AttachOrders()

	if r.outbox != nil {
		msg, err := domain.NewClientCreatedMessage(saved)
		if err != nil {
			return domain.Client{}, err
		}
		if _, err := r.outbox.Enqueue(ctx, msg); err != nil {
			return domain.Client{}, fmt.Errorf("enqueue client created event: %w", err)
		}
	}

	// Фиксируем изменения только после успешной записи события.
	r.clientSeq = saved.ID
	r.orderSeq = orderSeq
	r.clients[saved.ID] = saved
	r.phones[saved.Phone] = saved.ID

	return cloneClient(saved), nil
}

// ListOrders возвращает страницу заказов клиента по возрастанию id.
func (r *clientRepositoryInMemory) ListOrders(_ context.Context, clientID int64, page domain.Page) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	client, ok := r.clients[clientID]
	if !ok {
		return nil, domain.ErrClientNotFound
	}

	orders := cloneClient(client).Orders
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })

	offset := page.Offset()
	if offset >= len(orders) {
		return []domain.Order{}, nil
	}
	end := offset + page.Limit()
	if end > len(orders) {
		end = len(orders)
	}
	return orders[offset:end], nil
}

// Delete удаляет клиента; заказы хранятся внутри клиента и удаляются вместе с ним.
func (r *clientRepositoryInMemory) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, ok := r.clients[id]
	if !ok {
		return domain.ErrClientNotFound
	}
	delete(r.phones, client.Phone)
	delete(r.clients, id)
	return nil
}

func cloneClient(src domain.Client) domain.Client {
	dst := src
	dst.Orders = make([]domain.Order, len(src.Orders))
	for i, o := range src.Orders {
		if o.Date != nil {
			date := *o.Date
			o.Date = &date
		}
		dst.Orders[i] = o
	}
	return dst
}

var _ domain.ClientRepository = (*clientRepositoryInMemory)(nil)
