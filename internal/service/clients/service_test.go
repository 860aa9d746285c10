package clients_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/commandes/internal/domain"
	"github.com/vladislavdragonenkov/commandes/internal/metrics"
	"github.com/vladislavdragonenkov/commandes/internal/service/clients"
	"github.com/vladislavdragonenkov/commandes/internal/storage/memory"
)

// countingRepository считает обращения к хранилищу поверх in-memory реализации.
type countingRepository struct {
	domain.ClientRepository
	calls     int
	createErr error
}

func (r *countingRepository) ExistsByPhone(ctx context.Context, phone string) (bool, error) {
	r.calls++
	return r.ClientRepository.ExistsByPhone(ctx, phone)
}

func (r *countingRepository) Create(ctx context.Context, c domain.Client) (domain.Client, error) {
	r.calls++
	if r.createErr != nil {
		return domain.Client{}, r.createErr
	}
	return r.ClientRepository.Create(ctx, c)
}

func newService(t *testing.T) (*clients.Service, *countingRepository, *memory.OutboxRepository) {
	t.Helper()

	outbox := memory.NewOutboxRepository()
	repo := &countingRepository{ClientRepository: memory.NewClientRepository(outbox)}
	svc := clients.NewService(repo, clients.WithMetrics(metrics.NewClientMetricsWithRegisterer(prometheus.NewRegistry())))
	return svc, repo, outbox
}

func validInput(phone string) domain.Client {
	date := domain.NewDate(2024, time.March, 14)
	return domain.Client{
		ID:       99,
		FullName: "  Awa Diop ",
		Phone:    phone,
		Orders: []domain.Order{
			{ID: 5, ClientID: 1234, Date: &date, Amount: decimal.NewNullDecimal(decimal.RequireFromString("1500.50"))},
			{ID: 6, ClientID: 4321},
		},
	}
}

func TestCreateWithOrders_AssignsIdentities(t *testing.T) {
	svc, _, outbox := newService(t)

	saved, err := svc.CreateWithOrders(context.Background(), "17", validInput("+221770000001"))
	require.NoError(t, err)
	require.Equal(t, int64(1), saved.ID)
	require.Equal(t, "Awa Diop", saved.FullName)
	require.Len(t, saved.Orders, 2)
	for _, o := range saved.Orders {
		require.NotZero(t, o.ID)
		require.Equal(t, saved.ID, o.ClientID)
	}
	require.Len(t, outbox.AllPending(), 1)
}

func TestCreateWithOrders_PathIDIgnored(t *testing.T) {
	svc, _, _ := newService(t)

	first, err := svc.CreateWithOrders(context.Background(), "1", validInput("+221770000001"))
	require.NoError(t, err)
	second, err := svc.CreateWithOrders(context.Background(), "1", validInput("+221770000002"))
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
}

func TestCreateWithOrders_EmptyOrdersIsBusinessRule(t *testing.T) {
	svc, repo, _ := newService(t)

	for name, orders := range map[string][]domain.Order{"nil": nil, "empty": {}} {
		t.Run(name, func(t *testing.T) {
			// Пустые поля не меняют класс ошибки.
			_, err := svc.CreateWithOrders(context.Background(), "1", domain.Client{Orders: orders})
			require.ErrorIs(t, err, domain.ErrOrdersRequired)
			require.True(t, domain.IsBusinessRule(err))
			require.Equal(t, "at least one order is required", domain.Message(err))
		})
	}
	require.Zero(t, repo.calls)
}

func TestCreateWithOrders_BlankFieldsBeforeStorage(t *testing.T) {
	svc, repo, _ := newService(t)

	input := validInput("   ")
	input.FullName = ""

	_, err := svc.CreateWithOrders(context.Background(), "1", input)
	require.True(t, domain.IsValidation(err))

	var verr *domain.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, []domain.FieldError{
		{Field: "nomComplet", Message: "must not be blank"},
		{Field: "telephone", Message: "must not be blank"},
	}, verr.Fields)
	require.Zero(t, repo.calls)
}

func TestCreateWithOrders_NegativeAmount(t *testing.T) {
	svc, _, _ := newService(t)

	input := validInput("+221770000001")
	input.Orders[1].Amount = decimal.NewNullDecimal(decimal.NewFromInt(-1))

	_, err := svc.CreateWithOrders(context.Background(), "1", input)
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "commandes[1].montant", verr.Fields[0].Field)
}

func TestCreateWithOrders_DuplicatePhone(t *testing.T) {
	svc, repo, outbox := newService(t)

	_, err := svc.CreateWithOrders(context.Background(), "1", validInput("+221770000001"))
	require.NoError(t, err)
	repo.calls = 0

	_, err = svc.CreateWithOrders(context.Background(), "1", validInput(" +221770000001 "))
	require.ErrorIs(t, err, domain.ErrPhoneAlreadyExists)
	require.Equal(t, "this phone number already exists", domain.Message(err))
	// Только проверка существования, без записи.
	require.Equal(t, 1, repo.calls)
	require.Len(t, outbox.AllPending(), 1)
}

func TestCreateWithOrders_StorageConflictRace(t *testing.T) {
	svc, repo, _ := newService(t)
	repo.createErr = domain.ErrPhoneAlreadyExists

	_, err := svc.CreateWithOrders(context.Background(), "1", validInput("+221770000001"))
	require.ErrorIs(t, err, domain.ErrPhoneAlreadyExists)
}

func TestCreateWithOrders_StorageFailureWrapped(t *testing.T) {
	svc, repo, _ := newService(t)
	repo.createErr = errors.New("connection reset")

	_, err := svc.CreateWithOrders(context.Background(), "1", validInput("+221770000001"))
	require.ErrorContains(t, err, "create client: connection reset")
	require.False(t, domain.IsConflict(err))
}

func TestListClientOrders_SingleSummaryRegardlessOfPage(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	saved, err := svc.CreateWithOrders(ctx, "1", validInput("+221770000001"))
	require.NoError(t, err)

	first, err := svc.ListClientOrders(ctx, saved.ID, domain.Page{Index: 2, Size: 5})
	require.NoError(t, err)
	second, err := svc.ListClientOrders(ctx, saved.ID, domain.DefaultPage())
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, []domain.ClientSummary{{FullName: "Awa Diop", Phone: "+221770000001"}}, first.Results)
}

func TestListClientOrders_Errors(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	_, err := svc.ListClientOrders(ctx, 404, domain.DefaultPage())
	require.ErrorIs(t, err, domain.ErrClientNotFound)

	_, err = svc.ListClientOrders(ctx, 1, domain.Page{Index: -1, Size: 10})
	require.True(t, domain.IsValidation(err))
}

func TestListOrders_Paged(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	saved, err := svc.CreateWithOrders(ctx, "1", validInput("+221770000001"))
	require.NoError(t, err)

	page, err := svc.ListOrders(ctx, saved.ID, domain.Page{Index: 1, Size: 1})
	require.NoError(t, err)
	require.Equal(t, saved.ID, page.ClientID)
	require.Equal(t, 1, page.Page)
	require.Equal(t, 1, page.Size)
	require.Len(t, page.Results, 1)
	require.Equal(t, saved.Orders[1].ID, page.Results[0].ID)

	_, err = svc.ListOrders(ctx, 77, domain.DefaultPage())
	require.ErrorIs(t, err, domain.ErrClientNotFound)

	_, err = svc.ListOrders(ctx, saved.ID, domain.Page{Size: 0})
	require.True(t, domain.IsValidation(err))
}

func TestDeleteClient(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	saved, err := svc.CreateWithOrders(ctx, "1", validInput("+221770000001"))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteClient(ctx, saved.ID))
	require.ErrorIs(t, svc.DeleteClient(ctx, saved.ID), domain.ErrClientNotFound)

	_, err = svc.ListClientOrders(ctx, saved.ID, domain.DefaultPage())
	require.ErrorIs(t, err, domain.ErrClientNotFound)
}
