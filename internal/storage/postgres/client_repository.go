package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/commandes/internal/domain"
)

type clientRow struct {
	ID        int64     `db:"id"`
	FullName  string    `db:"nom_complet"`
	Phone     string    `db:"telephone"`
	CreatedAt time.Time `db:"created_at"`
}

type orderRow struct {
	ID       int64               `db:"id"`
	Date     sql.NullTime        `db:"date"`
	Amount   decimal.NullDecimal `db:"montant"`
	ClientID int64               `db:"client_id"`
}

func (r orderRow) toDomain() domain.Order {
	order := domain.Order{
		ID:       r.ID,
		Amount:   r.Amount,
		ClientID: r.ClientID,
	}
	if r.Date.Valid {
		d := domain.NewDate(r.Date.Time.Date())
		order.Date = &d
	}
	return order
}

type clientRepository struct {
	store *Store
}

// NewClientRepository создаёт PostgreSQL-реализацию ClientRepository.
func NewClientRepository(store *Store) domain.ClientRepository {
	return &clientRepository{store: store}
}

func (r *clientRepository) ExistsByPhone(ctx context.Context, phone string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var exists bool
	if err := r.store.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM clients WHERE telephone = $1)`, phone,
	); err != nil {
		return false, fmt.Errorf("check phone exists: %w", err)
	}
	return exists, nil
}

func (r *clientRepository) FindByID(ctx context.Context, id int64) (domain.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var row clientRow
	err := r.store.db.GetContext(ctx, &row, `
		SELECT id, nom_complet, telephone, created_at
		FROM clients
		WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Client{}, domain.ErrClientNotFound
		}
		return domain.Client{}, fmt.Errorf("select client: %w", err)
	}

	var orders []orderRow
	if err := r.store.db.SelectContext(ctx, &orders, `
		SELECT id, date, montant, client_id
		FROM commandes
		WHERE client_id = $1
		ORDER BY id
	`, id); err != nil {
		return domain.Client{}, fmt.Errorf("select client orders: %w", err)
	}

	client := domain.Client{
		ID:        row.ID,
		FullName:  row.FullName,
		Phone:     row.Phone,
		CreatedAt: row.CreatedAt.UTC(),
		Orders:    make([]domain.Order, 0, len(orders)),
	}
	for _, o := range orders {
		client.Orders = append(client.Orders, o.toDomain())
	}
	return client, nil
}

// Create сохраняет клиента, его заказы и событие client.created одной транзакцией.
func (r *clientRepository) Create(ctx context.Context, client domain.Client) (domain.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	saved := client
	saved.Orders = append([]domain.Order(nil), client.Orders...)

	err := r.store.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.QueryRowxContext(ctx, `
			INSERT INTO clients (nom_complet, telephone)
			VALUES ($1, $2)
			RETURNING id, created_at
		`, saved.FullName, saved.Phone).Scan(&saved.ID, &saved.CreatedAt); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrPhoneAlreadyExists
			}
			return fmt.Errorf("insert client: %w", err)
		}
		saved.CreatedAt = saved.CreatedAt.UTC()
		saved.AttachOrders()

		for i := range saved.Orders {
			order := &saved.Orders[i]
			if err := tx.QueryRowxContext(ctx, `
				INSERT INTO commandes (date, montant, client_id)
				VALUES ($1, $2, $3)
				RETURNING id
			`, orderDateArg(order.Date), order.Amount, saved.ID).Scan(&order.ID); err != nil {
				return fmt.Errorf("insert order: %w", err)
			}
		}

		msg, err := domain.NewClientCreatedMessage(saved)
		if err != nil {
			return err
		}
		if _, err := insertOutboxMessage(ctx, tx, msg); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return domain.Client{}, err
	}
	return saved, nil
}

func (r *clientRepository) ListOrders(ctx context.Context, clientID int64, page domain.Page) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var exists bool
	if err := r.store.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM clients WHERE id = $1)`, clientID,
	); err != nil {
		return nil, fmt.Errorf("check client exists: %w", err)
	}
	if !exists {
		return nil, domain.ErrClientNotFound
	}

	var rows []orderRow
	if err := r.store.db.SelectContext(ctx, &rows, `
		SELECT id, date, montant, client_id
		FROM commandes
		WHERE client_id = $1
		ORDER BY id
		LIMIT $2 OFFSET $3
	`, clientID, page.Limit(), page.Offset()); err != nil {
		return nil, fmt.Errorf("list client orders: %w", err)
	}

	orders := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		orders = append(orders, row.toDomain())
	}
	return orders, nil
}

// Delete удаляет клиента; заказы удаляются каскадно внешним ключом.
func (r *clientRepository) Delete(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.db.ExecContext(ctx, `DELETE FROM clients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrClientNotFound
	}
	return nil
}

func orderDateArg(d *domain.Date) any {
	if d == nil {
		return nil
	}
	return d.Time
}

var _ domain.ClientRepository = (*clientRepository)(nil)
