package domain

import "context"

// ClientRepository описывает требования к хранилищу клиентов и их заказов.
type ClientRepository interface {
	// ExistsByPhone проверяет, занят ли телефон.
	ExistsByPhone(ctx context.Context, phone string) (bool, error)
	// FindByID возвращает клиента с заказами или ErrClientNotFound.
	FindByID(ctx context.Context, id int64) (Client, error)
	// Create атомарно сохраняет клиента, все его заказы и событие client.created.
	// Идентификаторы назначает хранилище; дубликат телефона даёт ErrPhoneAlreadyExists.
	Create(ctx context.Context, client Client) (Client, error)
	// ListOrders возвращает страницу заказов клиента, упорядоченную по id.
	ListOrders(ctx context.Context, clientID int64, page Page) ([]Order, error)
	// Delete удаляет клиента вместе с заказами или возвращает ErrClientNotFound.
	Delete(ctx context.Context, id int64) error
}
