package domain

import (
	"context"
	"time"
)

// AccountRepository описывает требования к хранилищу аккаунтов.
type AccountRepository interface {
	// Create сохраняет новый аккаунт без кода. Возвращает ErrAccountAlreadyExists при дубликате.
	Create(ctx context.Context, account Account) error
	// Get возвращает аккаунт по идентификатору или ErrAccountNotFound.
	Get(ctx context.Context, id string) (Account, error)
	// ListWithoutCode возвращает аккаунты без customer_code, старые первыми.
	// limit <= 0 означает "без ограничения".
	ListWithoutCode(ctx context.Context, limit int) ([]Account, error)
	// AssignNextCustomerCode выполняет одну атомарную попытку: читает глобальную
	// отметку, резервирует next = max+1 и записывает его аккаунту. start — значение
	// отметки, если ни одного кода ещё не выдано. Если код уже есть, он возвращается
	// с Assigned=false. Гонка за тот же код даёт ErrCustomerCodeConflict.
	AssignNextCustomerCode(ctx context.Context, accountID string, start int64) (CodeAssignment, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// CreateWithNextSequence выполняет одну атомарную попытку: резервирует следующий
	// sequence_number владельца и сохраняет заказ в той же транзакции.
	// Возвращает ErrAccountNotFound, если владельца нет, и ErrSequenceConflict при гонке.
	CreateWithNextSequence(ctx context.Context, order Order) (Order, error)
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id string) (Order, error)
	// ListByOwner возвращает заказы владельца, новые (по номеру) первыми.
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]Order, error)
	// Cancel переводит заказ в статус canceled; номер остаётся занятым.
	Cancel(ctx context.Context, id string, at time.Time) (Order, error)
	// Delete удаляет заказ; отметка владельца при этом не уменьшается.
	Delete(ctx context.Context, id string) error
}

// OrderView — заказ вместе с кодом владельца, достаточный для отображения номера.
type OrderView struct {
	Order
	CustomerCode *int64
}
