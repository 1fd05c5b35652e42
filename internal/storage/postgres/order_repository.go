package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront-ids/internal/domain"
	"github.com/vladislavdragonenkov/storefront-ids/internal/events"
)

const orderColumns = `id, owner_id, sequence_number, status, currency, amount_minor, created_at, updated_at`

const (
	// FOR KEY SHARE не даёт удалить владельца, но не мешает назначать ему код.
	ownerCodeSQL = `SELECT customer_code FROM accounts WHERE id = $1 FOR KEY SHARE`

	// Отметка никогда не опускается ниже уже выданных номеров, даже если
	// order_sequences отстала от orders (ручная вставка, восстановление из бэкапа).
	advanceOrderSequenceSQL = `
		INSERT INTO order_sequences (account_id, last_value)
		VALUES ($1, COALESCE((SELECT MAX(sequence_number) FROM orders WHERE owner_id = $1), 0) + 1)
		ON CONFLICT (account_id) DO UPDATE
		SET last_value = GREATEST(
			order_sequences.last_value,
			COALESCE((SELECT MAX(sequence_number) FROM orders WHERE owner_id = $1), 0)
		) + 1
		RETURNING last_value`

	insertOrderSQL = `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	insertOrderItemSQL = `
		INSERT INTO order_items (id, order_id, sku, qty, price_minor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	selectOrderItemsSQL = `
		SELECT id, sku, qty, price_minor, created_at
		FROM order_items
		WHERE order_id = $1
		ORDER BY created_at, id`
)

type orderRepository struct {
	store *Store
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{store: store}
}

// CreateWithNextSequence продвигает отметку владельца и вставляет заказ одной транзакцией.
// Upsert держит блокировку строки order_sequences до COMMIT, так что аллокации
// одного владельца идут по очереди. Уникальный индекс (owner_id, sequence_number)
// ловит всё остальное и превращается в ErrSequenceConflict.
func (r *orderRepository) CreateWithNextSequence(ctx context.Context, order domain.Order) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	err := r.store.withTx(ctx, func(tx *sql.Tx) error {
		code, err := ownerCode(ctx, tx, order.OwnerID)
		if err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx, advanceOrderSequenceSQL, order.OwnerID).Scan(&order.SequenceNumber); err != nil {
			return fmt.Errorf("advance order sequence: %w", err)
		}
		if err := insertOrder(ctx, tx, order); err != nil {
			return err
		}

		msg, err := events.OrderCreated(domain.OrderView{Order: order, CustomerCode: code})
		if err != nil {
			return err
		}
		return enqueueOutbox(ctx, tx, msg)
	})
	if err != nil {
		return domain.Order{}, wrapClassified(err, classifyOrderError)
	}
	return order, nil
}

func ownerCode(ctx context.Context, tx *sql.Tx, ownerID string) (*int64, error) {
	var code sql.NullInt64
	switch err := tx.QueryRowContext(ctx, ownerCodeSQL, ownerID).Scan(&code); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, domain.ErrAccountNotFound
	case err != nil:
		return nil, fmt.Errorf("load order owner: %w", err)
	}
	return nullableCode(code), nil
}

func insertOrder(ctx context.Context, tx *sql.Tx, o domain.Order) error {
	if _, err := tx.ExecContext(ctx, insertOrderSQL,
		o.ID, o.OwnerID, o.SequenceNumber, string(o.Status), o.Currency, o.AmountMinor, o.CreatedAt, o.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert order seq %d: %w", o.SequenceNumber, err)
	}
	for _, it := range o.Items {
		if _, err := tx.ExecContext(ctx, insertOrderItemSQL,
			it.ID, o.ID, it.SKU, it.Qty, it.PriceMinor, it.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert order item %s: %w", it.SKU, err)
		}
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.store.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.Order{}, domain.ErrOrderNotFound
	case err != nil:
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}
	if order.Items, err = loadItems(ctx, r.store.db, order.ID); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// ListByOwner возвращает заказы от новых к старым; limit <= 0 снимает ограничение.
func (r *orderRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `SELECT ` + orderColumns + ` FROM orders WHERE owner_id = $1 ORDER BY sequence_number DESC`
	args := []any{ownerID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	orders, err := r.queryOrders(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	// Позиции читаются после закрытия rows: одно соединение не держит два курсора.
	for i := range orders {
		if orders[i].Items, err = loadItems(ctx, r.store.db, orders[i].ID); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *orderRepository) queryOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	return orders, nil
}

// Cancel меняет статус и пишет order.canceled той же транзакцией.
func (r *orderRepository) Cancel(ctx context.Context, id string, at time.Time) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var order domain.Order
	err := r.store.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		order, err = scanOrder(tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return domain.ErrOrderNotFound
		case err != nil:
			return fmt.Errorf("lock order: %w", err)
		case order.Status == domain.OrderStatusCanceled:
			return domain.ErrOrderAlreadyCanceled
		}

		order.Status, order.UpdatedAt = domain.OrderStatusCanceled, at.UTC()
		if _, err := tx.ExecContext(ctx, `UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`,
			id, string(order.Status), order.UpdatedAt); err != nil {
			return fmt.Errorf("cancel order: %w", err)
		}

		// Владелец мог быть удалён вместе с кодом: событие уходит без него.
		var code sql.NullInt64
		err = tx.QueryRowContext(ctx, `SELECT customer_code FROM accounts WHERE id = $1`, order.OwnerID).Scan(&code)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("load order owner: %w", err)
		}

		msg, err := events.OrderCanceled(domain.OrderView{Order: order, CustomerCode: nullableCode(code)})
		if err != nil {
			return err
		}
		return enqueueOutbox(ctx, tx, msg)
	})
	if err != nil {
		return domain.Order{}, err
	}

	if order.Items, err = loadItems(ctx, r.store.db, order.ID); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// Delete удаляет заказ вместе с позициями. Отметка в order_sequences остаётся.
func (r *orderRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.store.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("rows affected: %w", err)
	} else if n == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func loadItems(ctx context.Context, q querier, orderID string) ([]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx, selectOrderItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := []domain.OrderItem{}
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.SKU, &it.Qty, &it.PriceMinor, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o      domain.Order
		status string
	)
	err := row.Scan(&o.ID, &o.OwnerID, &o.SequenceNumber, &status, &o.Currency, &o.AmountMinor, &o.CreatedAt, &o.UpdatedAt)
	o.Status = domain.OrderStatus(status)
	return o, err
}

func nullableCode(code sql.NullInt64) *int64 {
	if !code.Valid {
		return nil
	}
	return domain.Int64Ptr(code.Int64)
}

var _ domain.OrderRepository = (*orderRepository)(nil)
