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

const customerCodeCounter = "customer_code"

const accountColumns = `id, email, name, role, customer_code, created_at, updated_at`

type accountRepository struct {
	store *Store
}

// NewAccountRepository создаёт PostgreSQL-реализацию AccountRepository.
func NewAccountRepository(store *Store) domain.AccountRepository {
	return &accountRepository{store: store}
}

func (r *accountRepository) Create(ctx context.Context, account domain.Account) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var code sql.NullInt64
	if account.CustomerCode != nil {
		code = sql.NullInt64{Int64: *account.CustomerCode, Valid: true}
	}

	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO accounts (
			id, email, name, role, customer_code, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		account.ID, account.Email, account.Name, string(account.Role), code,
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		return wrapClassified(fmt.Errorf("insert account: %w", err), classifyAccountError)
	}
	return nil
}

func (r *accountRepository) Get(ctx context.Context, id string) (domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	account, err := scanAccount(r.store.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Account{}, domain.ErrAccountNotFound
		}
		return domain.Account{}, fmt.Errorf("select account: %w", err)
	}
	return account, nil
}

func (r *accountRepository) ListWithoutCode(ctx context.Context, limit int) ([]domain.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := `SELECT ` + accountColumns + `
		FROM accounts
		WHERE customer_code IS NULL
		ORDER BY created_at ASC, id ASC`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.store.db.QueryContext(ctx, query+" LIMIT $1", limit)
	} else {
		rows, err = r.store.db.QueryContext(ctx, query)
	}
	if err != nil {
		return nil, fmt.Errorf("list accounts without code: %w", err)
	}
	defer rows.Close()

	accounts := make([]domain.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account row: %w", err)
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate account rows: %w", err)
	}

	return accounts, nil
}

// AssignNextCustomerCode в одной транзакции блокирует аккаунт, продвигает
// глобальную отметку и записывает код. Отметка засевается из MAX(customer_code),
// поэтому коды, выданные в обход счётчика, не приводят к повторам.
func (r *accountRepository) AssignNextCustomerCode(ctx context.Context, accountID string, start int64) (domain.CodeAssignment, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var result domain.CodeAssignment
	err := r.store.withTx(ctx, func(tx *sql.Tx) error {
		var current sql.NullInt64
		err := tx.QueryRowContext(ctx,
			`SELECT customer_code FROM accounts WHERE id = $1 FOR UPDATE`, accountID,
		).Scan(&current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.ErrAccountNotFound
			}
			return fmt.Errorf("lock account: %w", err)
		}
		if current.Valid {
			result = domain.CodeAssignment{AccountID: accountID, Code: current.Int64}
			return nil
		}

		var next int64
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO sequence_counters (name, last_value)
			VALUES ($1, COALESCE((SELECT MAX(customer_code) FROM accounts), $2) + 1)
			ON CONFLICT (name) DO UPDATE
			SET last_value = GREATEST(
				sequence_counters.last_value,
				COALESCE((SELECT MAX(customer_code) FROM accounts), 0)
			) + 1
			RETURNING last_value
		`, customerCodeCounter, start).Scan(&next); err != nil {
			return fmt.Errorf("advance customer code watermark: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE accounts
			SET customer_code = $2,
			    updated_at = $3
			WHERE id = $1
			  AND customer_code IS NULL
		`, accountID, next, time.Now().UTC()); err != nil {
			return fmt.Errorf("set customer code %d: %w", next, err)
		}

		msg, err := events.CustomerCodeAssigned(accountID, next)
		if err != nil {
			return err
		}
		if err := enqueueOutbox(ctx, tx, msg); err != nil {
			return err
		}

		result = domain.CodeAssignment{AccountID: accountID, Code: next, Assigned: true}
		return nil
	})
	if err != nil {
		return domain.CodeAssignment{}, wrapClassified(err, classifyAccountError)
	}

	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (domain.Account, error) {
	var (
		account domain.Account
		role    string
		code    sql.NullInt64
	)
	if err := row.Scan(
		&account.ID, &account.Email, &account.Name, &role, &code,
		&account.CreatedAt, &account.UpdatedAt,
	); err != nil {
		return domain.Account{}, err
	}
	account.Role = domain.AccountRole(role)
	if code.Valid {
		account.CustomerCode = domain.Int64Ptr(code.Int64)
	}
	return account, nil
}

var _ domain.AccountRepository = (*accountRepository)(nil)
