package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/storefront-ids/internal/domain"
)

const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"

	constraintCustomerCode  = "accounts_customer_code_key"
	constraintAccountEmail  = "accounts_email_key"
	constraintAccountPKey   = "accounts_pkey"
	constraintOrderSequence = "orders_owner_sequence_key"
	constraintOrderPKey     = "orders_pkey"
	constraintOrderOwner    = "orders_owner_id_fkey"
)

func pgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func isUniqueViolation(err error) bool {
	pgErr, ok := pgError(err)
	return ok && pgErr.Code == pgUniqueViolation
}

func isRetryableConflict(err error) bool {
	pgErr, ok := pgError(err)
	return ok && (pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected)
}

// classifyAccountError переводит ошибки PostgreSQL по таблице accounts в доменные.
func classifyAccountError(err error) error {
	pgErr, ok := pgError(err)
	if !ok {
		return nil
	}
	switch {
	case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraintCustomerCode:
		return domain.ErrCustomerCodeConflict
	case pgErr.Code == pgUniqueViolation && (pgErr.ConstraintName == constraintAccountEmail || pgErr.ConstraintName == constraintAccountPKey):
		return domain.ErrAccountAlreadyExists
	case pgErr.Code == pgUniqueViolation:
		return domain.ErrAccountAlreadyExists
	case isRetryableConflict(err):
		return domain.ErrCustomerCodeConflict
	default:
		return nil
	}
}

// classifyOrderError переводит ошибки PostgreSQL по таблицам orders/order_sequences в доменные.
// Повторяемым конфликтом считается только занятый (owner_id, sequence_number):
// дубликат ID позиции или события при повторе не исчезнет.
func classifyOrderError(err error) error {
	pgErr, ok := pgError(err)
	if !ok {
		return nil
	}
	switch {
	case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraintOrderPKey:
		return domain.ErrOrderAlreadyExists
	case pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraintOrderSequence:
		return domain.ErrSequenceConflict
	case pgErr.Code == pgForeignKeyViolation && pgErr.ConstraintName == constraintOrderOwner:
		return domain.ErrAccountNotFound
	case isRetryableConflict(err):
		return domain.ErrSequenceConflict
	default:
		return nil
	}
}

// wrapClassified добавляет к ошибке PostgreSQL доменную категорию, сохраняя исходный текст.
func wrapClassified(err error, classify func(error) error) error {
	if err == nil {
		return nil
	}
	if domainErr := classify(err); domainErr != nil {
		return fmt.Errorf("%w: %v", domainErr, err)
	}
	return err
}
