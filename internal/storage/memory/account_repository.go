package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/storefront-ids/internal/domain"
	"github.com/vladislavdragonenkov/storefront-ids/internal/events"
)

// AccountRepository — in-memory хранилище аккаунтов с глобальной отметкой customer_code.
// Гарантии действуют только внутри одного процесса.
type AccountRepository struct {
	mu       sync.RWMutex
	items    map[string]domain.Account
	emails   map[string]string
	codes    map[int64]string
	lastCode int64
	// counterSet=false означает, что отметка ещё ни разу не продвигалась.
	counterSet bool
	outbox     domain.OutboxRepository
}

// NewAccountRepository создаёт пустое хранилище. outbox может быть nil.
func NewAccountRepository(outbox domain.OutboxRepository) *AccountRepository {
	return &AccountRepository{
		items:  make(map[string]domain.Account),
		emails: make(map[string]string),
		codes:  make(map[int64]string),
		outbox: outbox,
	}
}

// Create сохраняет аккаунт. Заранее заданный CustomerCode принимается только
// при импорте и проверяется на уникальность.
func (r *AccountRepository) Create(ctx context.Context, account domain.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(account.Email))
	if _, exists := r.items[account.ID]; exists {
		return domain.ErrAccountAlreadyExists
	}
	if _, exists := r.emails[email]; exists {
		return domain.ErrAccountAlreadyExists
	}
	if account.CustomerCode != nil {
		if _, taken := r.codes[*account.CustomerCode]; taken {
			return domain.ErrCustomerCodeConflict
		}
		r.codes[*account.CustomerCode] = account.ID
	}

	r.items[account.ID] = cloneAccount(account)
	r.emails[email] = account.ID
	return nil
}

// Get возвращает копию аккаунта или ErrAccountNotFound.
func (r *AccountRepository) Get(ctx context.Context, id string) (domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return domain.Account{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.items[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return cloneAccount(account), nil
}

// ListWithoutCode возвращает аккаунты без кода в порядке создания.
func (r *AccountRepository) ListWithoutCode(ctx context.Context, limit int) ([]domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Account, 0)
	for _, account := range r.items {
		if account.CustomerCode == nil {
			result = append(result, cloneAccount(account))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// AssignNextCustomerCode назначает аккаунту следующий код под одной блокировкой:
// next = max(отметка, максимальный выданный код) + 1.
func (r *AccountRepository) AssignNextCustomerCode(ctx context.Context, accountID string, start int64) (domain.CodeAssignment, error) {
	if err := ctx.Err(); err != nil {
		return domain.CodeAssignment{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.items[accountID]
	if !ok {
		return domain.CodeAssignment{}, domain.ErrAccountNotFound
	}
	if account.CustomerCode != nil {
		return domain.CodeAssignment{AccountID: accountID, Code: *account.CustomerCode}, nil
	}

	next := r.watermarkLocked(start) + 1
	if _, taken := r.codes[next]; taken {
		return domain.CodeAssignment{}, fmt.Errorf("code %d: %w", next, domain.ErrCustomerCodeConflict)
	}

	if r.outbox != nil {
		msg, err := events.CustomerCodeAssigned(accountID, next)
		if err != nil {
			return domain.CodeAssignment{}, err
		}
		if _, err := r.outbox.Enqueue(ctx, msg); err != nil {
			return domain.CodeAssignment{}, fmt.Errorf("enqueue outbox: %w", err)
		}
	}

	account.CustomerCode = domain.Int64Ptr(next)
	r.items[accountID] = account
	r.codes[next] = accountID
	r.lastCode = next
	r.counterSet = true

	return domain.CodeAssignment{AccountID: accountID, Code: next, Assigned: true}, nil
}

// watermarkLocked повторяет семантику SQL-реализации: до первого продвижения
// отметки берётся максимальный существующий код или start.
func (r *AccountRepository) watermarkLocked(start int64) int64 {
	var maxCode int64
	hasCodes := false
	for code := range r.codes {
		if !hasCodes || code > maxCode {
			maxCode = code
			hasCodes = true
		}
	}

	if !r.counterSet {
		if hasCodes {
			return maxCode
		}
		return start
	}
	if hasCodes && maxCode > r.lastCode {
		return maxCode
	}
	return r.lastCode
}

// customerCode возвращает код владельца и признак существования аккаунта.
func (r *AccountRepository) customerCode(id string) (*int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.items[id]
	if !ok {
		return nil, false
	}
	if account.CustomerCode == nil {
		return nil, true
	}
	return domain.Int64Ptr(*account.CustomerCode), true
}

func cloneAccount(src domain.Account) domain.Account {
	dst := src
	if src.CustomerCode != nil {
		dst.CustomerCode = domain.Int64Ptr(*src.CustomerCode)
	}
	return dst
}

var _ domain.AccountRepository = (*AccountRepository)(nil)
