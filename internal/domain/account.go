package domain

import (
	"strings"
	"time"
)

// AccountRole различает клиентов и администраторов витрины.
type AccountRole string

const (
	// Оптовый покупатель.
	AccountRoleCustomer AccountRole = "customer"
	// Сотрудник, управляющий каталогом и заказами.
	AccountRoleAdmin AccountRole = "admin"
)

// DefaultCustomerCodeStart — значение водяной отметки, когда ни одного кода ещё не выдано.
// Первый выданный код равен DefaultCustomerCodeStart+1.
const DefaultCustomerCodeStart int64 = 1000

// Valid проверяет, что роль относится к поддерживаемым значениям.
func (r AccountRole) Valid() bool {
	switch r {
	case AccountRoleCustomer, AccountRoleAdmin:
		return true
	default:
		return false
	}
}

// Account — учётная запись клиента или администратора.
type Account struct {
	ID    string
	Email string
	Name  string
	Role  AccountRole
	// CustomerCode выдаётся ровно один раз и больше никогда не меняется.
	// nil означает, что код ещё не назначен.
	CustomerCode *int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasCustomerCode сообщает, назначен ли аккаунту постоянный код.
func (a Account) HasCustomerCode() bool {
	return a.CustomerCode != nil
}

// ValidateInvariants проверяет базовые инварианты аккаунта и возвращает список замечаний.
func (a *Account) ValidateInvariants() []error {
	var errs []error

	if strings.TrimSpace(a.Email) == "" {
		errs = append(errs, ErrEmailRequired)
	}
	if !a.Role.Valid() {
		errs = append(errs, ErrRoleInvalid)
	}

	return errs
}

// CodeAssignment описывает результат одной попытки назначить код аккаунту.
type CodeAssignment struct {
	AccountID string
	Code      int64
	// Assigned=false означает, что код уже был у аккаунта и не изменился.
	Assigned bool
}

// Int64Ptr возвращает указатель на копию значения.
func Int64Ptr(v int64) *int64 {
	return &v
}
