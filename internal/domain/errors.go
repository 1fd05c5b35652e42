package domain

import "errors"

var (
	// ErrInvalidInput — общая категория для некорректных входных данных.
	// Возвращается до любой попытки аллокации и никогда не расходует номер.
	ErrInvalidInput = errors.New("invalid input")

	// Ошибка отсутствующего владельца заказа.
	ErrOwnerRequired = errors.New("owner_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")
	// Ошибка пустого SKU позиции.
	ErrItemSKURequired = errors.New("item sku is required")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order amount does not match items sum")
	// Сумма позиций не помещается в int64.
	ErrAmountOverflow = errors.New("order items sum overflows amount_minor")
	// Ошибка отсутствующего email аккаунта.
	ErrEmailRequired = errors.New("email is required")
	// Ошибка неизвестной роли аккаунта.
	ErrRoleInvalid = errors.New("account role is invalid")

	// ErrAccountNotFound возвращается, если аккаунт не найден в репозитории.
	ErrAccountNotFound = errors.New("account not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// Аккаунт с таким ID или email уже существует.
	ErrAccountAlreadyExists = errors.New("account already exists")
	// Заказ с таким ID уже сохранён.
	ErrOrderAlreadyExists = errors.New("order already exists")
	// Повторная отмена заказа.
	ErrOrderAlreadyCanceled = errors.New("order already canceled")

	// ErrSequenceConflict — конкурентная запись заняла тот же sequence_number.
	ErrSequenceConflict = errors.New("order sequence number conflict")
	// ErrCustomerCodeConflict — конкурентная запись заняла тот же customer_code.
	ErrCustomerCodeConflict = errors.New("customer code conflict")
	// ErrAllocationExhausted — исчерпан бюджет повторов при конфликтах.
	ErrAllocationExhausted = errors.New("allocation retries exhausted")

	// Ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")

	// Ошибки хранилища ключей идемпотентности.
	ErrIdempotencyKeyRequired         = errors.New("idempotency key is required")
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	ErrIdempotencyKeyNotFound         = errors.New("idempotency key not found")
	ErrIdempotencyKeyAlreadyExists    = errors.New("idempotency key already exists")
	ErrIdempotencyHashMismatch        = errors.New("idempotency key reused with different request")
)

// IsConflict сообщает, что ошибка вызвана гонкой за номер и операцию можно повторить.
func IsConflict(err error) bool {
	return errors.Is(err, ErrSequenceConflict) || errors.Is(err, ErrCustomerCodeConflict)
}

// IsNotFound проверяет, что ошибка означает отсутствие сущности.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrOrderNotFound)
}

// IsInvalidInput проверяет, что ошибка относится к валидации входных данных.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsIdempotencyConflict проверяет, является ли ошибка конфликтом ключа идемпотентности.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}

// InvalidInput оборачивает список нарушений в ошибку категории ErrInvalidInput.
func InvalidInput(errs ...error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(append([]error{ErrInvalidInput}, errs...)...)
}
