package domain

import (
	"math"
	"time"
)

// OrderStatus описывает жизненный цикл заказа на витрине.
type OrderStatus string

const (
	// Заказ оформлен, номер присвоен.
	OrderStatusPlaced OrderStatus = "placed"
	// OrderStatusCanceled — заказ отменён; его sequence_number не переиспользуется.
	OrderStatusCanceled OrderStatus = "canceled"
)

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	ID string
	// Внешний идентификатор товара.
	SKU string
	Qty int32
	// Цена за единицу в минимальных денежных единицах.
	PriceMinor int64
	CreatedAt  time.Time
}

// Order — оформленная покупка, принадлежащая одному аккаунту.
type Order struct {
	ID      string
	OwnerID string
	// SequenceNumber уникален в пределах OwnerID и присваивается один раз
	// в той же транзакции, что фиксирует сам заказ.
	SequenceNumber int64
	Status         OrderStatus
	Currency       string
	AmountMinor    int64
	Items          []OrderItem
	// CreatedAt используется только для отображения номера, порядок задаёт SequenceNumber.
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderItemInput — позиция в запросе на создание заказа.
type OrderItemInput struct {
	SKU        string `json:"sku" validate:"required"`
	Qty        int32  `json:"qty" validate:"gt=0"`
	PriceMinor int64  `json:"price_minor" validate:"gte=0"`
}

// OrderPayload — уже провалидированное вызывающей стороной содержимое заказа.
type OrderPayload struct {
	Currency    string           `json:"currency" validate:"required,len=3"`
	AmountMinor int64            `json:"amount_minor" validate:"gte=0"`
	Items       []OrderItemInput `json:"items" validate:"required,min=1,dive"`
}

// Total — сумма qty * price по позициям в минимальных единицах.
// ok=false, если сумма или одно из произведений не помещается в int64.
func (o *Order) Total() (int64, bool) {
	var sum int64
	for _, it := range o.Items {
		line, ok := mulInt64(int64(it.Qty), it.PriceMinor)
		if ok {
			sum, ok = addInt64(sum, line)
		}
		if !ok {
			return 0, false
		}
	}
	return sum, true
}

func mulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	c := a * b
	if c/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	return c, true
}

func addInt64(a, b int64) (int64, bool) {
	c := a + b
	if (c > a) != (b > 0) {
		return 0, false
	}
	return c, true
}

// ValidateInvariants возвращает все нарушенные инварианты заказа, nil для корректного.
func (o *Order) ValidateInvariants() []error {
	var errs []error
	add := func(bad bool, err error) {
		if bad {
			errs = append(errs, err)
		}
	}

	add(o.OwnerID == "", ErrOwnerRequired)
	add(o.Currency == "", ErrCurrencyRequired)
	add(len(o.Items) == 0, ErrItemsRequired)
	add(o.AmountMinor < 0, ErrAmountNegative)
	for _, it := range o.Items {
		add(it.SKU == "", ErrItemSKURequired)
		add(it.Qty <= 0, ErrItemQtyInvalid)
		add(it.PriceMinor < 0, ErrItemPriceInvalid)
	}
	if total, ok := o.Total(); !ok {
		errs = append(errs, ErrAmountOverflow)
	} else {
		add(total != o.AmountMinor, ErrAmountMismatch)
	}
	return errs
}

// NewOrder собирает заказ из payload без номера: SequenceNumber появляется только при сохранении.
func NewOrder(id, ownerID string, payload OrderPayload, itemID func() string, now time.Time) Order {
	items := make([]OrderItem, 0, len(payload.Items))
	for _, in := range payload.Items {
		items = append(items, OrderItem{
			ID:         itemID(),
			SKU:        in.SKU,
			Qty:        in.Qty,
			PriceMinor: in.PriceMinor,
			CreatedAt:  now,
		})
	}

	return Order{
		ID:          id,
		OwnerID:     ownerID,
		Status:      OrderStatusPlaced,
		Currency:    payload.Currency,
		AmountMinor: payload.AmountMinor,
		Items:       items,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
