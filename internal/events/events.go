// Package events собирает сообщения transactional outbox, которые репозитории
// записывают в той же транзакции, что резервирует номер.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront-ids/internal/domain"
	"github.com/vladislavdragonenkov/storefront-ids/internal/ordernumber"
)

// EventType определяет тип события.
type EventType string

const (
	EventTypeOrderCreated         EventType = "order.created"
	EventTypeOrderCanceled        EventType = "order.canceled"
	EventTypeCustomerCodeAssigned EventType = "customer.code_assigned"
)

const (
	AggregateOrder   = "order"
	AggregateAccount = "account"
)

// OrderEvent — payload событий заказа. OrderNumber вычислен на момент события
// и передаётся потребителям (счета, выгрузки) рядом с исходными полями.
type OrderEvent struct {
	EventType      EventType `json:"event_type"`
	OrderID        string    `json:"order_id"`
	OwnerID        string    `json:"owner_id"`
	CustomerCode   *int64    `json:"customer_code,omitempty"`
	SequenceNumber int64     `json:"sequence_number"`
	OrderNumber    string    `json:"order_number"`
	Status         string    `json:"status"`
	Currency       string    `json:"currency"`
	AmountMinor    int64     `json:"amount_minor"`
	CreatedAt      time.Time `json:"created_at"`
	Timestamp      time.Time `json:"timestamp"`
}

// CustomerCodeEvent — payload события назначения кода.
type CustomerCodeEvent struct {
	EventType    EventType `json:"event_type"`
	AccountID    string    `json:"account_id"`
	CustomerCode int64     `json:"customer_code"`
	Timestamp    time.Time `json:"timestamp"`
}

// OrderCreated строит outbox-сообщение о новом заказе.
func OrderCreated(view domain.OrderView) (domain.OutboxMessage, error) {
	return orderMessage(EventTypeOrderCreated, view)
}

// OrderCanceled строит outbox-сообщение об отмене заказа.
func OrderCanceled(view domain.OrderView) (domain.OutboxMessage, error) {
	return orderMessage(EventTypeOrderCanceled, view)
}

// CustomerCodeAssigned строит outbox-сообщение о назначенном коде.
func CustomerCodeAssigned(accountID string, code int64) (domain.OutboxMessage, error) {
	payload, err := json.Marshal(CustomerCodeEvent{
		EventType:    EventTypeCustomerCodeAssigned,
		AccountID:    accountID,
		CustomerCode: code,
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("marshal %s payload: %w", EventTypeCustomerCodeAssigned, err)
	}

	return domain.OutboxMessage{
		AggregateType: AggregateAccount,
		AggregateID:   accountID,
		EventType:     string(EventTypeCustomerCodeAssigned),
		Payload:       payload,
	}, nil
}

func orderMessage(eventType EventType, view domain.OrderView) (domain.OutboxMessage, error) {
	number, err := ordernumber.ForOrder(view)
	if err != nil {
		return domain.OutboxMessage{}, err
	}

	payload, err := json.Marshal(OrderEvent{
		EventType:      eventType,
		OrderID:        view.ID,
		OwnerID:        view.OwnerID,
		CustomerCode:   view.CustomerCode,
		SequenceNumber: view.SequenceNumber,
		OrderNumber:    number,
		Status:         string(view.Status),
		Currency:       view.Currency,
		AmountMinor:    view.AmountMinor,
		CreatedAt:      view.CreatedAt.UTC(),
		Timestamp:      time.Now().UTC(),
	})
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	return domain.OutboxMessage{
		AggregateType: AggregateOrder,
		AggregateID:   view.ID,
		EventType:     string(eventType),
		Payload:       payload,
	}, nil
}
