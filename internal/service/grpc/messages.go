package grpcsvc

import (
	"time"

	"github.com/vladislavdragonenkov/storefront-ids/internal/domain"
	"github.com/vladislavdragonenkov/storefront-ids/internal/service/customercode"
	"github.com/vladislavdragonenkov/storefront-ids/internal/service/orders"
)

type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name,omitempty"`
	Role         string    `json:"role"`
	CustomerCode *int64    `json:"customer_code,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type OrderItem struct {
	SKU        string `json:"sku"`
	Qty        int32  `json:"qty"`
	PriceMinor int64  `json:"price_minor"`
}

// Order всегда несёт order_number, вычисленный при чтении.
type Order struct {
	ID             string      `json:"id"`
	OwnerID        string      `json:"owner_id"`
	SequenceNumber int64       `json:"sequence_number"`
	OrderNumber    string      `json:"order_number"`
	CustomerCode   *int64      `json:"customer_code,omitempty"`
	Status         string      `json:"status"`
	Currency       string      `json:"currency"`
	AmountMinor    int64       `json:"amount_minor"`
	Items          []OrderItem `json:"items"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

type CreateAccountRequest struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

type CreateAccountResponse struct {
	Account *Account `json:"account"`
}

type GetAccountRequest struct {
	AccountID string `json:"account_id"`
}

type GetAccountResponse struct {
	Account *Account `json:"account"`
}

type CreateOrderRequest struct {
	OwnerID     string      `json:"owner_id"`
	Currency    string      `json:"currency"`
	AmountMinor int64       `json:"amount_minor"`
	Items       []OrderItem `json:"items"`
}

type CreateOrderResponse struct {
	Order *Order `json:"order"`
}

type GetOrderRequest struct {
	OrderID string `json:"order_id"`
}

type GetOrderResponse struct {
	Order *Order `json:"order"`
}

type ListOrdersRequest struct {
	OwnerID  string `json:"owner_id"`
	PageSize int32  `json:"page_size,omitempty"`
}

type ListOrdersResponse struct {
	Orders []*Order `json:"orders"`
}

type CancelOrderRequest struct {
	OrderID string `json:"order_id"`
}

type CancelOrderResponse struct {
	Order *Order `json:"order"`
}

type AssignCustomerCodesRequest struct{}

// AssignCustomerCodesResponse повторяет итог пакетного прогона.
type AssignCustomerCodesResponse struct {
	customercode.BatchSummary
}

func toAccount(account domain.Account) *Account {
	return &Account{
		ID:           account.ID,
		Email:        account.Email,
		Name:         account.Name,
		Role:         string(account.Role),
		CustomerCode: account.CustomerCode,
		CreatedAt:    account.CreatedAt,
	}
}

func toOrder(v orders.View) *Order {
	items := make([]OrderItem, 0, len(v.Items))
	for _, item := range v.Items {
		items = append(items, OrderItem{
			SKU:        item.SKU,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
		})
	}

	return &Order{
		ID:             v.ID,
		OwnerID:        v.OwnerID,
		SequenceNumber: v.SequenceNumber,
		OrderNumber:    v.Number,
		CustomerCode:   v.CustomerCode,
		Status:         string(v.Status),
		Currency:       v.Currency,
		AmountMinor:    v.AmountMinor,
		Items:          items,
		CreatedAt:      v.CreatedAt,
		UpdatedAt:      v.UpdatedAt,
	}
}

func toPayload(req *CreateOrderRequest) domain.OrderPayload {
	items := make([]domain.OrderItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, domain.OrderItemInput{
			SKU:        item.SKU,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
		})
	}
	return domain.OrderPayload{
		Currency:    req.Currency,
		AmountMinor: req.AmountMinor,
		Items:       items,
	}
}
