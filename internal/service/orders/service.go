// Package orders объединяет аллокацию номера с чтением и отменой заказов.
// Все ответы содержат отображаемый номер, вычисленный при чтении.
package orders

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-ids/internal/domain"
	"github.com/vladislavdragonenkov/storefront-ids/internal/ordernumber"
)

// Allocator создаёт заказ с новым sequence_number.
type Allocator interface {
	AllocateAndCreateOrder(ctx context.Context, ownerID string, payload domain.OrderPayload) (domain.Order, error)
}

// View — заказ с кодом владельца и готовым номером.
type View struct {
	domain.OrderView
	Number string
}

// Service читает, создаёт и отменяет заказы.
type Service struct {
	allocator Allocator
	orders    domain.OrderRepository
	accounts  domain.AccountRepository
	logger    *log.Entry
	now       func() time.Time
}

// NewService создаёт Service.
func NewService(allocator Allocator, orders domain.OrderRepository, accounts domain.AccountRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "orders")
	}
	return &Service{
		allocator: allocator,
		orders:    orders,
		accounts:  accounts,
		logger:    logger,
		now:       time.Now,
	}
}

// Create выделяет номер и возвращает заказ вместе с отображаемым номером.
func (s *Service) Create(ctx context.Context, ownerID string, payload domain.OrderPayload) (View, error) {
	order, err := s.allocator.AllocateAndCreateOrder(ctx, ownerID, payload)
	if err != nil {
		return View{}, err
	}
	return s.view(ctx, order)
}

// Get возвращает заказ по идентификатору.
func (s *Service) Get(ctx context.Context, id string) (View, error) {
	order, err := s.orders.Get(ctx, id)
	if err != nil {
		return View{}, err
	}
	return s.view(ctx, order)
}

// List возвращает заказы владельца, новые первыми.
func (s *Service) List(ctx context.Context, ownerID string, limit int) ([]View, error) {
	account, err := s.accounts.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	orders, err := s.orders.ListByOwner(ctx, ownerID, limit)
	if err != nil {
		return nil, err
	}

	views := make([]View, 0, len(orders))
	for _, order := range orders {
		v, err := render(order, account.CustomerCode)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

// Cancel отменяет заказ; номер остаётся за ним.
func (s *Service) Cancel(ctx context.Context, id string) (View, error) {
	order, err := s.orders.Cancel(ctx, id, s.now())
	if err != nil {
		return View{}, err
	}
	s.logger.WithFields(log.Fields{
		"order_id":        order.ID,
		"sequence_number": order.SequenceNumber,
	}).Info("order canceled")
	return s.view(ctx, order)
}

// Number возвращает только отображаемый номер заказа.
func (s *Service) Number(ctx context.Context, id string) (string, error) {
	v, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return v.Number, nil
}

// view подставляет текущий код владельца: номер заказа, созданного до
// назначения кода, начинает показывать код сразу после назначения.
func (s *Service) view(ctx context.Context, order domain.Order) (View, error) {
	var code *int64
	account, err := s.accounts.Get(ctx, order.OwnerID)
	switch {
	case err == nil:
		code = account.CustomerCode
	case domain.IsNotFound(err):
	default:
		return View{}, err
	}
	return render(order, code)
}

func render(order domain.Order, code *int64) (View, error) {
	ov := domain.OrderView{Order: order, CustomerCode: code}
	number, err := ordernumber.ForOrder(ov)
	if err != nil {
		return View{}, err
	}
	return View{OrderView: ov, Number: number}, nil
}
