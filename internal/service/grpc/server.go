// Package grpcsvc реализует gRPC API storefront.v1.IdentifierService:
// регистрацию аккаунтов, создание и чтение заказов и пакетное назначение кодов.
package grpcsvc

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/storefront-ids/internal/domain"
	"github.com/vladislavdragonenkov/storefront-ids/internal/service/accounts"
	"github.com/vladislavdragonenkov/storefront-ids/internal/service/customercode"
	"github.com/vladislavdragonenkov/storefront-ids/internal/service/orders"
)

const (
	defaultListOrdersLimit = 100
	maxListOrdersLimit     = 1000
)

// AccountService регистрирует и читает аккаунты.
type AccountService interface {
	CreateAccount(ctx context.Context, in accounts.Input) (domain.Account, error)
	GetAccount(ctx context.Context, id string) (domain.Account, error)
}

// OrderService создаёт и читает заказы с готовыми номерами.
type OrderService interface {
	Create(ctx context.Context, ownerID string, payload domain.OrderPayload) (orders.View, error)
	Get(ctx context.Context, id string) (orders.View, error)
	List(ctx context.Context, ownerID string, limit int) ([]orders.View, error)
	Cancel(ctx context.Context, id string) (orders.View, error)
}

// CodeBackfiller запускает пакетное назначение кодов.
type CodeBackfiller interface {
	AssignCustomerCodes(ctx context.Context) (customercode.BatchSummary, error)
}

// Option настраивает Server.
type Option func(*Server)

// WithLogger задаёт logger транспорта.
func WithLogger(logger *log.Entry) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIdempotency включает повтор ответов по заголовку idempotency-key.
func WithIdempotency(repo domain.IdempotencyRepository, ttl time.Duration) Option {
	return func(s *Server) {
		s.idemRepo = repo
		if ttl > 0 {
			s.idemTTL = ttl
		}
	}
}

// Server реализует IdentifierServiceServer.
type Server struct {
	accounts AccountService
	orders   OrderService
	codes    CodeBackfiller
	idemRepo domain.IdempotencyRepository
	idemTTL  time.Duration
	logger   *log.Entry
	now      func() time.Time
}

var _ IdentifierServiceServer = (*Server)(nil)

// NewServer конструирует сервис с зависимостями.
func NewServer(accountSvc AccountService, orderSvc OrderService, codes CodeBackfiller, options ...Option) *Server {
	s := &Server{
		accounts: accountSvc,
		orders:   orderSvc,
		codes:    codes,
		idemTTL:  domain.DefaultIdempotencyTTL,
		logger:   log.WithField("component", "grpc-identifier-service"),
		now:      time.Now,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// CreateAccount регистрирует аккаунт и возвращает его вместе с customer_code.
func (s *Server) CreateAccount(ctx context.Context, req *CreateAccountRequest) (*CreateAccountResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	return withIdempotency(s, ctx, IdentifierService_CreateAccount_FullMethodName, req,
		func(ctx context.Context) (*CreateAccountResponse, error) {
			account, err := s.accounts.CreateAccount(ctx, accounts.Input{
				Email: req.Email,
				Name:  req.Name,
				Role:  req.Role,
			})
			if err != nil {
				return nil, toStatus(s.logger, "CreateAccount", err)
			}
			return &CreateAccountResponse{Account: toAccount(account)}, nil
		},
	)
}

// GetAccount возвращает аккаунт.
func (s *Server) GetAccount(ctx context.Context, req *GetAccountRequest) (*GetAccountResponse, error) {
	if req == nil || strings.TrimSpace(req.AccountID) == "" {
		return nil, status.Error(codes.InvalidArgument, "account_id is required")
	}

	account, err := s.accounts.GetAccount(ctx, req.AccountID)
	if err != nil {
		return nil, toStatus(s.logger, "GetAccount", err)
	}
	return &GetAccountResponse{Account: toAccount(account)}, nil
}

// CreateOrder выделяет номер и сохраняет заказ.
func (s *Server) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	return withIdempotency(s, ctx, IdentifierService_CreateOrder_FullMethodName, req,
		func(ctx context.Context) (*CreateOrderResponse, error) {
			view, err := s.orders.Create(ctx, req.OwnerID, toPayload(req))
			if err != nil {
				return nil, toStatus(s.logger.WithField("owner_id", req.OwnerID), "CreateOrder", err)
			}
			return &CreateOrderResponse{Order: toOrder(view)}, nil
		},
	)
}

// GetOrder возвращает заказ с номером.
func (s *Server) GetOrder(ctx context.Context, req *GetOrderRequest) (*GetOrderResponse, error) {
	if req == nil || strings.TrimSpace(req.OrderID) == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	view, err := s.orders.Get(ctx, req.OrderID)
	if err != nil {
		return nil, toStatus(s.logger, "GetOrder", err)
	}
	return &GetOrderResponse{Order: toOrder(view)}, nil
}

// ListOrders возвращает заказы владельца, новые первыми.
func (s *Server) ListOrders(ctx context.Context, req *ListOrdersRequest) (*ListOrdersResponse, error) {
	if req == nil || strings.TrimSpace(req.OwnerID) == "" {
		return nil, status.Error(codes.InvalidArgument, "owner_id is required")
	}

	limit := int(req.PageSize)
	switch {
	case limit <= 0:
		limit = defaultListOrdersLimit
	case limit > maxListOrdersLimit:
		limit = maxListOrdersLimit
	}

	views, err := s.orders.List(ctx, req.OwnerID, limit)
	if err != nil {
		return nil, toStatus(s.logger, "ListOrders", err)
	}

	result := make([]*Order, 0, len(views))
	for _, view := range views {
		result = append(result, toOrder(view))
	}
	return &ListOrdersResponse{Orders: result}, nil
}

// CancelOrder отменяет заказ, номер за ним сохраняется.
func (s *Server) CancelOrder(ctx context.Context, req *CancelOrderRequest) (*CancelOrderResponse, error) {
	if req == nil || strings.TrimSpace(req.OrderID) == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	view, err := s.orders.Cancel(ctx, req.OrderID)
	if err != nil {
		return nil, toStatus(s.logger, "CancelOrder", err)
	}
	return &CancelOrderResponse{Order: toOrder(view)}, nil
}

// AssignCustomerCodes запускает пакетное назначение кодов.
func (s *Server) AssignCustomerCodes(ctx context.Context, _ *AssignCustomerCodesRequest) (*AssignCustomerCodesResponse, error) {
	summary, err := s.codes.AssignCustomerCodes(ctx)
	if err != nil {
		return nil, toStatus(s.logger, "AssignCustomerCodes", err)
	}
	return &AssignCustomerCodesResponse{BatchSummary: summary}, nil
}
