// Package accounts регистрирует аккаунты витрины и сразу выдаёт им customer_code.
package accounts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-ids/internal/domain"
	"github.com/vladislavdragonenkov/storefront-ids/internal/validation"
)

// CodeAssigner назначает код одному аккаунту.
type CodeAssigner interface {
	AssignCodeToAccount(ctx context.Context, accountID string) (int64, error)
}

// Input — данные для регистрации аккаунта.
type Input struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name"`
	Role  string `json:"role" validate:"omitempty,oneof=customer admin"`
}

// Service регистрирует и читает аккаунты.
type Service struct {
	repo     domain.AccountRepository
	assigner CodeAssigner
	logger   *log.Entry
	newID    func() string
	now      func() time.Time
}

// NewService создаёт Service.
func NewService(repo domain.AccountRepository, assigner CodeAssigner, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "accounts")
	}
	return &Service{
		repo:     repo,
		assigner: assigner,
		logger:   logger,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// CreateAccount сохраняет аккаунт и назначает ему код до возврата.
// Если назначение не удалось, аккаунт остаётся без кода до пакетного прогона,
// а вызов возвращает ошибку.
func (s *Service) CreateAccount(ctx context.Context, in Input) (domain.Account, error) {
	if err := validation.Struct(in); err != nil {
		return domain.Account{}, err
	}

	role := domain.AccountRole(in.Role)
	if role == "" {
		role = domain.AccountRoleCustomer
	}

	now := s.now().UTC()
	account := domain.Account{
		ID:        s.newID(),
		Email:     strings.TrimSpace(in.Email),
		Name:      strings.TrimSpace(in.Name),
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errs := account.ValidateInvariants(); len(errs) > 0 {
		return domain.Account{}, domain.InvalidInput(errs...)
	}

	if err := s.repo.Create(ctx, account); err != nil {
		return domain.Account{}, err
	}

	code, err := s.assigner.AssignCodeToAccount(ctx, account.ID)
	if err != nil {
		s.logger.WithError(err).WithField("account_id", account.ID).Warn("account created without customer code")
		return domain.Account{}, fmt.Errorf("assign customer code to %s: %w", account.ID, err)
	}
	account.CustomerCode = domain.Int64Ptr(code)

	s.logger.WithFields(log.Fields{
		"account_id":    account.ID,
		"customer_code": code,
	}).Info("account created")

	return account, nil
}

// GetAccount возвращает аккаунт по идентификатору.
func (s *Service) GetAccount(ctx context.Context, id string) (domain.Account, error) {
	return s.repo.Get(ctx, id)
}
