// Package sequence выдаёт заказам номер, уникальный и монотонный в пределах владельца.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-ids/internal/domain"
	"github.com/vladislavdragonenkov/storefront-ids/internal/metrics"
	"github.com/vladislavdragonenkov/storefront-ids/internal/service/retry"
	"github.com/vladislavdragonenkov/storefront-ids/internal/validation"
)

// Options задаёт зависимости Allocator, которые можно не указывать.
type Options struct {
	Logger  *log.Entry
	Metrics *metrics.AllocationMetrics
	Retry   retry.Config
	// NewID генерирует идентификаторы заказа и позиций.
	NewID func() string
	Now   func() time.Time
}

// Option настраивает Allocator.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithMetrics задаёт метрики аллокации.
func WithMetrics(m *metrics.AllocationMetrics) Option {
	return func(o *Options) { o.Metrics = m }
}

// WithRetry задаёт бюджет повторов при конфликтах.
func WithRetry(cfg retry.Config) Option {
	return func(o *Options) { o.Retry = cfg }
}

// WithIDGenerator подменяет генератор идентификаторов.
func WithIDGenerator(fn func() string) Option {
	return func(o *Options) { o.NewID = fn }
}

// WithClock подменяет источник времени.
func WithClock(fn func() time.Time) Option {
	return func(o *Options) { o.Now = fn }
}

// Allocator создаёт заказы, присваивая следующий sequence_number владельца.
// Состояние отметок живёт только в хранилище, поэтому несколько инстансов
// сервиса могут работать одновременно.
type Allocator struct {
	accounts domain.AccountRepository
	orders   domain.OrderRepository
	retry    retry.Config
	metrics  *metrics.AllocationMetrics
	logger   *log.Entry
	newID    func() string
	now      func() time.Time
}

// NewAllocator создаёт Allocator.
func NewAllocator(accounts domain.AccountRepository, orders domain.OrderRepository, options ...Option) *Allocator {
	opts := Options{
		Retry: retry.DefaultConfig(),
		NewID: uuid.NewString,
		Now:   time.Now,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "sequence-allocator")
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Allocator{
		accounts: accounts,
		orders:   orders,
		retry:    opts.Retry,
		metrics:  opts.Metrics,
		logger:   logger,
		newID:    opts.NewID,
		now:      opts.Now,
	}
}

// AllocateAndCreateOrder проверяет payload и владельца, затем в одной атомарной
// операции хранилища резервирует следующий номер и сохраняет заказ.
// Невалидный ввод и отсутствующий владелец не расходуют номер. Гонки за номер
// повторяются с экспоненциальной задержкой; после исчерпания бюджета
// возвращается ErrAllocationExhausted.
func (a *Allocator) AllocateAndCreateOrder(ctx context.Context, ownerID string, payload domain.OrderPayload) (domain.Order, error) {
	if ownerID == "" {
		return domain.Order{}, domain.InvalidInput(domain.ErrOwnerRequired)
	}
	if err := validation.Struct(payload); err != nil {
		return domain.Order{}, err
	}

	draft := domain.NewOrder(a.newID(), ownerID, payload, a.newID, a.now().UTC())
	if errs := draft.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, domain.InvalidInput(errs...)
	}

	if _, err := a.accounts.Get(ctx, ownerID); err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			return domain.Order{}, err
		}
		return domain.Order{}, fmt.Errorf("load owner %s: %w", ownerID, err)
	}

	logger := a.logger.WithFields(log.Fields{"owner_id": ownerID, "order_id": draft.ID})
	start := time.Now()
	defer func() { a.metrics.ObserveDuration(metrics.KindOrderSequence, time.Since(start)) }()

	var created domain.Order
	attempts, err := retry.Do(ctx, a.retry, domain.IsConflict, func(int) error {
		order, err := a.orders.CreateWithNextSequence(ctx, draft)
		switch {
		case err == nil:
			a.metrics.RecordAttempt(metrics.KindOrderSequence, metrics.ResultSuccess)
			created = order
		case domain.IsConflict(err):
			a.metrics.RecordAttempt(metrics.KindOrderSequence, metrics.ResultConflict)
		default:
			a.metrics.RecordAttempt(metrics.KindOrderSequence, metrics.ResultError)
		}
		return err
	}, func(err error, attempt int, delay time.Duration) {
		logger.WithError(err).WithFields(log.Fields{
			"attempt": attempt,
			"delay":   delay,
		}).Debug("order sequence conflict, retrying")
	})
	if err != nil {
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			a.metrics.RecordExhausted(metrics.KindOrderSequence)
			logger.WithError(exhausted.Last).WithField("attempts", attempts).Error("order sequence allocation exhausted")
			return domain.Order{}, fmt.Errorf("%w after %d attempts: %v", domain.ErrAllocationExhausted, exhausted.Attempts, exhausted.Last)
		}
		return domain.Order{}, err
	}

	if attempts > 1 {
		logger.WithFields(log.Fields{
			"attempts":        attempts,
			"sequence_number": created.SequenceNumber,
		}).Warn("order sequence allocated after conflicts")
	} else {
		logger.WithField("sequence_number", created.SequenceNumber).Debug("order sequence allocated")
	}

	return created, nil
}
