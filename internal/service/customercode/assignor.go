// Package customercode назначает аккаунтам постоянные глобально уникальные коды.
package customercode

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-ids/internal/domain"
	"github.com/vladislavdragonenkov/storefront-ids/internal/metrics"
	"github.com/vladislavdragonenkov/storefront-ids/internal/service/retry"
)

// Результаты пакетного прогона для метрик.
const (
	batchResultNoop    = "noop"
	batchResultOK      = "ok"
	batchResultPartial = "partial"
	batchResultError   = "error"
)

// BatchSummary — итог пакетного назначения кодов.
type BatchSummary struct {
	CodesAssigned int    `json:"codesAssigned"`
	StartingCode  *int64 `json:"startingCode,omitempty"`
	EndingCode    *int64 `json:"endingCode,omitempty"`
	Message       string `json:"message"`
	// Skipped — аккаунты, оставшиеся без кода; их подберёт следующий прогон.
	Skipped []string `json:"skipped,omitempty"`
}

// Options задаёт необязательные зависимости Assignor.
type Options struct {
	Logger  *log.Entry
	Metrics *metrics.AllocationMetrics
	Retry   retry.Config
	// Start — значение отметки, если ни одного кода ещё не выдано.
	Start int64
	// BatchLimit ограничивает число аккаунтов за прогон; 0 — без ограничения.
	BatchLimit int
}

// Option настраивает Assignor.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithMetrics задаёт метрики.
func WithMetrics(m *metrics.AllocationMetrics) Option {
	return func(o *Options) { o.Metrics = m }
}

// WithRetry задаёт бюджет повторов на один аккаунт.
func WithRetry(cfg retry.Config) Option {
	return func(o *Options) { o.Retry = cfg }
}

// WithStart задаёт стартовую отметку кодов.
func WithStart(start int64) Option {
	return func(o *Options) { o.Start = start }
}

// WithBatchLimit ограничивает размер одного прогона.
func WithBatchLimit(limit int) Option {
	return func(o *Options) { o.BatchLimit = limit }
}

// Assignor назначает customer_code по одному аккаунту или пакетно.
type Assignor struct {
	accounts   domain.AccountRepository
	retry      retry.Config
	start      int64
	batchLimit int
	metrics    *metrics.AllocationMetrics
	logger     *log.Entry

	// batchMu не даёт оператору запустить два прогона в одном процессе.
	// Корректность кодов от него не зависит: её обеспечивает хранилище.
	batchMu sync.Mutex
}

// NewAssignor создаёт Assignor.
func NewAssignor(accounts domain.AccountRepository, options ...Option) *Assignor {
	opts := Options{
		Retry: retry.DefaultConfig(),
		Start: domain.DefaultCustomerCodeStart,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "customer-code-assignor")
	}
	if opts.Start < 0 {
		opts.Start = domain.DefaultCustomerCodeStart
	}

	return &Assignor{
		accounts:   accounts,
		retry:      opts.Retry,
		start:      opts.Start,
		batchLimit: opts.BatchLimit,
		metrics:    opts.Metrics,
		logger:     logger,
	}
}

// AssignCodeToAccount возвращает код аккаунта, назначая следующий, если кода ещё нет.
// Повторный вызов возвращает тот же код и не продвигает отметку.
func (a *Assignor) AssignCodeToAccount(ctx context.Context, accountID string) (int64, error) {
	res, err := a.assign(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return res.Code, nil
}

func (a *Assignor) assign(ctx context.Context, accountID string) (domain.CodeAssignment, error) {
	if accountID == "" {
		return domain.CodeAssignment{}, domain.InvalidInput(errors.New("account_id is required"))
	}

	logger := a.logger.WithField("account_id", accountID)
	start := time.Now()
	defer func() { a.metrics.ObserveDuration(metrics.KindCustomerCode, time.Since(start)) }()

	var res domain.CodeAssignment
	_, err := retry.Do(ctx, a.retry, domain.IsConflict, func(int) error {
		assignment, err := a.accounts.AssignNextCustomerCode(ctx, accountID, a.start)
		switch {
		case err == nil:
			a.metrics.RecordAttempt(metrics.KindCustomerCode, metrics.ResultSuccess)
			res = assignment
		case domain.IsConflict(err):
			a.metrics.RecordAttempt(metrics.KindCustomerCode, metrics.ResultConflict)
		default:
			a.metrics.RecordAttempt(metrics.KindCustomerCode, metrics.ResultError)
		}
		return err
	}, func(err error, attempt int, delay time.Duration) {
		logger.WithError(err).WithFields(log.Fields{
			"attempt": attempt,
			"delay":   delay,
		}).Debug("customer code conflict, retrying")
	})
	if err != nil {
		var exhausted *retry.ExhaustedError
		if errors.As(err, &exhausted) {
			a.metrics.RecordExhausted(metrics.KindCustomerCode)
			logger.WithError(exhausted.Last).Error("customer code allocation exhausted")
			return domain.CodeAssignment{}, fmt.Errorf("%w after %d attempts: %v", domain.ErrAllocationExhausted, exhausted.Attempts, exhausted.Last)
		}
		return domain.CodeAssignment{}, err
	}

	if res.Assigned {
		a.metrics.RecordCodeAssigned()
		logger.WithField("customer_code", res.Code).Info("customer code assigned")
	}
	return res, nil
}

// AssignCustomerCodes назначает коды всем аккаунтам без кода, старые первыми.
// Ошибка на одном аккаунте (в том числе исчерпание повторов) не прерывает
// прогон: аккаунт попадает в Skipped. Прогон прерывает только отмена ctx, итог
// уже выполненной работы возвращается вместе с ошибкой. Коды прогона монотонны,
// но при конкурентной выдаче между ними могут быть пропуски.
func (a *Assignor) AssignCustomerCodes(ctx context.Context) (BatchSummary, error) {
	a.batchMu.Lock()
	defer a.batchMu.Unlock()

	pending, err := a.accounts.ListWithoutCode(ctx, a.batchLimit)
	if err != nil {
		a.metrics.RecordBatchRun(batchResultError, 0)
		return BatchSummary{}, fmt.Errorf("list accounts without code: %w", err)
	}
	if len(pending) == 0 {
		a.metrics.RecordBatchRun(batchResultNoop, 0)
		return BatchSummary{Message: "All accounts already have customer codes"}, nil
	}

	a.logger.WithField("pending", len(pending)).Info("customer code backfill started")

	var summary BatchSummary
	for _, account := range pending {
		if err := ctx.Err(); err != nil {
			summary.Message = summaryMessage(summary)
			a.metrics.RecordBatchRun(batchResultError, len(summary.Skipped))
			return summary, err
		}

		res, err := a.assign(ctx, account.ID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				summary.Message = summaryMessage(summary)
				a.metrics.RecordBatchRun(batchResultError, len(summary.Skipped))
				return summary, ctxErr
			}
			if errors.Is(err, domain.ErrAccountNotFound) {
				continue
			}
			a.logger.WithError(err).WithField("account_id", account.ID).Warn("customer code skipped")
			summary.Skipped = append(summary.Skipped, account.ID)
			continue
		}
		if !res.Assigned {
			continue
		}

		summary.CodesAssigned++
		if summary.StartingCode == nil {
			summary.StartingCode = domain.Int64Ptr(res.Code)
		}
		summary.EndingCode = domain.Int64Ptr(res.Code)
	}

	summary.Message = summaryMessage(summary)

	result := batchResultOK
	switch {
	case len(summary.Skipped) > 0:
		result = batchResultPartial
	case summary.CodesAssigned == 0:
		result = batchResultNoop
	}
	a.metrics.RecordBatchRun(result, len(summary.Skipped))

	a.logger.WithFields(log.Fields{
		"codes_assigned": summary.CodesAssigned,
		"skipped":        len(summary.Skipped),
	}).Info("customer code backfill finished")

	return summary, nil
}

func summaryMessage(s BatchSummary) string {
	switch {
	case s.CodesAssigned == 0 && len(s.Skipped) == 0:
		return "All accounts already have customer codes"
	case len(s.Skipped) > 0:
		return fmt.Sprintf("Assigned customer codes to %d accounts, %d skipped", s.CodesAssigned, len(s.Skipped))
	default:
		return fmt.Sprintf("Assigned customer codes to %d accounts", s.CodesAssigned)
	}
}
