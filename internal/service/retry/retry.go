// Package retry повторяет атомарные попытки аллокации с экспоненциальной задержкой.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Config задаёт бюджет повторов.
type Config struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   5,
		InitialDelay:  10 * time.Millisecond,
		MaxDelay:      500 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

// ExhaustedError возвращается, когда все попытки завершились повторяемой ошибкой.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Notify вызывается перед ожиданием очередного повтора.
type Notify func(err error, attempt int, delay time.Duration)

// Do выполняет op до успеха, неповторяемой ошибки, исчерпания бюджета или отмены ctx.
// op получает номер попытки начиная с 1. Возвращает число выполненных попыток.
func Do(ctx context.Context, cfg Config, retryable func(error) bool, op func(attempt int) error, notify Notify) (int, error) {
	cfg = cfg.normalized()

	attempts := 0
	var lastRetryable error
	operation := func() error {
		attempts++
		err := op(attempts)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		lastRetryable = err
		return err
	}

	var onRetry backoff.Notify
	if notify != nil {
		onRetry = func(err error, delay time.Duration) { notify(err, attempts, delay) }
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(cfg.backOff(), ctx), onRetry)
	if err == nil {
		return attempts, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return attempts, ctxErr
	}
	if lastRetryable != nil && errors.Is(err, lastRetryable) && attempts >= cfg.MaxAttempts {
		return attempts, &ExhaustedError{Attempts: attempts, Last: lastRetryable}
	}
	return attempts, err
}

func (c Config) normalized() Config {
	def := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.InitialDelay < 0 {
		c.InitialDelay = 0
	}
	if c.MaxDelay < c.InitialDelay {
		c.MaxDelay = c.InitialDelay
	}
	if c.BackoffFactor < 1 {
		c.BackoffFactor = def.BackoffFactor
	}
	return c
}

func (c Config) backOff() backoff.BackOff {
	var base backoff.BackOff
	if c.InitialDelay == 0 {
		base = &backoff.ZeroBackOff{}
	} else {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = c.InitialDelay
		exp.MaxInterval = c.MaxDelay
		exp.Multiplier = c.BackoffFactor
		exp.RandomizationFactor = 0.5
		exp.MaxElapsedTime = 0
		exp.Reset()
		base = exp
	}
	return backoff.WithMaxRetries(base, uint64(c.MaxAttempts-1))
}
