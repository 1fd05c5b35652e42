package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var errConflict = errors.New("conflict")

func isConflict(err error) bool { return errors.Is(err, errConflict) }

func fastConfig(attempts int) Config {
	return Config{MaxAttempts: attempts, InitialDelay: 0, MaxDelay: 0, BackoffFactor: 2}
}

func TestDo_SucceedsAfterConflicts(t *testing.T) {
	var notified []int
	attempts, err := Do(context.Background(), fastConfig(5), isConflict, func(attempt int) error {
		if attempt < 3 {
			return errConflict
		}
		return nil
	}, func(_ error, attempt int, _ time.Duration) {
		notified = append(notified, attempt)
	})

	require.NoError(t, err)
	require.Equal(t, 3, attempts)
	require.Equal(t, []int{1, 2}, notified)
}

func TestDo_ExhaustsBudget(t *testing.T) {
	attempts, err := Do(context.Background(), fastConfig(4), isConflict, func(int) error {
		return errConflict
	}, nil)

	require.Equal(t, 4, attempts)
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 4, exhausted.Attempts)
	require.ErrorIs(t, err, errConflict)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	boom := errors.New("boom")
	attempts, err := Do(context.Background(), fastConfig(5), isConflict, func(int) error {
		return boom
	}, nil)

	require.Equal(t, 1, attempts)
	require.ErrorIs(t, err, boom)
	var exhausted *ExhaustedError
	require.False(t, errors.As(err, &exhausted))
}

func TestDo_HonoursContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{MaxAttempts: 10, InitialDelay: time.Hour, MaxDelay: time.Hour, BackoffFactor: 2}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	attempts, err := Do(ctx, cfg, isConflict, func(int) error { return errConflict }, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, attempts)
}

func TestConfig_Normalized(t *testing.T) {
	cfg := Config{MaxAttempts: 0, InitialDelay: -time.Second, BackoffFactor: 0}.normalized()
	require.Equal(t, DefaultConfig().MaxAttempts, cfg.MaxAttempts)
	require.Zero(t, cfg.InitialDelay)
	require.Equal(t, 2.0, cfg.BackoffFactor)
}
