package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// integrationTables перечислены в порядке, в котором их безопасно чистить.
var integrationTables = []string{
	"idempotency_keys",
	"outbox_messages",
	"order_items",
	"orders",
	"order_sequences",
	"sequence_counters",
	"accounts",
}

func integrationDSN() string {
	for _, env := range []string{"STOREFRONT_POSTGRES_TEST_DSN", "STOREFRONT_POSTGRES_DSN"} {
		if dsn := strings.TrimSpace(os.Getenv(env)); dsn != "" {
			return dsn
		}
	}
	return ""
}

// rawIntegrationStore открывает базу без миграций или пропускает тест.
func rawIntegrationStore(t *testing.T) *Store {
	t.Helper()

	dsn := integrationDSN()
	if dsn == "" {
		t.Skip("STOREFRONT_POSTGRES_TEST_DSN is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	store, err := Open(ctx, dsn, DefaultPoolConfig())
	if err != nil {
		t.Skipf("postgres is not reachable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// integrationStore возвращает мигрированную базу с пустыми таблицами и нулевыми водяными отметками.
func integrationStore(t *testing.T) *Store {
	t.Helper()

	store := rawIntegrationStore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, store.MigrateUp(ctx, 0))
	_, err := store.DB().ExecContext(ctx,
		"TRUNCATE TABLE "+strings.Join(integrationTables, ", ")+" RESTART IDENTITY CASCADE")
	require.NoError(t, err)
	return store
}
