package postgres

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func migrationFS(files map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, body := range files {
		fsys["sql/migrations/"+name] = &fstest.MapFile{Data: []byte(body)}
	}
	return fsys
}

func TestLoadMigrationsFromFS_PairsAndSorts(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrationsFromFS(migrationFS(map[string]string{
		"0002_outbox.down.sql":   "DROP TABLE outbox_messages;",
		"0001_accounts.up.sql":   "CREATE TABLE accounts (id TEXT);",
		"0002_outbox.up.sql":     "CREATE TABLE outbox_messages (id TEXT);",
		"0001_accounts.down.sql": "DROP TABLE accounts;",
	}))
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	require.Equal(t, "0001_accounts", migrations[0].label())
	require.Equal(t, "0002_outbox", migrations[1].label())
	require.Equal(t, "DROP TABLE outbox_messages;", migrations[1].DownSQL)
}

func TestLoadMigrationsFromFS_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		files   map[string]string
		wantErr string
	}{
		{
			name:    "missing down",
			files:   map[string]string{"0001_init.up.sql": "SELECT 1;"},
			wantErr: "both up and down",
		},
		{
			name:    "bad file name",
			files:   map[string]string{"not_a_migration.sql": "SELECT 1;"},
			wantErr: "invalid migration file name",
		},
		{
			name:    "blank body",
			files:   map[string]string{"0001_init.up.sql": "  \n", "0001_init.down.sql": "SELECT 1;"},
			wantErr: "is empty",
		},
		{
			name:    "name mismatch",
			files:   map[string]string{"0001_init.up.sql": "SELECT 1;", "0001_other.down.sql": "SELECT 1;"},
			wantErr: "name mismatch",
		},
		{
			name:    "no files",
			files:   map[string]string{},
			wantErr: "no migration files",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadMigrationsFromFS(migrationFS(tt.files))
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestMigrationPlans(t *testing.T) {
	t.Parallel()

	migrations := []migration{
		{Version: 1, Name: "init_storefront"},
		{Version: 2, Name: "outbox_and_idempotency"},
		{Version: 3, Name: "extra"},
	}

	up := selectUpMigrations(migrations, versionSet([]int64{1}), 0)
	require.Equal(t, []int64{2, 3}, versionsOf(up))
	require.Equal(t, []int64{2}, versionsOf(selectUpMigrations(migrations, versionSet([]int64{1}), 1)))

	down, err := selectDownMigrations(migrations, []int64{1, 2, 3}, 2)
	require.NoError(t, err)
	require.Equal(t, []int64{3, 2}, versionsOf(down))

	_, err = selectDownMigrations(migrations, []int64{1, 9}, 1)
	require.ErrorContains(t, err, "unknown migration version 9")

	require.Equal(t, []string{"0002_outbox_and_idempotency", "0003_extra"}, pendingMigrations(migrations, versionSet([]int64{1})))
	require.Empty(t, pendingMigrations(migrations, versionSet([]int64{1, 2, 3})))
}

func versionsOf(ms []migration) []int64 {
	out := make([]int64, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Version)
	}
	return out
}

func TestEmbeddedMigrations_AreComplete(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrationsFromFS(migrationsFS)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(migrations), 2)
	require.Contains(t, migrations[0].UpSQL, "order_sequences")
	require.Contains(t, migrations[0].UpSQL, "sequence_counters")
}

func TestMigrateUp_AppliesPendingUnderLock(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`pg_advisory_lock`).WithArgs(migrationLockKey).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT version FROM schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(1)))
	mock.ExpectBegin()
	mock.ExpectExec(`outbox_messages`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO schema_migrations`).
		WithArgs(int64(2), "outbox_and_idempotency").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`pg_advisory_unlock`).WithArgs(migrationLockKey).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.MigrateUp(context.Background(), 0))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateDown_UnknownVersionReleasesLock(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`pg_advisory_lock`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT version FROM schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(int64(1)).AddRow(int64(42)))
	mock.ExpectExec(`pg_advisory_unlock`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.MigrateDown(context.Background(), 0)
	require.ErrorContains(t, err, "unknown migration version 42")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_Guards(t *testing.T) {
	var nilStore *Store
	ctx := context.Background()

	require.Error(t, nilStore.MigrateUp(ctx, 0))
	require.Error(t, nilStore.MigrateDown(ctx, 1))
	_, err := nilStore.MigrationStatus(ctx)
	require.Error(t, err)

	store, mock := newMockStore(t)
	require.ErrorContains(t, store.migrate(ctx, migrationDirection("sideways"), 0), "unsupported migration direction")
	require.NoError(t, mock.ExpectationsWereMet())
}
