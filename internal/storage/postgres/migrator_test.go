package postgres

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func pairFS(files map[string]string) fstest.MapFS {
	fsys := fstest.MapFS{}
	for name, body := range files {
		fsys["sql/migrations/"+name] = &fstest.MapFile{Data: []byte(body)}
	}
	return fsys
}

func TestLoadMigrationsFromFS_Success(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrationsFromFS(pairFS(map[string]string{
		"0002_more.up.sql":   "CREATE TABLE test_b (id INT);",
		"0002_more.down.sql": "DROP TABLE IF EXISTS test_b;",
		"0001_init.up.sql":   "CREATE TABLE test_a (id INT);",
		"0001_init.down.sql": "DROP TABLE IF EXISTS test_a;",
		"README.md":          "ignored",
	}))
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	require.Equal(t, int64(1), migrations[0].Version)
	require.Equal(t, "init", migrations[0].Name)
	require.Equal(t, "more", migrations[1].Name)
	require.Len(t, migrations[0].Checksum, 64)
	require.NotEqual(t, migrations[0].Checksum, migrations[1].Checksum)
}

func TestLoadMigrationsFromFS_Errors(t *testing.T) {
	t.Parallel()

	tests := map[string]map[string]string{
		"missing down":     {"0001_init.up.sql": "SELECT 1;"},
		"invalid filename": {"not_a_migration.sql": "SELECT 1;"},
		"bad direction":    {"0001_init.sideways.sql": "SELECT 1;"},
		"bad version":      {"abc_init.up.sql": "SELECT 1;", "abc_init.down.sql": "SELECT 1;"},
		"empty body":       {"0001_init.up.sql": "  \n", "0001_init.down.sql": "SELECT 1;"},
		"name mismatch":    {"0001_init.up.sql": "SELECT 1;", "0001_other.down.sql": "SELECT 1;"},
		"no files":         {},
	}
	for name, files := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := loadMigrationsFromFS(pairFS(files))
			require.Error(t, err)
		})
	}
}

func TestEmbeddedMigrations_AreConsistent(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrationsFromFS(migrationsFS)
	require.NoError(t, err)

	wantNames := []string{"catalog", "orders", "order_history", "outbox_messages", "idempotency_keys", "carts"}
	require.Len(t, migrations, len(wantNames))
	for i, m := range migrations {
		require.Equal(t, int64(i+1), m.Version)
		require.Equal(t, wantNames[i], m.Name)
	}
}

func TestPlanMigrations(t *testing.T) {
	t.Parallel()

	all := []migration{
		{Version: 1, Name: "a", Checksum: "c1"},
		{Version: 2, Name: "b", Checksum: "c2"},
		{Version: 3, Name: "c", Checksum: "c3"},
	}
	applied := map[int64]appliedMigration{1: {Name: "a", Checksum: "c1"}, 2: {Name: "b", Checksum: "c2"}}

	up, err := planMigrations(all, applied, migrationUp, 0)
	require.NoError(t, err)
	require.Len(t, up, 1)
	require.Equal(t, int64(3), up[0].Version)

	down, err := planMigrations(all, applied, migrationDown, 1)
	require.NoError(t, err)
	require.Len(t, down, 1)
	require.Equal(t, int64(2), down[0].Version)

	firstOnly, err := planMigrations(all, nil, migrationUp, 2)
	require.NoError(t, err)
	require.Len(t, firstOnly, 2)

	_, err = planMigrations(all, map[int64]appliedMigration{1: {Checksum: "edited"}}, migrationUp, 0)
	require.ErrorIs(t, err, ErrMigrationDrift)

	_, err = planMigrations(all, map[int64]appliedMigration{9: {}}, migrationDown, 1)
	require.Error(t, err)
}

func TestApplyOne_RecordsChecksum(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	conn, err := db.Conn(ctx)
	require.NoError(t, err)
	defer conn.Close()

	m := migration{Version: 7, Name: "extra", UpSQL: "CREATE TABLE extra (id INT)", DownSQL: "DROP TABLE extra", Checksum: "abc"}

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE extra").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO bookstore_schema_migrations").
		WithArgs(int64(7), "extra", "abc").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	require.NoError(t, applyOne(ctx, conn, m, migrationUp))

	mock.ExpectBegin()
	mock.ExpectExec("DROP TABLE extra").WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()
	require.ErrorIs(t, applyOne(ctx, conn, m, migrationDown), context.DeadlineExceeded)

	require.NoError(t, mock.ExpectationsWereMet())
}
