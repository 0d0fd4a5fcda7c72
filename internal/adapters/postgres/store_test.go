package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"trustflow/internal/adapters/storetest"
	"trustflow/internal/ports"
)

// These tests need a disposable database; set TEST_DATABASE_URL to run them.
func testDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := Connect(ctx, url, 4)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, Migrate(ctx, db))
	return db
}

func TestStoreContract(t *testing.T) {
	db := testDB(t)
	storetest.Run(t, func(t *testing.T) ports.Store {
		_, err := db.Pool.Exec(context.Background(), `TRUNCATE ledger_objects, ledger_events`)
		require.NoError(t, err)
		return NewStore(db)
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)
	require.NoError(t, Migrate(context.Background(), db))
}

func TestLimitArg(t *testing.T) {
	require.Nil(t, limitArg(0))
	require.Nil(t, limitArg(-3))
	require.Equal(t, 5, limitArg(5))
}

func TestPoolConfig(t *testing.T) {
	cfg, err := poolConfig("postgres://ledger@localhost:5432/trustflow", 0)
	require.NoError(t, err)
	require.Equal(t, int32(defaultMaxConns), cfg.MaxConns)
	require.Equal(t, applicationName, cfg.ConnConfig.RuntimeParams["application_name"])

	cfg, err = poolConfig("postgres://ledger@localhost:5432/trustflow?application_name=sweeper", 4)
	require.NoError(t, err)
	require.Equal(t, int32(4), cfg.MaxConns)
	require.Equal(t, "sweeper", cfg.ConnConfig.RuntimeParams["application_name"])

	_, err = poolConfig("postgres://ledger@%zz/trustflow", 4)
	require.ErrorContains(t, err, "parse database url")
}
