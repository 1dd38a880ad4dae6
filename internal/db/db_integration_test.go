//go:build integration

package db

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntegration_PostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	runStoreSuite(t, func(t *testing.T) Store {
		db, err := Connect(context.Background(), dsn)
		require.NoError(t, err)
		_, err = db.pool.Exec(context.Background(), "TRUNCATE job_records")
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		return db
	})
}
