package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"lovetrack-backend/internal/common"
	"lovetrack-backend/internal/repository"
	"lovetrack-backend/internal/repository/repotest"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, common.ErrNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", pgx.ErrNoRows), common.ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505", ConstraintName: "couples_pairing_code_key"}, common.ErrConflict},
		{"other pg error", &pgconn.PgError{Code: "42P01"}, common.ErrTransport},
		{"network", errors.New("connection reset"), common.ErrTransport},
		{"canceled", context.Canceled, context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, mapError("op", tt.err), tt.want)
		})
	}

	assert.NoError(t, mapError("op", nil))
}

// TestStoreContract runs against a real database when LOVETRACK_TEST_DATABASE_URL
// is set. Every subtest gets freshly truncated tables.
func TestStoreContract(t *testing.T) {
	dsn := os.Getenv("LOVETRACK_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("LOVETRACK_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	pool, err := Connect(ctx, dsn, 4)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, RunMigrations(ctx, pool))

	repotest.Run(t, func(t *testing.T) *repository.Store {
		_, err := pool.Exec(ctx, `TRUNCATE push_tokens, events, couples, users`)
		require.NoError(t, err)
		return repository.NewStore(
			NewCoupleRepository(pool),
			NewEventRepository(pool),
			NewUserRepository(pool),
			NewPushTokenRepository(pool),
			nil,
		)
	})
}
