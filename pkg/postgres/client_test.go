package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/medsearch/pkg/config"
)

func TestNewUnreachable(t *testing.T) {
	cfg := config.Default().Postgres
	cfg.Host = "127.0.0.1"
	cfg.Port = 1

	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "pinging postgres at 127.0.0.1:1")
}

func TestNewCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(ctx, config.Default().Postgres)
	assert.Error(t, err)
}

func TestInTx(t *testing.T) {
	host := os.Getenv("SP_POSTGRES_HOST")
	if host == "" {
		t.Skip("SP_POSTGRES_HOST not set")
	}
	cfg := config.Default().Postgres
	cfg.Host = host
	c, err := New(context.Background(), cfg)
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.InTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `CREATE TEMP TABLE IF NOT EXISTS intx_probe (n int)`)
		return err
	}))

	boom := errors.New("boom")
	err = c.InTx(ctx, func(tx *sql.Tx) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, c.PoolSummary(), "open")
}
