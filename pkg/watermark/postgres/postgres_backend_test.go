package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/ajitpratap0/edsync/pkg/config"
	"github.com/ajitpratap0/edsync/pkg/errors"
	"github.com/ajitpratap0/edsync/pkg/models"
	"github.com/ajitpratap0/edsync/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewValidation(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, config.PostgresConfig{Table: "wm"}, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	_, err = New(ctx, config.PostgresConfig{DSN: "postgres://localhost/db", Table: "wm; DROP TABLE x"}, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestSQL(t *testing.T) {
	assert.Contains(t, CreateTableSQL("edfi.wm"), "CREATE TABLE IF NOT EXISTS edfi.wm")
	assert.Contains(t, LatestSQL("wm"), "ORDER BY timestamp DESC")
	assert.Contains(t, LatestSQL("wm"), "WHERE source_key = $1")
}

// Requires EDSYNC_TEST_POSTGRES_DSN pointing at a scratch database.
func TestBackendIntegration(t *testing.T) {
	dsn := testutil.RequireEnv(t, "EDSYNC_TEST_POSTGRES_DSN")
	ctx := testutil.TestContext(t)
	table := "edsync_wm_test_" + time.Now().Format("20060102150405")

	b, err := New(ctx, config.PostgresConfig{DSN: dsn, Table: table}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = b.pool.Exec(context.Background(), "DROP TABLE IF EXISTS "+table)
		_ = b.Close()
	})

	_, ok, err := b.Latest(ctx, "2024")
	require.NoError(t, err)
	assert.False(t, ok)

	t0 := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, b.Append(ctx, models.Watermark{SourceKey: "2024", Value: 120, CapturedAt: t0}))
	require.NoError(t, b.Append(ctx, models.Watermark{SourceKey: "2024", Value: 150, CapturedAt: t0.Add(time.Hour)}))
	require.NoError(t, b.Append(ctx, models.Watermark{SourceKey: "2025", Value: 9, CapturedAt: t0.Add(2 * time.Hour)}))

	w, ok, err := b.Latest(ctx, "2024")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(150), w.Value)
}
