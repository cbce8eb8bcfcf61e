package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
)

type ledgerRow struct {
	ID   int
	Note string
}

func openClient(t *testing.T, name string) *Client {
	t.Helper()
	client, err := New(context.Background(), config.DBConfig{
		Driver:       DriverSQLite,
		DSN:          fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
		MaxOpenConns: 1,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.DB().AutoMigrate(&ledgerRow{}))
	return client
}

func countRows(t *testing.T, client *Client) int64 {
	t.Helper()
	var n int64
	require.NoError(t, client.DB().Model(&ledgerRow{}).Count(&n).Error)
	return n
}

func TestNewRequiresDSN(t *testing.T) {
	_, err := New(context.Background(), config.DBConfig{Driver: DriverSQLite}, nil)
	require.EqualError(t, err, "database DSN is required")
}

func TestDialectorFor(t *testing.T) {
	_, err := dialectorFor(config.DBConfig{Driver: "mysql", DSN: "x"})
	require.EqualError(t, err, `unsupported database driver "mysql"`)

	d, err := dialectorFor(config.DBConfig{Driver: DriverSQLite, DSN: "file::memory:"})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())

	d, err = dialectorFor(config.DBConfig{DSN: "postgres://localhost/gigmarket"})
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())
}

func TestWithTx(t *testing.T) {
	client := openClient(t, "withtx")
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&ledgerRow{Note: "kept"}).Error
	}))
	assert.EqualValues(t, 1, countRows(t, client))

	boom := errors.New("boom")
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		require.NoError(t, tx.Create(&ledgerRow{Note: "discarded"}).Error)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 1, countRows(t, client))
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	client := openClient(t, "withtxpanic")

	assert.PanicsWithValue(t, "mid-write", func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			require.NoError(t, tx.Create(&ledgerRow{Note: "half"}).Error)
			panic("mid-write")
		})
	})
	assert.Zero(t, countRows(t, client))
}

func TestWithTxBeginFailureIsDependencyError(t *testing.T) {
	client := openClient(t, "withtxclosed")
	require.NoError(t, client.Close())

	called := false
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.False(t, called)
}

func TestWithTxKeepsCallbackErrorCode(t *testing.T) {
	client := openClient(t, "withtxcode")

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return pkgerrors.New(pkgerrors.CodeStaleCallback, "order is PAID")
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStaleCallback))
}

func TestPing(t *testing.T) {
	client := openClient(t, "ping")
	require.NoError(t, client.Ping(context.Background()))

	require.NoError(t, client.Close())
	assert.Error(t, client.Ping(context.Background()))
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_reviews_order_id"}
	sqliteErr := errors.New("UNIQUE constraint failed: reviews.order_id")

	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{"wrapped pg error", fmt.Errorf("insert review: %w", pgErr), "ux_reviews_order_id", true},
		{"pg constraint mismatch", pgErr, "ux_payments_order_id", false},
		{"sqlite any constraint", sqliteErr, "", true},
		{"sqlite column list", sqliteErr, "reviews.order_id", true},
		{"unrelated", errors.New("connection reset"), "", false},
		{"nil", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUniqueViolation(tt.err, tt.constraint))
		})
	}
}
