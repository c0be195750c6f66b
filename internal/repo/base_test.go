package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type ledgerRow struct {
	ID     string `gorm:"primaryKey"`
	Amount int64
}

func newTestBase(t *testing.T) (Base, *gorm.DB) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&ledgerRow{}))
	return NewBase(conn), conn
}

func count(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&ledgerRow{}).Count(&n).Error)
	return n
}

func TestBaseDBBindsContext(t *testing.T) {
	base, conn := newTestBase(t)

	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "booking-1")
	assert.Equal(t, ctx, base.DB(ctx).Statement.Context)
	assert.Same(t, conn, base.DB(nil))
}

func TestBaseWithTxKeepsConnectionForNil(t *testing.T) {
	base, conn := newTestBase(t)
	assert.Same(t, conn, base.WithTx(nil).db)

	tx := conn.Session(&gorm.Session{NewDB: true})
	assert.Same(t, tx, base.WithTx(tx).db)
}

func TestBaseTransactionCommitsAndRollsBack(t *testing.T) {
	base, conn := newTestBase(t)
	ctx := context.Background()

	require.NoError(t, base.Transaction(ctx, func(tx *gorm.DB) error {
		return tx.Create(&ledgerRow{ID: "deposit", Amount: 500}).Error
	}))
	assert.EqualValues(t, 1, count(t, conn))

	err := base.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&ledgerRow{ID: "balance", Amount: 500}).Error; err != nil {
			return err
		}
		return errors.New("gateway refused")
	})
	require.Error(t, err)
	assert.EqualValues(t, 1, count(t, conn))
}

func TestBaseTransactionNestsAsSavepoint(t *testing.T) {
	base, conn := newTestBase(t)
	ctx := context.Background()

	require.NoError(t, base.Transaction(ctx, func(tx *gorm.DB) error {
		bound := base.WithTx(tx)
		if err := bound.DB(ctx).Create(&ledgerRow{ID: "outer", Amount: 1}).Error; err != nil {
			return err
		}
		// inner failure only unwinds the savepoint
		_ = bound.Transaction(ctx, func(inner *gorm.DB) error {
			_ = inner.Create(&ledgerRow{ID: "inner", Amount: 2}).Error
			return errors.New("inner failed")
		})
		return nil
	}))
	assert.EqualValues(t, 1, count(t, conn))
}
