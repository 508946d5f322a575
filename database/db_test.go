package database

import (
	"context"
	"errors"
	"testing"

	"curation-governance-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestAtomicRollsBackNestedWork(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := Atomic(ctx, db, func(ctx context.Context, tx *gorm.DB) error {
		if err := tx.Create(&models.Account{Address: "alice", Balance: models.NewAmount(5)}).Error; err != nil {
			return err
		}
		return Atomic(ctx, db, func(ctx context.Context, inner *gorm.DB) error {
			assert.Same(t, tx, inner)
			if err := inner.Create(&models.Account{Address: "bob", Balance: models.NewAmount(7)}).Error; err != nil {
				return err
			}
			return boom
		})
	})
	assert.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, db.Model(&models.Account{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestAfterCommitRunsOnlyOnSuccess(t *testing.T) {
	db := NewTestDB(t)
	ctx := context.Background()
	var fired []string

	_ = Atomic(ctx, db, func(ctx context.Context, tx *gorm.DB) error {
		AfterCommit(ctx, func() { fired = append(fired, "rolled back") })
		return errors.New("abort")
	})
	err := Atomic(ctx, db, func(ctx context.Context, tx *gorm.DB) error {
		AfterCommit(ctx, func() { fired = append(fired, "committed") })
		assert.Empty(t, fired)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"committed"}, fired)
}

func TestAmountRoundTripsThroughDatabase(t *testing.T) {
	db := NewTestDB(t)
	big := models.MustAmount("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	require.NoError(t, db.Create(&models.Account{Address: "whale", Balance: big}).Error)

	var acct models.Account
	require.NoError(t, db.First(&acct, "address = ?", "whale").Error)
	assert.True(t, big.Eq(acct.Balance))
}
