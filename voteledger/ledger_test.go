package voteledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"curation-governance-backend/access"
	"curation-governance-backend/bank"
	"curation-governance-backend/clock"
	"curation-governance-backend/database"
	"curation-governance-backend/escrow"
	"curation-governance-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	owner  = models.Address("owner")
	market = models.Address("market")
)

type fixture struct {
	db     *gorm.DB
	bank   *bank.Bank
	clock  *clock.Fake
	ledger *Ledger
	pool   escrow.Escrow
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := database.NewTestDB(t)
	ctx := context.Background()
	log := zap.NewNop()

	b := bank.New(db, owner, log)
	gate := access.New(db, "test", owner, log)
	require.NoError(t, gate.GrantAccess(ctx, owner, market))
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	l := New(db, Options{
		Name:     "test",
		Duration: time.Hour,
		Gate:     gate,
		Escrow:   escrow.NewNative(b, "ledger:test"),
		Clock:    clk,
		Log:      log,
	})
	for _, v := range []models.Address{"v1", "v2", "v3", "v4"} {
		require.NoError(t, b.Credit(ctx, owner, v, models.NewAmount(100)))
	}
	return &fixture{db: db, bank: b, clock: clk, ledger: l, pool: escrow.NewNative(b, "market:stakes")}
}

func (f *fixture) balance(t *testing.T, a models.Address) string {
	bal, err := f.bank.BalanceOf(context.Background(), a)
	require.NoError(t, err)
	return bal.String()
}

func TestStartVoteSequentialIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.ledger.StartVote(ctx, market)
	require.NoError(t, err)
	second, err := f.ledger.StartVote(ctx, market)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first)
	assert.Equal(t, uint64(2), second)

	d, err := f.ledger.GetVoteDetail(ctx, second)
	require.NoError(t, err)
	assert.True(t, d.Ongoing)
	assert.Equal(t, time.Hour, d.EndTime.Sub(d.StartTime))
}

func TestStartVoteRequiresAccess(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.StartVote(context.Background(), "stranger")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	var count int64
	require.NoError(t, f.db.Model(&models.Poll{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestVoteFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.ledger.StartVote(ctx, market)
	require.NoError(t, err)

	assert.ErrorIs(t, f.ledger.Vote(ctx, "stranger", id, true, "v1", models.NewAmount(1)), models.ErrUnauthorized)
	err = f.ledger.Vote(ctx, market, 99, true, "v1", models.NewAmount(1))
	assert.ErrorIs(t, err, models.ErrPollNotFound)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, f.ledger.Vote(ctx, market, id, true, "v1", models.ZeroAmount), models.ErrInsufficientStake)
	assert.ErrorIs(t, f.ledger.Vote(ctx, market, id, true, "v1", models.NewAmount(101)), models.ErrInsufficientStake)

	require.NoError(t, f.ledger.Vote(ctx, market, id, true, "v1", models.NewAmount(10)))
	assert.ErrorIs(t, f.ledger.Vote(ctx, market, id, false, "v1", models.NewAmount(10)), models.ErrAlreadyVoted)
	assert.Equal(t, "90", f.balance(t, "v1"))

	f.clock.Advance(time.Hour)
	assert.ErrorIs(t, f.ledger.Vote(ctx, market, id, true, "v2", models.NewAmount(1)), models.ErrVotingClosed)
}

func TestTalliesHiddenUntilClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, _ := f.ledger.StartVote(ctx, market)
	require.NoError(t, f.ledger.Vote(ctx, market, id, true, "v1", models.NewAmount(7)))
	require.NoError(t, f.ledger.Vote(ctx, market, id, false, "v2", models.NewAmount(3)))

	d, err := f.ledger.GetVoteDetail(ctx, id)
	require.NoError(t, err)
	assert.True(t, d.Ongoing)
	assert.True(t, d.ForTotal.IsZero())
	assert.True(t, d.AgainstTotal.IsZero())
	assert.False(t, d.MajorityAccepted)

	vd, err := f.ledger.GetVoterDetail(ctx, id, "v1")
	require.NoError(t, err)
	assert.Equal(t, "7", vd.LockedAmount.String())
	assert.False(t, vd.IsInMajority)

	f.clock.Advance(time.Hour - time.Nanosecond)
	d, _ = f.ledger.GetVoteDetail(ctx, id)
	assert.True(t, d.Ongoing)

	f.clock.Advance(time.Nanosecond)
	d, _ = f.ledger.GetVoteDetail(ctx, id)
	assert.False(t, d.Ongoing)
	assert.Equal(t, "7", d.ForTotal.String())
	assert.Equal(t, "3", d.AgainstTotal.String())
	assert.True(t, d.MajorityAccepted)

	vd, _ = f.ledger.GetVoterDetail(ctx, id, "v1")
	assert.True(t, vd.IsInMajority)
	vd, _ = f.ledger.GetVoterDetail(ctx, id, "v2")
	assert.False(t, vd.IsInMajority)
}

func TestReturnFundsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, _ := f.ledger.StartVote(ctx, market)
	require.NoError(t, f.ledger.Vote(ctx, market, id, false, "v1", models.NewAmount(40)))

	_, err := f.ledger.ReturnFunds(ctx, market, id, "v1")
	assert.ErrorIs(t, err, models.ErrEarlyReturn)

	f.clock.Advance(2 * time.Hour)
	paid, err := f.ledger.ReturnFunds(ctx, market, id, "v1")
	require.NoError(t, err)
	assert.Equal(t, "40", paid.String())
	assert.Equal(t, "100", f.balance(t, "v1"))

	paid, err = f.ledger.ReturnFunds(ctx, market, id, "v1")
	require.NoError(t, err)
	assert.True(t, paid.IsZero())
	assert.Equal(t, "100", f.balance(t, "v1"))

	// never voted
	paid, err = f.ledger.ReturnFunds(ctx, market, id, "v4")
	require.NoError(t, err)
	assert.True(t, paid.IsZero())
}

func TestWeightedMajorityRewards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// reward pool of 10 held by the owning component
	require.NoError(t, f.bank.Credit(ctx, owner, f.pool.Account(), models.NewAmount(10)))
	pool := RewardPool{Amount: models.NewAmount(10), Source: f.pool}

	id, _ := f.ledger.StartVote(ctx, market)
	require.NoError(t, f.ledger.Vote(ctx, market, id, true, "v1", models.NewAmount(15)))
	require.NoError(t, f.ledger.Vote(ctx, market, id, false, "v2", models.NewAmount(20)))
	require.NoError(t, f.ledger.Vote(ctx, market, id, true, "v3", models.NewAmount(16)))
	require.NoError(t, f.ledger.Vote(ctx, market, id, false, "v4", models.NewAmount(5)))

	_, err := f.ledger.RewardsOwed(ctx, id, pool.Amount)
	assert.ErrorIs(t, err, models.ErrEarlyReturn)

	f.clock.Advance(time.Hour)
	d, _ := f.ledger.GetVoteDetail(ctx, id)
	assert.True(t, d.MajorityAccepted)

	// 4 + 5 of the 10 are payable, one unit is lost to rounding
	owed, err := f.ledger.RewardsOwed(ctx, id, pool.Amount)
	require.NoError(t, err)
	assert.Equal(t, "9", owed.String())
	assert.Equal(t, "31", d.ForTotal.String())
	assert.Equal(t, "25", d.AgainstTotal.String())

	expected := map[models.Address]string{"v1": "4", "v2": "0", "v3": "5", "v4": "0"}
	total := models.ZeroAmount
	for voter, reward := range expected {
		s, err := f.ledger.ReturnFundsAndReward(ctx, market, id, voter, pool)
		require.NoError(t, err)
		assert.Equal(t, reward, s.Reward.String(), voter)
		total, _ = total.Add(s.Reward)

		again, err := f.ledger.ReturnFundsAndReward(ctx, market, id, voter, pool)
		require.NoError(t, err)
		assert.True(t, again.Refund.IsZero())
		assert.True(t, again.Reward.IsZero())
	}

	assert.Equal(t, "104", f.balance(t, "v1"))
	assert.Equal(t, "100", f.balance(t, "v2"))
	assert.Equal(t, "105", f.balance(t, "v3"))
	assert.Equal(t, "100", f.balance(t, "v4"))
	assert.False(t, total.Gt(pool.Amount))
	assert.Equal(t, "1", f.balance(t, f.pool.Account()))

	owed, err = f.ledger.RewardsOwed(ctx, id, pool.Amount)
	require.NoError(t, err)
	assert.True(t, owed.IsZero())
}

func TestTieIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.bank.Credit(ctx, owner, f.pool.Account(), models.NewAmount(6)))
	pool := RewardPool{Amount: models.NewAmount(6), Source: f.pool}

	id, _ := f.ledger.StartVote(ctx, market)
	require.NoError(t, f.ledger.Vote(ctx, market, id, true, "v1", models.NewAmount(10)))
	require.NoError(t, f.ledger.Vote(ctx, market, id, false, "v2", models.NewAmount(10)))
	f.clock.Advance(time.Hour)

	d, _ := f.ledger.GetVoteDetail(ctx, id)
	assert.False(t, d.MajorityAccepted)

	s, err := f.ledger.ReturnFundsAndReward(ctx, market, id, "v2", pool)
	require.NoError(t, err)
	assert.Equal(t, "6", s.Reward.String())
	s, err = f.ledger.ReturnFundsAndReward(ctx, market, id, "v1", pool)
	require.NoError(t, err)
	assert.True(t, s.Reward.IsZero())
}

func TestConcurrentVotesKeepOneRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, _ := f.ledger.StartVote(ctx, market)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.ledger.Vote(ctx, market, id, true, "v1", models.NewAmount(5))
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, models.ErrAlreadyVoted)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, "95", f.balance(t, "v1"))
}

func TestConcurrentReturnsPayOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, _ := f.ledger.StartVote(ctx, market)
	require.NoError(t, f.ledger.Vote(ctx, market, id, true, "v1", models.NewAmount(30)))
	f.clock.Advance(time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.ledger.ReturnFunds(ctx, market, id, "v1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, "100", f.balance(t, "v1"))
}
