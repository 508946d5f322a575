package governance

import (
	"context"
	"testing"
	"time"

	"curation-governance-backend/access"
	"curation-governance-backend/bank"
	"curation-governance-backend/clock"
	"curation-governance-backend/database"
	"curation-governance-backend/escrow"
	"curation-governance-backend/models"
	"curation-governance-backend/token"
	"curation-governance-backend/voteledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	owner      = models.Address("owner")
	governance = models.Address("governance")
	fundsAcct  = models.Address("governance:funds")
	votesAcct  = models.Address("governance:votes")
)

type fixture struct {
	token    *token.Token
	clock    *clock.Fake
	workflow *Workflow
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := database.NewTestDB(t)
	ctx := context.Background()
	log := zap.NewNop()

	b := bank.New(db, owner, log)
	tok := token.New(db, b, owner, log)
	require.NoError(t, tok.Init(ctx, owner, token.Genesis{
		Name:           "Governance Token",
		Symbol:         "GOV",
		ReserveRatio:   500000,
		InitialSupply:  models.NewAmount(10000),
		InitialReserve: models.NewAmount(1000),
	}))
	gate := access.New(db, "governance", owner, log)
	require.NoError(t, gate.GrantAccess(ctx, owner, governance))
	clk := clock.NewFake(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))

	ledger := voteledger.New(db, voteledger.Options{
		Name:     "governance",
		Duration: time.Hour,
		Gate:     gate,
		Escrow:   escrow.NewToken(tok, votesAcct),
		Clock:    clk,
		Log:      log,
	})
	w := New(db, Options{
		Address: governance,
		Ledger:  ledger,
		Funds:   escrow.NewToken(tok, fundsAcct),
		Log:     log,
	})

	for _, u := range []models.Address{"alice", "bob", "carol", "v1"} {
		require.NoError(t, tok.Transfer(ctx, owner, u, models.NewAmount(200)))
		require.NoError(t, tok.Approve(ctx, u, fundsAcct, models.NewAmount(200)))
		require.NoError(t, tok.Approve(ctx, u, votesAcct, models.NewAmount(200)))
	}
	return &fixture{token: tok, clock: clk, workflow: w}
}

func (f *fixture) balance(t *testing.T, a models.Address) string {
	t.Helper()
	bal, err := f.token.BalanceOf(context.Background(), a)
	require.NoError(t, err)
	return bal.String()
}

func amt(v uint64) models.Amount { return models.NewAmount(v) }

func TestCreateProposal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.workflow.CreateProposal(ctx, "alice", "ipfs://p", models.ZeroAmount)
	assert.ErrorIs(t, err, models.ErrInvalidAmount)
	_, err = f.workflow.CreateProposal(ctx, "stranger", "ipfs://p", amt(10))
	assert.ErrorIs(t, err, models.ErrInsufficientStake)

	id, err := f.workflow.CreateProposal(ctx, "alice", "ipfs://p", amt(50))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)
	assert.Equal(t, "150", f.balance(t, "alice"))

	p, err := f.workflow.GetProposalDetails(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "50", p.RewardPool.String())
	assert.Empty(t, p.ImplementationIDs)

	page, _ := f.workflow.GetProposalIDs(ctx, 0, 10)
	assert.Equal(t, []uint64{1}, page.Values)

	_, err = f.workflow.GetProposalDetails(ctx, 9)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestContributionRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, _ := f.workflow.CreateProposal(ctx, "alice", "p", amt(50))

	require.NoError(t, f.workflow.AddToProposal(ctx, "bob", id, amt(40)))
	assert.Equal(t, "160", f.balance(t, "bob"))
	require.NoError(t, f.workflow.WithdrawFromProposal(ctx, "bob", id, amt(40)))
	assert.Equal(t, "200", f.balance(t, "bob"))

	assert.ErrorIs(t, f.workflow.WithdrawFromProposal(ctx, "bob", id, amt(1)), models.ErrInsufficientPool)
	assert.ErrorIs(t, f.workflow.WithdrawFromProposal(ctx, "alice", id, amt(60)), models.ErrInsufficientPool)

	require.NoError(t, f.workflow.WithdrawFromProposal(ctx, "alice", id, amt(50)))
	assert.Equal(t, "200", f.balance(t, "alice"))

	p, _ := f.workflow.GetProposalDetails(ctx, id)
	assert.True(t, p.RewardPool.IsZero())
	c, _ := f.workflow.GetContribution(ctx, id, "alice")
	assert.True(t, c.IsZero())
}

func TestImplementationAccepted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, _ := f.workflow.CreateProposal(ctx, "alice", "p", amt(50))
	require.NoError(t, f.workflow.AddToProposal(ctx, "bob", id, amt(30)))

	_, err := f.workflow.CreateImplementation(ctx, "bob", id, models.ZeroAmount, "impl")
	assert.ErrorIs(t, err, models.ErrInsufficientStake)
	impl, err := f.workflow.CreateImplementation(ctx, "bob", id, amt(20), "impl")
	require.NoError(t, err)
	assert.Equal(t, "150", f.balance(t, "bob"))

	_, err = f.workflow.CreateImplementation(ctx, "carol", id, amt(20), "other")
	assert.ErrorIs(t, err, models.ErrImplementationInProgress)
	assert.ErrorIs(t, f.workflow.WithdrawFromProposal(ctx, "alice", id, amt(10)), models.ErrImplementationInProgress)

	require.NoError(t, f.workflow.Vote(ctx, "v1", impl, true, amt(10)))
	assert.ErrorIs(t, f.workflow.SettleImplementation(ctx, impl), models.ErrEarlyReturn)
	f.clock.Advance(time.Hour)

	require.NoError(t, f.workflow.SettleImplementation(ctx, impl))
	require.NoError(t, f.workflow.SettleImplementation(ctx, impl))
	assert.Equal(t, "250", f.balance(t, "bob"))

	p, _ := f.workflow.GetProposalDetails(ctx, id)
	assert.True(t, p.RewardPool.IsZero())
	assert.Zero(t, p.PendingImplementationID)
	assert.True(t, p.PaidRewardOrPunishment)
	assert.Equal(t, []uint64{impl}, p.ImplementationIDs)

	d, _ := f.workflow.GetImplementationDetails(ctx, impl)
	assert.True(t, d.PaidBackStake)
	assert.True(t, d.Accepted)
	assert.True(t, d.Poll.MajorityAccepted)

	s, err := f.workflow.ReturnVoteFundsAndReward(ctx, "v1", impl)
	require.NoError(t, err)
	assert.Equal(t, "10", s.Refund.String())
	assert.True(t, s.Reward.IsZero())
	assert.Equal(t, "200", f.balance(t, "v1"))

	assert.ErrorIs(t, f.workflow.AddToProposal(ctx, "carol", id, amt(5)), models.ErrProposalClosed)
	assert.ErrorIs(t, f.workflow.WithdrawFromProposal(ctx, "alice", id, amt(5)), models.ErrInsufficientPool)
	_, err = f.workflow.CreateImplementation(ctx, "carol", id, amt(20), "late")
	assert.ErrorIs(t, err, models.ErrProposalClosed)

	page, _ := f.workflow.GetAcceptedImplementationIDs(ctx, 0, 10)
	assert.Equal(t, []uint64{impl}, page.Values)
	assert.Equal(t, "0", f.balance(t, fundsAcct))
}

func TestImplementationRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, _ := f.workflow.CreateProposal(ctx, "alice", "p", amt(50))
	impl, err := f.workflow.CreateImplementation(ctx, "bob", id, amt(20), "impl")
	require.NoError(t, err)
	require.NoError(t, f.workflow.Vote(ctx, "v1", impl, false, amt(5)))
	f.clock.Advance(time.Hour)

	s, err := f.workflow.ReturnVoteFundsAndReward(ctx, "v1", impl)
	require.NoError(t, err)
	assert.Equal(t, "5", s.Refund.String())
	assert.Equal(t, "200", f.balance(t, "bob"))

	p, _ := f.workflow.GetProposalDetails(ctx, id)
	assert.Equal(t, "50", p.RewardPool.String())
	assert.Zero(t, p.PendingImplementationID)
	assert.False(t, p.PaidRewardOrPunishment)

	next, err := f.workflow.CreateImplementation(ctx, "carol", id, amt(20), "again")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), next)

	page, _ := f.workflow.GetRejectedImplementationIDs(ctx, 0, 10)
	assert.Equal(t, []uint64{impl}, page.Values)
}

func TestClosedPendingImplementationIsSettledOnNextCreate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, _ := f.workflow.CreateProposal(ctx, "alice", "p", amt(50))
	impl, _ := f.workflow.CreateImplementation(ctx, "bob", id, amt(20), "impl")
	f.clock.Advance(time.Hour)

	// no votes: a tie, so rejected
	next, err := f.workflow.CreateImplementation(ctx, "carol", id, amt(30), "again")
	require.NoError(t, err)
	assert.Equal(t, "200", f.balance(t, "bob"))
	assert.Equal(t, "170", f.balance(t, "carol"))

	d, _ := f.workflow.GetImplementationDetails(ctx, impl)
	assert.True(t, d.PaidBackStake)
	assert.False(t, d.Accepted)

	p, _ := f.workflow.GetProposalDetails(ctx, id)
	assert.Equal(t, next, p.PendingImplementationID)
}

func TestVoteOnUnknownImplementation(t *testing.T) {
	f := newFixture(t)
	err := f.workflow.Vote(context.Background(), "v1", 3, true, amt(1))
	assert.ErrorIs(t, err, models.ErrNotFound)
}
