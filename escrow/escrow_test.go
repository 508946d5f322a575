package escrow

import (
	"context"
	"testing"

	"curation-governance-backend/bank"
	"curation-governance-backend/database"
	"curation-governance-backend/models"
	"curation-governance-backend/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNativeEscrow(t *testing.T) {
	db := database.NewTestDB(t)
	ctx := context.Background()
	b := bank.New(db, "owner", zap.NewNop())
	require.NoError(t, b.Credit(ctx, "owner", "alice", models.NewAmount(50)))

	var e Escrow = NewNative(b, "ledger")
	require.NoError(t, e.Deposit(ctx, "alice", models.NewAmount(20)))
	held, _ := e.Balance(ctx)
	assert.Equal(t, "20", held.String())

	err := e.Deposit(ctx, "alice", models.NewAmount(31))
	assert.ErrorIs(t, err, models.ErrInsufficientStake)

	require.NoError(t, e.Release(ctx, "bob", models.NewAmount(5)))
	bob, _ := b.BalanceOf(ctx, "bob")
	assert.Equal(t, "5", bob.String())
}

func TestTokenEscrowNeedsAllowance(t *testing.T) {
	db := database.NewTestDB(t)
	ctx := context.Background()
	b := bank.New(db, "owner", zap.NewNop())
	tok := token.New(db, b, "owner", zap.NewNop())
	require.NoError(t, tok.Init(ctx, "owner", token.Genesis{
		Name: "T", Symbol: "T", ReserveRatio: 500000,
		InitialSupply: models.NewAmount(1000), InitialReserve: models.NewAmount(100),
	}))

	var e Escrow = NewToken(tok, "governance")
	err := e.Deposit(ctx, "owner", models.NewAmount(10))
	assert.ErrorIs(t, err, models.ErrInsufficientStake)

	require.NoError(t, tok.Approve(ctx, "owner", "governance", models.NewAmount(10)))
	require.NoError(t, e.Deposit(ctx, "owner", models.NewAmount(10)))
	held, _ := e.Balance(ctx)
	assert.Equal(t, "10", held.String())

	require.NoError(t, e.Release(ctx, "carol", models.NewAmount(4)))
	carol, _ := tok.BalanceOf(ctx, "carol")
	assert.Equal(t, "4", carol.String())
}
