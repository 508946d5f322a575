package access

import (
	"context"
	"testing"

	"curation-governance-backend/database"
	"curation-governance-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGrantAndDeny(t *testing.T) {
	db := database.NewTestDB(t)
	ctx := context.Background()
	r := New(db, "curation", "owner", zap.NewNop())

	ok, err := r.HasAccess(ctx, "debates")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, r.Require(ctx, "debates"), models.ErrUnauthorized)

	require.NoError(t, r.GrantAccess(ctx, "owner", "debates"))
	require.NoError(t, r.GrantAccess(ctx, "owner", "debates"))
	ok, _ = r.HasAccess(ctx, "debates")
	assert.True(t, ok)
	assert.NoError(t, r.Require(ctx, "debates"))

	require.NoError(t, r.DenyAccess(ctx, "owner", "debates"))
	ok, _ = r.HasAccess(ctx, "debates")
	assert.False(t, ok)
}

func TestRegistriesAreIndependent(t *testing.T) {
	db := database.NewTestDB(t)
	ctx := context.Background()
	curation := New(db, "curation", "owner", zap.NewNop())
	governance := New(db, "governance", "owner", zap.NewNop())

	require.NoError(t, curation.GrantAccess(ctx, "owner", "debates"))
	ok, _ := governance.HasAccess(ctx, "debates")
	assert.False(t, ok)
}

func TestOnlyOwnerManagesAccess(t *testing.T) {
	r := New(database.NewTestDB(t), "curation", "owner", zap.NewNop())
	ctx := context.Background()

	assert.ErrorIs(t, r.GrantAccess(ctx, "mallory", "mallory"), models.ErrUnauthorized)
	assert.ErrorIs(t, r.DenyAccess(ctx, "mallory", "debates"), models.ErrUnauthorized)
}
