package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"curation-governance-backend/cache"
	"curation-governance-backend/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHealthCheck(t *testing.T) {
	env := SetupTestEnvironment(t)

	w := env.do(t, "GET", "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var info SystemInfo
	w = env.do(t, "GET", "/api/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &info)
	assert.Equal(t, "ok", info.DBStatus)
	assert.Equal(t, "memory", info.Queue["type"])
}

func TestWritesRequireToken(t *testing.T) {
	env := SetupTestEnvironment(t)
	body := gin.H{"stake": "100", "content_ref": "ipfs://x"}

	w := env.do(t, "POST", "/api/debates", "", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest("POST", "/api/debates", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other, err := IssueToken([]byte("other-secret"), "alice", time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest("POST", "/api/debates", nil)
	req.Header.Set("Authorization", "Bearer "+other)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminCreditIsOwnerOnly(t *testing.T) {
	env := SetupTestEnvironment(t)

	w := env.do(t, "POST", "/api/admin/credit", "alice", gin.H{"to": "alice", "amount": "10"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, "POST", "/api/admin/credit", "owner", gin.H{"to": "alice", "amount": "10"})
	assert.Equal(t, http.StatusOK, w.Code)

	var account struct {
		Native models.Amount `json:"native"`
		Tokens models.Amount `json:"tokens"`
	}
	w = env.do(t, "GET", "/api/accounts/alice", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &account)
	assert.Equal(t, "10", account.Native.String())
	assert.True(t, account.Tokens.IsZero())
}

func TestDebateOverHTTP(t *testing.T) {
	env := SetupTestEnvironment(t)
	for _, u := range []string{"alice", "bob", "v1"} {
		w := env.do(t, "POST", "/api/admin/credit", "owner", gin.H{"to": u, "amount": "1000"})
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := env.do(t, "POST", "/api/debates", "alice", gin.H{"stake": "50", "content_ref": "ipfs://d"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	w = env.do(t, "POST", "/api/debates", "alice", gin.H{"stake": "100", "content_ref": "ipfs://d", "tags": []string{"no spaces"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "POST", "/api/debates", "alice", gin.H{"stake": "200", "content_ref": "ipfs://d", "tags": []string{"golang"}})
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		ID uint64 `json:"id"`
	}
	decode(t, w, &created)
	require.Equal(t, uint64(1), created.ID)

	w = env.do(t, "POST", "/api/debates/1/opinions", "bob", gin.H{"stake": "100", "content_ref": "ipfs://o"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, "POST", "/api/entries/1/vote", "v1", gin.H{"voted_for": true, "amount": "10"})
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, "POST", "/api/entries/1/vote", "v1", gin.H{"voted_for": true, "amount": "10"})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = env.do(t, "POST", "/api/entries/1/vote", "v1", gin.H{"amount": "10"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var poll models.PollDetail
	w = env.do(t, "GET", "/api/polls/curation/1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &poll)
	assert.True(t, poll.Ongoing)
	assert.True(t, poll.ForTotal.IsZero())

	w = env.do(t, "POST", "/api/entries/1/return", "v1", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	env.clock.Advance(time.Hour)

	w = env.do(t, "POST", "/api/entries/1/settle", "bob", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, "POST", "/api/entries/1/return", "v1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var settlement struct {
		Refund models.Amount `json:"refund"`
		Reward models.Amount `json:"reward"`
	}
	decode(t, w, &settlement)
	assert.Equal(t, "10", settlement.Refund.String())
	assert.Equal(t, "20", settlement.Reward.String())

	w = env.do(t, "GET", "/api/debates?state=accepted", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page models.Page
	decode(t, w, &page)
	assert.Equal(t, []uint64{1}, page.Values)

	w = env.do(t, "GET", "/api/debates?tag=golang", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &page)
	assert.Equal(t, []uint64{1}, page.Values)

	w = env.do(t, "GET", "/api/debates?state=bogus", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "POST", "/api/debates/1/opinions", "bob", gin.H{"stake": "100", "content_ref": "ipfs://o"})
	require.Equal(t, http.StatusCreated, w.Code)

	var reg models.OpinionRegistryDetail
	w = env.do(t, "GET", "/api/debates/1/registry", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &reg)
	assert.Equal(t, uint64(2), reg.ChallengingOpinionID)

	w = env.do(t, "GET", "/api/debates/99", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do(t, "GET", "/api/debates/abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(t, "GET", "/api/polls/elsewhere/1", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProposalWithTokens(t *testing.T) {
	env := SetupTestEnvironment(t)

	w := env.do(t, "POST", "/api/token/transfer", "owner", gin.H{"to": "alice", "amount": "500"})
	require.Equal(t, http.StatusOK, w.Code)

	// no allowance yet
	w = env.do(t, "POST", "/api/proposals", "alice", gin.H{"content_ref": "ipfs://p", "reward": "100"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = env.do(t, "POST", "/api/token/approve", "alice", gin.H{"to": "governance:funds", "amount": "100"})
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, "POST", "/api/proposals", "alice", gin.H{"content_ref": "ipfs://p", "reward": "100"})
	require.Equal(t, http.StatusCreated, w.Code)

	var p struct {
		RewardPool models.Amount `json:"reward_pool"`
		Creator    string        `json:"creator"`
	}
	w = env.do(t, "GET", "/api/proposals/1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &p)
	assert.Equal(t, "100", p.RewardPool.String())
	assert.Equal(t, "alice", p.Creator)
}

func TestSettingsAdmin(t *testing.T) {
	env := SetupTestEnvironment(t)

	w := env.do(t, "POST", "/api/admin/settings", "alice", gin.H{"kind": "int", "key": "DEBATE_MIN_STAKE", "int": 5})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = env.do(t, "POST", "/api/admin/settings", "owner", gin.H{"kind": "int", "key": "DEBATE_MIN_STAKE", "int": 5})
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, "POST", "/api/admin/settings", "owner", gin.H{"kind": "fraction", "key": "DEV_FEE", "numerator": 3, "denominator": 2})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(t, "POST", "/api/admin/settings", "owner", gin.H{"kind": "color", "key": "X"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var got struct {
		Value uint64 `json:"value"`
	}
	w = env.do(t, "GET", "/api/settings/int/DEBATE_MIN_STAKE", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &got)
	assert.Equal(t, uint64(5), got.Value)
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{models.ErrUnauthorized, http.StatusForbidden},
		{fmt.Errorf("wrapped: %w", models.ErrNotFound), http.StatusNotFound},
		{models.ErrPollNotFound, http.StatusNotFound},
		{models.ErrEarlyReturn, http.StatusConflict},
		{models.ErrImplementationInProgress, http.StatusConflict},
		{models.ErrProposalClosed, http.StatusConflict},
		{fmt.Errorf("x: %w", models.ErrInsufficientStake), http.StatusUnprocessableEntity},
		{models.ErrInsufficientPool, http.StatusUnprocessableEntity},
		{models.ErrInvalidTag, http.StatusBadRequest},
		{cache.ErrLockNotAcquired, http.StatusServiceUnavailable},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := cache.NewUserRateLimiter(nil, "test", 1, 1)
	router := gin.New()
	router.Use(RateLimitMiddleware(limiter, zap.NewNop()))
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest("GET", "/ping", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest("GET", "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}
