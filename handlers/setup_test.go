package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"curation-governance-backend/clock"
	"curation-governance-backend/config"
	"curation-governance-backend/database"
	"curation-governance-backend/models"
	"curation-governance-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type testEnv struct {
	router    *gin.Engine
	container *service.Container
	clock     *clock.Fake
}

func testConfig() *config.Config {
	return &config.Config{
		Environment:  "test",
		Owner:        "owner",
		JWTSecret:    testSecret,
		VoteDuration: time.Hour,
		MQDriver:     "memory",
		RateLimit:    config.RateLimit{UserRate: 1, UserBurst: 1},
		Token: config.Token{
			Name:           "Test Token",
			Symbol:         "TST",
			ReserveRatio:   500000,
			InitialSupply:  "1000000",
			InitialReserve: "500000",
		},
	}
}

// SetupTestEnvironment sets up the Gin router on an in-memory SQLite database.
func SetupTestEnvironment(t *testing.T) *testEnv {
	gin.SetMode(gin.TestMode)

	clk := clock.NewFake(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	c := service.New(service.Deps{
		Config: testConfig(),
		DB:     database.NewTestDB(t),
		Clock:  clk,
		Log:    zap.NewNop(),
	})
	require.NoError(t, c.Bootstrap(context.Background()))
	t.Cleanup(c.Close)

	h := New(c)
	router := gin.New()
	api := router.Group("/api")
	{
		api.GET("/health", HealthCheck)
		api.GET("/status", h.SystemStatus)
		api.GET("/debates", h.ListDebates)
		api.GET("/debates/:id", h.GetDebate)
		api.GET("/debates/:id/registry", h.GetOpinionRegistry)
		api.GET("/polls/:ledger/:id", h.GetPoll)
		api.GET("/accounts/:address", h.GetAccount)
		api.GET("/settings/:kind/:key", h.GetSetting)
		api.GET("/proposals/:id", h.GetProposal)

		private := api.Group("", AuthMiddleware([]byte(testSecret)))
		{
			private.POST("/debates", h.CreateDebate)
			private.POST("/debates/:id/opinions", h.CreateOpinion)
			private.POST("/entries/:id/vote", h.VoteOnEntry)
			private.POST("/entries/:id/settle", h.SettleEntry)
			private.POST("/entries/:id/return", h.ReturnEntryFunds)
			private.POST("/proposals", h.CreateProposal)
			private.POST("/token/approve", h.ApproveTokens)
			private.POST("/token/transfer", h.TransferTokens)
			private.POST("/admin/credit", h.Credit)
			private.POST("/admin/settings", h.SetSetting)
		}
	}
	return &testEnv{router: router, container: c, clock: clk}
}

func (e *testEnv) do(t *testing.T, method, path string, caller models.Address, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		tok, err := IssueToken([]byte(testSecret), caller, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}
