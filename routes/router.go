package routes

import (
	"context"
	"errors"
	"net/http"
	"time"

	"curation-governance-backend/handlers"
	"curation-governance-backend/service"
	"curation-governance-backend/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// SetupRouter 设置和配置Gin路由
func SetupRouter(c *service.Container) *gin.Engine {
	if c.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), handlers.LoggerMiddleware(c.Log), handlers.MetricsMiddleware())

	// 配置CORS中间件
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	h := handlers.New(c)
	auth := handlers.AuthMiddleware([]byte(c.Config.JWTSecret))
	limit := func(r gin.IRoutes) {}
	if c.Config.RateLimit.Enabled {
		mw := handlers.RateLimitMiddleware(c.Limiter, c.Log)
		limit = func(r gin.IRoutes) { r.Use(mw) }
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	websocket.NewHandler(c.Hub, c.Log, service.CurationLedger, service.GovernanceLedger).RegisterRoutes(router)

	api := router.Group("/api")
	{
		// 健康检查
		api.GET("/health", handlers.HealthCheck)
		api.GET("/status", h.SystemStatus)

		// 只读接口无需认证
		public := api.Group("")
		limit(public)
		{
			public.GET("/debates", h.ListDebates)
			public.GET("/debates/:id", h.GetDebate)
			public.GET("/debates/:id/registry", h.GetOpinionRegistry)
			public.GET("/debates/:id/opinions", h.ListOpinions)
			public.GET("/opinions/:id", h.GetOpinion)
			public.GET("/tags/:tag", h.GetTagPage)
			public.GET("/curation/reserve", h.GetReserve)

			public.GET("/proposals", h.ListProposals)
			public.GET("/proposals/:id", h.GetProposal)
			public.GET("/proposals/:id/contributions/:depositor", h.GetContribution)
			public.GET("/implementations", h.ListImplementations)
			public.GET("/implementations/:id", h.GetImplementation)

			public.GET("/polls/:ledger/:id", h.GetPoll)
			public.GET("/polls/:ledger/:id/voters/:voter", h.GetVoter)
			public.GET("/accounts/:address", h.GetAccount)
			public.GET("/token", h.GetTokenInfo)
			public.GET("/settings/:kind/:key", h.GetSetting)
		}

		// 写接口：调用方地址来自JWT的sub
		private := api.Group("", auth)
		limit(private)
		{
			private.POST("/debates", h.CreateDebate)
			private.POST("/debates/:id/opinions", h.CreateOpinion)
			private.POST("/entries/:id/vote", h.VoteOnEntry)
			private.POST("/entries/:id/settle", h.SettleEntry)
			private.POST("/entries/:id/return", h.ReturnEntryFunds)

			private.POST("/proposals", h.CreateProposal)
			private.POST("/proposals/:id/add", h.AddToProposal)
			private.POST("/proposals/:id/withdraw", h.WithdrawFromProposal)
			private.POST("/proposals/:id/implementations", h.CreateImplementation)
			private.POST("/implementations/:id/vote", h.VoteOnImplementation)
			private.POST("/implementations/:id/settle", h.SettleImplementation)
			private.POST("/implementations/:id/return", h.ReturnImplementationFunds)

			private.POST("/token/mint", h.MintTokens)
			private.POST("/token/burn", h.BurnTokens)
			private.POST("/token/transfer", h.TransferTokens)
			private.POST("/token/approve", h.ApproveTokens)
			private.POST("/native/transfer", h.TransferNative)

			// 管理员相关API
			admin := private.Group("/admin")
			{
				admin.POST("/credit", h.Credit)
				admin.POST("/settings", h.SetSetting)
				admin.POST("/access/:ledger/grant", h.GrantAccess)
				admin.POST("/access/:ledger/deny", h.DenyAccess)
				admin.POST("/reserve/sweep", h.SweepReserve)
			}
		}
	}
	return router
}

// StartServer 在后台启动HTTP服务器
func StartServer(addr string, router http.Handler, log *zap.Logger) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("服务器启动", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("服务器启动失败", zap.Error(err))
		}
	}()
	return srv
}

// Shutdown 等待进行中的请求完成
func Shutdown(srv *http.Server, timeout time.Duration, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("服务器强制关闭", zap.Error(err))
	}
}
