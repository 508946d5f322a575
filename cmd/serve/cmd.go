package serve

import (
	"context"
	"fmt"
	"time"

	"curation-governance-backend/cache"
	"curation-governance-backend/clock"
	"curation-governance-backend/config"
	"curation-governance-backend/database"
	"curation-governance-backend/logger"
	"curation-governance-backend/routes"
	"curation-governance-backend/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	envFileKey  = "env-file"
	shutdownKey = "shutdown-timeout"
)

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP and WebSocket API",
		RunE:  serveFunc,
	}
	c.Flags().String(envFileKey, ".env", "环境变量文件")
	c.Flags().Duration(shutdownKey, 5*time.Second, "优雅关闭的等待时间")
	return c
}

func serveFunc(c *cobra.Command, _ []string) error {
	envFile, err := c.Flags().GetString(envFileKey)
	if err != nil {
		return err
	}
	timeout, err := c.Flags().GetDuration(shutdownKey)
	if err != nil {
		return err
	}

	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Environment)
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer func() { _ = log.Sync() }()

	// 初始化数据库连接
	db, err := database.InitDB(cfg.Database, log)
	if err != nil {
		return err
	}
	defer database.CloseDB(db, log)
	if err := database.Migrate(db); err != nil {
		return err
	}

	ctx := c.Context()
	// Redis不可用时退回进程内锁和限流
	rdb, err := cache.NewRedis(ctx, cfg.Redis, log)
	if err != nil {
		log.Warn("Redis初始化失败，使用进程内实现", zap.Error(err))
		rdb = nil
	}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	container := service.New(service.Deps{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Clock:  clock.System(),
		Log:    log,
	})
	defer container.Close()
	if err := container.Bootstrap(ctx); err != nil {
		return err
	}

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	if err := container.Start(hubCtx); err != nil {
		return err
	}
	log.Info("消息队列状态", zap.Any("stats", container.Broker.Stats()))

	srv := routes.StartServer(cfg.HTTPAddr, routes.SetupRouter(container), log)

	// 等待中断信号以优雅地关闭服务器
	<-ctx.Done()
	log.Info("关闭服务器...")
	routes.Shutdown(srv, timeout, log)
	log.Info("服务器优雅关闭")
	return nil
}
