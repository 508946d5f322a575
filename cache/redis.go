package cache

import (
	"context"
	"fmt"
	"time"

	"curation-governance-backend/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NewRedis 创建Redis连接。未配置地址时返回nil，调用方退回进程内实现
func NewRedis(ctx context.Context, cfg config.Redis, log *zap.Logger) (*redis.Client, error) {
	if cfg.Addr == "" {
		log.Info("未配置REDIS_ADDR，使用进程内锁和限流")
		return nil, nil
	}

	log.Info("初始化Redis连接", zap.String("addr", cfg.Addr))
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 3 * time.Second,
		ReadTimeout: 3 * time.Second,
		PoolSize:    10,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrRedisNotAvailable, err)
	}
	log.Info("Redis连接初始化成功")
	return client, nil
}
