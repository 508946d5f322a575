package mq

import (
	"context"

	"curation-governance-backend/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// New 按驱动创建消息队列；redis或rocketmq不可用时退回内存队列
func New(driver, rocketNameServer string, redisClient *redis.Client, log *zap.Logger) Broker {
	var broker Broker
	switch driver {
	case "redis":
		if redisClient == nil {
			log.Warn("MQ_DRIVER=redis 但未配置Redis，使用内存队列")
			break
		}
		broker = NewRedisMQ(redisClient, log)
	case "rocketmq":
		r, err := NewRocketMQ(rocketNameServer, log)
		if err != nil {
			log.Warn("RocketMQ初始化失败，使用内存队列", zap.Error(err))
			break
		}
		broker = r
	}
	if broker == nil {
		driver = "memory"
		broker = NewMemoryMQ(1024, log)
	}
	return &instrumented{Broker: broker, driver: driver}
}

// instrumented 统计发布结果
type instrumented struct {
	Broker
	driver string
}

func (i *instrumented) Publish(ctx context.Context, ev LedgerEvent) error {
	err := i.Broker.Publish(ctx, ev)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.EventsPublished.WithLabelValues(i.driver, result).Inc()
	return err
}
