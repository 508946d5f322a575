package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// 消息队列的队列名称常量
const (
	MainQueueName       = "ledger_events"             // 主队列
	ProcessingQueueName = "ledger_events_processing"  // 处理中队列
	DeadLetterQueueName = "ledger_events_dead_letter" // 死信队列
	RetriesHashName     = "ledger_events_retries"     // 重试次数记录
	messageIDSetName    = "ledger_event_ids"
)

// RedisMQ 基于Redis List实现的消息队列
type RedisMQ struct {
	client            *redis.Client
	log               *zap.Logger
	handler           Handler
	isRunning         bool
	mu                sync.Mutex
	stopChan          chan struct{}
	wg                sync.WaitGroup
	processingTimeout time.Duration // 消息处理超时时间
	retryDelay        time.Duration // 重试延迟
	maxRetries        int           // 最大重试次数
}

// NewRedisMQ 创建新的基于Redis的消息队列
func NewRedisMQ(client *redis.Client, log *zap.Logger) *RedisMQ {
	return &RedisMQ{
		client:            client,
		log:               log,
		stopChan:          make(chan struct{}),
		processingTimeout: 5 * time.Minute,
		retryDelay:        30 * time.Second,
		maxRetries:        3,
	}
}

// Publish 发送事件到主队列，同一MessageID只入队一次
func (r *RedisMQ) Publish(ctx context.Context, ev LedgerEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	added, err := r.client.SAdd(ctx, messageIDSetName, ev.MessageID).Result()
	if err != nil {
		r.log.Warn("检查消息幂等性出错", zap.Error(err))
	} else if added == 0 {
		r.log.Debug("消息已发送过，跳过", zap.String("message_id", ev.MessageID))
		return nil
	}
	// 设置过期时间，避免集合无限增长
	r.client.Expire(ctx, messageIDSetName, 48*time.Hour)

	if err := r.client.LPush(ctx, MainQueueName, data).Err(); err != nil {
		return fmt.Errorf("发送消息到队列失败: %w", err)
	}
	return nil
}

// Subscribe 注册处理函数并启动消费者
func (r *RedisMQ) Subscribe(handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isRunning {
		return nil
	}
	r.handler = handler
	r.isRunning = true

	r.wg.Add(2)
	go r.consumeLoop()
	go r.timeoutCheckLoop()
	r.log.Info("Redis消息队列消费者已启动")
	return nil
}

// Close 关闭消费者
func (r *RedisMQ) Close() {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return
	}
	r.isRunning = false
	r.mu.Unlock()

	close(r.stopChan)
	r.wg.Wait()
	r.log.Info("Redis消息队列消费者已关闭")
}

// 主消费循环
func (r *RedisMQ) consumeLoop() {
	defer r.wg.Done()
	ctx := context.Background()

	for {
		select {
		case <-r.stopChan:
			return
		default:
		}
		// BRPOPLPUSH原子地把消息从主队列移到处理中队列
		result, err := r.client.BRPopLPush(ctx, MainQueueName, ProcessingQueueName, time.Second).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				r.log.Warn("从队列获取消息失败", zap.Error(err))
				time.Sleep(time.Second)
			}
			continue
		}
		r.processMessage(ctx, result)
	}
}

// 超时检查循环
func (r *RedisMQ) timeoutCheckLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.checkTimeouts(context.Background())
		}
	}
}

// 处理中队列里超时的消息重新入队或进入死信队列
func (r *RedisMQ) checkTimeouts(ctx context.Context) {
	messages, err := r.client.LRange(ctx, ProcessingQueueName, 0, -1).Result()
	if err != nil {
		r.log.Warn("获取处理中队列消息失败", zap.Error(err))
		return
	}

	now := time.Now().Unix()
	for _, data := range messages {
		var ev LedgerEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			r.moveToDeadLetter(ctx, data)
			continue
		}
		if now-ev.Timestamp > int64(r.processingTimeout.Seconds()) {
			r.retryOrBury(ctx, ev, data)
		}
	}
}

// 处理单个消息
func (r *RedisMQ) processMessage(ctx context.Context, data string) {
	var ev LedgerEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		r.log.Warn("解析消息失败", zap.Error(err))
		r.moveToDeadLetter(ctx, data)
		return
	}

	if err := r.handler(ctx, ev); err != nil {
		r.log.Warn("处理消息失败", zap.String("message_id", ev.MessageID), zap.Error(err))
		r.retryOrBury(ctx, ev, data)
		return
	}
	r.client.LRem(ctx, ProcessingQueueName, 1, data)
}

func (r *RedisMQ) retryOrBury(ctx context.Context, ev LedgerEvent, data string) {
	retries, _ := r.client.HGet(ctx, RetriesHashName, ev.MessageID).Int()
	if retries >= r.maxRetries {
		r.log.Warn("消息超过最大重试次数，移至死信队列", zap.String("message_id", ev.MessageID))
		r.moveToDeadLetter(ctx, data)
		return
	}
	r.client.HIncrBy(ctx, RetriesHashName, ev.MessageID, 1)
	r.client.LRem(ctx, ProcessingQueueName, 1, data)

	ev.Timestamp = time.Now().Unix()
	updated, _ := json.Marshal(ev)
	time.AfterFunc(r.retryDelay, func() {
		r.client.LPush(context.Background(), MainQueueName, updated)
	})
}

// 将消息移动到死信队列
func (r *RedisMQ) moveToDeadLetter(ctx context.Context, data string) {
	r.client.LPush(ctx, DeadLetterQueueName, data)
	r.client.LRem(ctx, ProcessingQueueName, 1, data)
}

// RetryDeadLetters 把死信队列中的消息移回主队列
func (r *RedisMQ) RetryDeadLetters(ctx context.Context) (int, error) {
	messages, err := r.client.LRange(ctx, DeadLetterQueueName, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("获取死信队列消息失败: %w", err)
	}

	count := 0
	for _, data := range messages {
		if err := r.client.LPush(ctx, MainQueueName, data).Err(); err != nil {
			r.log.Warn("重新入队消息失败", zap.Error(err))
			continue
		}
		r.client.LRem(ctx, DeadLetterQueueName, 1, data)

		var ev LedgerEvent
		if json.Unmarshal([]byte(data), &ev) == nil {
			r.client.HDel(ctx, RetriesHashName, ev.MessageID)
		}
		count++
	}
	r.log.Info("死信消息已移回主队列", zap.Int("count", count))
	return count, nil
}

// Stats 各队列的消息数量
func (r *RedisMQ) Stats() map[string]interface{} {
	ctx := context.Background()
	mainLen, _ := r.client.LLen(ctx, MainQueueName).Result()
	procLen, _ := r.client.LLen(ctx, ProcessingQueueName).Result()
	deadLen, _ := r.client.LLen(ctx, DeadLetterQueueName).Result()
	return map[string]interface{}{
		"type":              "redis",
		"main_queue":        mainLen,
		"processing_queue":  procLen,
		"dead_letter_queue": deadLen,
	}
}
