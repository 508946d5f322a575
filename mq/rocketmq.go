package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
	"go.uber.org/zap"
)

// 主题常量
const (
	TopicLedgerEvents = "ledger_events"
	ledgerEventTag    = "ledger"
)

// RocketMQ 生产者加推模式消费者
type RocketMQ struct {
	nameServer string
	log        *zap.Logger
	producer   rocketmq.Producer
	consumer   rocketmq.PushConsumer

	// 已处理消息的ID，消费端幂等
	mu        sync.Mutex
	processed map[string]time.Time
	ttl       time.Duration
}

// NewRocketMQ 创建并启动生产者
func NewRocketMQ(nameServer string, log *zap.Logger) (*RocketMQ, error) {
	log.Info("初始化RocketMQ连接", zap.String("namesrv", nameServer))
	p, err := rocketmq.NewProducer(
		producer.WithNameServer([]string{nameServer}),
		producer.WithGroupName("ledger_producer"),
		producer.WithRetry(2),
		producer.WithSendMsgTimeout(10*time.Second),
		producer.WithVIPChannel(false),
	)
	if err != nil {
		return nil, fmt.Errorf("创建RocketMQ生产者失败: %w", err)
	}
	if err := p.Start(); err != nil {
		return nil, fmt.Errorf("启动RocketMQ生产者失败: %w", err)
	}
	log.Info("RocketMQ生产者初始化成功")
	return &RocketMQ{
		nameServer: nameServer,
		log:        log,
		producer:   p,
		processed:  make(map[string]time.Time),
		ttl:        24 * time.Hour,
	}, nil
}

// Publish 同步发送。同一投票的消息使用相同分区键，保证顺序
func (r *RocketMQ) Publish(ctx context.Context, ev LedgerEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("序列化消息失败: %w", err)
	}

	message := primitive.NewMessage(TopicLedgerEvents, body)
	message.WithTag(ledgerEventTag)
	message.WithKeys([]string{ev.MessageID})
	message.WithShardingKey(ev.Ledger + ":" + strconv.FormatUint(ev.PollID, 10))

	res, err := r.producer.SendSync(ctx, message)
	if err != nil {
		return fmt.Errorf("发送消息失败: %w", err)
	}
	r.log.Debug("发送消息成功", zap.String("msg_id", res.MsgID), zap.String("message_id", ev.MessageID))
	return nil
}

// Subscribe 启动顺序消费者
func (r *RocketMQ) Subscribe(handler Handler) error {
	c, err := rocketmq.NewPushConsumer(
		consumer.WithNameServer([]string{r.nameServer}),
		consumer.WithGroupName("ledger_consumer"),
		consumer.WithConsumerModel(consumer.Clustering),
		consumer.WithConsumeFromWhere(consumer.ConsumeFromLastOffset),
		consumer.WithConsumerOrder(true),
	)
	if err != nil {
		return fmt.Errorf("创建消息消费者失败: %w", err)
	}

	err = c.Subscribe(TopicLedgerEvents, consumer.MessageSelector{
		Type:       consumer.TAG,
		Expression: ledgerEventTag,
	}, func(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
		for _, msg := range msgs {
			var ev LedgerEvent
			if err := json.Unmarshal(msg.Body, &ev); err != nil {
				r.log.Warn("解析消息失败", zap.Error(err))
				continue
			}
			if r.seen(ev.MessageID) {
				continue
			}
			if err := handler(ctx, ev); err != nil {
				r.log.Warn("处理消息失败", zap.String("message_id", ev.MessageID), zap.Error(err))
				return consumer.SuspendCurrentQueueAMoment, nil
			}
			r.markProcessed(ev.MessageID)
		}
		return consumer.ConsumeSuccess, nil
	})
	if err != nil {
		return fmt.Errorf("订阅主题失败: %w", err)
	}
	if err := c.Start(); err != nil {
		return fmt.Errorf("启动消费者失败: %w", err)
	}
	r.consumer = c
	r.log.Info("RocketMQ消费者启动成功")
	return nil
}

func (r *RocketMQ) seen(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.processed[id]
	return ok
}

func (r *RocketMQ) markProcessed(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.processed[id] = now
	for k, at := range r.processed {
		if now.Sub(at) > r.ttl {
			delete(r.processed, k)
		}
	}
}

func (r *RocketMQ) Close() {
	if r.consumer != nil {
		if err := r.consumer.Shutdown(); err != nil {
			r.log.Warn("关闭RocketMQ消费者失败", zap.Error(err))
		}
	}
	if err := r.producer.Shutdown(); err != nil {
		r.log.Warn("关闭RocketMQ生产者失败", zap.Error(err))
	}
}

func (r *RocketMQ) Stats() map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return map[string]interface{}{
		"type":      "rocketmq",
		"namesrv":   r.nameServer,
		"processed": len(r.processed),
	}
}
