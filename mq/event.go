package mq

import (
	"context"
	"fmt"
	"time"
)

// EventType 账本生命周期事件类型。不包含进行中的票数
type EventType string

const (
	EventPollStarted  EventType = "poll_started"
	EventEntrySettled EventType = "entry_settled"
	EventVoterSettled EventType = "voter_settled"
)

// LedgerEvent 表示一条账本事件消息
type LedgerEvent struct {
	Type      EventType `json:"type"`
	Ledger    string    `json:"ledger"`
	PollID    uint64    `json:"poll_id"`
	Actor     string    `json:"actor,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	Timestamp int64     `json:"timestamp"`
	MessageID string    `json:"message_id"` // 用于幂等性处理
}

// NewEvent 创建事件并生成消息ID
func NewEvent(t EventType, ledger string, pollID uint64) LedgerEvent {
	now := time.Now()
	return LedgerEvent{
		Type:      t,
		Ledger:    ledger,
		PollID:    pollID,
		Timestamp: now.Unix(),
		MessageID: fmt.Sprintf("%s_%s_%d_%d", ledger, t, pollID, now.UnixNano()),
	}
}

// Handler 消息处理函数
type Handler func(ctx context.Context, ev LedgerEvent) error

// Publisher 发布事件
type Publisher interface {
	Publish(ctx context.Context, ev LedgerEvent) error
}

// Broker 消息队列：发布、订阅、关闭
type Broker interface {
	Publisher
	Subscribe(handler Handler) error
	Close()
	Stats() map[string]interface{}
}

// Discard 丢弃全部事件
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(context.Context, LedgerEvent) error { return nil }
