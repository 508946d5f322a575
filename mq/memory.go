package mq

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var ErrClosed = errors.New("消息队列已关闭")

// MemoryMQ 进程内队列，单实例部署或测试使用
type MemoryMQ struct {
	log     *zap.Logger
	queue   chan LedgerEvent
	handler Handler

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
	stop    chan struct{}
}

func NewMemoryMQ(size int, log *zap.Logger) *MemoryMQ {
	return &MemoryMQ{
		log:   log,
		queue: make(chan LedgerEvent, size),
		stop:  make(chan struct{}),
	}
}

func (m *MemoryMQ) Publish(ctx context.Context, ev LedgerEvent) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	select {
	case m.queue <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe 注册处理函数并启动消费协程
func (m *MemoryMQ) Subscribe(handler Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.started {
		return errors.New("处理函数已注册")
	}
	m.handler = handler
	m.started = true
	m.wg.Add(1)
	go m.consumeLoop()
	return nil
}

func (m *MemoryMQ) consumeLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stop:
			// 关闭前处理完已入队的消息
			for {
				select {
				case ev := <-m.queue:
					m.dispatch(ev)
				default:
					return
				}
			}
		case ev := <-m.queue:
			m.dispatch(ev)
		}
	}
}

func (m *MemoryMQ) dispatch(ev LedgerEvent) {
	if err := m.handler(context.Background(), ev); err != nil {
		m.log.Warn("处理消息失败", zap.String("message_id", ev.MessageID), zap.Error(err))
	}
}

func (m *MemoryMQ) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stop)
	m.wg.Wait()
}

func (m *MemoryMQ) Stats() map[string]interface{} {
	return map[string]interface{}{
		"type":   "memory",
		"queued": len(m.queue),
	}
}
