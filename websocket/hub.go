package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"curation-governance-backend/mq"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Topic 订阅主题：账本名 + 投票ID
type Topic struct {
	Ledger string
	PollID uint64
}

// Client 代表一个WebSocket连接客户端
type Client struct {
	Topic Topic

	// WebSocket连接，测试中可为nil
	conn *websocket.Conn

	// 消息发送通道
	send chan []byte
}

// NewClient 创建客户端，buffer为发送缓冲大小
func NewClient(topic Topic, conn *websocket.Conn, buffer int) *Client {
	return &Client{Topic: topic, conn: conn, send: make(chan []byte, buffer)}
}

// Messages 客户端待发送消息
func (c *Client) Messages() <-chan []byte { return c.send }

// Hub 维护活跃的客户端集合并向客户端广播账本事件
type Hub struct {
	clients    map[Topic]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	log        *zap.Logger
}

// NewHub 创建一个新的Hub
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[Topic]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log.With(zap.String("component", "ws_hub")),
	}
}

// Run 启动Hub消息处理循环，ctx取消后关闭所有客户端
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if _, ok := h.clients[client.Topic]; !ok {
				h.clients[client.Topic] = make(map[*Client]bool)
			}
			h.clients[client.Topic][client] = true
			n := len(h.clients[client.Topic])
			h.mu.Unlock()
			h.log.Debug("client registered",
				zap.String("ledger", client.Topic.Ledger),
				zap.Uint64("poll", client.Topic.PollID),
				zap.Int("clients", n))

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for _, set := range h.clients {
				for client := range set {
					h.remove(client)
				}
			}
			h.mu.Unlock()
			return
		}
	}
}

// remove 调用方持有写锁
func (h *Hub) remove(client *Client) {
	set, ok := h.clients[client.Topic]
	if !ok {
		return
	}
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	close(client.send)
	if len(set) == 0 {
		delete(h.clients, client.Topic)
	}
}

// Broadcast 向订阅该投票的客户端广播事件，缓冲已满的客户端被断开
func (h *Hub) Broadcast(ev mq.LedgerEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("事件序列化失败", zap.Error(err))
		return
	}
	topic := Topic{Ledger: ev.Ledger, PollID: ev.PollID}

	h.mu.Lock()
	defer h.mu.Unlock()
	clients := h.clients[topic]
	for client := range clients {
		select {
		case client.send <- payload:
		default:
			h.remove(client)
		}
	}
	h.log.Debug("broadcast",
		zap.String("type", string(ev.Type)),
		zap.String("ledger", ev.Ledger),
		zap.Uint64("poll", ev.PollID),
		zap.Int("clients", len(clients)))
}

// HandleEvent 作为消息队列消费者
func (h *Hub) HandleEvent(_ context.Context, ev mq.LedgerEvent) error {
	h.Broadcast(ev)
	return nil
}

// Count 当前订阅某主题的客户端数
func (h *Hub) Count(topic Topic) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// RegisterClient 注册客户端到Hub
func (h *Hub) RegisterClient(client *Client) {
	h.register <- client
}

// UnregisterClient 从Hub中注销客户端
func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}
