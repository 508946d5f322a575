package websocket

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// 写入超时
	writeWait = 10 * time.Second

	// 读取超时
	pongWait = 60 * time.Second

	// 发送ping间隔时间，必须小于pongWait
	pingPeriod = (pongWait * 9) / 10

	// 最大消息大小
	maxMessageSize = 512

	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 跨域由cors中间件控制
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler WebSocket处理器
type Handler struct {
	hub     *Hub
	ledgers map[string]bool
	log     *zap.Logger
}

// NewHandler 创建WebSocket处理器，ledgers为可订阅的账本名
func NewHandler(hub *Hub, log *zap.Logger, ledgers ...string) *Handler {
	known := make(map[string]bool, len(ledgers))
	for _, l := range ledgers {
		known[l] = true
	}
	return &Handler{hub: hub, ledgers: known, log: log}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	router.GET("/ws/:ledger/polls/:id", h.HandleWebSocketConnection)
}

// HandleWebSocketConnection 处理WebSocket连接请求
func (h *Handler) HandleWebSocketConnection(c *gin.Context) {
	ledger := c.Param("ledger")
	if !h.ledgers[ledger] {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown ledger"})
		return
	}
	pollID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid poll id"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket升级失败", zap.Error(err))
		return
	}

	client := NewClient(Topic{Ledger: ledger, PollID: pollID}, conn, sendBuffer)
	h.hub.RegisterClient(client)

	go h.writePump(client)
	go h.readPump(client)
}

// readPump 只处理控制帧，客户端消息被丢弃
func (h *Handler) readPump(client *Client) {
	defer func() {
		h.hub.UnregisterClient(client)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Debug("读取WebSocket消息失败", zap.Error(err))
			}
			return
		}
	}
}

// writePump 向WebSocket连接发送消息，每条事件一帧
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
