package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/dushixiang/pingtray/internal/presenter"
	"github.com/dushixiang/pingtray/internal/protocol"
	"github.com/dushixiang/pingtray/pkg/agent/monitor"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 8
)

// 消息类型
const (
	MessageTypeStatus  = "status"
	MessageTypeStopped = "stopped"
)

// Message 推送消息
type Message struct {
	Type string                  `json:"type"`
	Data *protocol.StatusPayload `json:"data"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub 将监控器的变更通知推送给所有 WebSocket 客户端
type Hub struct {
	source    presenter.Source
	presenter *presenter.Presenter
	logger    *zap.Logger
	upgrader  websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client

	events chan monitor.EventKind
}

// NewHub 创建推送中心
func NewHub(source presenter.Source, p *presenter.Presenter, logger *zap.Logger) *Hub {
	return &Hub{
		source:    source,
		presenter: p,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 仅监听本地地址，允许任意来源
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*client),
		events:  make(chan monitor.EventKind, 1),
	}
}

// Run 订阅监控器并广播，阻塞直到 ctx 结束
func (h *Hub) Run(ctx context.Context) {
	unsubscribe := h.source.Subscribe(func(evt monitor.Event) {
		select {
		case h.events <- evt.Kind:
		default:
			// 已有待处理的通知，推送时总是读取最新状态
		}
	})
	defer unsubscribe()
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case kind := <-h.events:
			msgType := MessageTypeStatus
			if kind == monitor.EventStopped {
				msgType = MessageTypeStopped
			}
			h.Broadcast(msgType)
		}
	}
}

// Broadcast 将当前状态推送给所有客户端，发送缓冲区已满的客户端跳过本次推送
func (h *Hub) Broadcast(msgType string) {
	data, err := h.encode(msgType)
	if err != nil {
		h.logger.Error("序列化推送消息失败", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn("客户端发送队列已满，丢弃消息", zap.String("clientID", c.id))
		}
	}
}

// ClientCount 当前连接数
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS 升级为 WebSocket 连接，并立即推送一次当前状态
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	if data, err := h.encode(MessageTypeStatus); err == nil {
		c.send <- data
	}

	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.logger.Debug("WebSocket 客户端已连接", zap.String("clientID", c.id))

	go h.writePump(c)
	go h.readPump(c)
	return nil
}

func (h *Hub) encode(msgType string) ([]byte, error) {
	payload := h.presenter.Render(h.source.Status())
	return json.Marshal(Message{Type: msgType, Data: &payload})
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
}

// readPump 只处理控制帧，连接断开时注销客户端
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
		h.logger.Debug("WebSocket 客户端已断开", zap.String("clientID", c.id))
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
