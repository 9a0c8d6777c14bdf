package push

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"sudooom.im.client/internal/config"
	imErrors "sudooom.im.client/internal/errors"
)

const writeWait = 10 * time.Second

// WebSocketChannel 基于 WebSocket 的推送通道，消息为 JSON 信封
type WebSocketChannel struct {
	cfg    config.PushConfig
	token  string
	dialer *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

// NewWebSocket 创建 WebSocket 推送通道
func NewWebSocket(cfg config.PushConfig, token string) *WebSocketChannel {
	handshake := cfg.HandshakeWait
	if handshake <= 0 {
		handshake = 10 * time.Second
	}
	return &WebSocketChannel{
		cfg:   cfg,
		token: token,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshake,
		},
		done:   make(chan struct{}),
		logger: slog.Default(),
	}
}

// Run 实现 Channel
func (c *WebSocketChannel) Run(ctx context.Context, h Handler) error {
	return reconnectLoop(ctx, c.cfg, c.done, c.logger, "websocket", h, c.session)
}

func (c *WebSocketChannel) session(ctx context.Context, h Handler) (bool, error) {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	c.setConn(conn)
	defer c.setConn(nil)

	c.logger.Info("Push channel connected", "transport", "websocket", "url", c.cfg.URL)
	h.OnConnected()

	stop := make(chan struct{})
	defer close(stop)
	go c.pingLoop(ctx, conn, stop)

	pongWait := c.pongWait()
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return true, err
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		if env.Event == "" {
			continue
		}
		h.OnEvent(env.Event, env.Data)
	}
}

func (c *WebSocketChannel) pongWait() time.Duration {
	ping := c.cfg.PingInterval
	if ping <= 0 {
		ping = 25 * time.Second
	}
	return ping * 2
}

// pingLoop 定时发送 ping，ctx 结束时关闭连接以打断读取
func (c *WebSocketChannel) pingLoop(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	interval := c.cfg.PingInterval
	if interval <= 0 {
		interval = 25 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("Failed to send ping", "error", err)
				conn.Close()
				return
			}
		}
	}
}

func (c *WebSocketChannel) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

func (c *WebSocketChannel) currentConn() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Emit 实现 Channel
func (c *WebSocketChannel) Emit(ctx context.Context, event string, payload any) error {
	conn := c.currentConn()
	if conn == nil {
		return imErrors.ErrPushUnavailable
	}

	env, err := NewEnvelope(event, payload)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(env); err != nil {
		return imErrors.ErrPushUnavailable.Wrap(err)
	}
	return nil
}

// Close 实现 Channel
func (c *WebSocketChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	if conn := c.currentConn(); conn != nil {
		return conn.Close()
	}
	return nil
}
