package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
	"sudooom.im.client/internal/config"
	imErrors "sudooom.im.client/internal/errors"
)

// HeaderUserID 上行消息携带的用户 ID 头
const HeaderUserID = "X-User-Id"

type natsNotice struct {
	connected bool
	err       error
}

// NATSChannel 通过 NATS 网关接收推送
// 下行主题 {prefix}.{userId}.events，上行主题 {prefix}.upstream
type NATSChannel struct {
	cfg    config.NATSConfig
	userID string

	mu   sync.Mutex
	conn *nats.Conn

	notices   chan natsNotice
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

// NewNATS 创建 NATS 推送通道
func NewNATS(cfg config.NATSConfig, userID string) *NATSChannel {
	return &NATSChannel{
		cfg:     cfg,
		userID:  userID,
		notices: make(chan natsNotice, 16),
		done:    make(chan struct{}),
		logger:  slog.Default(),
	}
}

// EventsSubject 下行事件主题
func EventsSubject(prefix, userID string) string {
	return fmt.Sprintf("%s.%s.events", prefix, userID)
}

// UpstreamSubject 上行事件主题
func UpstreamSubject(prefix string) string {
	return prefix + ".upstream"
}

func (c *NATSChannel) notify(n natsNotice) {
	select {
	case c.notices <- n:
	default:
		c.logger.Warn("Dropping NATS connection notice", "connected", n.connected)
	}
}

// Run 实现 Channel
// 重连由 NATS 客户端负责，回调统一转回 Run 所在 goroutine 顺序执行
func (c *NATSChannel) Run(ctx context.Context, h Handler) error {
	closed := make(chan struct{})
	opts := []nats.Option{
		nats.Name("zelo-client-" + c.userID),
		nats.MaxReconnects(c.cfg.MaxReconnects),
		nats.ReconnectWait(c.cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			c.notify(natsNotice{connected: false, err: err})
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.notify(natsNotice{connected: true})
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			close(closed)
		}),
	}

	conn, err := nats.Connect(c.cfg.URL, opts...)
	if err != nil {
		return imErrors.ErrPushUnavailable.Wrap(err)
	}
	defer conn.Close()

	msgs := make(chan *nats.Msg, 256)
	sub, err := conn.ChanSubscribe(EventsSubject(c.cfg.SubjectPrefix, c.userID), msgs)
	if err != nil {
		return imErrors.ErrPushUnavailable.Wrap(err)
	}
	defer sub.Unsubscribe()
	if err := conn.Flush(); err != nil {
		return imErrors.ErrPushUnavailable.Wrap(err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	c.logger.Info("Push channel connected", "transport", "nats", "url", c.cfg.URL, "user_id", c.userID)
	h.OnConnected()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case <-closed:
			c.logger.Error("NATS connection closed", "error", conn.LastError())
			return imErrors.ErrPushUnavailable.Wrap(conn.LastError())
		case n := <-c.notices:
			if n.connected {
				c.logger.Info("NATS reconnected", "url", conn.ConnectedUrl())
				h.OnConnected()
			} else {
				c.logger.Warn("NATS disconnected", "error", n.err)
				h.OnDisconnected(n.err)
			}
		case msg := <-msgs:
			var env Envelope
			if err := json.Unmarshal(msg.Data, &env); err != nil {
				c.logger.Warn("Failed to decode push envelope", "subject", msg.Subject, "error", err)
				continue
			}
			if env.Event != "" {
				h.OnEvent(env.Event, env.Data)
			}
		}
	}
}

// Conn 当前 NATS 连接，未连接时为 nil
func (c *NATSChannel) Conn() *nats.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Emit 实现 Channel
func (c *NATSChannel) Emit(ctx context.Context, event string, payload any) error {
	conn := c.Conn()
	if conn == nil || !conn.IsConnected() {
		return imErrors.ErrPushUnavailable
	}

	env, err := NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	msg := nats.NewMsg(UpstreamSubject(c.cfg.SubjectPrefix))
	msg.Header.Set(HeaderUserID, c.userID)
	msg.Data = data
	if err := conn.PublishMsg(msg); err != nil {
		return imErrors.ErrPushUnavailable.Wrap(err)
	}
	return nil
}

// Close 实现 Channel
func (c *NATSChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}
