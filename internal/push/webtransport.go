package push

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/webtransport-go"
	"sudooom.im.client/internal/config"
	imErrors "sudooom.im.client/internal/errors"
)

// WebTransportChannel 基于 WebTransport 的推送通道
// 首个双向流先发送认证帧，收到认证响应后在同一流上收发 JSON 信封
type WebTransportChannel struct {
	cfg      config.PushConfig
	token    string
	deviceID string
	dialer   *webtransport.Dialer

	mu      sync.Mutex
	stream  *webtransport.Stream
	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

// NewWebTransport 创建 WebTransport 推送通道
func NewWebTransport(cfg config.PushConfig, quicCfg config.QUICConfig, token, deviceID string) *WebTransportChannel {
	return &WebTransportChannel{
		cfg:      cfg,
		token:    token,
		deviceID: deviceID,
		dialer: &webtransport.Dialer{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: quicCfg.InsecureSkipVerify,
			},
			QUICConfig: &quic.Config{
				MaxIdleTimeout:  quicCfg.MaxIdleTimeout,
				KeepAlivePeriod: quicCfg.KeepAlivePeriod,
				EnableDatagrams: true, // WebTransport 需要启用数据报支持
			},
		},
		done:   make(chan struct{}),
		logger: slog.Default(),
	}
}

// Run 实现 Channel
func (c *WebTransportChannel) Run(ctx context.Context, h Handler) error {
	return reconnectLoop(ctx, c.cfg, c.done, c.logger, "webtransport", h, c.session)
}

func (c *WebTransportChannel) session(ctx context.Context, h Handler) (bool, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.handshakeWait())
	defer cancel()

	_, sess, err := c.dialer.Dial(dialCtx, c.cfg.URL, http.Header{})
	if err != nil {
		return false, err
	}
	defer sess.CloseWithError(0, "")

	stream, err := sess.OpenStreamSync(dialCtx)
	if err != nil {
		return false, err
	}
	defer stream.Close()

	if err := c.authenticate(stream); err != nil {
		sess.CloseWithError(4001, "auth failed")
		return false, err
	}

	c.setStream(stream)
	defer c.setStream(nil)

	c.logger.Info("Push channel connected", "transport", "webtransport", "url", c.cfg.URL)
	h.OnConnected()

	go func() {
		select {
		case <-ctx.Done():
			sess.CloseWithError(0, "client closed")
		case <-sess.Context().Done():
		}
	}()

	for {
		frameType, body, err := ReadFrame(stream)
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			return true, err
		}
		if frameType != FrameTypeResponse {
			c.logger.Debug("Ignoring frame", "frame_type", frameType)
			continue
		}

		var env Envelope
		if err := json.Unmarshal(body, &env); err != nil {
			c.logger.Warn("Failed to decode push envelope", "error", err)
			continue
		}
		if env.Event != "" {
			h.OnEvent(env.Event, env.Data)
		}
	}
}

// authenticate 发送认证帧并等待认证响应
func (c *WebTransportChannel) authenticate(stream *webtransport.Stream) error {
	body, err := json.Marshal(AuthRequest{
		Token:    c.token,
		DeviceID: c.deviceID,
		Platform: "desktop",
	})
	if err != nil {
		return err
	}

	stream.SetDeadline(time.Now().Add(c.handshakeWait()))
	defer stream.SetDeadline(time.Time{})

	if err := WriteFrame(stream, FrameTypeAuth, body); err != nil {
		return fmt.Errorf("failed to send auth frame: %w", err)
	}

	frameType, resp, err := ReadFrame(stream)
	if err != nil {
		return fmt.Errorf("failed to read auth ack: %w", err)
	}
	if frameType != FrameTypeAuthAck {
		return fmt.Errorf("unexpected frame type %d during auth", frameType)
	}

	var ack AuthAck
	if err := json.Unmarshal(resp, &ack); err != nil {
		return fmt.Errorf("failed to decode auth ack: %w", err)
	}
	if ack.Code != 0 {
		return imErrors.ErrTokenInvalid.Wrap(fmt.Errorf("auth rejected: %s", ack.Message))
	}
	return nil
}

func (c *WebTransportChannel) handshakeWait() time.Duration {
	if c.cfg.HandshakeWait > 0 {
		return c.cfg.HandshakeWait
	}
	return 10 * time.Second
}

func (c *WebTransportChannel) setStream(stream *webtransport.Stream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stream = stream
}

// Emit 实现 Channel
func (c *WebTransportChannel) Emit(ctx context.Context, event string, payload any) error {
	c.mu.Lock()
	stream := c.stream
	c.mu.Unlock()
	if stream == nil {
		return imErrors.ErrPushUnavailable
	}

	env, err := NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if d, ok := ctx.Deadline(); ok {
		stream.SetWriteDeadline(d)
		defer stream.SetWriteDeadline(time.Time{})
	}
	if err := WriteFrame(stream, FrameTypeRequest, body); err != nil {
		return imErrors.ErrPushUnavailable.Wrap(err)
	}
	return nil
}

// Close 实现 Channel
func (c *WebTransportChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}
