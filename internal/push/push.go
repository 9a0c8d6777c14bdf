package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"sudooom.im.client/internal/config"
	imErrors "sudooom.im.client/internal/errors"
)

// Envelope 推送事件信封
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope 构建事件信封
func NewEnvelope(event string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: data}, nil
}

// Handler 推送通道回调，同一通道的回调按顺序在单个 goroutine 上执行
type Handler interface {
	// OnConnected 握手完成
	OnConnected()
	// OnDisconnected 连接断开，之后可能重连
	OnDisconnected(err error)
	OnEvent(event string, data json.RawMessage)
}

// Channel 推送通道
type Channel interface {
	// Run 建立连接并持续读取事件，断线按传输层策略重连
	// ctx 结束或 Close 后返回
	Run(ctx context.Context, h Handler) error
	// Emit 向服务端发送事件
	Emit(ctx context.Context, event string, payload any) error
	// Close 关闭通道，Run 随之返回
	Close() error
}

// sessionFunc 单次连接：建立连接、回调 OnConnected、读取事件直到出错
// connected 表示本次是否握手成功
type sessionFunc func(ctx context.Context, h Handler) (connected bool, err error)

// reconnectLoop 通用重连循环
// MaxReconnects < 0 表示无限重连；连续失败次数在一次成功握手后清零
func reconnectLoop(ctx context.Context, cfg config.PushConfig, done <-chan struct{}, logger *slog.Logger, transport string, h Handler, session sessionFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-done:
			cancel()
		case <-ctx.Done():
		}
	}()

	failures := 0
	for {
		connected, err := session(ctx, h)
		if connected {
			failures = 0
			h.OnDisconnected(err)
		}
		// Close 直接关闭连接时读取先于 ctx 取消失败，不算作断线
		if stopped(ctx, done) {
			return nil
		}

		failures++
		if cfg.MaxReconnects >= 0 && failures > cfg.MaxReconnects {
			logger.Error("Push channel giving up",
				"transport", transport,
				"attempts", failures,
				"error", err)
			return imErrors.ErrPushUnavailable.Wrap(err)
		}

		wait := backoff(cfg.ReconnectWait, failures)
		logger.Warn("Push channel disconnected, reconnecting",
			"transport", transport,
			"attempt", failures,
			"wait", wait,
			"error", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-done:
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func stopped(ctx context.Context, done <-chan struct{}) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}

// backoff 线性退避，最多 5 倍等待时间
func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	if attempt > 5 {
		attempt = 5
	}
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(attempt)
}
