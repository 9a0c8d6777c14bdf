package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"sudooom.im.client/internal/router"
)

const (
	statusUp            = "up"
	statusDown          = "down"
	statusConnected     = "connected"
	statusDisconnected  = "disconnected"
	statusNotConfigured = "not configured"
)

// Status 健康状态
type Status struct {
	Service     string `json:"service"`
	User        string `json:"user,omitempty"`
	UserService string `json:"user_service"`
	ChatService string `json:"chat_service"`
	Push        string `json:"push"`
	NATS        string `json:"nats"`
	Redis       string `json:"redis"`
	OpenChat    string `json:"open_chat,omitempty"`
	Messages    int    `json:"messages"`
}

// BackendProber 后端服务探测接口
type BackendProber interface {
	PingUserService(ctx context.Context) error
	PingChatService(ctx context.Context) error
}

// PushState 推送订阅状态接口
type PushState interface {
	State() router.State
}

// MessageCounter 当前会话消息计数接口
type MessageCounter interface {
	ChatID() string
	Len() int
}

// Checker 健康检查器
type Checker struct {
	backend     BackendProber
	redisClient *redis.Client
	push        PushState
	messages    MessageCounter
	natsConn    func() *nats.Conn
	user        func() string
}

// NewChecker 创建健康检查器
func NewChecker(backend BackendProber, redisClient *redis.Client, push PushState, messages MessageCounter) *Checker {
	return &Checker{
		backend:     backend,
		redisClient: redisClient,
		push:        push,
		messages:    messages,
	}
}

// SetNATS 推送通道走 NATS 时提供连接
func (h *Checker) SetNATS(conn func() *nats.Conn) {
	h.natsConn = conn
}

// SetUser 提供当前登录用户
func (h *Checker) SetUser(user func() string) {
	h.user = user
}

// Check 执行健康检查
func (h *Checker) Check(ctx context.Context) *Status {
	status := &Status{
		Service: "zelo-client",
	}

	if h.user != nil {
		status.User = h.user()
	}

	// 检查后端
	if h.backend != nil {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()

		status.UserService = upDown(h.backend.PingUserService(probeCtx))
		status.ChatService = upDown(h.backend.PingChatService(probeCtx))
	} else {
		status.UserService = statusNotConfigured
		status.ChatService = statusNotConfigured
	}

	// 推送订阅
	if h.push != nil {
		status.Push = h.push.State().String()
	} else {
		status.Push = router.Disconnected.String()
	}

	// 检查 NATS
	if h.natsConn == nil {
		status.NATS = statusNotConfigured
	} else if nc := h.natsConn(); nc != nil && nc.IsConnected() {
		status.NATS = statusConnected
	} else {
		status.NATS = statusDisconnected
	}

	// 检查 Redis
	if h.redisClient != nil {
		redisCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()

		if err := h.redisClient.Ping(redisCtx).Err(); err == nil {
			status.Redis = statusConnected
		} else {
			status.Redis = statusDisconnected
		}
	} else {
		status.Redis = statusNotConfigured
	}

	if h.messages != nil {
		status.OpenChat = h.messages.ChatID()
		status.Messages = h.messages.Len()
	}

	return status
}

func upDown(err error) string {
	if err != nil {
		return statusDown
	}
	return statusUp
}

// Healthy 后端可达即视为健康，推送通道是尽力而为的
func (s *Status) Healthy() bool {
	return s.UserService == statusUp && s.ChatService == statusUp
}

// IsHealthy 检查是否健康
func (h *Checker) IsHealthy(ctx context.Context) bool {
	return h.Check(ctx).Healthy()
}

// ServeHTTP HTTP 健康检查端点
func (h *Checker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(status)
}
