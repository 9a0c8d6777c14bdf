package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"
	"sudooom.im.client/internal/api"
	"sudooom.im.client/internal/cache"
	"sudooom.im.client/internal/composer"
	"sudooom.im.client/internal/config"
	"sudooom.im.client/internal/directory"
	imErrors "sudooom.im.client/internal/errors"
	"sudooom.im.client/internal/model"
	"sudooom.im.client/internal/push"
	"sudooom.im.client/internal/router"
	"sudooom.im.client/internal/session"
	"sudooom.im.client/internal/store"
	"sudooom.im.client/internal/workerpool"
)

// ErrSuperseded 快照返回前已切换到其他会话
var ErrSuperseded = errors.New("conversation switched before snapshot arrived")

// Option 客户端选项
type Option func(*Client)

// WithCache 启用会话列表缓存
func WithCache(c *cache.DirectoryCache) Option {
	return func(cl *Client) {
		cl.cache = c
	}
}

// WithChannelFactory 替换推送通道的创建方式
func WithChannelFactory(f router.ChannelFactory) Option {
	return func(cl *Client) {
		cl.newChannel = f
	}
}

// WithRealtime 登录后是否建立推送订阅，单次命令可以关闭
func WithRealtime(enabled bool) Option {
	return func(cl *Client) {
		cl.realtime = enabled
	}
}

// Client 一个登录会话的控制器
// 持有消息存储、会话目录、事件路由和发送管线，登出时整体销毁
type Client struct {
	cfg      *config.Config
	api      *api.Client
	sessions *session.Store
	store    *store.Store
	dir      *directory.Directory
	router   *router.Router
	composer *composer.Composer
	pool     *workerpool.Pool
	cache    *cache.DirectoryCache

	newChannel router.ChannelFactory
	realtime   bool

	mu         sync.Mutex
	rec        *session.Record
	openCancel context.CancelFunc
	channel    push.Channel

	logger *slog.Logger
}

// New 创建客户端
func New(cfg *config.Config, opts ...Option) *Client {
	c := &Client{
		cfg:      cfg,
		api:      api.New(cfg.Services, cfg.RateLimit),
		sessions: session.NewStore(cfg.Session),
		store:    store.New(),
		dir:      directory.New(""),
		pool:     workerpool.New(cfg.WorkerPool.Workers, cfg.WorkerPool.QueueSize, slog.Default()),
		realtime: true,
		logger:   slog.Default(),
	}
	c.newChannel = func(token string, user model.User) (push.Channel, error) {
		return push.New(cfg, token, user.ID)
	}
	for _, opt := range opts {
		opt(c)
	}

	c.router = router.New(c.store, c.dir, c.trackChannel(c.newChannel))
	c.composer = composer.New(c.store, c.dir, c.api, c.pool)
	c.composer.OnAuthFailure(func(err error) {
		c.handleErr(context.Background(), err)
	})
	return c
}

// trackChannel 记录当前推送通道，供健康检查读取 NATS 连接
func (c *Client) trackChannel(f router.ChannelFactory) router.ChannelFactory {
	return func(token string, user model.User) (push.Channel, error) {
		ch, err := f(token, user)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.channel = ch
		c.mu.Unlock()
		return ch, nil
	}
}

func (c *Client) Store() *store.Store             { return c.store }
func (c *Client) Directory() *directory.Directory { return c.dir }
func (c *Client) Router() *router.Router          { return c.router }
func (c *Client) Composer() *composer.Composer    { return c.composer }
func (c *Client) API() *api.Client                { return c.api }

// NATSConn 推送通道走 NATS 时的连接
func (c *Client) NATSConn() *nats.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.channel.(*push.NATSChannel); ok {
		return ch.Conn()
	}
	return nil
}

// Self 当前登录用户
func (c *Client) Self() (model.User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rec == nil {
		return model.User{}, false
	}
	return c.rec.User, true
}

func (c *Client) requireSelf() (model.User, error) {
	self, ok := c.Self()
	if !ok {
		return model.User{}, imErrors.ErrNotLoggedIn
	}
	return self, nil
}

// Close 释放资源
func (c *Client) Close() {
	c.mu.Lock()
	if c.openCancel != nil {
		c.openCancel()
		c.openCancel = nil
	}
	c.mu.Unlock()

	c.router.Stop()
	c.pool.Shutdown()
}

// handleErr 认证失败时强制登出，错误原样返回
func (c *Client) handleErr(ctx context.Context, err error) error {
	if err == nil || !imErrors.IsAuth(err) {
		return err
	}
	c.logger.Warn("Authentication failed, logging out", "error", err)
	if logoutErr := c.Logout(context.WithoutCancel(ctx)); logoutErr != nil {
		c.logger.Error("Failed to logout", "error", logoutErr)
	}
	return err
}
