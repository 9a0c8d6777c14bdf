package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 推送通道传输方式
const (
	TransportWebSocket    = "websocket"
	TransportWebTransport = "webtransport"
	TransportNATS         = "nats"
)

type Config struct {
	Services   ServicesConfig   `mapstructure:"services"`
	Push       PushConfig       `mapstructure:"push"`
	QUIC       QUICConfig       `mapstructure:"quic"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Session    SessionConfig    `mapstructure:"session"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	WorkerPool WorkerPoolConfig `mapstructure:"worker_pool"`
	Client     ClientConfig     `mapstructure:"client"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServicesConfig 外部服务地址
type ServicesConfig struct {
	UserURL string        `mapstructure:"user_url"` // 认证/用户服务
	ChatURL string        `mapstructure:"chat_url"` // 聊天/消息服务
	Timeout time.Duration `mapstructure:"timeout"`
}

type PushConfig struct {
	Transport     string        `mapstructure:"transport"`
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"` // -1 表示无限重连
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	PingInterval  time.Duration `mapstructure:"ping_interval"`
	HandshakeWait time.Duration `mapstructure:"handshake_wait"`
}

type QUICConfig struct {
	MaxIdleTimeout     time.Duration `mapstructure:"max_idle_timeout"`
	KeepAlivePeriod    time.Duration `mapstructure:"keep_alive_period"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
}

// RedisConfig 会话列表缓存，Addr 为空时禁用
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	PoolSize int           `mapstructure:"pool_size"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// SessionConfig 登录凭证持久化（对应浏览器 cookie 的属性）
type SessionConfig struct {
	File      string        `mapstructure:"file"`
	MaxAge    time.Duration `mapstructure:"cookie_max_age"`
	Path      string        `mapstructure:"path"`
	Secure    bool          `mapstructure:"secure"`
	TokenName string        `mapstructure:"token_name"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type WorkerPoolConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

type ClientConfig struct {
	RefreshDelay time.Duration `mapstructure:"refresh_delay"` // 新建会话后刷新列表的延迟
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DefaultPath 默认配置文件路径 ~/.zelo/config.yaml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".zelo", "config.yaml")
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()

	v.SetDefault("services.user_url", "http://localhost:5000")
	v.SetDefault("services.chat_url", "http://localhost:5002")
	v.SetDefault("services.timeout", 15*time.Second)

	v.SetDefault("push.transport", TransportWebSocket)
	v.SetDefault("push.url", "ws://localhost:5002/socket")
	v.SetDefault("push.max_reconnects", -1)
	v.SetDefault("push.reconnect_wait", 2*time.Second)
	v.SetDefault("push.ping_interval", 25*time.Second)
	v.SetDefault("push.handshake_wait", 10*time.Second)

	v.SetDefault("quic.max_idle_timeout", 60*time.Second)
	v.SetDefault("quic.keep_alive_period", 20*time.Second)
	v.SetDefault("quic.insecure_skip_verify", false)

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.subject_prefix", "im.client")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 4)
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("session.file", filepath.Join(home, ".zelo", "session.yaml"))
	v.SetDefault("session.cookie_max_age", 15*24*time.Hour)
	v.SetDefault("session.path", "/")
	v.SetDefault("session.secure", false)
	v.SetDefault("session.token_name", "token")

	v.SetDefault("rate_limit.rps", 10)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("worker_pool.workers", 4)
	v.SetDefault("worker_pool.queue_size", 64)

	v.SetDefault("client.refresh_delay", 500*time.Millisecond)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Default 返回不依赖配置文件的默认配置
func Default() *Config {
	cfg, _ := load("")
	return cfg
}

// Load 从指定路径加载配置
// 路径为空时只使用默认值与环境变量；默认路径下文件不存在不视为错误
func Load(configPath string) (*Config, error) {
	return load(configPath)
}

func load(configPath string) (*Config, error) {
	// .env 只补充尚未设置的环境变量
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ZELO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			if !(errors.Is(err, os.ErrNotExist) && configPath == DefaultPath()) {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, cfg.Validate()
}

// Validate 校验配置
func (c *Config) Validate() error {
	switch c.Push.Transport {
	case TransportWebSocket, TransportWebTransport, TransportNATS:
	default:
		return errors.New("push.transport must be one of websocket, webtransport, nats")
	}
	if c.Services.UserURL == "" || c.Services.ChatURL == "" {
		return errors.New("services.user_url and services.chat_url are required")
	}
	if c.WorkerPool.Workers <= 0 {
		c.WorkerPool.Workers = 1
	}
	if c.WorkerPool.QueueSize <= 0 {
		c.WorkerPool.QueueSize = 1
	}
	return nil
}
