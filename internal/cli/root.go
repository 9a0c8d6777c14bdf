package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"sudooom.im.client/internal/cache"
	"sudooom.im.client/internal/client"
	"sudooom.im.client/internal/config"
	"sudooom.im.client/internal/prompt"
	"sudooom.im.client/internal/render"
)

var (
	version = "dev"
	commit  = "unknown"
)

// app 命令共享的运行时状态
type app struct {
	configPath string
	verbose    bool

	cfg        *config.Config
	logger     *slog.Logger
	clientOpts []client.Option
	redis      *redis.Client
}

// NewRootCmd 创建根命令，opts 追加到每个客户端上
func NewRootCmd(opts ...client.Option) *cobra.Command {
	a := &app{clientOpts: opts}

	root := &cobra.Command{
		Use:   "zelo",
		Short: "Terminal client for the zelo chat service",
		Long: `zelo is a terminal client for the zelo chat service.
Log in with an email one-time code, browse conversations, send messages
and follow a conversation live with the watch command.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file path (default is $HOME/.zelo/config.yaml)")

	root.AddCommand(
		a.loginCmd(),
		a.logoutCmd(),
		a.profileCmd(),
		a.chatsCmd(),
		a.openCmd(),
		a.sendCmd(),
		a.pinCmd(),
		a.reactCmd(),
		a.newChatCmd(),
		a.newGroupCmd(),
		a.statusCmd(),
		a.watchCmd(),
	)
	return root
}

// Execute 程序入口，ctx 结束时长连接命令退出
func Execute(ctx context.Context) {
	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, render.Error(err))
		os.Exit(1)
	}
}

func (a *app) init(cmd *cobra.Command) error {
	path := a.configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = cfg

	a.logger = newLogger(cfg.Logging, a.verbose, cmd.ErrOrStderr())
	slog.SetDefault(a.logger)
	return nil
}

// newLogger 日志写到 stderr，stdout 留给命令输出
func newLogger(cfg config.LoggingConfig, verbose bool, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// newClient 创建客户端，配置了 Redis 时启用会话列表缓存
func (a *app) newClient(ctx context.Context, realtime bool) *client.Client {
	opts := []client.Option{client.WithRealtime(realtime)}

	rdb, err := cache.NewClient(ctx, a.cfg.Redis)
	if err != nil {
		a.logger.Warn("Redis unavailable, cache disabled", "addr", a.cfg.Redis.Addr, "error", err)
	} else if rdb != nil {
		a.redis = rdb
		opts = append(opts, client.WithCache(cache.NewDirectoryCache(rdb, a.cfg.Redis.TTL)))
	}

	opts = append(opts, a.clientOpts...)
	return client.New(a.cfg, opts...)
}

// session 恢复登录状态，调用方负责 release
func (a *app) session(ctx context.Context, realtime bool) (*client.Client, func(), error) {
	c := a.newClient(ctx, realtime)
	release := func() { a.closeClient(c) }

	if _, err := c.Resume(ctx); err != nil {
		release()
		return nil, nil, err
	}
	return c, release, nil
}

func (a *app) closeClient(c *client.Client) {
	c.Close()
	if a.redis != nil {
		a.redis.Close()
		a.redis = nil
	}
}

func (a *app) prompter(cmd *cobra.Command) *prompt.Prompter {
	if cmd.InOrStdin() == os.Stdin {
		return prompt.New()
	}
	return prompt.NewWithIO(cmd.InOrStdin(), cmd.OutOrStdout())
}

func (a *app) renderer(cmd *cobra.Command) *render.Renderer {
	if cmd.OutOrStdout() == os.Stdout {
		return render.New(render.TerminalWidth())
	}
	return render.New(0)
}

// names 用目录里的用户解析显示名称
func names(c *client.Client) render.Names {
	return func(id string) string {
		if self, ok := c.Self(); ok && self.ID == id {
			return "me"
		}
		if u, ok := c.Directory().User(id); ok && u.Name != "" {
			return u.Name
		}
		return ""
	}
}
