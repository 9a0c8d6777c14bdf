package session

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gopkg.in/yaml.v3"
	"sudooom.im.client/internal/config"
	imErrors "sudooom.im.client/internal/errors"
	"sudooom.im.client/internal/model"
)

// Cookie 持久化的 Token，属性与浏览器 cookie 一致
type Cookie struct {
	Name    string    `yaml:"name"`
	Value   string    `yaml:"value"`
	Path    string    `yaml:"path"`
	Expires time.Time `yaml:"expires"`
	Secure  bool      `yaml:"secure"`
}

// Expired cookie 是否过期
func (c *Cookie) Expired(now time.Time) bool {
	return !c.Expires.IsZero() && !now.Before(c.Expires)
}

// Record 本地登录状态
type Record struct {
	Token Cookie     `yaml:"token"`
	User  model.User `yaml:"user"`
}

// Store 登录状态文件存储
type Store struct {
	cfg    config.SessionConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewStore 创建登录状态存储
func NewStore(cfg config.SessionConfig) *Store {
	if cfg.TokenName == "" {
		cfg.TokenName = "token"
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	return &Store{
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default(),
	}
}

// Save 保存 Token，有效期为配置的 cookie 时长
func (s *Store) Save(token string, user model.User) (*Record, error) {
	if token == "" {
		return nil, imErrors.ErrTokenInvalid
	}

	rec := &Record{
		Token: Cookie{
			Name:    s.cfg.TokenName,
			Value:   token,
			Path:    s.cfg.Path,
			Expires: s.now().Add(s.cfg.MaxAge).UTC(),
			Secure:  s.cfg.Secure,
		},
		User: user,
	}

	data, err := yaml.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.File), 0700); err != nil {
		return nil, fmt.Errorf("failed to create session dir: %w", err)
	}
	if err := os.WriteFile(s.cfg.File, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write session file: %w", err)
	}

	s.logger.Debug("Session saved", "user_id", user.ID, "expires", rec.Token.Expires)
	return rec, nil
}

// Load 读取登录状态
// 未登录返回 ErrNotLoggedIn；cookie 或 JWT 过期时删除文件并返回 ErrTokenExpired
func (s *Store) Load() (*Record, error) {
	data, err := os.ReadFile(s.cfg.File)
	if errors.Is(err, os.ErrNotExist) {
		return nil, imErrors.ErrNotLoggedIn
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, imErrors.ErrTokenInvalid.Wrap(err)
	}
	if rec.Token.Value == "" {
		return nil, imErrors.ErrNotLoggedIn
	}

	now := s.now()
	if rec.Token.Expired(now) {
		_ = s.Clear()
		return nil, imErrors.ErrTokenExpired
	}
	if exp, err := TokenExpiry(rec.Token.Value); err == nil && !now.Before(exp) {
		_ = s.Clear()
		return nil, imErrors.ErrTokenExpired
	}

	return &rec, nil
}

// Clear 删除登录状态
func (s *Store) Clear() error {
	err := os.Remove(s.cfg.File)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// TokenExpiry 解析 Token 获取过期时间（不验证签名，签名由服务端校验）
func TokenExpiry(tokenString string) (time.Time, error) {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, &jwt.RegisteredClaims{})
	if err != nil {
		return time.Time{}, err
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.ExpiresAt == nil {
		return time.Time{}, imErrors.ErrTokenInvalid
	}

	return claims.ExpiresAt.Time, nil
}
