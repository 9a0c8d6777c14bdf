package client

import (
	"context"
	"strings"

	imErrors "sudooom.im.client/internal/errors"
	"sudooom.im.client/internal/model"
	"sudooom.im.client/internal/session"
)

// Login 请求验证码，返回服务端提示
func (c *Client) Login(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", imErrors.ErrInvalidParams
	}
	return c.api.Login(ctx, email)
}

// Verify 校验验证码，保存登录状态并开始会话
func (c *Client) Verify(ctx context.Context, email, otp string) (*model.User, error) {
	resp, err := c.api.Verify(ctx, strings.TrimSpace(email), strings.TrimSpace(otp))
	if err != nil {
		if imErrors.Is(err, imErrors.ErrInvalidParams) || imErrors.Is(err, imErrors.ErrTokenInvalid) {
			return nil, imErrors.ErrInvalidOTP.Wrap(err)
		}
		return nil, err
	}

	rec, err := c.sessions.Save(resp.Token, resp.User)
	if err != nil {
		return nil, err
	}
	c.begin(ctx, rec)

	c.logger.Info("Logged in", "user_id", resp.User.ID)
	return &resp.User, nil
}

// Resume 从本地登录状态恢复会话
func (c *Client) Resume(ctx context.Context) (*model.User, error) {
	rec, err := c.sessions.Load()
	if err != nil {
		return nil, err
	}
	c.begin(ctx, rec)
	return &rec.User, nil
}

// begin 身份可用：设置 Token、预热会话列表、建立推送订阅
func (c *Client) begin(ctx context.Context, rec *session.Record) {
	c.mu.Lock()
	c.rec = rec
	c.mu.Unlock()

	c.api.SetToken(rec.Token.Value)
	c.dir.SetSelf(rec.User.ID)
	c.warmStart(ctx, rec.User.ID)

	if !c.realtime {
		return
	}
	if err := c.router.Start(context.WithoutCancel(ctx), rec.Token.Value, rec.User); err != nil {
		// 推送通道是尽力而为的，失败不影响其余功能
		c.logger.Warn("Failed to start push router", "user_id", rec.User.ID, "error", err)
	}
}

// warmStart 用缓存先填充会话列表
func (c *Client) warmStart(ctx context.Context, userID string) {
	if c.cache == nil {
		return
	}
	chats, err := c.cache.LoadChats(ctx, userID)
	if err != nil {
		c.logger.Warn("Failed to load cached chats", "error", err)
		return
	}
	if len(chats) > 0 {
		c.dir.LoadChats(chats)
	}
	users, err := c.cache.LoadUsers(ctx, userID)
	if err != nil {
		c.logger.Warn("Failed to load cached users", "error", err)
		return
	}
	if len(users) > 0 {
		c.dir.LoadUsers(users)
	}
}

// UpdateName 修改昵称，服务端返回的新 Token 写回本地
func (c *Client) UpdateName(ctx context.Context, name string) (*model.User, error) {
	if _, err := c.requireSelf(); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, imErrors.ErrInvalidParams
	}

	resp, err := c.api.UpdateName(ctx, name)
	if err != nil {
		return nil, c.handleErr(ctx, err)
	}
	return c.resave(resp.Token, resp.User)
}

// UpdateAvatar 上传头像
func (c *Client) UpdateAvatar(ctx context.Context, path string) (*model.User, error) {
	if _, err := c.requireSelf(); err != nil {
		return nil, err
	}

	resp, err := c.api.UpdateAvatar(ctx, path)
	if err != nil {
		return nil, c.handleErr(ctx, err)
	}
	return c.resave(resp.Token, resp.User)
}

func (c *Client) resave(token string, user model.User) (*model.User, error) {
	if token == "" {
		// 没有新 Token 时沿用当前的
		token = c.api.Token()
	}
	rec, err := c.sessions.Save(token, user)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.rec = rec
	c.mu.Unlock()
	c.api.SetToken(token)
	return &rec.User, nil
}

// Logout 关闭推送订阅，清空本地状态并删除登录文件
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	rec := c.rec
	c.rec = nil
	if c.openCancel != nil {
		c.openCancel()
		c.openCancel = nil
	}
	c.mu.Unlock()

	c.router.Stop()
	c.store.Open("")
	c.composer.ClearReply()
	c.dir.Clear()
	c.api.SetToken("")

	if c.cache != nil && rec != nil {
		if err := c.cache.Clear(ctx, rec.User.ID); err != nil {
			c.logger.Warn("Failed to clear cache", "error", err)
		}
	}
	if err := c.sessions.Clear(); err != nil {
		return err
	}

	if rec != nil {
		c.logger.Info("Logged out", "user_id", rec.User.ID)
	}
	return nil
}
