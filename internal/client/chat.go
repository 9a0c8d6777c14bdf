package client

import (
	"context"
	"slices"
	"strings"
	"time"

	"sudooom.im.client/internal/api"
	"sudooom.im.client/internal/composer"
	imErrors "sudooom.im.client/internal/errors"
	"sudooom.im.client/internal/model"
)

// RefreshDirectory 拉取会话列表和用户列表
func (c *Client) RefreshDirectory(ctx context.Context) error {
	self, err := c.requireSelf()
	if err != nil {
		return err
	}

	chats, err := c.api.Chats(ctx)
	if err != nil {
		return c.handleErr(ctx, err)
	}
	users, err := c.api.Users(ctx)
	if err != nil {
		return c.handleErr(ctx, err)
	}

	c.dir.LoadChats(chats)
	c.dir.LoadUsers(users)

	if c.cache != nil {
		if err := c.cache.SaveChats(ctx, self.ID, c.dir.Chats()); err != nil {
			c.logger.Warn("Failed to cache chats", "error", err)
		}
		if err := c.cache.SaveUsers(ctx, self.ID, users); err != nil {
			c.logger.Warn("Failed to cache users", "error", err)
		}
	}
	return nil
}

// Open 切换到会话并加载消息快照
// 上一个会话仍在进行的请求会被取消，迟到的快照按会话 ID 丢弃
func (c *Client) Open(ctx context.Context, chatID string) error {
	if _, err := c.requireSelf(); err != nil {
		return err
	}
	if chatID == "" {
		return imErrors.ErrInvalidParams
	}

	// 取消上一次加载和切换存储必须一起完成，否则并发的 Open 会交错
	c.mu.Lock()
	if c.openCancel != nil {
		c.openCancel()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	c.openCancel = cancel
	c.store.Open(chatID)
	c.mu.Unlock()

	c.composer.ClearReply()
	c.dir.ResetUnseen(chatID)

	done := make(chan error, 1)
	if err := c.pool.Submit(fetchCtx, func() {
		done <- c.loadSnapshot(fetchCtx, chatID)
	}); err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// loadSnapshot 拉取消息和置顶列表
func (c *Client) loadSnapshot(ctx context.Context, chatID string) error {
	messages, err := c.api.Messages(ctx, chatID)
	if err != nil {
		if ctx.Err() != nil {
			return ErrSuperseded
		}
		c.logger.Warn("Failed to fetch messages", "chat_id", chatID, "error", err)
		return c.handleErr(ctx, err)
	}
	if !c.store.Load(chatID, messages) {
		return ErrSuperseded
	}

	pinned, err := c.api.PinnedMessages(ctx, chatID)
	if err != nil {
		if ctx.Err() != nil {
			return ErrSuperseded
		}
		c.logger.Warn("Failed to fetch pinned messages", "chat_id", chatID, "error", err)
		if imErrors.IsAuth(err) {
			return c.handleErr(ctx, err)
		}
		// 置顶列表失败不影响消息展示
		return nil
	}
	c.store.LoadPinned(chatID, pinned)

	c.logger.Debug("Conversation opened",
		"chat_id", chatID,
		"messages", len(messages),
		"pinned", len(pinned))
	return nil
}

// Send 在当前会话发送消息
func (c *Client) Send(ctx context.Context, text, imagePath string) (*composer.Receipt, error) {
	self, err := c.requireSelf()
	if err != nil {
		return nil, err
	}
	return c.composer.Send(ctx, self.ID, text, imagePath)
}

// SendAndWait 发送并等待服务端确认
// 认证失败引起的登出已在发送管线中完成
func (c *Client) SendAndWait(ctx context.Context, text, imagePath string) (*model.Message, error) {
	receipt, err := c.Send(ctx, text, imagePath)
	if err != nil {
		return nil, err
	}
	return receipt.Wait(ctx)
}

// Reply 设置回复目标，目标必须在当前会话中
func (c *Client) Reply(messageID string) error {
	msg, ok := c.store.Get(messageID)
	if !ok {
		return imErrors.ErrNotFound
	}
	c.composer.SetReply(msg)
	return nil
}

// TogglePin 切换置顶，状态通过 messagePinned 推送回来
func (c *Client) TogglePin(ctx context.Context, messageID string) error {
	if _, err := c.requireSelf(); err != nil {
		return err
	}
	return c.handleErr(ctx, c.api.TogglePin(ctx, messageID))
}

// React 切换表情回应
// 服务端返回完整集合时直接替换，否则在本地切换自己的回应
func (c *Client) React(ctx context.Context, messageID, emoji string) error {
	self, err := c.requireSelf()
	if err != nil {
		return err
	}
	if emoji == "" {
		return imErrors.ErrInvalidParams
	}

	result, err := c.api.React(ctx, messageID, emoji)
	if err != nil {
		return c.handleErr(ctx, err)
	}
	if result.Authoritative() {
		c.store.SetReactions(messageID, result.Set())
		return nil
	}

	msg, ok := c.store.Get(messageID)
	if !ok {
		return nil
	}
	c.store.SetReactions(messageID, toggleReaction(msg.Reactions, self.ID, emoji, time.Now()))
	return nil
}

func toggleReaction(reactions []model.Reaction, userID, emoji string, now time.Time) []model.Reaction {
	i := slices.IndexFunc(reactions, func(r model.Reaction) bool {
		return r.UserID == userID && r.Emoji == emoji
	})
	out := slices.Clone(reactions)
	if i >= 0 {
		return slices.Delete(out, i, i+1)
	}
	return append(out, model.Reaction{UserID: userID, Emoji: emoji, CreatedAt: now})
}

// CreateChat 创建单聊，稍后刷新会话列表并打开新会话
func (c *Client) CreateChat(ctx context.Context, otherUserID string) (string, error) {
	if _, err := c.requireSelf(); err != nil {
		return "", err
	}
	if otherUserID == "" {
		return "", imErrors.ErrInvalidParams
	}

	chatID, err := c.api.CreateChat(ctx, otherUserID)
	if err != nil {
		return "", c.handleErr(ctx, err)
	}

	timer := time.NewTimer(c.cfg.Client.RefreshDelay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return chatID, ctx.Err()
	case <-timer.C:
	}

	if err := c.RefreshDirectory(ctx); err != nil {
		return chatID, err
	}
	if err := c.Open(ctx, chatID); err != nil {
		return chatID, err
	}
	return chatID, nil
}

// CreateGroup 创建群聊并刷新会话列表
func (c *Client) CreateGroup(ctx context.Context, name, description string, userIDs []string) (*model.Chat, error) {
	if _, err := c.requireSelf(); err != nil {
		return nil, err
	}

	resp, err := c.api.CreateGroup(ctx, api.GroupRequest{
		GroupName:        strings.TrimSpace(name),
		GroupDescription: strings.TrimSpace(description),
		UserIDs:          userIDs,
	})
	if err != nil {
		return nil, c.handleErr(ctx, err)
	}

	if err := c.RefreshDirectory(ctx); err != nil {
		return &resp.Chat, err
	}
	return &resp.Chat, nil
}
