package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	imErrors "sudooom.im.client/internal/errors"
	"sudooom.im.client/internal/model"
)

// Chats 获取会话列表
func (c *Client) Chats(ctx context.Context) ([]model.ChatSummary, error) {
	var resp struct {
		Chats []model.ChatSummary `json:"chats"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.chatURL+"/api/v1/chat/all", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Chats, nil
}

// Messages 获取会话消息，会话还没有消息（404）时返回空列表
func (c *Client) Messages(ctx context.Context, chatID string) ([]model.Message, error) {
	var resp struct {
		Messages []model.Message `json:"messages"`
	}
	err := c.doJSON(ctx, http.MethodGet, c.chatURL+"/api/v1/message/"+url.PathEscape(chatID), nil, &resp)
	if imErrors.Is(err, imErrors.ErrNotFound) {
		return []model.Message{}, nil
	}
	if err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// PinnedMessages 获取会话置顶消息
func (c *Client) PinnedMessages(ctx context.Context, chatID string) ([]model.Message, error) {
	var resp struct {
		PinnedMessages []model.Message `json:"pinnedMessages"`
	}
	err := c.doJSON(ctx, http.MethodGet, c.chatURL+"/api/v1/chat/"+url.PathEscape(chatID)+"/pinned", nil, &resp)
	if imErrors.Is(err, imErrors.ErrNotFound) {
		return []model.Message{}, nil
	}
	if err != nil {
		return nil, err
	}
	return resp.PinnedMessages, nil
}

// SendRequest 发送消息请求
type SendRequest struct {
	ChatID           string
	Text             string
	ReplyToMessageID string
	ImagePath        string
}

// SendMessage 发送消息，有回复目标时走 /message/reply
func (c *Client) SendMessage(ctx context.Context, in SendRequest) (*model.Message, error) {
	form := newForm()
	form.field("chatId", in.ChatID)
	if in.Text != "" {
		form.field("text", in.Text)
	}
	endpoint := c.chatURL + "/api/v1/message"
	if in.ReplyToMessageID != "" {
		form.field("replyToMessageId", in.ReplyToMessageID)
		endpoint = c.chatURL + "/api/v1/message/reply"
	}
	if in.ImagePath != "" {
		if err := form.file("image", in.ImagePath); err != nil {
			return nil, err
		}
	}

	var resp struct {
		Message model.Message `json:"message"`
	}
	if err := c.doForm(ctx, endpoint, form, &resp); err != nil {
		return nil, err
	}
	if resp.Message.ID == "" {
		return nil, imErrors.ErrServerError
	}
	return &resp.Message, nil
}

// TogglePin 切换置顶状态，结果通过推送事件下发
func (c *Client) TogglePin(ctx context.Context, messageID string) error {
	return c.doJSON(ctx, http.MethodPatch, c.chatURL+"/api/v1/message/"+url.PathEscape(messageID)+"/pin", nil, nil)
}

// ReactionResult 表情回应响应，服务端返回完整集合或回显消息
type ReactionResult struct {
	Reactions []model.Reaction
	Message   *model.Message
}

// Authoritative 服务端是否返回了完整的表情集合
func (r *ReactionResult) Authoritative() bool {
	return r.Reactions != nil || r.Message != nil
}

// Set 服务端返回的完整表情集合
func (r *ReactionResult) Set() []model.Reaction {
	if r.Reactions != nil {
		return r.Reactions
	}
	if r.Message != nil {
		return r.Message.Reactions
	}
	return nil
}

// React 添加/取消表情回应
func (c *Client) React(ctx context.Context, messageID, emoji string) (*ReactionResult, error) {
	var raw map[string]json.RawMessage
	err := c.doJSON(ctx, http.MethodPost, c.chatURL+"/api/v1/message/"+url.PathEscape(messageID)+"/reaction", map[string]string{
		"emoji": emoji,
	}, &raw)
	if err != nil {
		return nil, err
	}

	result := &ReactionResult{}
	if data, ok := raw["reactions"]; ok {
		if err := json.Unmarshal(data, &result.Reactions); err != nil {
			return nil, imErrors.ErrServerError.Wrap(err)
		}
		if result.Reactions == nil {
			result.Reactions = []model.Reaction{}
		}
	} else if data, ok := raw["message"]; ok {
		var m model.Message
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, imErrors.ErrServerError.Wrap(err)
		}
		result.Message = &m
	}
	return result, nil
}

// CreateChat 创建单聊，返回会话 ID
func (c *Client) CreateChat(ctx context.Context, otherUserID string) (string, error) {
	var resp struct {
		ChatID string `json:"chatId"`
	}
	err := c.doJSON(ctx, http.MethodPost, c.chatURL+"/api/v1/chat/new", map[string]string{
		"otherUserId": otherUserID,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.ChatID, nil
}

// GroupRequest 创建群聊请求
type GroupRequest struct {
	GroupName        string   `json:"groupName"`
	GroupDescription string   `json:"groupDescription"`
	UserIDs          []string `json:"userIds"`
}

// GroupResponse 创建群聊响应
type GroupResponse struct {
	Message string     `json:"message"`
	Chat    model.Chat `json:"chat"`
}

// CreateGroup 创建群聊
func (c *Client) CreateGroup(ctx context.Context, in GroupRequest) (*GroupResponse, error) {
	if in.GroupName == "" {
		return nil, imErrors.ErrGroupNameRequired
	}
	if len(in.UserIDs) == 0 {
		return nil, imErrors.ErrGroupMembersRequired
	}

	var resp GroupResponse
	if err := c.doJSON(ctx, http.MethodPost, c.chatURL+"/api/v1/chat/group", in, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
