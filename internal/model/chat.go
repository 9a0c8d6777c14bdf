package model

import "time"

// User 用户基本信息
type User struct {
	ID     string `json:"_id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// LatestMessage 会话最新消息投影
type LatestMessage struct {
	Text   string `json:"text"`
	Sender string `json:"sender"`
}

// Chat 会话摘要
type Chat struct {
	ID               string         `json:"_id"`
	Users            []string       `json:"users"`
	ChatType         string         `json:"chatType,omitempty"` // "group" 为群聊
	GroupName        string         `json:"groupName,omitempty"`
	GroupDescription string         `json:"groupDescription,omitempty"`
	LatestMessage    *LatestMessage `json:"latestMessage,omitempty"`
	UnseenCount      int            `json:"unseenCount"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// IsGroup 是否为群聊
func (c *Chat) IsGroup() bool {
	return c.ChatType == "group"
}

// ChatSummary 侧边栏条目：会话 + 对方用户（群聊时 User 为空）
type ChatSummary struct {
	User User `json:"user"`
	Chat Chat `json:"chat"`
}

// Title 侧边栏展示名称
func (s *ChatSummary) Title() string {
	if s.Chat.IsGroup() {
		return s.Chat.GroupName
	}
	if s.User.Name != "" {
		return s.User.Name
	}
	return s.User.Email
}
