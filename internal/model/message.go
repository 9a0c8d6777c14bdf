package model

import (
	"strings"
	"time"
)

// MessageType 消息类型
type MessageType string

const (
	MessageTypeText  MessageType = "text"  // 文本
	MessageTypeImage MessageType = "image" // 图片
)

// Image 图片描述
type Image struct {
	URL      string `json:"url"`
	PublicID string `json:"publicId"`
}

// ReplyRef 回复引用（目标消息的轻量投影，不是所有权关系）
type ReplyRef struct {
	MessageID string `json:"messageId"`
	Text      string `json:"text"`
	Sender    string `json:"sender"`
}

// Reaction 表情回应
type Reaction struct {
	UserID    string    `json:"userId"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message 消息实体
type Message struct {
	ID          string      `json:"_id"`
	ChatID      string      `json:"chatId"`
	Sender      string      `json:"sender"`
	Text        string      `json:"text,omitempty"`
	Image       *Image      `json:"image,omitempty"`
	MessageType MessageType `json:"messageType"`
	Seen        bool        `json:"seen"`
	SeenAt      *time.Time  `json:"seenAt,omitempty"`
	ReplyTo     *ReplyRef   `json:"replyTo,omitempty"`
	IsPinned    bool        `json:"isPinned"`
	PinnedAt    *time.Time  `json:"pinnedAt,omitempty"`
	PinnedBy    string      `json:"pinnedBy,omitempty"`
	Reactions   []Reaction  `json:"reactions"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Snippet 返回用于回复引用/会话列表展示的文本
func (m *Message) Snippet() string {
	if m.Text != "" {
		return m.Text
	}
	if m.Image != nil {
		return "Image"
	}
	return ""
}

// AsReply 构造指向该消息的回复引用
func (m *Message) AsReply() *ReplyRef {
	return &ReplyRef{
		MessageID: m.ID,
		Text:      m.Snippet(),
		Sender:    m.Sender,
	}
}

// Clone 深拷贝，避免调用方通过指针字段修改存储内部状态
func (m Message) Clone() Message {
	out := m
	if m.Image != nil {
		img := *m.Image
		out.Image = &img
	}
	if m.SeenAt != nil {
		t := *m.SeenAt
		out.SeenAt = &t
	}
	if m.ReplyTo != nil {
		r := *m.ReplyTo
		out.ReplyTo = &r
	}
	if m.PinnedAt != nil {
		t := *m.PinnedAt
		out.PinnedAt = &t
	}
	if m.Reactions != nil {
		out.Reactions = make([]Reaction, len(m.Reactions))
		copy(out.Reactions, m.Reactions)
	}
	return out
}

// Draft 待发送的消息草稿
type Draft struct {
	ChatID    string
	Sender    string
	Text      string
	ImagePath string // 本地图片路径，上传前仅用于占位展示
	ReplyTo   *ReplyRef
}

// HasContent 草稿是否有可发送内容，纯空白文本不算
func (d *Draft) HasContent() bool {
	return strings.TrimSpace(d.Text) != "" || d.ImagePath != ""
}
