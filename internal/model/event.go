package model

// 推送通道事件名
const (
	EventSetup           = "setup"
	EventNewMessage      = "newMessage"
	EventMessagesSeen    = "messagesSeen"
	EventMessagePinned   = "messagePinned"
	EventMessageReaction = "messageReaction"
	EventOnlineUsers     = "onlineUsers"
)

// MessagesSeenEvent 已读事件
type MessagesSeenEvent struct {
	ChatID     string   `json:"chatId"`
	SeenBy     string   `json:"seenBy"`
	MessageIDs []string `json:"messageIds"`
}

// MessagePinnedEvent 置顶事件
type MessagePinnedEvent struct {
	MessageID string `json:"messageId"`
	IsPinned  bool   `json:"isPinned"`
	PinnedBy  string `json:"pinnedBy,omitempty"`
}

// MessageReactionEvent 表情回应事件，reactions 为该消息的完整集合
type MessageReactionEvent struct {
	MessageID string     `json:"messageId"`
	Reactions []Reaction `json:"reactions"`
}
