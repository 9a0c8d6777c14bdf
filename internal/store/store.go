package store

import (
	"iter"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"sudooom.im.client/internal/model"
)

// TempIDPrefix 占位消息 ID 前缀
const TempIDPrefix = "temp-"

// Entry 存储条目
type Entry struct {
	Key     model.Key
	Message model.Message
}

// Pending 是否为未确认的占位消息
func (e Entry) Pending() bool {
	return e.Key.IsPending()
}

// Store 当前打开会话的消息存储
// 只保存一个会话的消息，切换会话时整体清空
type Store struct {
	mu      sync.Mutex
	chatID  string
	entries []Entry
	pinned  []model.Message
	changes chan struct{}
	now     func() time.Time
	logger  *slog.Logger
}

// New 创建消息存储
func New() *Store {
	return &Store{
		changes: make(chan struct{}, 1),
		now:     time.Now,
		logger:  slog.Default(),
	}
}

// Changes 变更通知，多次变更会合并为一次
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

// notify 调用方必须持有锁
func (s *Store) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// ChatID 当前打开的会话
func (s *Store) ChatID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatID
}

// Open 切换到新会话，清空消息、占位消息和置顶列表
func (s *Store) Open(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chatID = chatID
	s.entries = nil
	s.pinned = nil
	s.notify()
}

// Load 用服务端快照替换消息列表
// chatID 与当前会话不一致时丢弃快照（过期的请求结果），返回 false。
// 同一会话内仍在发送中的占位消息保留在快照之后。
func (s *Store) Load(chatID string, messages []model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if chatID != s.chatID {
		s.logger.Debug("Discarding stale snapshot",
			"chat_id", chatID,
			"open_chat_id", s.chatID)
		return false
	}

	entries := make([]Entry, 0, len(messages)+len(s.entries))
	for _, m := range messages {
		entries = append(entries, Entry{Key: model.ConfirmedKey(m.ID), Message: m.Clone()})
	}
	for _, e := range s.entries {
		if e.Pending() {
			entries = append(entries, e)
		}
	}
	s.entries = entries
	s.notify()
	return true
}

// InsertOptimistic 追加占位消息，返回临时 ID
func (s *Store) InsertOptimistic(draft model.Draft) string {
	tempID := TempIDPrefix + uuid.NewString()
	now := s.now()

	msg := model.Message{
		ID:          tempID,
		ChatID:      draft.ChatID,
		Sender:      draft.Sender,
		Text:        draft.Text,
		MessageType: model.MessageTypeText,
		Reactions:   []model.Reaction{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if draft.ImagePath != "" {
		msg.Image = &model.Image{URL: draft.ImagePath}
		msg.MessageType = model.MessageTypeImage
	}
	if draft.ReplyTo != nil {
		reply := *draft.ReplyTo
		msg.ReplyTo = &reply
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, Entry{Key: model.PendingKey(tempID), Message: msg})
	s.notify()
	return tempID
}

// ConfirmSend 用服务端消息原地替换占位消息
// 找不到占位消息（已确认或已回滚）时不做任何修改
func (s *Store) ConfirmSend(tempID string, msg model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(model.PendingKey(tempID))
	if i < 0 {
		return false
	}

	// 推送回显先于响应到达，已有确认消息，只移除占位
	if s.indexOf(model.ConfirmedKey(msg.ID)) >= 0 {
		s.entries = slices.Delete(s.entries, i, i+1)
	} else {
		s.entries[i] = Entry{Key: model.ConfirmedKey(msg.ID), Message: msg.Clone()}
	}
	s.notify()
	return true
}

// RollbackSend 移除发送失败的占位消息
func (s *Store) RollbackSend(tempID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(model.PendingKey(tempID))
	if i < 0 {
		return false
	}
	s.entries = slices.Delete(s.entries, i, i+1)
	s.notify()
	return true
}

// ApplyInbound 追加推送来的消息，ID 已存在或不属于当前会话时忽略
func (s *Store) ApplyInbound(msg model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ChatID != s.chatID {
		return false
	}
	if s.indexOf(model.ConfirmedKey(msg.ID)) >= 0 {
		return false
	}
	s.entries = append(s.entries, Entry{Key: model.ConfirmedKey(msg.ID), Message: msg.Clone()})
	s.notify()
	return true
}

// MarkSeen 标记已读，已读消息保持原有时间，返回更新条数
func (s *Store) MarkSeen(ids []string, seenAt time.Time) int {
	if len(ids) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updated := 0
	for i := range s.entries {
		e := &s.entries[i]
		if e.Pending() || e.Message.Seen {
			continue
		}
		if _, ok := set[e.Key.ID]; !ok {
			continue
		}
		at := seenAt
		e.Message.Seen = true
		e.Message.SeenAt = &at
		updated++
	}
	if updated > 0 {
		s.notify()
	}
	return updated
}

// SetPinned 设置置顶状态，取消置顶时清空置顶时间和操作人
func (s *Store) SetPinned(id string, pinned bool, actor string, pinnedAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	s.eachConfirmed(id, func(m *model.Message) {
		applyPin(m, pinned, actor, pinnedAt)
		found = true
	})
	if found {
		s.notify()
	}
	return found
}

func applyPin(m *model.Message, pinned bool, actor string, pinnedAt time.Time) {
	m.IsPinned = pinned
	if !pinned {
		m.PinnedAt = nil
		m.PinnedBy = ""
		return
	}
	m.PinnedBy = actor
	if pinnedAt.IsZero() {
		m.PinnedAt = nil
	} else {
		at := pinnedAt
		m.PinnedAt = &at
	}
}

// SetReactions 整体替换消息的表情回应
func (s *Store) SetReactions(id string, reactions []model.Reaction) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	s.eachConfirmed(id, func(m *model.Message) {
		m.Reactions = append([]model.Reaction{}, reactions...)
		found = true
	})
	changed := found
	for i := range s.pinned {
		if s.pinned[i].ID == id {
			s.pinned[i].Reactions = append([]model.Reaction{}, reactions...)
			changed = true
		}
	}
	if changed {
		s.notify()
	}
	return found
}

// eachConfirmed 对所有匹配 ID 的已确认消息执行 fn（快照中可能有重复 ID）
func (s *Store) eachConfirmed(id string, fn func(m *model.Message)) {
	key := model.ConfirmedKey(id)
	for i := range s.entries {
		if s.entries[i].Key == key {
			fn(&s.entries[i].Message)
		}
	}
}

// indexOf 调用方必须持有锁
func (s *Store) indexOf(key model.Key) int {
	return slices.IndexFunc(s.entries, func(e Entry) bool {
		return e.Key == key
	})
}

// Get 获取已确认消息
func (s *Store) Get(id string) (model.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(model.ConfirmedKey(id)); i >= 0 {
		return s.entries[i].Message.Clone(), true
	}
	return model.Message{}, false
}

// Len 存储条目数（未去重）
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// View 去重后的消息序列，保持首次出现的顺序
// 每次遍历都基于遍历开始时的快照，可重复遍历
func (s *Store) View() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		s.mu.Lock()
		snapshot := make([]Entry, len(s.entries))
		for i, e := range s.entries {
			snapshot[i] = Entry{Key: e.Key, Message: e.Message.Clone()}
		}
		s.mu.Unlock()

		seen := make(map[model.Key]struct{}, len(snapshot))
		for _, e := range snapshot {
			if _, dup := seen[e.Key]; dup {
				continue
			}
			seen[e.Key] = struct{}{}
			if !yield(e) {
				return
			}
		}
	}
}

// Messages 收集去重后的消息
func (s *Store) Messages() []model.Message {
	var out []model.Message
	for e := range s.View() {
		out = append(out, e.Message)
	}
	return out
}
