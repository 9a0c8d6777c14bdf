package directory

import (
	"slices"
	"sync"
	"time"

	"sudooom.im.client/internal/model"
)

// Directory 会话目录：会话列表、用户列表和在线用户集合
type Directory struct {
	mu      sync.RWMutex
	selfID  string
	chats   []model.ChatSummary
	users   []model.User
	online  map[string]struct{}
	recent  map[string][]string // 每个会话最近应用过的消息 ID
	changes chan struct{}
	now     func() time.Time
}

// New 创建会话目录
func New(selfID string) *Directory {
	return &Directory{
		selfID:  selfID,
		online:  make(map[string]struct{}),
		recent:  make(map[string][]string),
		changes: make(chan struct{}, 1),
		now:     time.Now,
	}
}

// Changes 变更通知，多次变更合并为一次
func (d *Directory) Changes() <-chan struct{} {
	return d.changes
}

func (d *Directory) notify() {
	select {
	case d.changes <- struct{}{}:
	default:
	}
}

// SelfID 当前登录用户
func (d *Directory) SelfID() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selfID
}

// SetSelf 切换登录身份
func (d *Directory) SetSelf(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.selfID = id
}

// LoadChats 替换会话列表，按更新时间倒序
func (d *Directory) LoadChats(chats []model.ChatSummary) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.chats = slices.Clone(chats)
	d.sortChats()
	d.notify()
}

// LoadUsers 替换用户列表
func (d *Directory) LoadUsers(users []model.User) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.users = slices.Clone(users)
	d.notify()
}

func (d *Directory) sortChats() {
	slices.SortStableFunc(d.chats, func(a, b model.ChatSummary) int {
		return b.Chat.UpdatedAt.Compare(a.Chat.UpdatedAt)
	})
}

// Chats 会话列表快照
func (d *Directory) Chats() []model.ChatSummary {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.chats)
}

// Chat 按 ID 查询会话
func (d *Directory) Chat(id string) (model.ChatSummary, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if i := d.indexOf(id); i >= 0 {
		return d.chats[i], true
	}
	return model.ChatSummary{}, false
}

func (d *Directory) indexOf(chatID string) int {
	return slices.IndexFunc(d.chats, func(s model.ChatSummary) bool {
		return s.Chat.ID == chatID
	})
}

// Users 可联系用户（不含自己）
func (d *Directory) Users() []model.User {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]model.User, 0, len(d.users))
	for _, u := range d.users {
		if u.ID != d.selfID {
			out = append(out, u)
		}
	}
	return out
}

// User 按 ID 查询用户
func (d *Directory) User(id string) (model.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, u := range d.users {
		if u.ID == id {
			return u, true
		}
	}
	for _, s := range d.chats {
		if s.User.ID == id {
			return s.User, true
		}
	}
	return model.User{}, false
}

// recentLimit 每个会话记住的消息 ID 数
const recentLimit = 32

// ApplyLatest 新消息到达时更新会话摘要
// 会话未打开且发送者不是自己时未读数加一。会话不在列表中或消息已应用过时返回 false。
func (d *Directory) ApplyLatest(msg model.Message, openChatID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := d.indexOf(msg.ChatID)
	if i < 0 {
		return false
	}
	if msg.ID != "" {
		ids := d.recent[msg.ChatID]
		if slices.Contains(ids, msg.ID) {
			return false
		}
		if len(ids) >= recentLimit {
			ids = ids[1:]
		}
		d.recent[msg.ChatID] = append(ids, msg.ID)
	}

	chat := &d.chats[i].Chat
	chat.LatestMessage = &model.LatestMessage{
		Text:   msg.Snippet(),
		Sender: msg.Sender,
	}
	updatedAt := msg.CreatedAt
	if updatedAt.IsZero() {
		updatedAt = d.now()
	}
	if updatedAt.After(chat.UpdatedAt) {
		chat.UpdatedAt = updatedAt
	}
	if msg.ChatID != openChatID && msg.Sender != d.selfID {
		chat.UnseenCount++
	}

	d.sortChats()
	d.notify()
	return true
}

// ResetUnseen 清零会话未读数
func (d *Directory) ResetUnseen(chatID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if i := d.indexOf(chatID); i >= 0 && d.chats[i].Chat.UnseenCount != 0 {
		d.chats[i].Chat.UnseenCount = 0
		d.notify()
	}
}

// MarkSeen 自己在其他设备已读时清零未读数
func (d *Directory) MarkSeen(ev model.MessagesSeenEvent) {
	if ev.SeenBy != d.SelfID() {
		return
	}
	d.ResetUnseen(ev.ChatID)
}

// SetOnline 替换在线用户集合
func (d *Directory) SetOnline(ids []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.online = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		d.online[id] = struct{}{}
	}
	d.notify()
}

// IsOnline 用户是否在线
func (d *Directory) IsOnline(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.online[id]
	return ok
}

// OnlineCount 在线用户数
func (d *Directory) OnlineCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.online)
}

// Clear 登出时清空
func (d *Directory) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.selfID = ""
	d.chats = nil
	d.users = nil
	d.online = make(map[string]struct{})
	d.recent = make(map[string][]string)
	d.notify()
}
