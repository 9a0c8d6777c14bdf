package store

import (
	"slices"

	"sudooom.im.client/internal/model"
)

// LoadPinned 用服务端快照替换置顶列表，chatID 不是当前会话时丢弃
func (s *Store) LoadPinned(chatID string, messages []model.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if chatID != s.chatID {
		return false
	}
	s.pinned = make([]model.Message, 0, len(messages))
	for _, m := range messages {
		s.pinned = append(s.pinned, m.Clone())
	}
	s.notify()
	return true
}

// AddPinned 将消息加入置顶列表，已存在时更新
func (s *Store) AddPinned(msg model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ChatID != s.chatID {
		return
	}
	i := slices.IndexFunc(s.pinned, func(m model.Message) bool { return m.ID == msg.ID })
	if i >= 0 {
		s.pinned[i] = msg.Clone()
	} else {
		s.pinned = append(s.pinned, msg.Clone())
	}
	s.notify()
}

// RemovePinned 从置顶列表移除
func (s *Store) RemovePinned(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.pinned)
	s.pinned = slices.DeleteFunc(s.pinned, func(m model.Message) bool { return m.ID == id })
	if len(s.pinned) == n {
		return false
	}
	s.notify()
	return true
}

// Pinned 置顶消息列表
func (s *Store) Pinned() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Message, 0, len(s.pinned))
	for _, m := range s.pinned {
		out = append(out, m.Clone())
	}
	return out
}
