package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"sudooom.im.client/internal/directory"
	"sudooom.im.client/internal/model"
	"sudooom.im.client/internal/push"
	"sudooom.im.client/internal/store"
)

// State 推送订阅状态
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// ChannelFactory 按登录身份创建推送通道
type ChannelFactory func(token string, user model.User) (push.Channel, error)

const emitTimeout = 5 * time.Second

// Router 实时事件路由
// 每个登录身份只持有一个推送订阅，事件按通道送达顺序写入消息存储和会话目录
type Router struct {
	store      *store.Store
	dir        *directory.Directory
	newChannel ChannelFactory
	now        func() time.Time

	mu      sync.Mutex
	state   State
	sub     *subscription
	changes chan State

	logger *slog.Logger
}

// subscription 绑定到某个身份的一次订阅
type subscription struct {
	r       *Router
	user    model.User
	channel push.Channel
	cancel  context.CancelFunc
	done    chan struct{}
}

// New 创建事件路由
func New(st *store.Store, dir *directory.Directory, factory ChannelFactory) *Router {
	return &Router{
		store:      st,
		dir:        dir,
		newChannel: factory,
		now:        time.Now,
		changes:    make(chan State, 8),
		logger:     slog.Default(),
	}
}

// State 当前状态
func (r *Router) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// StateChanges 状态变更通知，消费不及时会丢弃
func (r *Router) StateChanges() <-chan State {
	return r.changes
}

// User 当前订阅身份
func (r *Router) User() (model.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub == nil {
		return model.User{}, false
	}
	return r.sub.user, true
}

// setState 调用方必须持有锁
func (r *Router) setState(s State) {
	if r.state == s {
		return
	}
	r.state = s
	select {
	case r.changes <- s:
	default:
	}
}

// Start 以 user 身份建立订阅，进入 Connecting
// 同一身份的订阅仍在运行时不做任何事；身份变化时先关闭旧订阅
func (r *Router) Start(ctx context.Context, token string, user model.User) error {
	r.mu.Lock()
	if r.sub != nil {
		if r.sub.user.ID == user.ID && !r.sub.finished() {
			r.mu.Unlock()
			return nil
		}
		old := r.detach()
		r.mu.Unlock()
		r.logger.Info("Replacing previous subscription",
			"old_user_id", old.user.ID,
			"user_id", user.ID)
		old.close()
		r.mu.Lock()
	}
	defer r.mu.Unlock()

	if user.ID == "" {
		return errors.New("router: user id is required")
	}

	ch, err := r.newChannel(token, user)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		r:       r,
		user:    user,
		channel: ch,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	r.sub = sub
	r.setState(Connecting)

	go sub.run(runCtx)

	r.logger.Info("Router started", "user_id", user.ID)
	return nil
}

// Stop 关闭订阅并回到 Disconnected，等待通道退出
func (r *Router) Stop() {
	r.mu.Lock()
	sub := r.detach()
	r.mu.Unlock()

	if sub != nil {
		sub.close()
		r.logger.Info("Router stopped", "user_id", sub.user.ID)
	}
}

// detach 调用方必须持有锁
func (r *Router) detach() *subscription {
	sub := r.sub
	r.sub = nil
	r.setState(Disconnected)
	return sub
}

// current 判断回调是否来自当前订阅，旧身份的迟到回调一律忽略
func (r *Router) current(sub *subscription) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sub == sub
}

func (s *subscription) run(ctx context.Context) {
	defer close(s.done)

	if err := s.channel.Run(ctx, s); err != nil {
		s.r.logger.Error("Push channel stopped", "user_id", s.user.ID, "error", err)
	}

	r := s.r
	r.mu.Lock()
	if r.sub == s {
		r.setState(Disconnected)
	}
	r.mu.Unlock()
}

// finished 通道已放弃重连
func (s *subscription) finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *subscription) close() {
	s.cancel()
	if err := s.channel.Close(); err != nil {
		s.r.logger.Warn("Failed to close push channel", "error", err)
	}
	<-s.done
}

// OnConnected 握手完成后进入 Connected 并重新发送 setup
func (s *subscription) OnConnected() {
	r := s.r
	r.mu.Lock()
	if r.sub != s {
		r.mu.Unlock()
		return
	}
	r.setState(Connected)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
	defer cancel()
	if err := s.channel.Emit(ctx, model.EventSetup, s.user); err != nil {
		r.logger.Warn("Failed to emit setup", "user_id", s.user.ID, "error", err)
	}
}

// OnDisconnected 通道自行重连，这里只记录状态
func (s *subscription) OnDisconnected(err error) {
	r := s.r
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != s {
		return
	}
	r.setState(Connecting)
	r.logger.Warn("Push channel disconnected", "user_id", s.user.ID, "error", err)
}

// OnEvent 按送达顺序分发事件
func (s *subscription) OnEvent(event string, data json.RawMessage) {
	if !s.r.current(s) {
		return
	}
	s.r.Dispatch(event, data)
}

// Dispatch 将一个推送事件应用到消息存储和会话目录
// 解码失败只记录日志
func (r *Router) Dispatch(event string, data json.RawMessage) {
	var err error
	switch event {
	case model.EventNewMessage:
		err = r.onNewMessage(data)
	case model.EventMessagesSeen:
		err = r.onMessagesSeen(data)
	case model.EventMessagePinned:
		err = r.onMessagePinned(data)
	case model.EventMessageReaction:
		err = r.onMessageReaction(data)
	case model.EventOnlineUsers:
		err = r.onOnlineUsers(data)
	default:
		r.logger.Debug("Ignoring unknown event", "event", event)
		return
	}
	if err != nil {
		r.logger.Warn("Failed to handle push event", "event", event, "error", err)
	}
}

func (r *Router) onNewMessage(data json.RawMessage) error {
	var msg model.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return err
	}
	if msg.ID == "" {
		return errors.New("message without id")
	}

	r.store.ApplyInbound(msg)
	r.dir.ApplyLatest(msg, r.store.ChatID())
	return nil
}

func (r *Router) onMessagesSeen(data json.RawMessage) error {
	var ev model.MessagesSeenEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}

	if ev.ChatID == "" || ev.ChatID == r.store.ChatID() {
		r.store.MarkSeen(ev.MessageIDs, r.now())
	}
	r.dir.MarkSeen(ev)
	return nil
}

func (r *Router) onMessagePinned(data json.RawMessage) error {
	var ev model.MessagePinnedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}

	if !r.store.SetPinned(ev.MessageID, ev.IsPinned, ev.PinnedBy, r.now()) {
		// 未加载的消息不缓存也不补拉，下次打开会话时由置顶列表快照对齐
		r.logger.Debug("Pin event for unloaded message",
			"message_id", ev.MessageID,
			"is_pinned", ev.IsPinned)
	}

	if !ev.IsPinned {
		r.store.RemovePinned(ev.MessageID)
		return nil
	}
	if msg, ok := r.store.Get(ev.MessageID); ok {
		r.store.AddPinned(msg)
	}
	return nil
}

func (r *Router) onMessageReaction(data json.RawMessage) error {
	var ev model.MessageReactionEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	if ev.Reactions == nil {
		ev.Reactions = []model.Reaction{}
	}
	r.store.SetReactions(ev.MessageID, ev.Reactions)
	return nil
}

func (r *Router) onOnlineUsers(data json.RawMessage) error {
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	r.dir.SetOnline(ids)
	return nil
}
