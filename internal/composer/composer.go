package composer

import (
	"context"
	"log/slog"
	"sync"

	"sudooom.im.client/internal/api"
	"sudooom.im.client/internal/directory"
	imErrors "sudooom.im.client/internal/errors"
	"sudooom.im.client/internal/model"
	"sudooom.im.client/internal/store"
	"sudooom.im.client/internal/workerpool"
)

// Sender 消息发送接口
type Sender interface {
	SendMessage(ctx context.Context, in api.SendRequest) (*model.Message, error)
}

// Receipt 一次发送的回执
type Receipt struct {
	TempID string

	done chan struct{}
	msg  *model.Message
	err  error
}

// Done 发送完成（确认或回滚）后关闭
func (r *Receipt) Done() <-chan struct{} {
	return r.done
}

// Wait 等待发送完成
func (r *Receipt) Wait(ctx context.Context) (*model.Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
		return r.msg, r.err
	}
}

func (r *Receipt) finish(msg *model.Message, err error) {
	r.msg = msg
	r.err = err
	close(r.done)
}

// Composer 发送管线：本地占位 -> 网络请求 -> 确认或回滚
type Composer struct {
	store  *store.Store
	dir    *directory.Directory
	sender Sender
	pool   *workerpool.Pool

	mu    sync.Mutex
	reply *model.ReplyRef

	onAuthFailure func(err error)

	logger *slog.Logger
}

// New 创建发送管线
func New(st *store.Store, dir *directory.Directory, sender Sender, pool *workerpool.Pool) *Composer {
	return &Composer{
		store:  st,
		dir:    dir,
		sender: sender,
		pool:   pool,
		logger: slog.Default(),
	}
}

// OnAuthFailure 异步发送遇到认证错误时回调，在回执完成之前执行
func (c *Composer) OnAuthFailure(fn func(err error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAuthFailure = fn
}

// SetReply 设置回复目标
func (c *Composer) SetReply(target model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reply = target.AsReply()
}

// Reply 当前回复目标
func (c *Composer) Reply() *model.ReplyRef {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reply == nil {
		return nil
	}
	reply := *c.reply
	return &reply
}

// ClearReply 取消回复
func (c *Composer) ClearReply() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reply = nil
}

// Send 发送消息
// 占位消息在返回前已写入存储，网络请求在 worker pool 上异步完成。
// 成功后清除回复目标；失败时回滚占位消息并保留回复目标以便重发。
func (c *Composer) Send(ctx context.Context, senderID, text, imagePath string) (*Receipt, error) {
	draft := model.Draft{
		ChatID:    c.store.ChatID(),
		Sender:    senderID,
		Text:      text,
		ImagePath: imagePath,
	}
	if !draft.HasContent() {
		return nil, imErrors.ErrEmptyDraft
	}
	if draft.ChatID == "" {
		return nil, imErrors.ErrNoOpenChat
	}
	chatID := draft.ChatID
	draft.ReplyTo = c.Reply()
	tempID := c.store.InsertOptimistic(draft)
	receipt := &Receipt{TempID: tempID, done: make(chan struct{})}

	req := api.SendRequest{
		ChatID:    chatID,
		Text:      text,
		ImagePath: imagePath,
	}
	if draft.ReplyTo != nil {
		req.ReplyToMessageID = draft.ReplyTo.MessageID
	}

	err := c.pool.Submit(ctx, func() {
		c.deliver(ctx, receipt, req)
	})
	if err != nil {
		c.store.RollbackSend(tempID)
		return nil, imErrors.ErrSendFailed.Wrap(err)
	}
	return receipt, nil
}

func (c *Composer) deliver(ctx context.Context, receipt *Receipt, req api.SendRequest) {
	msg, err := c.sender.SendMessage(ctx, req)
	if err != nil {
		c.store.RollbackSend(receipt.TempID)
		c.logger.Warn("Failed to send message",
			"chat_id", req.ChatID,
			"temp_id", receipt.TempID,
			"error", err)
		if imErrors.IsAuth(err) {
			c.mu.Lock()
			onAuthFailure := c.onAuthFailure
			c.mu.Unlock()
			if onAuthFailure != nil {
				onAuthFailure(err)
			}
		} else {
			err = imErrors.ErrSendFailed.Wrap(err)
		}
		receipt.finish(nil, err)
		return
	}

	c.store.ConfirmSend(receipt.TempID, *msg)
	c.ClearReply()
	if c.dir != nil {
		c.dir.ApplyLatest(*msg, c.store.ChatID())
	}
	c.logger.Debug("Message sent",
		"chat_id", req.ChatID,
		"temp_id", receipt.TempID,
		"message_id", msg.ID)
	receipt.finish(msg, nil)
}
