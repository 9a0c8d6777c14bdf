package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sudooom.im.client/internal/config"
	imErrors "sudooom.im.client/internal/errors"
	"sudooom.im.client/internal/model"
	"sudooom.im.client/internal/push"
	"sudooom.im.client/internal/router"
)

var base = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// backend 内存版用户/聊天服务
type backend struct {
	mu        sync.Mutex
	token     string
	messages  map[string][]model.Message
	pinned    map[string][]model.Message
	chats     []model.ChatSummary
	users     []model.User
	gates     map[string]chan struct{} // 打开会话时阻塞直到关闭
	started   chan string
	reaction  gin.H
	pinCalls  []string
	newChatID string
}

func newBackend() *backend {
	return &backend{
		token:    "token-1",
		messages: map[string][]model.Message{},
		pinned:   map[string][]model.Message{},
		gates:    map[string]chan struct{}{},
		started:  make(chan string, 16),
		users: []model.User{
			{ID: "me", Name: "Me"},
			{ID: "peer", Name: "Peer"},
		},
	}
}

func (b *backend) auth(c *gin.Context) {
	b.mu.Lock()
	token := b.token
	b.mu.Unlock()
	if c.GetHeader("Authorization") != "Bearer "+token {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Please Login"})
		return
	}
	c.Next()
}

func (b *backend) router() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	r.POST("/api/v1/login", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "OTP sent to your mail"})
	})
	r.POST("/api/v1/verify", func(c *gin.Context) {
		var req struct {
			Email string `json:"email"`
			OTP   string `json:"otp"`
		}
		_ = c.ShouldBindJSON(&req)
		if req.OTP != "123456" {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid OTP"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "Welcome",
			"token":   "token-1",
			"user":    model.User{ID: "me", Name: "Me", Email: req.Email},
		})
	})

	api := r.Group("/api/v1", b.auth)
	api.GET("/chat/all", func(c *gin.Context) {
		b.mu.Lock()
		defer b.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"chats": b.chats})
	})
	api.GET("/user/all", func(c *gin.Context) {
		b.mu.Lock()
		defer b.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"users": b.users})
	})
	api.GET("/message/:id", func(c *gin.Context) {
		id := c.Param("id")
		b.started <- id

		b.mu.Lock()
		gate := b.gates[id]
		b.mu.Unlock()
		if gate != nil {
			select {
			case <-gate:
			case <-c.Request.Context().Done():
				return
			}
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		msgs, ok := b.messages[id]
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"message": "No messages"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": msgs})
	})
	api.GET("/chat/:id/pinned", func(c *gin.Context) {
		b.mu.Lock()
		defer b.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"pinnedMessages": b.pinned[c.Param("id")]})
	})
	api.POST("/message", func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"message": model.Message{
			ID:        "srv-1",
			ChatID:    c.PostForm("chatId"),
			Sender:    "me",
			Text:      c.PostForm("text"),
			Reactions: []model.Reaction{},
			CreatedAt: base.Add(time.Hour),
		}})
	})
	api.PATCH("/message/:id/pin", func(c *gin.Context) {
		b.mu.Lock()
		b.pinCalls = append(b.pinCalls, c.Param("id"))
		b.mu.Unlock()
		c.Status(http.StatusOK)
	})
	api.POST("/message/:id/reaction", func(c *gin.Context) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.reaction == nil {
			c.Status(http.StatusOK)
			return
		}
		c.JSON(http.StatusOK, b.reaction)
	})
	api.POST("/chat/new", func(c *gin.Context) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.chats = append(b.chats, model.ChatSummary{
			User: model.User{ID: "peer", Name: "Peer"},
			Chat: model.Chat{ID: b.newChatID, Users: []string{"me", "peer"}, UpdatedAt: base.Add(2 * time.Hour)},
		})
		c.JSON(http.StatusOK, gin.H{"chatId": b.newChatID})
	})
	api.POST("/chat/group", func(c *gin.Context) {
		var req struct {
			GroupName string   `json:"groupName"`
			UserIDs   []string `json:"userIds"`
		}
		_ = c.ShouldBindJSON(&req)
		b.mu.Lock()
		defer b.mu.Unlock()
		chat := model.Chat{ID: "group-1", ChatType: "group", GroupName: req.GroupName, Users: append([]string{"me"}, req.UserIDs...), UpdatedAt: base.Add(3 * time.Hour)}
		b.chats = append(b.chats, model.ChatSummary{Chat: chat})
		c.JSON(http.StatusCreated, gin.H{"message": "Group created", "chat": chat})
	})
	api.POST("/update/user", func(c *gin.Context) {
		var req struct {
			Name string `json:"name"`
		}
		_ = c.ShouldBindJSON(&req)
		b.mu.Lock()
		b.token = "token-2"
		b.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{
			"message": "Updated",
			"token":   "token-2",
			"user":    model.User{ID: "me", Name: req.Name},
		})
	})
	return r
}

type fixture struct {
	backend *backend
	cfg     *config.Config
	client  *Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := newBackend()
	srv := httptest.NewServer(b.router())
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Services.UserURL = srv.URL
	cfg.Services.ChatURL = srv.URL
	cfg.Session.File = filepath.Join(t.TempDir(), "session.yaml")
	cfg.Client.RefreshDelay = time.Millisecond
	cfg.RateLimit.RPS = 0

	c := New(cfg, WithRealtime(false))
	t.Cleanup(c.Close)
	return &fixture{backend: b, cfg: cfg, client: c}
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	_, err := f.client.Login(context.Background(), "me@example.com")
	require.NoError(t, err)
	_, err = f.client.Verify(context.Background(), "me@example.com", "123456")
	require.NoError(t, err)
}

func messageIDs(c *Client) []string {
	var out []string
	for e := range c.Store().View() {
		out = append(out, e.Message.ID)
	}
	return out
}

func TestClient_LoginPersistsSession(t *testing.T) {
	f := newFixture(t)

	_, err := f.client.Verify(context.Background(), "me@example.com", "000000")
	assert.True(t, imErrors.Is(err, imErrors.ErrInvalidOTP))

	f.login(t)
	self, ok := f.client.Self()
	require.True(t, ok)
	assert.Equal(t, "me", self.ID)
	assert.Equal(t, "me", f.client.Directory().SelfID())

	// 新进程从登录文件恢复
	other := New(f.cfg, WithRealtime(false))
	defer other.Close()
	user, err := other.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "me", user.ID)
	assert.Equal(t, "token-1", other.API().Token())
}

func TestClient_NotLoggedIn(t *testing.T) {
	f := newFixture(t)

	_, err := f.client.Resume(context.Background())
	assert.True(t, imErrors.Is(err, imErrors.ErrNotLoggedIn))
	assert.True(t, imErrors.Is(f.client.Open(context.Background(), "c1"), imErrors.ErrNotLoggedIn))
}

func TestClient_RefreshDirectory(t *testing.T) {
	f := newFixture(t)
	f.backend.chats = []model.ChatSummary{
		{User: model.User{ID: "peer"}, Chat: model.Chat{ID: "c1", UpdatedAt: base, UnseenCount: 2}},
		{User: model.User{ID: "other"}, Chat: model.Chat{ID: "c2", UpdatedAt: base.Add(time.Hour)}},
	}
	f.login(t)

	require.NoError(t, f.client.RefreshDirectory(context.Background()))
	chats := f.client.Directory().Chats()
	require.Len(t, chats, 2)
	assert.Equal(t, "c2", chats[0].Chat.ID)

	users := f.client.Directory().Users()
	require.Len(t, users, 1)
	assert.Equal(t, "peer", users[0].ID)
}

func TestClient_OpenLoadsSnapshot(t *testing.T) {
	f := newFixture(t)
	f.backend.chats = []model.ChatSummary{{Chat: model.Chat{ID: "c1", UnseenCount: 3}}}
	f.backend.messages["c1"] = []model.Message{
		{ID: "m1", ChatID: "c1", Sender: "peer", Text: "hi"},
		{ID: "m2", ChatID: "c1", Sender: "peer", Text: "there", IsPinned: true},
	}
	f.backend.pinned["c1"] = []model.Message{{ID: "m2", ChatID: "c1", IsPinned: true}}
	f.login(t)
	require.NoError(t, f.client.RefreshDirectory(context.Background()))

	require.NoError(t, f.client.Open(context.Background(), "c1"))
	assert.Equal(t, "c1", f.client.Store().ChatID())
	assert.Equal(t, []string{"m1", "m2"}, messageIDs(f.client))
	require.Len(t, f.client.Store().Pinned(), 1)

	summary, _ := f.client.Directory().Chat("c1")
	assert.Equal(t, 0, summary.Chat.UnseenCount)
}

func TestClient_OpenEmptyConversation(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	// 404 视为空会话
	require.NoError(t, f.client.Open(context.Background(), "fresh"))
	assert.Zero(t, f.client.Store().Len())
	assert.Equal(t, "fresh", f.client.Store().ChatID())
}

func TestClient_StaleFetchDiscarded(t *testing.T) {
	f := newFixture(t)
	f.backend.messages["old"] = []model.Message{{ID: "o1", ChatID: "old"}}
	f.backend.messages["new"] = []model.Message{{ID: "n1", ChatID: "new"}}
	gate := make(chan struct{})
	f.backend.gates["old"] = gate
	f.login(t)

	oldDone := make(chan error, 1)
	go func() { oldDone <- f.client.Open(context.Background(), "old") }()
	require.Equal(t, "old", <-f.backend.started)

	require.NoError(t, f.client.Open(context.Background(), "new"))
	close(gate)

	select {
	case err := <-oldDone:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(3 * time.Second):
		t.Fatal("stale open did not return")
	}

	assert.Equal(t, "new", f.client.Store().ChatID())
	assert.Equal(t, []string{"n1"}, messageIDs(f.client))
}

func TestClient_SendAndWait(t *testing.T) {
	f := newFixture(t)
	f.backend.chats = []model.ChatSummary{{Chat: model.Chat{ID: "c1"}}}
	f.backend.messages["c1"] = []model.Message{}
	f.login(t)
	require.NoError(t, f.client.RefreshDirectory(context.Background()))
	require.NoError(t, f.client.Open(context.Background(), "c1"))

	msg, err := f.client.SendAndWait(context.Background(), "hello", "")
	require.NoError(t, err)
	assert.Equal(t, "srv-1", msg.ID)
	assert.Equal(t, []string{"srv-1"}, messageIDs(f.client))

	summary, _ := f.client.Directory().Chat("c1")
	assert.Equal(t, "hello", summary.Chat.LatestMessage.Text)
}

func TestClient_ReplyRequiresLoadedMessage(t *testing.T) {
	f := newFixture(t)
	f.backend.messages["c1"] = []model.Message{{ID: "m1", ChatID: "c1", Sender: "peer", Text: "q"}}
	f.login(t)
	require.NoError(t, f.client.Open(context.Background(), "c1"))

	assert.True(t, imErrors.Is(f.client.Reply("nope"), imErrors.ErrNotFound))
	require.NoError(t, f.client.Reply("m1"))
	assert.Equal(t, "m1", f.client.Composer().Reply().MessageID)

	// 切换会话清除回复目标
	require.NoError(t, f.client.Open(context.Background(), "c2"))
	assert.Nil(t, f.client.Composer().Reply())
}

func TestClient_TogglePinNoLocalMutation(t *testing.T) {
	f := newFixture(t)
	f.backend.messages["c1"] = []model.Message{{ID: "m1", ChatID: "c1"}}
	f.login(t)
	require.NoError(t, f.client.Open(context.Background(), "c1"))

	require.NoError(t, f.client.TogglePin(context.Background(), "m1"))
	assert.Equal(t, []string{"m1"}, f.backend.pinCalls)

	m1, _ := f.client.Store().Get("m1")
	assert.False(t, m1.IsPinned)
}

func TestClient_React(t *testing.T) {
	f := newFixture(t)
	f.backend.messages["c1"] = []model.Message{{ID: "m1", ChatID: "c1", Reactions: []model.Reaction{}}}
	f.login(t)
	require.NoError(t, f.client.Open(context.Background(), "c1"))

	// 空响应：本地切换
	require.NoError(t, f.client.React(context.Background(), "m1", "👍"))
	m1, _ := f.client.Store().Get("m1")
	require.Len(t, m1.Reactions, 1)
	assert.Equal(t, "me", m1.Reactions[0].UserID)

	require.NoError(t, f.client.React(context.Background(), "m1", "👍"))
	m1, _ = f.client.Store().Get("m1")
	assert.Empty(t, m1.Reactions)

	// 服务端返回完整集合
	f.backend.reaction = gin.H{"reactions": []model.Reaction{{UserID: "peer", Emoji: "🎉"}, {UserID: "me", Emoji: "🎉"}}}
	require.NoError(t, f.client.React(context.Background(), "m1", "🎉"))
	m1, _ = f.client.Store().Get("m1")
	assert.Len(t, m1.Reactions, 2)
}

func TestClient_CreateChatRefreshesAndOpens(t *testing.T) {
	f := newFixture(t)
	f.backend.newChatID = "c-new"
	f.login(t)

	chatID, err := f.client.CreateChat(context.Background(), "peer")
	require.NoError(t, err)
	assert.Equal(t, "c-new", chatID)

	_, ok := f.client.Directory().Chat("c-new")
	assert.True(t, ok)
	assert.Equal(t, "c-new", f.client.Store().ChatID())
}

func TestClient_CreateGroup(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	_, err := f.client.CreateGroup(context.Background(), " ", "", []string{"peer"})
	assert.True(t, imErrors.Is(err, imErrors.ErrGroupNameRequired))
	_, err = f.client.CreateGroup(context.Background(), "Team", "", nil)
	assert.True(t, imErrors.Is(err, imErrors.ErrGroupMembersRequired))

	chat, err := f.client.CreateGroup(context.Background(), "Team", "all of us", []string{"peer"})
	require.NoError(t, err)
	assert.Equal(t, "group-1", chat.ID)

	summary, ok := f.client.Directory().Chat("group-1")
	require.True(t, ok)
	assert.Equal(t, "Team", summary.Title())
}

func TestClient_UpdateNameResavesToken(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	user, err := f.client.UpdateName(context.Background(), "New Name")
	require.NoError(t, err)
	assert.Equal(t, "New Name", user.Name)
	assert.Equal(t, "token-2", f.client.API().Token())

	data, err := os.ReadFile(f.cfg.Session.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), "token-2")

	// 新 Token 可继续访问
	require.NoError(t, f.client.RefreshDirectory(context.Background()))
}

func TestClient_AuthFailureForcesLogout(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	f.backend.mu.Lock()
	f.backend.token = "rotated"
	f.backend.mu.Unlock()

	err := f.client.RefreshDirectory(context.Background())
	assert.True(t, imErrors.IsAuth(err))

	_, ok := f.client.Self()
	assert.False(t, ok)
	_, statErr := os.Stat(f.cfg.Session.File)
	assert.True(t, os.IsNotExist(statErr))
}

func TestClient_SendAuthFailureForcesLogout(t *testing.T) {
	f := newFixture(t)
	f.backend.messages["c1"] = []model.Message{{ID: "m1", ChatID: "c1", Sender: "peer", Text: "hi"}}
	f.login(t)
	require.NoError(t, f.client.Open(context.Background(), "c1"))

	f.backend.mu.Lock()
	f.backend.token = "rotated"
	f.backend.mu.Unlock()

	receipt, err := f.client.Send(context.Background(), "hello", "")
	require.NoError(t, err)

	_, err = receipt.Wait(context.Background())
	assert.True(t, imErrors.IsAuth(err))

	_, ok := f.client.Self()
	assert.False(t, ok)
	assert.Empty(t, f.client.API().Token())
	_, statErr := os.Stat(f.cfg.Session.File)
	assert.True(t, os.IsNotExist(statErr))
}

func TestClient_ConcurrentOpenKeepsLastSwitch(t *testing.T) {
	f := newFixture(t)
	f.backend.messages["a"] = []model.Message{{ID: "a1", ChatID: "a"}}
	f.backend.messages["b"] = []model.Message{{ID: "b1", ChatID: "b"}, {ID: "b2", ChatID: "b"}}
	f.login(t)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-f.backend.started:
			case <-stop:
				return
			}
		}
	}()

	for i := 0; i < 50; i++ {
		errs := map[string]error{}
		var mu sync.Mutex
		var wg sync.WaitGroup
		for _, id := range []string{"a", "b"} {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				err := f.client.Open(context.Background(), id)
				mu.Lock()
				errs[id] = err
				mu.Unlock()
			}(id)
		}
		wg.Wait()

		open := f.client.Store().ChatID()
		require.Contains(t, []string{"a", "b"}, open)
		require.NoError(t, errs[open], "iteration %d", i)
		require.Equal(t, len(f.backend.messages[open]), f.client.Store().Len(), "iteration %d", i)
	}
}

func TestClient_Logout(t *testing.T) {
	f := newFixture(t)
	f.backend.messages["c1"] = []model.Message{{ID: "m1", ChatID: "c1"}}
	f.login(t)
	require.NoError(t, f.client.Open(context.Background(), "c1"))

	require.NoError(t, f.client.Logout(context.Background()))
	assert.Zero(t, f.client.Store().Len())
	assert.Empty(t, f.client.Store().ChatID())
	assert.Empty(t, f.client.API().Token())
	assert.Equal(t, router.Disconnected, f.client.Router().State())

	_, err := f.client.Resume(context.Background())
	assert.True(t, imErrors.Is(err, imErrors.ErrNotLoggedIn))
}

// idleChannel 只完成握手的推送通道
type idleChannel struct {
	closed chan struct{}
	once   sync.Once
}

func (c *idleChannel) Run(ctx context.Context, h push.Handler) error {
	h.OnConnected()
	select {
	case <-ctx.Done():
	case <-c.closed:
	}
	return nil
}

func (c *idleChannel) Emit(ctx context.Context, event string, payload any) error { return nil }

func (c *idleChannel) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func TestClient_RealtimeLifecycle(t *testing.T) {
	b := newBackend()
	srv := httptest.NewServer(b.router())
	defer srv.Close()

	cfg := config.Default()
	cfg.Services.UserURL = srv.URL
	cfg.Services.ChatURL = srv.URL
	cfg.Session.File = filepath.Join(t.TempDir(), "session.yaml")

	var identities []string
	c := New(cfg, WithChannelFactory(func(token string, user model.User) (push.Channel, error) {
		identities = append(identities, user.ID)
		return &idleChannel{closed: make(chan struct{})}, nil
	}))
	defer c.Close()

	_, err := c.Verify(context.Background(), "me@example.com", "123456")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return c.Router().State() == router.Connected
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"me"}, identities)
	assert.Nil(t, c.NATSConn())

	require.NoError(t, c.Logout(context.Background()))
	assert.Equal(t, router.Disconnected, c.Router().State())
}
