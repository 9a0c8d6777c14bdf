package render

import (
	"fmt"
	"iter"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"
	"sudooom.im.client/internal/health"
	"sudooom.im.client/internal/model"
	"sudooom.im.client/internal/store"
)

var (
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#10B981") // 自己
	mutedColor     = lipgloss.Color("#9CA3AF")
	errorColor     = lipgloss.Color("#EF4444")
	pinColor       = lipgloss.Color("#F59E0B")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	mutedStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor).
			Bold(true)

	selectedItemStyle = lipgloss.NewStyle().
				Foreground(secondaryColor).
				Bold(true)

	unseenStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(primaryColor).
			Padding(0, 1)

	ownMessageStyle = lipgloss.NewStyle().
			Foreground(secondaryColor)
	otherMessageStyle = lipgloss.NewStyle().
				Foreground(primaryColor)

	pendingStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	pinStyle = lipgloss.NewStyle().
			Foreground(pinColor)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)
)

const (
	onlineMark  = "●"
	offlineMark = "○"
	pinMark     = "📌"
	defaultCols = 80
)

// TerminalWidth 标准输出宽度，非终端时返回 80
func TerminalWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return defaultCols
	}
	return w
}

// Presence 在线状态查询
type Presence interface {
	IsOnline(id string) bool
}

// Renderer 终端文本渲染
type Renderer struct {
	width int
	now   func() time.Time
}

// New 创建渲染器
func New(width int) *Renderer {
	if width <= 0 {
		width = defaultCols
	}
	return &Renderer{width: width, now: time.Now}
}

// when 相对时间
func (r *Renderer) when(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	now := r.now()
	if now.Sub(t) < time.Minute && !t.After(now) {
		return "now"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// truncate 按显示宽度截断
func (r *Renderer) truncate(s string, width int) string {
	if width <= 1 || lipgloss.Width(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes)) > width-1 {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}

// Chats 侧边栏会话列表
func (r *Renderer) Chats(chats []model.ChatSummary, presence Presence, openChatID string) string {
	if len(chats) == 0 {
		return mutedStyle.Render("No conversations yet. Start one with `zelo new-chat`.")
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Conversations"))
	b.WriteString("\n")
	for _, s := range chats {
		mark := offlineMark
		if !s.Chat.IsGroup() && presence != nil && presence.IsOnline(s.User.ID) {
			mark = onlineMark
		}

		title := s.Title()
		if s.Chat.IsGroup() {
			title = "# " + title
		}
		if s.Chat.ID == openChatID {
			title = selectedItemStyle.Render(title)
		}

		line := fmt.Sprintf("%s %s", mark, title)
		if s.Chat.UnseenCount > 0 {
			line += " " + unseenStyle.Render(humanize.Comma(int64(s.Chat.UnseenCount)))
		}
		line += "  " + mutedStyle.Render(r.when(s.Chat.UpdatedAt))
		b.WriteString(line)
		b.WriteString("\n")

		if latest := s.Chat.LatestMessage; latest != nil && latest.Text != "" {
			b.WriteString("    ")
			b.WriteString(mutedStyle.Render(r.truncate(latest.Text, r.width-4)))
			b.WriteString("\n")
		}
		b.WriteString(mutedStyle.Render("    id: " + s.Chat.ID))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// Users 可联系用户列表
func (r *Renderer) Users(users []model.User, presence Presence) string {
	if len(users) == 0 {
		return mutedStyle.Render("No users found.")
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("People"))
	b.WriteString("\n")
	for _, u := range users {
		mark := offlineMark
		if presence != nil && presence.IsOnline(u.ID) {
			mark = onlineMark
		}
		name := u.Name
		if name == "" {
			name = u.Email
		}
		fmt.Fprintf(&b, "%s %s  %s\n", mark, name, mutedStyle.Render(u.ID))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Names 用户 ID 到显示名称
type Names func(id string) string

// Conversation 当前会话：置顶、消息列表、回复提示
func (r *Renderer) Conversation(title string, entries iter.Seq[store.Entry], pinned []model.Message, selfID string, names Names, reply *model.ReplyRef) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")

	if len(pinned) > 0 {
		var p strings.Builder
		for _, m := range pinned {
			fmt.Fprintf(&p, "%s %s\n", pinMark, r.truncate(m.Snippet(), r.width-8))
		}
		b.WriteString(boxStyle.Render(strings.TrimRight(p.String(), "\n")))
		b.WriteString("\n")
	}

	count := 0
	for e := range entries {
		b.WriteString(r.message(e, selfID, names))
		b.WriteString("\n")
		count++
	}
	if count == 0 {
		b.WriteString(mutedStyle.Render("No messages yet. Say hi!"))
		b.WriteString("\n")
	}

	if reply != nil {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("↪ replying to %s: %s", name(names, reply.Sender), r.truncate(reply.Text, r.width-20))))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *Renderer) message(e store.Entry, selfID string, names Names) string {
	m := e.Message
	style := otherMessageStyle
	if m.Sender == selfID {
		style = ownMessageStyle
	}

	var b strings.Builder
	if m.ReplyTo != nil {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("  ┌ %s: %s", name(names, m.ReplyTo.Sender), r.truncate(m.ReplyTo.Text, r.width-10))))
		b.WriteString("\n")
	}

	text := m.Text
	if m.Image != nil {
		img := "[image " + m.Image.URL + "]"
		if text == "" {
			text = img
		} else {
			text = img + " " + text
		}
	}

	stamp := r.when(m.CreatedAt)
	if e.Pending() {
		stamp = pendingStyle.Render("sending…")
	} else if stamp != "" {
		stamp = mutedStyle.Render(stamp)
	}

	fmt.Fprintf(&b, "%s %s: %s", stamp, style.Render(name(names, m.Sender)), text)

	if m.IsPinned {
		b.WriteString(" " + pinStyle.Render(pinMark))
	}
	if len(m.Reactions) > 0 {
		b.WriteString(" " + reactionSummary(m.Reactions))
	}
	if m.Sender == selfID && m.Seen {
		b.WriteString(" " + mutedStyle.Render("✓✓"))
	}
	if !e.Pending() {
		b.WriteString(" " + mutedStyle.Render("("+m.ID+")"))
	}
	return b.String()
}

func name(names Names, id string) string {
	if names != nil {
		if n := names(id); n != "" {
			return n
		}
	}
	return id
}

// reactionSummary 按表情聚合，保持首次出现顺序
func reactionSummary(reactions []model.Reaction) string {
	var order []string
	counts := map[string]int{}
	for _, r := range reactions {
		if _, ok := counts[r.Emoji]; !ok {
			order = append(order, r.Emoji)
		}
		counts[r.Emoji]++
	}
	parts := make([]string, 0, len(order))
	for _, emoji := range order {
		if counts[emoji] > 1 {
			parts = append(parts, fmt.Sprintf("%s%d", emoji, counts[emoji]))
		} else {
			parts = append(parts, emoji)
		}
	}
	return strings.Join(parts, " ")
}

// Status 健康状态
func (r *Renderer) Status(s *health.Status) string {
	row := func(k, v string) string {
		return fmt.Sprintf("%-14s %s", k, v)
	}
	state := func(v string) string {
		switch v {
		case "up", "connected":
			return selectedItemStyle.Render(v)
		case "down", "disconnected":
			return errorStyle.Render(v)
		default:
			return mutedStyle.Render(v)
		}
	}

	lines := []string{
		titleStyle.Render("zelo status"),
		row("user", s.User),
		row("user service", state(s.UserService)),
		row("chat service", state(s.ChatService)),
		row("push", state(s.Push)),
		row("nats", state(s.NATS)),
		row("redis", state(s.Redis)),
	}
	if s.OpenChat != "" {
		lines = append(lines, row("open chat", fmt.Sprintf("%s (%s messages)", s.OpenChat, humanize.Comma(int64(s.Messages)))))
	}
	return strings.Join(lines, "\n")
}

// Error 错误提示
func Error(err error) string {
	return errorStyle.Render("✗ " + err.Error())
}

// Notice 普通提示
func Notice(msg string) string {
	return mutedStyle.Render(msg)
}
