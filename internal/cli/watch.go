package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"sudooom.im.client/internal/client"
	"sudooom.im.client/internal/render"
	"sudooom.im.client/internal/router"
)

const clearScreen = "\033[H\033[2J"

const watchHelp = "/open <chat-id>  /reply <message-id>  /cancel  /pin <message-id>  /react <message-id> <emoji>  /chats  /quit"

func (a *app) watchCmd() *cobra.Command {
	var noClear bool
	cmd := &cobra.Command{
		Use:   "watch <chat-id>",
		Short: "Follow a conversation live and send from stdin",
		Long: `Follow a conversation live. Each line typed is sent as a message.
Commands: ` + watchHelp,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, release, err := a.session(ctx, true)
			if err != nil {
				return err
			}
			defer release()

			if err := openChat(ctx, c, args[0]); err != nil {
				return err
			}

			w := &watcher{
				c:      c,
				r:      a.renderer(cmd),
				out:    cmd.OutOrStdout(),
				clear:  !noClear,
				errs:   make(chan error, 8),
				notice: "Type a message and press enter. " + watchHelp,
			}
			return w.run(ctx, cmd.InOrStdin())
		},
	}
	cmd.Flags().BoolVar(&noClear, "no-clear", false, "append frames instead of clearing the screen")
	return cmd
}

// watcher 实时会话视图：状态变化时重绘，标准输入逐行发送
type watcher struct {
	c      *client.Client
	r      *render.Renderer
	out    io.Writer
	clear  bool
	errs   chan error
	notice string
}

func (w *watcher) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	store := w.c.Store()
	dir := w.c.Directory()
	states := w.c.Router().StateChanges()

	w.draw()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-store.Changes():
		case <-dir.Changes():
		case <-states:
		case err := <-w.errs:
			w.notice = render.Error(err)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := w.handle(ctx, strings.TrimSpace(line))
			if err != nil {
				w.notice = render.Error(err)
			}
			if quit {
				return nil
			}
		}
		w.draw()
	}
}

// handle 处理一行输入，返回是否退出
func (w *watcher) handle(ctx context.Context, line string) (bool, error) {
	if line == "" {
		return false, nil
	}
	w.notice = ""

	if !strings.HasPrefix(line, "/") {
		receipt, err := w.c.Send(ctx, line, "")
		if err != nil {
			return false, err
		}
		go func() {
			if _, err := receipt.Wait(ctx); err != nil && ctx.Err() == nil {
				select {
				case w.errs <- err:
				default:
				}
			}
		}()
		return false, nil
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/q":
		return true, nil
	case "/open":
		if len(fields) != 2 {
			return false, errors.New("usage: /open <chat-id>")
		}
		return false, w.c.Open(ctx, fields[1])
	case "/reply":
		if len(fields) != 2 {
			return false, errors.New("usage: /reply <message-id>")
		}
		return false, w.c.Reply(fields[1])
	case "/cancel":
		w.c.Composer().ClearReply()
		return false, nil
	case "/pin":
		if len(fields) != 2 {
			return false, errors.New("usage: /pin <message-id>")
		}
		return false, w.c.TogglePin(ctx, fields[1])
	case "/react":
		if len(fields) != 3 {
			return false, errors.New("usage: /react <message-id> <emoji>")
		}
		return false, w.c.React(ctx, fields[1], fields[2])
	case "/chats":
		w.notice = w.r.Chats(w.c.Directory().Chats(), w.c.Directory(), w.c.Store().ChatID())
		return false, nil
	default:
		return false, fmt.Errorf("unknown command %s (%s)", fields[0], watchHelp)
	}
}

func (w *watcher) draw() {
	var b strings.Builder
	if w.clear {
		b.WriteString(clearScreen)
	}
	b.WriteString(conversation(w.r, w.c))
	b.WriteString("\n\n")

	state := w.c.Router().State()
	line := fmt.Sprintf("live: %s  online: %d", state, w.c.Directory().OnlineCount())
	if state == router.Connected {
		b.WriteString(render.Notice(line))
	} else {
		b.WriteString(render.Error(errors.New(line)))
	}
	b.WriteString("\n")
	if w.notice != "" {
		b.WriteString(w.notice)
		b.WriteString("\n")
	}
	fmt.Fprint(w.out, b.String())
}
