package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"sudooom.im.client/internal/client"
	"sudooom.im.client/internal/render"
)

func (a *app) chatsCmd() *cobra.Command {
	var withUsers bool
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, release, err := a.session(ctx, false)
			if err != nil {
				return err
			}
			defer release()

			if err := c.RefreshDirectory(ctx); err != nil {
				return err
			}

			r := a.renderer(cmd)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, r.Chats(c.Directory().Chats(), c.Directory(), ""))
			if withUsers {
				fmt.Fprintln(out)
				fmt.Fprintln(out, r.Users(c.Directory().Users(), c.Directory()))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&withUsers, "users", "u", false, "also list people you can message")
	return cmd
}

func (a *app) openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <chat-id>",
		Short: "Show a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, release, err := a.session(ctx, false)
			if err != nil {
				return err
			}
			defer release()

			if err := openChat(ctx, c, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), conversation(a.renderer(cmd), c))
			return nil
		},
	}
}

func (a *app) sendCmd() *cobra.Command {
	var replyTo, image string
	cmd := &cobra.Command{
		Use:   "send <chat-id> [text...]",
		Short: "Send a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, release, err := a.session(ctx, false)
			if err != nil {
				return err
			}
			defer release()

			if err := openChat(ctx, c, args[0]); err != nil {
				return err
			}
			if replyTo != "" {
				if err := c.Reply(replyTo); err != nil {
					return fmt.Errorf("reply target %s: %w", replyTo, err)
				}
			}

			msg, err := c.SendAndWait(ctx, strings.Join(args[1:], " "), image)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent %s\n", msg.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&replyTo, "reply", "r", "", "id of the message to reply to")
	cmd.Flags().StringVarP(&image, "image", "i", "", "path of an image to attach")
	return cmd
}

func (a *app) pinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pin <message-id>",
		Short: "Pin or unpin a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, release, err := a.session(ctx, false)
			if err != nil {
				return err
			}
			defer release()

			if err := c.TogglePin(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Toggled pin on %s\n", args[0])
			return nil
		},
	}
}

func (a *app) reactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "react <chat-id> <message-id> <emoji>",
		Short: "Toggle a reaction on a message",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, release, err := a.session(ctx, false)
			if err != nil {
				return err
			}
			defer release()

			if err := openChat(ctx, c, args[0]); err != nil {
				return err
			}
			if err := c.React(ctx, args[1], args[2]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), conversation(a.renderer(cmd), c))
			return nil
		},
	}
}

func (a *app) newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new-chat <user-id>",
		Short: "Start a direct conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, release, err := a.session(ctx, false)
			if err != nil {
				return err
			}
			defer release()

			chatID, err := c.CreateChat(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Opened chat %s\n", chatID)
			fmt.Fprintln(cmd.OutOrStdout(), conversation(a.renderer(cmd), c))
			return nil
		},
	}
}

func (a *app) newGroupCmd() *cobra.Command {
	var name, description string
	cmd := &cobra.Command{
		Use:   "new-group <user-id>...",
		Short: "Create a group conversation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, release, err := a.session(ctx, false)
			if err != nil {
				return err
			}
			defer release()

			chat, err := c.CreateGroup(ctx, name, description, args)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created group %s (%s)\n", chat.GroupName, chat.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "group name")
	cmd.Flags().StringVarP(&description, "description", "d", "", "group description")
	return cmd
}

// openChat 刷新目录后打开会话，目录用于解析标题和用户名
func openChat(ctx context.Context, c *client.Client, chatID string) error {
	if err := c.RefreshDirectory(ctx); err != nil {
		return err
	}
	return c.Open(ctx, chatID)
}

func conversation(r *render.Renderer, c *client.Client) string {
	chatID := c.Store().ChatID()
	title := chatID
	if s, ok := c.Directory().Chat(chatID); ok {
		if t := s.Title(); t != "" {
			title = t
		}
	}
	self, _ := c.Self()
	return r.Conversation(title, c.Store().View(), c.Store().Pinned(), self.ID, names(c), c.Composer().Reply())
}
