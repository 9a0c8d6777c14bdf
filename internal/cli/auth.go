package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"sudooom.im.client/internal/api"
	"sudooom.im.client/internal/client"
	imErrors "sudooom.im.client/internal/errors"
	"sudooom.im.client/internal/render"
)

func (a *app) loginCmd() *cobra.Command {
	var otp string
	cmd := &cobra.Command{
		Use:   "login [email]",
		Short: "Log in with an email one-time code",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			p := a.prompter(cmd)

			var email string
			if len(args) == 1 {
				email = args[0]
			} else {
				v, err := p.Ask("Email")
				if err != nil {
					return err
				}
				email = v
			}

			c := a.newClient(ctx, false)
			defer a.closeClient(c)

			hint, err := c.Login(ctx, email)
			if err != nil {
				return err
			}
			if hint != "" {
				fmt.Fprintln(out, render.Notice(hint))
			}

			for attempt := 0; ; attempt++ {
				code := otp
				if code == "" || attempt > 0 {
					v, err := p.Secret("Verification code")
					if err != nil {
						return err
					}
					code = v
				}

				user, err := c.Verify(ctx, email, code)
				if imErrors.Is(err, imErrors.ErrInvalidOTP) && attempt < 2 {
					notice := imErrors.GetMessage(err)
					if msg := api.ServerMessage(err); msg != "" {
						notice += " (" + msg + ")"
					}
					fmt.Fprintln(out, render.Error(errors.New(notice)))
					continue
				}
				if err != nil {
					return err
				}

				// 预热目录缓存，失败不影响登录
				if err := c.RefreshDirectory(ctx); err != nil {
					a.logger.Warn("Failed to refresh conversations", "error", err)
				}
				fmt.Fprintf(out, "Logged in as %s (%s)\n", user.Name, user.ID)
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&otp, "otp", "", "one-time code (prompted when omitted)")
	return cmd
}

func (a *app) logoutCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Log out and remove the local session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, release, err := a.session(ctx, false)
			if imErrors.Is(err, imErrors.ErrNotLoggedIn) || imErrors.Is(err, imErrors.ErrTokenExpired) {
				fmt.Fprintln(cmd.OutOrStdout(), render.Notice("Not logged in."))
				return nil
			}
			if err != nil {
				return err
			}
			defer release()

			if !yes && !a.prompter(cmd).Confirm("Log out?") {
				return nil
			}
			if err := c.Logout(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip confirmation")
	return cmd
}

func (a *app) profileCmd() *cobra.Command {
	var name, avatar string
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or update your profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, release, err := a.session(ctx, false)
			if err != nil {
				return err
			}
			defer release()

			if name != "" {
				if _, err := c.UpdateName(ctx, name); err != nil {
					return err
				}
			}
			if avatar != "" {
				if _, err := c.UpdateAvatar(ctx, avatar); err != nil {
					return err
				}
			}
			return printProfile(cmd, c)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new display name")
	cmd.Flags().StringVar(&avatar, "avatar", "", "path of a new avatar image")
	return cmd
}

func printProfile(cmd *cobra.Command, c *client.Client) error {
	self, ok := c.Self()
	if !ok {
		return imErrors.ErrNotLoggedIn
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "id:     %s\n", self.ID)
	fmt.Fprintf(out, "name:   %s\n", self.Name)
	if self.Email != "" {
		fmt.Fprintf(out, "email:  %s\n", self.Email)
	}
	if self.Avatar != "" {
		fmt.Fprintf(out, "avatar: %s\n", self.Avatar)
	}
	return nil
}
