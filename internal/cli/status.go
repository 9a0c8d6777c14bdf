package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"sudooom.im.client/internal/client"
	"sudooom.im.client/internal/config"
	imErrors "sudooom.im.client/internal/errors"
	"sudooom.im.client/internal/health"
)

func (a *app) statusCmd() *cobra.Command {
	var serveAddr string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check backend reachability and local state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := a.newClient(ctx, serveAddr != "")
			defer a.closeClient(c)

			if _, err := c.Resume(ctx); err != nil && !imErrors.IsAuth(err) {
				return err
			}

			checker := a.healthChecker(c)
			if serveAddr != "" {
				return serveHealth(ctx, serveAddr, checker, a)
			}

			status := checker.Check(ctx)
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}
			fmt.Fprintln(out, a.renderer(cmd).Status(status))
			return nil
		},
	}
	cmd.Flags().StringVar(&serveAddr, "serve", "", "keep the session alive and serve /health and /ready on this address")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status as JSON")
	return cmd
}

func (a *app) healthChecker(c *client.Client) *health.Checker {
	checker := health.NewChecker(c.API(), a.redis, c.Router(), c.Store())
	if a.cfg.Push.Transport == config.TransportNATS {
		checker.SetNATS(c.NATSConn)
	}
	checker.SetUser(func() string {
		if self, ok := c.Self(); ok {
			return self.ID
		}
		return ""
	})
	return checker
}

// serveHealth 健康检查 HTTP 服务，ctx 结束时关闭
func serveHealth(ctx context.Context, addr string, checker *health.Checker, a *app) error {
	mux := http.NewServeMux()
	mux.Handle("/health", checker)
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if checker.IsHealthy(r.Context()) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Not Ready"))
		}
	})

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	a.logger.Info("Health check server started", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	a.logger.Info("Health check server stopped")
	return nil
}
