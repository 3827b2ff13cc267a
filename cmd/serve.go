// File: cmd/serve.go
package cmd

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/weifanh/classsync-cli/internal/notify"
	"github.com/weifanh/classsync-cli/internal/observability"
	"github.com/weifanh/classsync-cli/internal/server"
)

// newServeCmd creates and configures the `serve` command: the JSON control
// API plus the WebSocket progress feed, for driving the automation from the
// companion site instead of the terminal.
func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP control API and WebSocket progress feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			defer observability.Sync()

			hub := notify.NewHub(logger, originChecker(cfg.Server.AllowedOrigins))
			defer hub.Close()

			components, err := initializeAutomation(ctx, cfg, hub, logger)
			if err != nil {
				return err
			}
			defer components.Shutdown()

			apiServer := server.New(ctx, logger, cfg.Server, components.Flow, components.Resolver, hub)
			httpServer := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           apiServer.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("API server listening", zap.String("addr", cfg.Server.Addr))
				if serr := httpServer.ListenAndServe(); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
					return serr
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Info("Shutting down API server")
				components.Flow.Stop()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			})

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("Server stopped")
			return nil
		},
	}
	return serveCmd
}

// originChecker admits WebSocket upgrades from the configured origins.
// Requests without an Origin header (curl, same-host tooling) always pass,
// and an empty allow list disables the check entirely.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(allowed) == 0 {
			return true
		}
		for _, a := range allowed {
			if strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
}
