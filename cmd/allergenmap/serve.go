package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"allergen-map/frontend"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(g *globals) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the interactive map and its HTTP API",
		Long: `Serve the map page, the JSON API and Prometheus metrics until interrupted.

Every browser session gets its own selection. Idle sessions expire after
server.sessionTTLMinutes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := g.services(cmd)
			if err != nil {
				return err
			}
			if addr == "" {
				addr = svc.Settings.Server.Addr
			}

			sessions := svc.NewSessions()
			defer sessions.Close()

			srv := svc.NewServer(sessions, frontend.Dist())
			if err := srv.Start(addr); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()

			svc.Logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr from settings)")
	return cmd
}
