package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/msageha/tradedesk/internal/events"
	"github.com/msageha/tradedesk/internal/logger"
	"github.com/msageha/tradedesk/internal/presenter"
	"github.com/msageha/tradedesk/internal/server"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve routing, analyses and history over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					logger.G(ctx).WithError(err).Warn("failed to release resources")
				}
			}()

			cfgServer := server.Config{Analyzer: a.coordinator, Version: version}
			if a.history != nil {
				cfgServer.History = a.history
			}
			handler, err := server.New(cfgServer)
			if err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return server.Serve(gctx, cfg.Server.Addr, handler)
			})
			g.Go(func() error {
				return logSessions(gctx, a.bus)
			})

			presenter.Success("listening on http://" + cfg.Server.Addr)
			presenter.Info("Press Ctrl+C to stop the server")
			if err := g.Wait(); err != nil {
				return err
			}
			presenter.Info("Server stopped")
			return nil
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	_ = viper.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

// logSessions reports finalized sessions on the console until ctx ends.
func logSessions(ctx context.Context, bus *events.Bus) error {
	finalized := make(chan events.Event, 16)
	unsubscribe := bus.Subscribe(events.EventSessionFinalized, func(e events.Event) {
		select {
		case finalized <- e:
		default:
		}
	})
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-finalized:
			logger.G(ctx).WithField("session", e.SessionID).
				WithField("report", e.Data["report"]).
				Info("analysis served")
		}
	}
}
