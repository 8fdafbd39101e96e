package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/HerbHall/sleepcast/internal/diary"
	"github.com/HerbHall/sleepcast/internal/event"
	"github.com/HerbHall/sleepcast/internal/refresh"
	"github.com/HerbHall/sleepcast/internal/server"
	"github.com/HerbHall/sleepcast/internal/version"
	"github.com/HerbHall/sleepcast/internal/ws"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, websocket stream and nightly refresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	a, err := openApp(ctx, opts.configPath, false)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	logger.Info("sleepcast server starting", zap.String("version", version.Short()))
	if f := a.v.ConfigFileUsed(); f != "" {
		logger.Info("configuration loaded",
			zap.String("component", "config"),
			zap.String("source", f),
		)
	} else {
		logger.Warn("no configuration file found, using defaults",
			zap.String("component", "config"),
		)
	}

	unsubTrace := a.bus.SubscribeAll(func(_ context.Context, ev event.Event) {
		logger.Debug("event published",
			zap.String("component", "event"),
			zap.String("topic", ev.Topic),
			zap.String("source", ev.Source),
		)
	})
	defer unsubTrace()

	wsHandler := ws.NewHandler(a.bus, logger.Named("ws"), a.settings.Server.AllowedOrigins...)
	defer wsHandler.Close()

	job, err := refresh.New(a.svc, a.settings.Refresh, logger.Named("refresh"))
	if err != nil {
		return err
	}
	if err := job.Start(ctx); err != nil {
		return err
	}
	defer job.Stop()

	srv := server.New(a.settings.Server, logger.Named("server"), a.db.Ping,
		diary.NewHandler(a.svc, logger.Named("diary")),
		wsHandler,
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	addr := a.settings.Server.Addr()
	logger.Info("sleepcast server ready", zap.String("addr", addr))
	fmt.Fprintf(os.Stderr, "\n  sleepcast %s is listening on http://%s\n\n", version.Short(), addr)

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("sleepcast stopped")
	return nil
}
