package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/HerbHall/sleepcast/internal/config"
	"github.com/HerbHall/sleepcast/internal/diary"
	"github.com/HerbHall/sleepcast/internal/event"
	"github.com/HerbHall/sleepcast/internal/server"
	"github.com/HerbHall/sleepcast/internal/store"
	"github.com/HerbHall/sleepcast/internal/version"
)

// app is the wiring shared by every subcommand.
type app struct {
	v        *viper.Viper
	settings *config.Settings
	logger   *zap.Logger
	db       *store.SQLiteStore
	bus      *event.Bus
	svc      *diary.Service
}

// openApp loads configuration, opens and migrates the database and builds
// the diary service. Interactive commands pass quiet so that only warnings
// reach stderr, in console format.
func openApp(ctx context.Context, configPath string, quiet bool) (*app, error) {
	v, err := server.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if quiet {
		v.Set("logging.format", "console")
		if lvl := v.GetString("logging.level"); lvl == "info" || lvl == "" {
			v.Set("logging.level", "warn")
		}
	}

	settings, err := config.Decode(v)
	if err != nil {
		return nil, err
	}

	logger, err := config.NewLogger(v)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	if dir := filepath.Dir(settings.Database.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := store.New(settings.Database.Path)
	if err != nil {
		return nil, err
	}
	if err := db.CheckVersion(ctx, version.Version); err != nil {
		db.Close()
		return nil, err
	}

	st, err := diary.OpenStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("database initialized",
		zap.String("component", "database"),
		zap.String("path", settings.Database.Path),
	)

	bus := event.NewBus(logger.Named("event"))
	svc := diary.NewService(st, bus, settings.Predict, logger.Named("diary"))

	return &app{
		v:        v,
		settings: settings,
		logger:   logger,
		db:       db,
		bus:      bus,
		svc:      svc,
	}, nil
}

// Close releases the database and flushes the logger.
func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}
