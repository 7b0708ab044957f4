// Package app wires the whole bot together: store, censors, pipeline,
// dispatcher, gateway, and the retention scheduler. Everything is built
// explicitly at construction time; components receive their dependencies
// through constructors.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flemzord/memerelay/internal/censor"
	"github.com/flemzord/memerelay/internal/command"
	"github.com/flemzord/memerelay/internal/config"
	"github.com/flemzord/memerelay/internal/cron"
	"github.com/flemzord/memerelay/internal/explain"
	"github.com/flemzord/memerelay/internal/gateway"
	"github.com/flemzord/memerelay/internal/relay"
	"github.com/flemzord/memerelay/internal/scoring"
	"github.com/flemzord/memerelay/internal/search"
	"github.com/flemzord/memerelay/internal/store"
	"github.com/flemzord/memerelay/internal/telegram"
)

// App owns the lifecycle of all components.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      store.Store
	scheduler  *cron.Scheduler
	gateway    *gateway.Server
	dispatcher *command.Dispatcher
}

// New builds the full component graph from validated config.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	st, err := store.Open(cfg.Storage, store.Options{
		RetentionTTL: cfg.Censor.RetentionTTL,
		AllowlistTTL: cfg.Censor.AllowlistTTL,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Censor.DisplayTimezone)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("app: load display timezone: %w", err)
	}

	bot := telegram.NewClient(cfg.Telegram.Token, cfg.Telegram.APIURL)
	judge := scoring.NewClient(cfg.Scoring, logger)

	var news explain.NewsSource
	if cfg.Search.Enabled {
		news = search.NewClient(cfg.Search)
	}
	explainer := explain.NewExplainer(bot, bot, judge, news, cfg.Scoring.Timeout, logger)

	timeCensor := censor.NewTimeCensor(st, cfg.Censor.MessageLimit, cfg.Censor.TimeHorizon, loc, logger)
	gate := censor.NewNewUserCensor(st, explainer, cfg.Censor.ScoreThreshold, logger)
	combined := censor.NewCombinedCensor(timeCensor, gate)

	pipeline := relay.NewPipeline(combined, timeCensor, censor.NewUserLocks(), bot, cfg.Telegram.ChannelID, logger)
	dispatcher := command.NewDispatcher(bot, pipeline, explainer, cfg.Telegram.ChannelID, logger)

	scheduler := cron.NewScheduler(logger)
	if err := scheduler.RegisterJob(&cron.RetentionPurgeJob{Store: st, Logger: logger}); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("app: register retention job: %w", err)
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		store:      st,
		scheduler:  scheduler,
		gateway:    gateway.NewServer(cfg.Server, cfg.Telegram, bot, dispatcher, logger),
		dispatcher: dispatcher,
	}, nil
}

// Start brings components up in dependency order.
func (a *App) Start(ctx context.Context) error {
	if err := a.scheduler.Start(); err != nil {
		return fmt.Errorf("app: start scheduler: %w", err)
	}
	if err := a.gateway.Start(ctx); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = a.scheduler.Stop(stopCtx)
		return err
	}
	return nil
}

// Stop tears components down in reverse order.
func (a *App) Stop(ctx context.Context) error {
	var firstErr error
	if err := a.gateway.Stop(ctx); err != nil {
		firstErr = err
	}
	if err := a.scheduler.Stop(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Run starts the app and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx := context.Background()
	if err := a.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	a.logger.Info("shutdown signal received", "signal", sig.String())

	stopCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Stop(stopCtx); err != nil {
		return err
	}
	a.logger.Info("shutdown complete")
	return nil
}
