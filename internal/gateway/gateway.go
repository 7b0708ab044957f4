// Package gateway exposes the HTTP surface: the Telegram webhook, a
// liveness probe, and Prometheus metrics. It also manages the webhook
// registration lifecycle against the Bot API.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/flemzord/memerelay/internal/config"
	"github.com/flemzord/memerelay/internal/telegram"
)

// Bot is the subset of the Bot API client the gateway needs for webhook
// lifecycle management.
type Bot interface {
	GetMe(ctx context.Context) (*telegram.User, error)
	SetWebhook(ctx context.Context, req telegram.SetWebhookRequest) error
	DeleteWebhook(ctx context.Context) error
}

// Dispatcher routes an incoming message to its command handler.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *telegram.Message) error
}

// Server is the HTTP gateway.
type Server struct {
	cfg        config.ServerConfig
	tg         config.TelegramConfig
	bot        Bot
	dispatcher Dispatcher
	logger     *slog.Logger
	server     *http.Server
}

// NewServer wires the gateway.
func NewServer(cfg config.ServerConfig, tg config.TelegramConfig, bot Bot, d Dispatcher, logger *slog.Logger) *Server {
	return &Server{
		cfg:        cfg,
		tg:         tg,
		bot:        bot,
		dispatcher: d,
		logger:     logger,
	}
}

// Start validates the bot token, registers the webhook when configured,
// and begins serving. The listener is bound synchronously so a bad bind
// address fails Start instead of a background goroutine.
func (s *Server) Start(ctx context.Context) error {
	me, err := s.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("gateway: token validation failed: %w", err)
	}
	s.logger.Info("bot authenticated", "username", me.Username, "bot_id", me.ID)

	if s.tg.WebhookURL != "" {
		err := s.bot.SetWebhook(ctx, telegram.SetWebhookRequest{
			URL:            s.tg.WebhookURL,
			SecretToken:    s.tg.WebhookSecret,
			AllowedUpdates: []string{"message"},
		})
		if err != nil {
			return fmt.Errorf("gateway: set webhook: %w", err)
		}
		s.logger.Info("webhook registered", "url", s.tg.WebhookURL)
	}

	s.server = &http.Server{
		Addr:         s.cfg.Bind,
		Handler:      s.buildRouter(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Bind)
	if err != nil {
		return fmt.Errorf("gateway: listen on %s: %w", s.cfg.Bind, err)
	}

	go func() {
		s.logger.Info("gateway listening", "addr", s.cfg.Bind)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop deregisters the webhook and shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.tg.WebhookURL != "" {
		if err := s.bot.DeleteWebhook(ctx); err != nil {
			s.logger.Warn("could not delete webhook", "error", err)
		}
	}

	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("gateway shutting down")
	return s.server.Shutdown(shutdownCtx)
}
