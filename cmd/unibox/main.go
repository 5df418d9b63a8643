package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/mixelka/unibox/internal/account"
	"github.com/mixelka/unibox/internal/autoreply"
	"github.com/mixelka/unibox/internal/config"
	"github.com/mixelka/unibox/internal/database"
	"github.com/mixelka/unibox/internal/inbox"
	"github.com/mixelka/unibox/internal/provider"
	"github.com/mixelka/unibox/internal/server"
	"github.com/mixelka/unibox/internal/token"
	"github.com/mixelka/unibox/internal/webhook"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting unibox")

	// Connect to database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations completed")

	// Register provider adapters
	registry := provider.NewRegistry()
	registry.Register(provider.NewGmail(provider.GmailConfig{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		RedirectURL:  cfg.GmailRedirectURL,
	}))
	registry.Register(provider.NewOutlook(provider.OutlookConfig{
		ClientID:     cfg.OutlookClientID,
		ClientSecret: cfg.OutlookClientSecret,
		RedirectURL:  cfg.OutlookRedirectURL,
	}))
	registry.Register(provider.NewLinkedIn(provider.LinkedInConfig{
		ClientID:     cfg.LinkedInClientID,
		ClientSecret: cfg.LinkedInClientSecret,
		RedirectURL:  cfg.LinkedInRedirectURL,
	}))
	registry.Register(provider.NewTwitter(provider.TwitterConfig{
		ClientID:     cfg.TwitterClientID,
		ClientSecret: cfg.TwitterClientSecret,
		RedirectURL:  cfg.TwitterRedirectURL,
	}))
	registry.Register(provider.NewWhatsApp(provider.WhatsAppConfig{
		APIURL: cfg.WhatsAppAPIURL,
	}))

	// Create components
	tokens := token.NewManager(db, registry, cfg.TokenExpiryMargin, logger)
	inboxService := inbox.NewService(db, tokens, registry, cfg, logger)
	accountService := account.NewService(db, registry, logger)
	ingestor := webhook.NewIngestor(db, logger)
	worker := autoreply.NewWorker(db, tokens, registry, cfg, logger)

	srv := server.New(server.Deps{
		Inbox:    inboxService,
		Accounts: accountService,
		Ingestor: ingestor,
		Config:   cfg,
		Logger:   logger,
	})

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		logger.Info("received shutdown signal", "signal", sig)
		logger.Info("shutting down...")
		cancel()
	}()

	// Start background auto-reply worker
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Serve HTTP until shutdown
	logger.Info("unibox is running, press Ctrl+C to stop")
	if err := srv.Start(ctx); err != nil {
		logger.Error("http server failed", "error", err)
		cancel()
	}

	wg.Wait()
	logger.Info("unibox stopped")
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
			NoColor:    false,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
