package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/diasbot/insta-consultant/internal/bot"
	"github.com/diasbot/insta-consultant/internal/completion"
	"github.com/diasbot/insta-consultant/internal/httpserver"
	"github.com/diasbot/insta-consultant/internal/instagram"
	"github.com/diasbot/insta-consultant/internal/notify"
	"github.com/diasbot/insta-consultant/internal/storage"
	"github.com/diasbot/insta-consultant/pkg/config"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	// Initialize lead storage
	var store storage.LeadStorage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory lead storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL lead storage")
		dbConfig := storage.DatabaseConfig{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			DBName:      cfg.Database.DBName,
			SSLMode:     cfg.Database.SSLMode,
			UseInMemory: cfg.Database.UseInMemory,
		}
		store, err = storage.NewPostgresStorage(dbConfig, logger)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// Completion client
	completer := completion.NewClient(
		cfg.OpenAI.APIKey,
		cfg.OpenAI.BaseURL,
		cfg.OpenAI.Model,
		cfg.OpenAI.MaxTokens,
		cfg.OpenAI.Temperature,
		cfg.OpenAI.PromptFile,
		logger,
	)

	// Instagram Graph API client
	var igOpts []instagram.Option
	if cfg.Instagram.APIBase != "" {
		igOpts = append(igOpts, instagram.WithBaseURL(cfg.Instagram.APIBase))
	}
	ig := instagram.NewClient(cfg.Instagram.Token, logger, igOpts...)

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), time.Minute)
	defer cancelStartup()

	logger.Info("Verifying Instagram token")
	if err := ig.VerifyToken(startupCtx); err != nil {
		logger.Fatal("Instagram token is invalid or has expired", zap.Error(err))
	}

	// One completion round-trip proves the API key before serving traffic.
	logger.Info("Testing completion service")
	reply := completer.Reply(startupCtx, "startup_check", "Tell me about your programming course")
	if reply == completion.FallbackReply {
		logger.Fatal("Completion service self-test failed")
	}
	logger.Info("Completion self-test passed", zap.String("reply", reply))

	// Optional operator alerts
	var notifier bot.OperatorNotifier
	if cfg.Telegram.Token != "" && cfg.Telegram.AdminChatID != 0 {
		tn, err := notify.NewTelegramNotifier(cfg.Telegram.Token, cfg.Telegram.AdminChatID, logger)
		if err != nil {
			logger.Fatal("Failed to create operator notifier", zap.Error(err))
		}
		notifier = tn
		logger.Info("Operator alerts enabled")
	}

	dispatcher := bot.New(bot.Options{
		Completion:       completer,
		Sender:           ig,
		Leads:            store,
		Notifier:         notifier,
		Logger:           logger,
		Tiers:            cfg.Tiers(),
		QuietWindow:      time.Duration(cfg.Bot.QuietWindowSeconds) * time.Second,
		SweepInterval:    time.Duration(cfg.Bot.SweepIntervalSeconds) * time.Second,
		LeadTargeting:    cfg.Reminder.LeadTargeting,
		LeadPassInterval: time.Duration(cfg.Reminder.LeadPassHours) * time.Hour,
		DedupCapacity:    cfg.Bot.DedupCapacity,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		dispatcher.Run(ctx)
	}()

	router := httpserver.NewRouter(cfg.Instagram.VerifyToken, dispatcher, logger)
	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}

	go func() {
		logger.Info("Server started", zap.String("address", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("Shutting down")
	cancel()
	<-loopDone

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}
	logger.Info("Server closed")
}
