package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatsync/internal/bus"
	"chatsync/internal/config"
	"chatsync/internal/constants"
	"chatsync/internal/retry"
	"chatsync/internal/service"
	"chatsync/internal/tracing"
	"chatsync/pkg/primary"
	"chatsync/pkg/secondary"
	"chatsync/pkg/storage"

	"github.com/sirupsen/logrus"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	version    = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("chatsync %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func run(ctx context.Context) error {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
	}).Info("Starting chatsync")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else if cfg.LogLevel != "" {
		level, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
			logger.SetLevel(logrus.InfoLevel)
		} else {
			logger.SetLevel(level)
		}
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	tracingManager := tracing.NewManager(cfg.Tracing, logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	secondaryClient, err := secondary.Open(cfg.Secondary.Path)
	if err != nil {
		return fmt.Errorf("failed to open secondary store: %w", err)
	}
	defer secondaryClient.Close()

	primaryClient := primary.NewClient(cfg.Primary)
	storageClient := storage.NewClient(cfg.Storage)
	uploader := storage.NewUploader(storageClient, cfg.Storage, cfg.Media, logger)

	backoffCfg := retry.BackoffConfig{
		InitialDelay: time.Duration(cfg.Retry.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Retry.MaxBackoffMs) * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  cfg.Retry.MaxAttempts,
		Jitter:       true,
	}

	eventBus := bus.New()
	conversations := service.NewConversationService(primaryClient, secondaryClient, eventBus, logger)
	threads := service.NewThreadService(primaryClient, secondaryClient, eventBus, logger)
	notifications := service.NewNotificationService(primaryClient, secondaryClient, eventBus, logger)
	pipeline := service.NewSendPipeline(primaryClient, secondaryClient, threads, conversations, uploader, logger)

	watcher := secondary.NewWatcher(
		secondaryClient,
		time.Duration(cfg.Secondary.WatchIntervalMs)*time.Millisecond,
		backoffCfg,
		logger,
	)
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start secondary watcher: %w", err)
	}
	defer watcher.Stop()

	controller := service.NewSyncController(
		primaryClient,
		conversations,
		threads,
		notifications,
		watcher.Events(),
		cfg.Session.UserID,
		time.Duration(cfg.Sync.PollIntervalMs)*time.Millisecond,
		logger,
	)
	if err := controller.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sync controller: %w", err)
	}
	defer controller.Stop()

	// Prime the local state before live updates start landing.
	startupCtx, cancel := context.WithTimeout(ctx, constants.DefaultGracefulShutdownSec*time.Second)
	if _, err := conversations.LoadConversations(startupCtx, cfg.Session.UserID); err != nil {
		logger.Warnf("Initial conversation load failed: %v", err)
	}
	notifications.Refresh(startupCtx, cfg.Session.UserID)
	cancel()

	threadScopes := service.NewThreadControllerSet(
		primaryClient,
		threads,
		cfg.Session.UserID,
		time.Duration(cfg.Sync.PollIntervalMs)*time.Millisecond,
		logger,
	)

	server := NewServer(cfg.Session.UserID, conversations, threads, notifications, pipeline, threadScopes, logger)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	logger.WithField("user", cfg.Session.UserID).Info("Sync engine running")

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), constants.DefaultGracefulShutdownSec*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("Server shutdown failed: %v", err)
	}
	return nil
}
