package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/azure/brand-mentions-bot/internal/brands"
	"github.com/azure/brand-mentions-bot/internal/config"
	"github.com/azure/brand-mentions-bot/internal/monitoring"
	"github.com/azure/brand-mentions-bot/internal/notifications"
	"github.com/azure/brand-mentions-bot/internal/scheduler"
	"github.com/azure/brand-mentions-bot/internal/sentiment"
	"github.com/azure/brand-mentions-bot/internal/sources"
	"github.com/azure/brand-mentions-bot/internal/storage"
	"github.com/go-resty/resty/v2"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging
	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting Brand Mentions Bot")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	clock := clockwork.NewRealClock()

	// Feed client
	tokens := sources.NewRedditTokenProvider(sources.RedditCredentials{
		ClientID:     cfg.RedditClientID,
		ClientSecret: cfg.RedditClientSecret,
		Username:     cfg.RedditUsername,
		Password:     cfg.RedditPassword,
		UserAgent:    cfg.RedditUserAgent,
	}, cfg.RedditAuthURL, resty.New(), clock)
	feed := sources.NewRedditClient(resty.New(), tokens, redditOptions(cfg))

	// Mention store
	store, cursors, closeStore, err := openStore(ctx, cfg, clock)
	if err != nil {
		logrus.Fatalf("Failed to initialize mention store: %v", err)
	}
	defer closeStore()

	// Brand settings
	brandProvider, err := brands.NewFileProvider(cfg.BrandsFile)
	if err != nil {
		logrus.Fatalf("Failed to load brands: %v", err)
	}
	if cfg.WatchBrands {
		if err := brandProvider.Watch(ctx); err != nil {
			logrus.Warnf("Brand file watching disabled: %v", err)
		}
	}

	// Run archive
	var (
		archive       storage.Archive
		archiveReader storage.ArchiveReader
	)
	if cfg.StorageAccount != "" {
		blobs, err := storage.NewAzureStorage(ctx, cfg.StorageAccount, cfg.StorageContainer)
		if err != nil {
			logrus.Fatalf("Failed to initialize run archive: %v", err)
		}
		archive, archiveReader = blobs, blobs
	} else {
		logrus.Info("AZURE_STORAGE_ACCOUNT not set, run summaries will not be archived")
	}

	// Notification channels
	notifyClient := resty.New()
	dispatcher := notifications.NewDispatcher(brandProvider, []notifications.Channel{
		notifications.NewSlackChannel(notifyClient),
		notifications.NewTeamsChannel(notifyClient),
		notifications.NewEmailChannel(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.EmailFrom),
		notifications.NewPagerChannel(notifyClient, cfg.PagerEventURL),
	}, notifications.DispatcherOptions{
		SendTimeout:   cfg.NotifyTimeout,
		ExcerptLength: cfg.ExcerptLength,
		Clock:         clock,
	})
	alerter := notifications.NewOpsNotifier(notifyClient, cfg.OpsWebhookURL)

	// Initialize monitoring service
	monitoringService := monitoring.NewService(cfg, monitoring.Deps{
		Feed:     feed,
		Brands:   brandProvider,
		Store:    store,
		Cursors:  cursors,
		Archive:  archive,
		Notifier: dispatcher,
		Alerter:  alerter,
		Scorer:   sentiment.Default(),
		Clock:    clock,
	})

	// Initialize scheduler
	schedulerService := scheduler.NewService(cfg, monitoringService)

	// Start scheduler
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      newRouter(monitoringService, archiveReader, cfg.RunBudget),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RunBudget + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in a goroutine
	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")
	stop()

	// Create a deadline for shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}

func redditOptions(cfg *config.Config) sources.RedditOptions {
	return sources.RedditOptions{
		BaseURL:         cfg.RedditAPIURL,
		UserAgent:       cfg.RedditUserAgent,
		RequestSpacing:  cfg.FeedRequestSpacing,
		MaxRetries:      cfg.FeedMaxRetries,
		FetchTimeout:    cfg.FeedFetchTimeout,
		SearchTimeout:   cfg.FeedSearchTimeout,
		FetchBaseDelay:  cfg.FeedFetchBaseDelay,
		SearchBaseDelay: cfg.FeedSearchBaseDelay,
		Jitter:          cfg.FeedRetryJitter,
	}
}

// openStore returns the mention and cursor stores for the configured driver
func openStore(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (storage.MentionStore, storage.CursorStore, func(), error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		logrus.Warn("Using in-memory mention store, mentions are lost on restart")
		mem := storage.NewMemoryStore(clock)
		return mem, mem, func() {}, nil
	}

	db, err := storage.OpenSQLStore(ctx, cfg.StoreDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	closeFn := func() {
		if err := db.Close(); err != nil {
			logrus.Errorf("Failed to close mention store: %v", err)
		}
	}
	return db, db, closeFn, nil
}
