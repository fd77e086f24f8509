package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/azure/brand-mentions-bot/internal/brands"
	"github.com/azure/brand-mentions-bot/internal/config"
	"github.com/azure/brand-mentions-bot/internal/models"
	"github.com/azure/brand-mentions-bot/internal/monitoring"
	"github.com/azure/brand-mentions-bot/internal/notifications"
	"github.com/azure/brand-mentions-bot/internal/sources"
	"github.com/azure/brand-mentions-bot/internal/storage"
	"github.com/go-resty/resty/v2"
	"github.com/joho/godotenv"
)

// consoleNotifier prints notifications instead of delivering them
type consoleNotifier struct {
	brands brands.Provider
}

func (c *consoleNotifier) Notify(ctx context.Context, brandID string, mention *models.Mention) error {
	brand, err := c.brands.GetBrand(ctx, brandID)
	if err != nil {
		return err
	}

	msg := notifications.FormatMention(brand, mention, time.Now(), notifications.DefaultExcerptLength)
	fmt.Printf("\n   %s %s\n", msg.Glyph, msg.Summary())
	fmt.Printf("      🔑 Keyword: %s | 📍 r/%s | 👤 %s\n", msg.Keyword, msg.Container, msg.Author)
	fmt.Printf("      💭 Sentiment: %s (%d)\n", msg.Label, msg.Sentiment.Score)
	fmt.Printf("      📝 %s\n", strings.ReplaceAll(msg.Excerpt, "\n", " "))
	fmt.Printf("      🔗 %s\n", msg.URL)
	return nil
}

// consoleAlerter prints operator alerts
type consoleAlerter struct{}

func (consoleAlerter) SendAlert(_ context.Context, alert *models.Alert) error {
	fmt.Printf("🚨 ALERT [%s]: %s - %s\n", alert.Type, alert.Title, alert.Message)
	return nil
}

func main() {
	fmt.Println("🧪 Brand Mentions Bot - Local Integration Test")
	fmt.Println("==============================================")

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Dry runs keep everything in memory unless a store is configured explicitly
	if os.Getenv("STORE_DRIVER") == "" {
		os.Setenv("STORE_DRIVER", config.StoreDriverMemory)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	brandProvider, err := brands.NewFileProvider(cfg.BrandsFile)
	if err != nil {
		log.Fatalf("Failed to load brands: %v", err)
	}

	tokens := sources.NewRedditTokenProvider(sources.RedditCredentials{
		ClientID:     cfg.RedditClientID,
		ClientSecret: cfg.RedditClientSecret,
		Username:     cfg.RedditUsername,
		Password:     cfg.RedditPassword,
		UserAgent:    cfg.RedditUserAgent,
	}, cfg.RedditAuthURL, resty.New(), nil)

	feed := sources.NewRedditClient(resty.New(), tokens, sources.RedditOptions{
		BaseURL:         cfg.RedditAPIURL,
		UserAgent:       cfg.RedditUserAgent,
		RequestSpacing:  cfg.FeedRequestSpacing,
		MaxRetries:      cfg.FeedMaxRetries,
		FetchTimeout:    cfg.FeedFetchTimeout,
		SearchTimeout:   cfg.FeedSearchTimeout,
		FetchBaseDelay:  cfg.FeedFetchBaseDelay,
		SearchBaseDelay: cfg.FeedSearchBaseDelay,
		Jitter:          cfg.FeedRetryJitter,
	})

	store := storage.NewMemoryStore(nil)
	service := monitoring.NewService(cfg, monitoring.Deps{
		Feed:     feed,
		Brands:   brandProvider,
		Store:    store,
		Cursors:  store,
		Archive:  store,
		Notifier: &consoleNotifier{brands: brandProvider},
		Alerter:  consoleAlerter{},
	})

	ctx := context.Background()

	fmt.Println("\n🔍 Running comment polling cycle...")
	printSummary(service.RunComments(ctx))

	if cfg.EnablePostSearch {
		fmt.Println("\n🔍 Running post search cycle...")
		printSummary(service.RunPosts(ctx))
	}

	fmt.Println("\n📊 Pipeline status:")
	fmt.Println(service.GetMetrics())

	fmt.Println("\n✅ Integration test completed!")
}

func printSummary(summary *monitoring.RunSummary, err error) {
	if summary == nil {
		fmt.Printf("❌ Run did not start: %v\n", err)
		return
	}

	fmt.Printf("\n📈 %s run: %s in %v\n", summary.Kind, summary.Stage, summary.Duration.Round(time.Millisecond))
	fmt.Printf("   • Fetched: %d (skipped %d older than cursor)\n", summary.Fetched, summary.Skipped)
	fmt.Printf("   • Matched: %d (new %d, duplicates %d)\n", summary.Matched, summary.Inserted, summary.Duplicates)
	fmt.Printf("   • Scored: %d, notified: %d, failures: %d\n", summary.Scored, summary.Notified, summary.NotifyFailures)
	for _, e := range summary.Errors {
		fmt.Printf("   ⚠️  %s\n", e)
	}
	if err != nil {
		fmt.Printf("❌ Run failed: %v\n", err)
	}
}
