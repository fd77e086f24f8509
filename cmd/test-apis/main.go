package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/azure/brand-mentions-bot/internal/brands"
	"github.com/azure/brand-mentions-bot/internal/config"
	"github.com/azure/brand-mentions-bot/internal/models"
	"github.com/azure/brand-mentions-bot/internal/notifications"
	"github.com/azure/brand-mentions-bot/internal/sources"
	"github.com/go-resty/resty/v2"
	"github.com/joho/godotenv"
)

func main() {
	fmt.Println("🔍 Brand Mentions Bot - Feed Connectivity Test")
	fmt.Println("==============================================")

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	keywords := []string{"golang"}
	if provider, err := brands.NewFileProvider(cfg.BrandsFile); err == nil {
		if list, err := provider.ListBrands(context.Background()); err == nil {
			keywords = firstKeywords(list, 3)
		}
	} else {
		fmt.Printf("⚠️  Could not read %s (%v), searching for %q\n", cfg.BrandsFile, err, keywords[0])
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	tokens := sources.NewRedditTokenProvider(sources.RedditCredentials{
		ClientID:     cfg.RedditClientID,
		ClientSecret: cfg.RedditClientSecret,
		Username:     cfg.RedditUsername,
		Password:     cfg.RedditPassword,
		UserAgent:    cfg.RedditUserAgent,
	}, cfg.RedditAuthURL, resty.New(), nil)

	// Spacing is relaxed for an interactive check; retries stay on
	feed := sources.NewRedditClient(resty.New(), tokens, sources.RedditOptions{
		BaseURL:         cfg.RedditAPIURL,
		UserAgent:       cfg.RedditUserAgent,
		RequestSpacing:  time.Second,
		MaxRetries:      1,
		FetchBaseDelay:  cfg.FeedFetchBaseDelay,
		SearchBaseDelay: cfg.FeedSearchBaseDelay,
	})

	fmt.Println("\n📡 Testing Reddit API...")
	fmt.Println(strings.Repeat("-", 40))

	fmt.Print("🔸 Token exchange... ")
	if _, err := tokens.AccessToken(ctx); err != nil {
		fmt.Printf("❌ ERROR (%s): %v\n", sources.KindOf(err), err)
		return
	}
	fmt.Println("✅ SUCCESS")

	testFetch("Recent comments", ctx, func(ctx context.Context) ([]models.ContentItem, error) {
		return feed.FetchRecent(ctx, 10)
	})
	for _, kw := range keywords {
		kw := kw
		testFetch(fmt.Sprintf("Post search %q", kw), ctx, func(ctx context.Context) ([]models.ContentItem, error) {
			return feed.Search(ctx, kw, 10, "")
		})
	}

	fmt.Println("\n✅ Feed connectivity test completed!")
	fmt.Println("\n💡 Next steps:")
	fmt.Println("   • Define brands and channels in brands.yaml")
	fmt.Println("   • Dry-run the pipeline with: go run ./cmd/test-integration")
	fmt.Println("   • Preview notifications with: go run ./cmd/test-report preview")
}

func testFetch(name string, ctx context.Context, fetch func(context.Context) ([]models.ContentItem, error)) {
	fmt.Printf("🔸 %s... ", name)

	items, err := fetch(ctx)
	if err != nil {
		fmt.Printf("❌ ERROR (%s): %v\n", sources.KindOf(err), err)
		return
	}

	fmt.Printf("✅ SUCCESS (%d items)\n", len(items))
	if len(items) > 0 {
		sample := notifications.Truncate(items[0].Text(), 80)
		fmt.Printf("   📝 Sample (r/%s): %q\n", items[0].Container, sample)
	}
}

func firstKeywords(list []*models.Brand, n int) []string {
	var out []string
	for _, b := range list {
		for _, kw := range b.KeywordTexts() {
			if len(out) == n {
				return out
			}
			out = append(out, kw)
		}
	}
	if len(out) == 0 {
		out = []string{"golang"}
	}
	return out
}
