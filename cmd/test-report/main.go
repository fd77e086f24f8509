package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/azure/brand-mentions-bot/internal/brands"
	"github.com/azure/brand-mentions-bot/internal/models"
	"github.com/azure/brand-mentions-bot/internal/monitoring"
	"github.com/azure/brand-mentions-bot/internal/notifications"
	"github.com/azure/brand-mentions-bot/internal/sentiment"
	"github.com/azure/brand-mentions-bot/internal/storage"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	app := &cli.App{
		Name:  "test-report",
		Usage: "Preview and deliver sample mention notifications, inspect archived runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "brands",
				Aliases: []string{"b"},
				Value:   "brands.yaml",
				EnvVars: []string{"BRANDS_FILE"},
				Usage:   "Brand settings file",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "preview",
				Usage:  "Score sample mentions and print the formatted notifications",
				Action: runPreview,
			},
			{
				Name:      "send",
				Usage:     "Deliver one sample mention through the channels configured for a brand",
				ArgsUsage: "BRAND_ID",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "smtp-host", EnvVars: []string{"SMTP_HOST"}},
					&cli.IntFlag{Name: "smtp-port", Value: 587, EnvVars: []string{"SMTP_PORT"}},
					&cli.StringFlag{Name: "smtp-username", EnvVars: []string{"SMTP_USERNAME"}},
					&cli.StringFlag{Name: "smtp-password", EnvVars: []string{"SMTP_PASSWORD"}},
					&cli.StringFlag{Name: "email-from", EnvVars: []string{"EMAIL_FROM"}},
					&cli.StringFlag{Name: "pager-url", EnvVars: []string{"PAGER_EVENT_URL"}},
				},
				Action: runSend,
			},
			{
				Name:  "alert",
				Usage: "Send a test operator alert",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "webhook", EnvVars: []string{"OPS_WEBHOOK_URL"}},
				},
				Action: runAlert,
			},
			{
				Name:  "runs",
				Usage: "Inspect run summaries archived in Azure Blob Storage",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "account", EnvVars: []string{"AZURE_STORAGE_ACCOUNT"}, Required: true},
					&cli.StringFlag{Name: "container", Value: "mentions", EnvVars: []string{"AZURE_STORAGE_CONTAINER"}},
				},
				Subcommands: []*cli.Command{
					{
						Name:  "list",
						Usage: "List archived runs",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Usage: "comment or post"},
						},
						Action: runList,
					},
					{
						Name:      "show",
						Usage:     "Print one archived run summary",
						ArgsUsage: "NAME",
						Action:    runShow,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// sampleMentions returns one mention of each sentiment for brand
func sampleMentions(brand *models.Brand) []*models.Mention {
	keyword := brand.Name
	if texts := brand.KeywordTexts(); len(texts) > 0 {
		keyword = texts[0]
	}

	now := time.Now().UTC()
	bodies := []struct {
		author string
		body   string
	}{
		{"happy_customer", fmt.Sprintf("I love %s, the new release is amazing and support was great.", keyword)},
		{"frustrated_dev", fmt.Sprintf("%s keeps crashing after the update. Really bad experience so far.", keyword)},
		{"curious_reader", fmt.Sprintf("Has anyone here compared %s with the alternatives?", keyword)},
	}

	mentions := make([]*models.Mention, 0, len(bodies))
	for i, b := range bodies {
		contentID := fmt.Sprintf("sample%d", i+1)
		mentions = append(mentions, &models.Mention{
			ID:               uuid.NewString(),
			BrandID:          brand.ID,
			KeywordMatched:   keyword,
			ContentID:        contentID,
			Kind:             models.ContentKindComment,
			Content:          b.body,
			Author:           b.author,
			SourceContainer:  "test",
			SourceURL:        fmt.Sprintf("https://www.reddit.com/r/test/comments/sample/x/%s/", contentID),
			ContentCreatedAt: now.Add(-time.Duration(i) * time.Minute),
			CreatedAt:        now,
		})
	}

	scorer := sentiment.Default()
	for _, m := range mentions {
		result := scorer.Score(m.Content)
		m.Sentiment = &result
		m.IsProcessed = true
	}
	return mentions
}

func loadBrands(c *cli.Context) (*brands.FileProvider, error) {
	provider, err := brands.NewFileProvider(c.String("brands"))
	if err != nil {
		return nil, fmt.Errorf("failed to load brands: %w", err)
	}
	return provider, nil
}

func runPreview(c *cli.Context) error {
	provider, err := loadBrands(c)
	if err != nil {
		return err
	}
	list, err := provider.ListBrands(c.Context)
	if err != nil {
		return err
	}

	fmt.Println("🤖 Brand Mentions Bot - Notification Preview")
	fmt.Println("============================================")

	for _, brand := range list {
		fmt.Println("\n" + strings.Repeat("=", 70))
		fmt.Printf("🏷️  %s (%s) - keywords: %s\n", brand.Name, brand.ID, strings.Join(brand.KeywordTexts(), ", "))
		fmt.Printf("📣 Channels: %s\n", strings.Join(enabledChannels(brand), ", "))
		fmt.Println(strings.Repeat("=", 70))

		for i, m := range sampleMentions(brand) {
			msg := notifications.FormatMention(brand, m, time.Now(), notifications.DefaultExcerptLength)
			fmt.Printf("\n   %d. %s %s\n", i+1, msg.Glyph, msg.Summary())
			fmt.Printf("      🔑 Keyword: %s | 📍 r/%s | 👤 %s\n", msg.Keyword, msg.Container, msg.Author)
			fmt.Printf("      💭 Sentiment: %s (%d) %s\n", msg.Label, msg.Sentiment.Score, msg.Color)
			fmt.Printf("      📝 %s\n", msg.Excerpt)
			fmt.Printf("      🔗 %s\n", msg.URL)
		}
	}
	return nil
}

func runSend(c *cli.Context) error {
	if c.NArg() < 1 {
		return errors.New("missing required argument: BRAND_ID")
	}

	provider, err := loadBrands(c)
	if err != nil {
		return err
	}
	brand, err := provider.GetBrand(c.Context, c.Args().Get(0))
	if err != nil {
		return err
	}

	client := resty.New()
	dispatcher := notifications.NewDispatcher(provider, []notifications.Channel{
		notifications.NewSlackChannel(client),
		notifications.NewTeamsChannel(client),
		notifications.NewEmailChannel(c.String("smtp-host"), c.Int("smtp-port"), c.String("smtp-username"), c.String("smtp-password"), c.String("email-from")),
		notifications.NewPagerChannel(client, c.String("pager-url")),
	}, notifications.DispatcherOptions{})

	mention := sampleMentions(brand)[0]
	fmt.Printf("📤 Sending sample mention to %s via %s\n", brand.Name, strings.Join(enabledChannels(brand), ", "))

	err = dispatcher.Notify(c.Context, brand.ID, mention)
	var deliveryErr *notifications.DeliveryError
	if errors.As(err, &deliveryErr) {
		for name, chErr := range deliveryErr.Failures {
			fmt.Printf("   ❌ %s: %v\n", name, chErr)
		}
		return errors.New("some channels failed")
	}
	if err != nil {
		return err
	}

	fmt.Println("✅ Delivered")
	return nil
}

func runAlert(c *cli.Context) error {
	alerter := notifications.NewOpsNotifier(resty.New(), c.String("webhook"))
	alert := &models.Alert{
		ID:        uuid.NewString(),
		Type:      "info",
		Title:     "Test alert",
		Message:   "This is a test operator alert from test-report.",
		CreatedAt: time.Now().UTC(),
	}

	if err := alerter.SendAlert(c.Context, alert); err != nil {
		return err
	}
	fmt.Printf("✅ Alert %s sent\n", alert.ID)
	return nil
}

func openArchive(c *cli.Context) (*storage.AzureStorage, error) {
	ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()
	return storage.NewAzureStorage(ctx, c.String("account"), c.String("container"))
}

func runList(c *cli.Context) error {
	archive, err := openArchive(c)
	if err != nil {
		return err
	}

	prefix := "runs/"
	if kind := c.String("kind"); kind != "" {
		prefix += kind + "/"
	}

	names, err := archive.List(c.Context, prefix)
	if err != nil {
		return err
	}

	fmt.Printf("📁 %d archived runs under %s\n", len(names), prefix)
	for _, name := range names {
		fmt.Printf("   • %s\n", name)
	}
	return nil
}

func runShow(c *cli.Context) error {
	if c.NArg() < 1 {
		return errors.New("missing required argument: NAME")
	}

	archive, err := openArchive(c)
	if err != nil {
		return err
	}

	data, err := archive.Retrieve(c.Context, c.Args().Get(0))
	if err != nil {
		return err
	}

	var summary monitoring.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return fmt.Errorf("archived run is not a run summary: %w", err)
	}

	fmt.Printf("📈 %s run started %s: %s", summary.Kind, summary.StartedAt.Format("2006-01-02 15:04:05 UTC"), summary.Stage)
	if summary.FailedStage != "" {
		fmt.Printf(" (failed during %s)", summary.FailedStage)
	}
	fmt.Printf("\n   • Fetched %d, matched %d, new %d, scored %d, notified %d\n",
		summary.Fetched, summary.Matched, summary.Inserted, summary.Scored, summary.Notified)
	for label, n := range summary.Sentiment {
		fmt.Printf("   • %s: %d\n", label, n)
	}
	for _, e := range summary.Errors {
		fmt.Printf("   ⚠️  %s\n", e)
	}
	return nil
}

func enabledChannels(brand *models.Brand) []string {
	var names []string
	ch := brand.Channels
	if ch.Slack.Enabled {
		names = append(names, "slack")
	}
	if ch.Teams.Enabled {
		names = append(names, "teams")
	}
	if ch.Email.Enabled {
		names = append(names, "email")
	}
	if ch.Pager.Enabled {
		names = append(names, "pager")
	}
	if len(names) == 0 {
		names = append(names, "none")
	}
	return names
}
