package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/azure/brand-mentions-bot/internal/models"
	"github.com/go-resty/resty/v2"
)

// SlackChannel posts Block Kit messages to a brand's incoming webhook
type SlackChannel struct {
	client *resty.Client
}

var _ Channel = (*SlackChannel)(nil)

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

var slackMarkup = strings.NewReplacer("<strong>", "*", "</strong>", "*")

// NewSlackChannel creates the Slack channel. The resty client is shared.
func NewSlackChannel(client *resty.Client) *SlackChannel {
	return &SlackChannel{client: client}
}

func (s *SlackChannel) Name() string { return "slack" }

func (s *SlackChannel) Enabled(brand *models.Brand, _ *Message) bool {
	return brand.Channels.Slack.Enabled && brand.Channels.Slack.WebhookURL != ""
}

func (s *SlackChannel) Send(ctx context.Context, brand *models.Brand, msg *Message) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(buildSlackMessage(msg)).
		Post(brand.Channels.Slack.WebhookURL)
	if err != nil {
		return fmt.Errorf("failed to send Slack message: %w", err)
	}

	if !resp.IsSuccess() {
		return fmt.Errorf("Slack webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}
	return nil
}

func buildSlackMessage(msg *Message) *slackMessage {
	section := func(text string) slackBlock {
		return slackBlock{Type: "section", Text: &slackText{Type: "mrkdwn", Text: text}}
	}

	blocks := []slackBlock{
		section(fmt.Sprintf("🏷️ Brand: %s", msg.BrandName)),
		section(fmt.Sprintf("🔑 Keyword Matched: %s", msg.Keyword)),
		section(fmt.Sprintf("📊 Sentiment: %s %s", msg.Glyph, msg.Label)),
		section(fmt.Sprintf("📱 Subreddit: r/%s", msg.Container)),
		section(fmt.Sprintf("👤 Author: u/%s", msg.Author)),
	}
	if msg.Kind == models.ContentKindPost && msg.Title != "" {
		blocks = append(blocks, section(fmt.Sprintf("📰 Title: %s", msg.Title)))
	}
	blocks = append(blocks,
		section(fmt.Sprintf("📝 Content:\n%s", slackMarkup.Replace(msg.Excerpt))),
		section(fmt.Sprintf("🔗 View on Reddit:\n%s", msg.URL)),
		slackBlock{
			Type:     "context",
			Elements: []slackText{{Type: "mrkdwn", Text: fmt.Sprintf("⏰ Mention detected at %s", msg.DetectedAt.Format("2006-01-02 15:04:05 UTC"))}},
		},
		slackBlock{Type: "divider"},
	)

	return &slackMessage{
		Text:   msg.Summary(),
		Blocks: blocks,
	}
}
