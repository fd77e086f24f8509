package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/azure/brand-mentions-bot/internal/models"
	"github.com/go-resty/resty/v2"
)

// TeamsMessage represents a Microsoft Teams message
type TeamsMessage struct {
	Type            string         `json:"@type"`
	Context         string         `json:"@context"`
	ThemeColor      string         `json:"themeColor,omitempty"`
	Summary         string         `json:"summary,omitempty"`
	Title           string         `json:"title"`
	Text            string         `json:"text"`
	Sections        []TeamsSection `json:"sections,omitempty"`
	PotentialAction []TeamsAction  `json:"potentialAction,omitempty"`
}

type TeamsSection struct {
	ActivityTitle    string      `json:"activityTitle,omitempty"`
	ActivitySubtitle string      `json:"activitySubtitle,omitempty"`
	ActivityText     string      `json:"activityText,omitempty"`
	Facts            []TeamsFact `json:"facts,omitempty"`
	Markdown         bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type TeamsAction struct {
	Type    string        `json:"@type"`
	Name    string        `json:"name"`
	Targets []TeamsTarget `json:"targets"`
}

type TeamsTarget struct {
	OS  string `json:"os"`
	URI string `json:"uri"`
}

// TeamsChannel posts MessageCards to a brand's Teams webhook
type TeamsChannel struct {
	client *resty.Client
}

var _ Channel = (*TeamsChannel)(nil)

// NewTeamsChannel creates the Teams channel
func NewTeamsChannel(client *resty.Client) *TeamsChannel {
	return &TeamsChannel{client: client}
}

func (t *TeamsChannel) Name() string { return "teams" }

func (t *TeamsChannel) Enabled(brand *models.Brand, _ *Message) bool {
	return brand.Channels.Teams.Enabled && brand.Channels.Teams.WebhookURL != ""
}

func (t *TeamsChannel) Send(ctx context.Context, brand *models.Brand, msg *Message) error {
	return postTeams(ctx, t.client, brand.Channels.Teams.WebhookURL, buildTeamsMessage(msg))
}

func postTeams(ctx context.Context, client *resty.Client, webhookURL string, message *TeamsMessage) error {
	resp, err := client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(webhookURL)
	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if !resp.IsSuccess() {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}
	return nil
}

func buildTeamsMessage(msg *Message) *TeamsMessage {
	facts := []TeamsFact{
		{Name: "Brand", Value: msg.BrandName},
		{Name: "Keyword", Value: msg.Keyword},
		{Name: "Sentiment", Value: fmt.Sprintf("%s %s (%d)", msg.Glyph, msg.Label, msg.Sentiment.Score)},
		{Name: "Subreddit", Value: "r/" + msg.Container},
		{Name: "Author", Value: "u/" + msg.Author},
		{Name: "Detected", Value: msg.DetectedAt.Format("2006-01-02 15:04:05 UTC")},
	}

	subtitle := string(msg.Kind)
	if msg.Title != "" {
		subtitle = fmt.Sprintf("%s in \"%s\"", msg.Kind, msg.Title)
	}

	return &TeamsMessage{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		ThemeColor: strings.TrimPrefix(msg.Color, "#"),
		Summary:    msg.Summary(),
		Title:      msg.Summary(),
		Text:       msg.Excerpt,
		Sections: []TeamsSection{{
			ActivityTitle:    "Mention details",
			ActivitySubtitle: subtitle,
			Facts:            facts,
			Markdown:         true,
		}},
		PotentialAction: []TeamsAction{{
			Type:    "OpenUri",
			Name:    "View on Reddit",
			Targets: []TeamsTarget{{OS: "default", URI: msg.URL}},
		}},
	}
}
