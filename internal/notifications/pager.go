package notifications

import (
	"context"
	"fmt"

	"github.com/azure/brand-mentions-bot/internal/models"
	"github.com/go-resty/resty/v2"
)

const DefaultPagerURL = "https://events.pagerduty.com/v2/enqueue"

// PagerChannel triggers PagerDuty Events v2 incidents
type PagerChannel struct {
	client   *resty.Client
	eventURL string
}

var _ Channel = (*PagerChannel)(nil)

type pagerEvent struct {
	RoutingKey  string       `json:"routing_key"`
	EventAction string       `json:"event_action"`
	DedupKey    string       `json:"dedup_key,omitempty"`
	Payload     pagerPayload `json:"payload"`
	Links       []pagerLink  `json:"links,omitempty"`
}

type pagerPayload struct {
	Summary       string            `json:"summary"`
	Source        string            `json:"source"`
	Severity      string            `json:"severity"`
	Timestamp     string            `json:"timestamp"`
	Component     string            `json:"component,omitempty"`
	CustomDetails map[string]string `json:"custom_details,omitempty"`
}

type pagerLink struct {
	Href string `json:"href"`
	Text string `json:"text"`
}

// NewPagerChannel creates the paging channel. An empty eventURL uses PagerDuty.
func NewPagerChannel(client *resty.Client, eventURL string) *PagerChannel {
	if eventURL == "" {
		eventURL = DefaultPagerURL
	}
	return &PagerChannel{client: client, eventURL: eventURL}
}

func (p *PagerChannel) Name() string { return "pager" }

func (p *PagerChannel) Enabled(brand *models.Brand, msg *Message) bool {
	pager := brand.Channels.Pager
	if !pager.Enabled || pager.RoutingKey == "" {
		return false
	}
	return !pager.NegativeOnly || msg.Sentiment.Label == models.SentimentNegative
}

func (p *PagerChannel) Send(ctx context.Context, brand *models.Brand, msg *Message) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(buildPagerEvent(brand.Channels.Pager.RoutingKey, msg)).
		Post(p.eventURL)
	if err != nil {
		return fmt.Errorf("failed to send pager event: %w", err)
	}

	if !resp.IsSuccess() {
		return fmt.Errorf("pager endpoint returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}
	return nil
}

func buildPagerEvent(routingKey string, msg *Message) *pagerEvent {
	severity := "info"
	if msg.Sentiment.Label == models.SentimentNegative {
		severity = "warning"
	}

	return &pagerEvent{
		RoutingKey:  routingKey,
		EventAction: "trigger",
		DedupKey:    msg.MentionID,
		Payload: pagerPayload{
			Summary:   fmt.Sprintf("%s (keyword: %s, r/%s)", msg.Summary(), msg.Keyword, msg.Container),
			Source:    "brand-mentions-bot",
			Severity:  severity,
			Timestamp: msg.DetectedAt.Format("2006-01-02T15:04:05Z07:00"),
			Component: msg.BrandID,
			CustomDetails: map[string]string{
				"author":    msg.Author,
				"excerpt":   msg.Excerpt,
				"sentiment": fmt.Sprintf("%s (%d)", msg.Label, msg.Sentiment.Score),
			},
		},
		Links: []pagerLink{{Href: msg.URL, Text: "View on Reddit"}},
	}
}
