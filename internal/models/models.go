package models

import (
	"strings"
	"time"
)

// ContentKind distinguishes top-level posts from replies
type ContentKind string

const (
	ContentKindPost    ContentKind = "post"
	ContentKindComment ContentKind = "comment"
)

// ContentItem is one unit fetched from the feed, normalized regardless of the endpoint it came from
type ContentItem struct {
	ID         string      `json:"id"`
	Kind       ContentKind `json:"kind"`
	Author     string      `json:"author"`
	Container  string      `json:"container"` // subreddit
	Title      string      `json:"title,omitempty"`
	Body       string      `json:"body"`
	URL        string      `json:"url"`
	CreatedAt  time.Time   `json:"created_at"`
	Score      int         `json:"score"`
	ReplyCount int         `json:"reply_count"`
}

// Text returns the searchable text of the item. A comment's title is its
// parent post's title, so only the body counts.
func (c ContentItem) Text() string {
	switch {
	case c.Kind == ContentKindComment, c.Title == "":
		return c.Body
	case c.Body == "":
		return c.Title
	default:
		return c.Title + "\n" + c.Body
	}
}

// SentimentLabel is the coarse classification derived from a sentiment score
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNegative SentimentLabel = "negative"
	SentimentNeutral  SentimentLabel = "neutral"
)

// LabelForScore maps a score to its label purely by sign
func LabelForScore(score int) SentimentLabel {
	switch {
	case score > 0:
		return SentimentPositive
	case score < 0:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// SentimentResult is embedded in a Mention once scored
type SentimentResult struct {
	Score int            `json:"score"`
	Label SentimentLabel `json:"label"`
}

// Mention is a content item matched against a keyword for a specific brand.
// (BrandID, ContentID) is unique.
type Mention struct {
	ID               string           `json:"id"`
	BrandID          string           `json:"brand_id"`
	KeywordMatched   string           `json:"keyword_matched"`
	ContentID        string           `json:"content_id"`
	Kind             ContentKind      `json:"kind"`
	Title            string           `json:"title,omitempty"`
	Content          string           `json:"content"`
	Author           string           `json:"author"`
	SourceContainer  string           `json:"source_container"`
	SourceURL        string           `json:"source_url"`
	Sentiment        *SentimentResult `json:"sentiment,omitempty"`
	IsProcessed      bool             `json:"is_processed"`
	ContentCreatedAt time.Time        `json:"content_created_at"`
	CreatedAt        time.Time        `json:"created_at"`
	ProcessedAt      *time.Time       `json:"processed_at,omitempty"`
}

// KeywordType mirrors the categories brands use to organize keywords
type KeywordType string

const (
	KeywordOwnBrand   KeywordType = "own_brand"
	KeywordCompetitor KeywordType = "competitor"
	KeywordIndustry   KeywordType = "industry"
)

// Keyword is a tracked term for a brand
type Keyword struct {
	ID   string      `json:"id" yaml:"id" validate:"required"`
	Text string      `json:"text" yaml:"text" validate:"required"`
	Type KeywordType `json:"type" yaml:"type" validate:"omitempty,oneof=own_brand competitor industry"`
}

// Brand is owned by the settings subsystem and consumed read-only
type Brand struct {
	ID       string          `json:"id" yaml:"id" validate:"required"`
	Name     string          `json:"name" yaml:"name" validate:"required"`
	Keywords []Keyword       `json:"keywords" yaml:"keywords" validate:"required,min=1,dive"`
	Channels ChannelSettings `json:"channels" yaml:"channels"`
}

// KeywordTexts returns the keyword texts in configured order
func (b *Brand) KeywordTexts() []string {
	texts := make([]string, 0, len(b.Keywords))
	for _, kw := range b.Keywords {
		if t := strings.TrimSpace(kw.Text); t != "" {
			texts = append(texts, t)
		}
	}
	return texts
}

// ChannelSettings holds the per-brand notification configuration
type ChannelSettings struct {
	Slack WebhookChannel `json:"slack" yaml:"slack"`
	Teams WebhookChannel `json:"teams" yaml:"teams"`
	Email EmailChannel   `json:"email" yaml:"email"`
	Pager PagerChannel   `json:"pager" yaml:"pager"`
}

type WebhookChannel struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	WebhookURL string `json:"webhook_url" yaml:"webhook_url" validate:"omitempty,url"`
}

type EmailChannel struct {
	Enabled    bool     `json:"enabled" yaml:"enabled"`
	Recipients []string `json:"recipients" yaml:"recipients" validate:"omitempty,dive,email"`
}

type PagerChannel struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	RoutingKey   string `json:"routing_key" yaml:"routing_key"`
	NegativeOnly bool   `json:"negative_only" yaml:"negative_only"`
}

// Alert represents an operator notification for systemic failures
type Alert struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"` // "critical", "urgent", "info"
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
