package notifications

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/azure/brand-mentions-bot/internal/models"
)

const DefaultExcerptLength = 300

type sentimentStyle struct {
	Glyph string
	Color string
	Text  string
}

var sentimentStyles = map[models.SentimentLabel]sentimentStyle{
	models.SentimentPositive: {Glyph: "😊", Color: "#36a64f", Text: "Positive"},
	models.SentimentNegative: {Glyph: "😞", Color: "#ff0000", Text: "Negative"},
	models.SentimentNeutral:  {Glyph: "😐", Color: "#808080", Text: "Neutral"},
}

// Message is the channel-neutral rendering of a mention
type Message struct {
	MentionID  string
	BrandID    string
	BrandName  string
	Keyword    string
	Kind       models.ContentKind
	Title      string
	Excerpt    string
	Container  string
	Author     string
	URL        string
	Sentiment  models.SentimentResult
	Glyph      string
	Color      string
	Label      string
	DetectedAt time.Time
}

// Summary is the one-line headline used by every channel
func (m *Message) Summary() string {
	return fmt.Sprintf("New %s mention of %s", m.Sentiment.Label, m.BrandName)
}

// FormatMention builds the message for mention. An unscored mention is
// rendered as neutral.
func FormatMention(brand *models.Brand, mention *models.Mention, detectedAt time.Time, excerptLen int) *Message {
	if excerptLen <= 0 {
		excerptLen = DefaultExcerptLength
	}

	sentiment := models.SentimentResult{Label: models.SentimentNeutral}
	if mention.Sentiment != nil {
		sentiment = *mention.Sentiment
	}
	style, ok := sentimentStyles[sentiment.Label]
	if !ok {
		style = sentimentStyles[models.SentimentNeutral]
	}

	return &Message{
		MentionID:  mention.ID,
		BrandID:    brand.ID,
		BrandName:  brand.Name,
		Keyword:    mention.KeywordMatched,
		Kind:       mention.Kind,
		Title:      mention.Title,
		Excerpt:    Truncate(mention.Content, excerptLen),
		Container:  mention.SourceContainer,
		Author:     mention.Author,
		URL:        mention.SourceURL,
		Sentiment:  sentiment,
		Glyph:      style.Glyph,
		Color:      style.Color,
		Label:      style.Text,
		DetectedAt: detectedAt.UTC(),
	}
}

// Truncate cuts s to n runes and appends "..." when anything was removed
func Truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
