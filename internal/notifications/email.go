package notifications

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/azure/brand-mentions-bot/internal/models"
	"gopkg.in/gomail.v2"
)

// mailer is satisfied by *gomail.Dialer
type mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailChannel sends each mention as a multipart HTML/text email
type EmailChannel struct {
	from   string
	dialer mailer
}

var _ Channel = (*EmailChannel)(nil)

// NewEmailChannel creates the email channel. With no host it stays disabled.
func NewEmailChannel(host string, port int, username, password, from string) *EmailChannel {
	if from == "" {
		from = username
	}
	ch := &EmailChannel{from: from}
	if host != "" {
		ch.dialer = gomail.NewDialer(host, port, username, password)
	}
	return ch
}

func (e *EmailChannel) Name() string { return "email" }

func (e *EmailChannel) Enabled(brand *models.Brand, _ *Message) bool {
	return e.dialer != nil && brand.Channels.Email.Enabled && len(brand.Channels.Email.Recipients) > 0
}

// Send dials SMTP in the background. gomail has no context support, so a
// cancelled ctx returns early and the dial finishes on its own.
func (e *EmailChannel) Send(ctx context.Context, brand *models.Brand, msg *Message) error {
	m, err := e.buildMessage(brand, msg)
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- e.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *EmailChannel) buildMessage(brand *models.Brand, msg *Message) (*gomail.Message, error) {
	htmlBody, err := buildEmailHTML(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to build email HTML: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", brand.Channels.Email.Recipients...)
	m.SetHeader("Subject", fmt.Sprintf("%s %s (keyword: %s)", msg.Glyph, msg.Summary(), msg.Keyword))
	m.SetBody("text/plain", buildEmailText(msg))
	m.AddAlternative("text/html", htmlBody)
	return m, nil
}

var emailTemplate = template.Must(template.New("email").Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.BrandName}} mention</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: {{.Color}}; color: white; padding: 20px; border-radius: 5px; }
        .meta { background-color: #f5f5f5; padding: 15px; margin: 20px 0; border-radius: 5px; }
        .mention { border-left: 4px solid {{.Color}}; padding: 10px; margin: 10px 0; background-color: #fafafa; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.Glyph}} New {{.Label}} mention of {{.BrandName}}</h1>
        <p>Detected on {{.DetectedAt.Format "January 2, 2006 at 3:04 PM UTC"}}</p>
    </div>

    <div class="meta">
        <p><strong>Keyword:</strong> {{.Keyword}}</p>
        <p><strong>Sentiment:</strong> {{.Label}} ({{.Sentiment.Score}})</p>
        <p><strong>Subreddit:</strong> r/{{.Container}}</p>
        <p><strong>Author:</strong> u/{{.Author}}</p>
    </div>

    <div class="mention">
        {{if .Title}}<p><strong>{{.Title}}</strong></p>{{end}}
        <p>{{.Excerpt}}</p>
        <p><a href="{{.URL}}" target="_blank">View on Reddit</a></p>
    </div>

    <hr>
    <p><small>This alert was generated automatically by the Brand Mentions Bot.</small></p>
</body>
</html>
`))

func buildEmailHTML(msg *Message) (string, error) {
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, msg); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func buildEmailText(msg *Message) string {
	var text strings.Builder

	text.WriteString(fmt.Sprintf("%s\n", msg.Summary()))
	text.WriteString(fmt.Sprintf("Detected: %s\n\n", msg.DetectedAt.Format("2006-01-02 15:04:05 UTC")))

	text.WriteString(fmt.Sprintf("Keyword: %s\n", msg.Keyword))
	text.WriteString(fmt.Sprintf("Sentiment: %s %s (%d)\n", msg.Glyph, msg.Label, msg.Sentiment.Score))
	text.WriteString(fmt.Sprintf("Subreddit: r/%s | Author: u/%s\n", msg.Container, msg.Author))
	if msg.Title != "" {
		text.WriteString(fmt.Sprintf("Title: %s\n", msg.Title))
	}
	text.WriteString(fmt.Sprintf("\n%s\n\n", msg.Excerpt))
	text.WriteString(fmt.Sprintf("URL: %s\n", msg.URL))

	text.WriteString("\n---\nThis alert was generated automatically by the Brand Mentions Bot.\n")
	return text.String()
}
