package notifications

import (
	"context"
	"fmt"

	"github.com/azure/brand-mentions-bot/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

var alertColors = map[string]string{
	"critical": "d13438",
	"urgent":   "ff8c00",
	"info":     "0078d4",
}

// OpsNotifier sends operator alerts to a Teams webhook, or only logs them
// when no webhook is configured
type OpsNotifier struct {
	client     *resty.Client
	webhookURL string
}

// Ensure OpsNotifier implements OperatorAlerter
var _ OperatorAlerter = (*OpsNotifier)(nil)

// NewOpsNotifier creates the operator alert channel
func NewOpsNotifier(client *resty.Client, webhookURL string) *OpsNotifier {
	return &OpsNotifier{client: client, webhookURL: webhookURL}
}

// SendAlert sends an operator alert
func (o *OpsNotifier) SendAlert(ctx context.Context, alert *models.Alert) error {
	entry := logrus.WithFields(logrus.Fields{
		"alert_id":   alert.ID,
		"alert_type": alert.Type,
	})

	if o.webhookURL == "" {
		entry.Warnf("Operator alert (no webhook configured): %s - %s", alert.Title, alert.Message)
		return nil
	}

	color, ok := alertColors[alert.Type]
	if !ok {
		color = alertColors["info"]
	}

	message := &TeamsMessage{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		ThemeColor: color,
		Summary:    alert.Title,
		Title:      fmt.Sprintf("[%s] %s", alert.Type, alert.Title),
		Text:       alert.Message,
		Sections: []TeamsSection{{
			Facts: []TeamsFact{
				{Name: "Alert ID", Value: alert.ID},
				{Name: "Raised", Value: alert.CreatedAt.Format("2006-01-02 15:04:05 UTC")},
			},
		}},
	}

	if err := postTeams(ctx, o.client, o.webhookURL, message); err != nil {
		entry.Errorf("Failed to send operator alert: %v", err)
		return err
	}

	entry.Infof("Operator alert sent: %s", alert.Title)
	return nil
}
