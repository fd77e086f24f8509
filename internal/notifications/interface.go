package notifications

import (
	"context"

	"github.com/azure/brand-mentions-bot/internal/models"
)

// Notifier delivers a scored mention to the brand's configured channels
type Notifier interface {
	Notify(ctx context.Context, brandID string, mention *models.Mention) error
}

// OperatorAlerter reports systemic failures to the people running the bot
type OperatorAlerter interface {
	SendAlert(ctx context.Context, alert *models.Alert) error
}

// Channel is one outbound notification transport
type Channel interface {
	Name() string
	// Enabled reports whether the brand wants msg on this channel
	Enabled(brand *models.Brand, msg *Message) bool
	Send(ctx context.Context, brand *models.Brand, msg *Message) error
}
