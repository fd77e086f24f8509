package sources

import (
	"context"

	"github.com/azure/brand-mentions-bot/internal/models"
)

// FeedClient is the contract for the content feed API
type FeedClient interface {
	FetchRecent(ctx context.Context, limit int) ([]models.ContentItem, error)
	Search(ctx context.Context, query string, limit int, container string) ([]models.ContentItem, error)
}

// TokenProvider supplies bearer tokens; implementations cache and refresh internally
type TokenProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

// invalidator is implemented by token providers that can drop a rejected token
type invalidator interface {
	Invalidate()
}
