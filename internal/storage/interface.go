package storage

import (
	"context"
	"errors"
	"time"

	"github.com/azure/brand-mentions-bot/internal/models"
)

// ErrNotFound is returned when a mention lookup has no result
var ErrNotFound = errors.New("mention not found")

// ErrArchiveNotFound is returned when an archived artifact does not exist
var ErrArchiveNotFound = errors.New("archived artifact not found")

// MentionStore defines the contract for mention persistence. Implementations
// must enforce uniqueness of (BrandID, ContentID) themselves.
type MentionStore interface {
	// UpsertMention inserts m unless a mention for the same brand and content
	// already exists. It returns the stored mention and whether it was created.
	UpsertMention(ctx context.Context, m *models.Mention) (*models.Mention, bool, error)
	// FindUnprocessed returns unscored mentions of kind, oldest first
	FindUnprocessed(ctx context.Context, kind models.ContentKind, limit int) ([]*models.Mention, error)
	// UpdateSentiment stores result and marks the mention processed. It returns
	// false when the mention was already processed.
	UpdateSentiment(ctx context.Context, id string, result models.SentimentResult) (bool, error)
}

// CursorStore persists per-feed high-water marks
type CursorStore interface {
	GetCursor(ctx context.Context, name string) (time.Time, error)
	UpdateCursor(ctx context.Context, name string, cursor time.Time) error
}

// Archive stores opaque run artifacts
type Archive interface {
	Store(ctx context.Context, name string, data []byte) error
}

// ArchiveReader reads archived artifacts back
type ArchiveReader interface {
	Retrieve(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}
