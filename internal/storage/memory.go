package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/azure/brand-mentions-bot/internal/models"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var (
	_ MentionStore  = (*MemoryStore)(nil)
	_ CursorStore   = (*MemoryStore)(nil)
	_ Archive       = (*MemoryStore)(nil)
	_ ArchiveReader = (*MemoryStore)(nil)
)

// MemoryStore keeps mentions and cursors in process memory. It is used for
// dry runs and tests and has the same uniqueness semantics as SQLStore.
type MemoryStore struct {
	mu       sync.RWMutex
	clock    clockwork.Clock
	mentions map[string]*models.Mention // by ID
	byKey    map[string]string          // brandID/contentID -> ID
	cursors  map[string]time.Time
	archive  map[string][]byte
}

var (
	_ MentionStore = (*MemoryStore)(nil)
	_ CursorStore  = (*MemoryStore)(nil)
	_ Archive      = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty store
func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryStore{
		clock:    clock,
		mentions: make(map[string]*models.Mention),
		byKey:    make(map[string]string),
		cursors:  make(map[string]time.Time),
		archive:  make(map[string][]byte),
	}
}

func (s *MemoryStore) UpsertMention(ctx context.Context, m *models.Mention) (*models.Mention, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if m.BrandID == "" || m.ContentID == "" {
		return nil, false, errors.New("mention requires brand ID and content ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := m.BrandID + "/" + m.ContentID
	if id, ok := s.byKey[key]; ok {
		return cloneMention(s.mentions[id]), false, nil
	}

	row := cloneMention(m)
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.clock.Now().UTC()
	}

	s.mentions[row.ID] = row
	s.byKey[key] = row.ID
	return cloneMention(row), true, nil
}

func (s *MemoryStore) FindUnprocessed(ctx context.Context, kind models.ContentKind, limit int) ([]*models.Mention, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Mention
	for _, m := range s.mentions {
		if !m.IsProcessed && m.Kind == kind {
			out = append(out, cloneMention(m))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) UpdateSentiment(ctx context.Context, id string, result models.SentimentResult) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.mentions[id]
	if !ok || m.IsProcessed {
		return false, nil
	}

	now := s.clock.Now().UTC()
	sentiment := result
	m.Sentiment = &sentiment
	m.IsProcessed = true
	m.ProcessedAt = &now
	return true, nil
}

// GetMention looks up a mention by ID
func (s *MemoryStore) GetMention(_ context.Context, id string) (*models.Mention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.mentions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMention(m), nil
}

// Mentions returns every stored mention ordered by creation time
func (s *MemoryStore) Mentions() []*models.Mention {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Mention, 0, len(s.mentions))
	for _, m := range s.mentions {
		out = append(out, cloneMention(m))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *MemoryStore) GetCursor(_ context.Context, name string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursors[name], nil
}

func (s *MemoryStore) UpdateCursor(_ context.Context, name string, cursor time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cursor.After(s.cursors[name]) {
		s.cursors[name] = cursor.UTC()
	}
	return nil
}

// Store keeps an archived artifact in memory
func (s *MemoryStore) Store(_ context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archive[name] = append([]byte(nil), data...)
	return nil
}

// Retrieve returns an archived artifact
func (s *MemoryStore) Retrieve(_ context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.archive[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrArchiveNotFound, name)
	}
	return append([]byte(nil), data...), nil
}

// List returns the names of archived artifacts under prefix, sorted
func (s *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.archive))
	for name := range s.archive {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func cloneMention(m *models.Mention) *models.Mention {
	c := *m
	if m.Sentiment != nil {
		s := *m.Sentiment
		c.Sentiment = &s
	}
	if m.ProcessedAt != nil {
		t := *m.ProcessedAt
		c.ProcessedAt = &t
	}
	return &c
}
