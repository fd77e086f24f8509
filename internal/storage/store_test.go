package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/azure/brand-mentions-bot/internal/models"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storeUnderTest interface {
	MentionStore
	CursorStore
	GetMention(ctx context.Context, id string) (*models.Mention, error)
}

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()

	store, err := OpenSQLStore(ctx, DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Migrate(ctx))
	return store
}

func stores(t *testing.T) map[string]storeUnderTest {
	return map[string]storeUnderTest{
		"memory": NewMemoryStore(nil),
		"sqlite": newSQLiteStore(t),
	}
}

func sampleMention(brandID, contentID string) *models.Mention {
	return &models.Mention{
		BrandID:          brandID,
		KeywordMatched:   "acme",
		ContentID:        contentID,
		Kind:             models.ContentKindComment,
		Content:          "acme is great",
		Author:           "alice",
		SourceContainer:  "golang",
		SourceURL:        "https://www.reddit.com/r/golang/comments/x/y/" + contentID,
		ContentCreatedAt: time.Unix(1700000000, 0).UTC(),
	}
}

func TestUpsertMention_Idempotent(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first, created, err := store.UpsertMention(ctx, sampleMention("brand-1", "c1"))
			require.NoError(t, err)
			assert.True(t, created)
			assert.NotEmpty(t, first.ID)
			assert.False(t, first.IsProcessed)

			dup := sampleMention("brand-1", "c1")
			dup.KeywordMatched = "other"
			second, created, err := store.UpsertMention(ctx, dup)
			require.NoError(t, err)
			assert.False(t, created)
			assert.Equal(t, first.ID, second.ID)
			assert.Equal(t, "acme", second.KeywordMatched)

			// same content for another brand is a separate mention
			other, created, err := store.UpsertMention(ctx, sampleMention("brand-2", "c1"))
			require.NoError(t, err)
			assert.True(t, created)
			assert.NotEqual(t, first.ID, other.ID)

			pending, err := store.FindUnprocessed(ctx, models.ContentKindComment, 10)
			require.NoError(t, err)
			assert.Len(t, pending, 2)
		})
	}
}

func TestUpsertMention_RequiresKey(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, _, err := store.UpsertMention(context.Background(), &models.Mention{BrandID: "b"})
			assert.Error(t, err)
		})
	}
}

func TestUpsertMention_ConcurrentWritersProduceOneRow(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			var wg sync.WaitGroup
			var mu sync.Mutex
			createdCount := 0
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, created, err := store.UpsertMention(ctx, sampleMention("brand-1", "race"))
					assert.NoError(t, err)
					if created {
						mu.Lock()
						createdCount++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, 1, createdCount)
			pending, err := store.FindUnprocessed(ctx, models.ContentKindComment, 10)
			require.NoError(t, err)
			assert.Len(t, pending, 1)
		})
	}
}

func TestFindUnprocessed_FiltersAndOrders(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

			for i, id := range []string{"c3", "c1", "c2"} {
				m := sampleMention("brand-1", id)
				m.CreatedAt = base.Add(time.Duration(3-i) * time.Minute)
				_, _, err := store.UpsertMention(ctx, m)
				require.NoError(t, err)
			}
			post := sampleMention("brand-1", "p1")
			post.Kind = models.ContentKindPost
			_, _, err := store.UpsertMention(ctx, post)
			require.NoError(t, err)

			pending, err := store.FindUnprocessed(ctx, models.ContentKindComment, 2)
			require.NoError(t, err)
			require.Len(t, pending, 2)
			assert.Equal(t, "c2", pending[0].ContentID)
			assert.Equal(t, "c1", pending[1].ContentID)

			posts, err := store.FindUnprocessed(ctx, models.ContentKindPost, 10)
			require.NoError(t, err)
			require.Len(t, posts, 1)
			assert.Equal(t, "p1", posts[0].ContentID)
		})
	}
}

func TestUpdateSentiment_OnlyOnce(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			m, _, err := store.UpsertMention(ctx, sampleMention("brand-1", "c1"))
			require.NoError(t, err)

			updated, err := store.UpdateSentiment(ctx, m.ID, models.SentimentResult{Score: 3, Label: models.SentimentPositive})
			require.NoError(t, err)
			assert.True(t, updated)

			updated, err = store.UpdateSentiment(ctx, m.ID, models.SentimentResult{Score: -3, Label: models.SentimentNegative})
			require.NoError(t, err)
			assert.False(t, updated)

			stored, err := store.GetMention(ctx, m.ID)
			require.NoError(t, err)
			assert.True(t, stored.IsProcessed)
			require.NotNil(t, stored.Sentiment)
			assert.Equal(t, models.SentimentResult{Score: 3, Label: models.SentimentPositive}, *stored.Sentiment)
			assert.NotNil(t, stored.ProcessedAt)

			pending, err := store.FindUnprocessed(ctx, models.ContentKindComment, 10)
			require.NoError(t, err)
			assert.Empty(t, pending)
		})
	}
}

func TestUpdateSentiment_UnknownID(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			updated, err := store.UpdateSentiment(context.Background(), "missing", models.SentimentResult{})
			require.NoError(t, err)
			assert.False(t, updated)
		})
	}
}

func TestGetMention_NotFound(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.GetMention(context.Background(), "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestCursor_OnlyAdvances(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			cursor, err := store.GetCursor(ctx, "comments")
			require.NoError(t, err)
			assert.True(t, cursor.IsZero())

			mark := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
			require.NoError(t, store.UpdateCursor(ctx, "comments", mark))
			require.NoError(t, store.UpdateCursor(ctx, "comments", mark.Add(-time.Hour)))

			cursor, err = store.GetCursor(ctx, "comments")
			require.NoError(t, err)
			assert.True(t, mark.Equal(cursor))

			require.NoError(t, store.UpdateCursor(ctx, "comments", mark.Add(time.Minute)))
			cursor, err = store.GetCursor(ctx, "comments")
			require.NoError(t, err)
			assert.True(t, mark.Add(time.Minute).Equal(cursor))
		})
	}
}

func TestSQLStore_Rebind(t *testing.T) {
	pg := NewSQLStore(nil, DriverPostgres, nil)
	assert.Equal(t, "SELECT a FROM t WHERE b = $1 AND c = $2", pg.rebind("SELECT a FROM t WHERE b = ? AND c = ?"))

	lite := NewSQLStore(nil, DriverSQLite, nil)
	assert.Equal(t, "SELECT ? ", lite.rebind("SELECT ? "))
}

func TestOpenSQLStore_UnsupportedDriver(t *testing.T) {
	_, err := OpenSQLStore(context.Background(), "mysql", "")
	assert.Error(t, err)
}

func TestMemoryStore_UsesClock(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	store := NewMemoryStore(clock)

	m, _, err := store.UpsertMention(context.Background(), sampleMention("b", "c"))
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), m.CreatedAt)

}

func TestMemoryStore_Archive(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(nil)

	require.NoError(t, store.Store(ctx, "runs/post/2.json", []byte(`{"kind":"post"}`)))
	require.NoError(t, store.Store(ctx, "runs/comment/1.json", []byte("{}")))

	names, err := store.List(ctx, "runs/")
	require.NoError(t, err)
	assert.Equal(t, []string{"runs/comment/1.json", "runs/post/2.json"}, names)

	names, err = store.List(ctx, "runs/post/")
	require.NoError(t, err)
	assert.Equal(t, []string{"runs/post/2.json"}, names)

	data, err := store.Retrieve(ctx, "runs/post/2.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"post"}`, string(data))

	_, err = store.Retrieve(ctx, "runs/missing.json")
	assert.ErrorIs(t, err, ErrArchiveNotFound)
}
