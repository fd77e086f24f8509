package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/azure/brand-mentions-bot/internal/models"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS mentions (
		id                 TEXT PRIMARY KEY,
		brand_id           TEXT NOT NULL,
		keyword_matched    TEXT NOT NULL,
		content_id         TEXT NOT NULL,
		content_kind       TEXT NOT NULL,
		title              TEXT NOT NULL DEFAULT '',
		content            TEXT NOT NULL,
		author             TEXT NOT NULL,
		source_container   TEXT NOT NULL,
		source_url         TEXT NOT NULL,
		sentiment_score    INTEGER,
		sentiment_label    TEXT,
		is_processed       BOOLEAN NOT NULL DEFAULT FALSE,
		content_created_at BIGINT NOT NULL,
		created_at         BIGINT NOT NULL,
		processed_at       BIGINT
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS mentions_brand_content_idx ON mentions (brand_id, content_id)`,
	`CREATE INDEX IF NOT EXISTS mentions_unprocessed_idx ON mentions (is_processed, content_kind, created_at)`,
	`CREATE TABLE IF NOT EXISTS feed_cursors (
		name         TEXT PRIMARY KEY,
		cursor_value BIGINT NOT NULL,
		updated_at   BIGINT NOT NULL
	)`,
}

const mentionColumns = `id, brand_id, keyword_matched, content_id, content_kind, title, content, author,
	source_container, source_url, sentiment_score, sentiment_label, is_processed,
	content_created_at, created_at, processed_at`

// SQLStore implements MentionStore and CursorStore on PostgreSQL or SQLite
type SQLStore struct {
	db     *sql.DB
	driver string
	clock  clockwork.Clock
}

var (
	_ MentionStore = (*SQLStore)(nil)
	_ CursorStore  = (*SQLStore)(nil)
)

// OpenSQLStore connects to the database and verifies the connection. The
// caller should call Close when the store is no longer needed.
func OpenSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if driver == DriverSQLite {
		// one writer; also keeps :memory: databases on a single connection
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return NewSQLStore(db, driver, nil), nil
}

// NewSQLStore wraps an open database handle
func NewSQLStore(db *sql.DB, driver string, clock clockwork.Clock) *SQLStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SQLStore{db: db, driver: driver, clock: clock}
}

// Close closes the underlying database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Migrate creates the tables and indexes if they do not exist
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	logrus.Infof("Mention store schema ready (%s)", s.driver)
	return nil
}

// UpsertMention inserts m, or returns the existing row for the same brand and content
func (s *SQLStore) UpsertMention(ctx context.Context, m *models.Mention) (*models.Mention, bool, error) {
	if m.BrandID == "" || m.ContentID == "" {
		return nil, false, errors.New("mention requires brand ID and content ID")
	}

	row := *m
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = s.clock.Now().UTC()
	}

	var score sql.NullInt64
	var label sql.NullString
	if row.Sentiment != nil {
		score = sql.NullInt64{Int64: int64(row.Sentiment.Score), Valid: true}
		label = sql.NullString{String: string(row.Sentiment.Label), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO mentions (`+mentionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (brand_id, content_id) DO NOTHING`),
		row.ID,
		row.BrandID,
		row.KeywordMatched,
		row.ContentID,
		string(row.Kind),
		row.Title,
		row.Content,
		row.Author,
		row.SourceContainer,
		row.SourceURL,
		score,
		label,
		row.IsProcessed,
		millis(row.ContentCreatedAt),
		millis(row.CreatedAt),
		nullMillis(row.ProcessedAt),
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert mention %s/%s: %w", row.BrandID, row.ContentID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("insert mention rows affected: %w", err)
	}

	stored, err := s.getByKey(ctx, row.BrandID, row.ContentID)
	if err != nil {
		return nil, false, err
	}
	return stored, affected > 0, nil
}

// FindUnprocessed returns up to limit unscored mentions of kind, oldest first
func (s *SQLStore) FindUnprocessed(ctx context.Context, kind models.ContentKind, limit int) ([]*models.Mention, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT `+mentionColumns+`
		FROM mentions
		WHERE is_processed = FALSE AND content_kind = ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?`),
		string(kind), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query unprocessed mentions (kind=%s, limit=%d): %w", kind, limit, err)
	}
	defer rows.Close()

	var mentions []*models.Mention
	for rows.Next() {
		m, err := scanMention(rows)
		if err != nil {
			return nil, err
		}
		mentions = append(mentions, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mentions: %w", err)
	}
	return mentions, nil
}

// UpdateSentiment writes the score and flips is_processed in one statement.
// Rows already processed are left untouched.
func (s *SQLStore) UpdateSentiment(ctx context.Context, id string, result models.SentimentResult) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE mentions
		SET sentiment_score = ?, sentiment_label = ?, is_processed = TRUE, processed_at = ?
		WHERE id = ? AND is_processed = FALSE`),
		result.Score, string(result.Label), millis(s.clock.Now()), id,
	)
	if err != nil {
		return false, fmt.Errorf("update sentiment for %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update sentiment rows affected: %w", err)
	}
	return affected > 0, nil
}

// GetMention looks up a mention by ID
func (s *SQLStore) GetMention(ctx context.Context, id string) (*models.Mention, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+mentionColumns+` FROM mentions WHERE id = ?`), id)
	m, err := scanMention(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// GetCursor returns the saved high-water mark, or the zero time if none exists
func (s *SQLStore) GetCursor(ctx context.Context, name string) (time.Time, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT cursor_value FROM feed_cursors WHERE name = ?`), name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get cursor %s: %w", name, err)
	}
	return time.UnixMilli(value).UTC(), nil
}

// UpdateCursor advances the high-water mark. It never moves backwards.
func (s *SQLStore) UpdateCursor(ctx context.Context, name string, cursor time.Time) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO feed_cursors (name, cursor_value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE
		SET cursor_value = excluded.cursor_value, updated_at = excluded.updated_at
		WHERE feed_cursors.cursor_value < excluded.cursor_value`),
		name, millis(cursor), millis(s.clock.Now()),
	)
	if err != nil {
		return fmt.Errorf("update cursor %s: %w", name, err)
	}
	return nil
}

func (s *SQLStore) getByKey(ctx context.Context, brandID, contentID string) (*models.Mention, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT `+mentionColumns+`
		FROM mentions
		WHERE brand_id = ? AND content_id = ?`),
		brandID, contentID,
	)
	m, err := scanMention(row)
	if err != nil {
		return nil, fmt.Errorf("read mention %s/%s: %w", brandID, contentID, err)
	}
	return m, nil
}

// rebind turns ? placeholders into $n for postgres
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMention(sc scanner) (*models.Mention, error) {
	var (
		m           models.Mention
		kind        string
		score       sql.NullInt64
		label       sql.NullString
		contentAt   int64
		createdAt   int64
		processedAt sql.NullInt64
	)

	err := sc.Scan(
		&m.ID,
		&m.BrandID,
		&m.KeywordMatched,
		&m.ContentID,
		&kind,
		&m.Title,
		&m.Content,
		&m.Author,
		&m.SourceContainer,
		&m.SourceURL,
		&score,
		&label,
		&m.IsProcessed,
		&contentAt,
		&createdAt,
		&processedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Kind = models.ContentKind(kind)
	m.ContentCreatedAt = time.UnixMilli(contentAt).UTC()
	m.CreatedAt = time.UnixMilli(createdAt).UTC()
	if score.Valid && label.Valid {
		m.Sentiment = &models.SentimentResult{Score: int(score.Int64), Label: models.SentimentLabel(label.String)}
	}
	if processedAt.Valid {
		t := time.UnixMilli(processedAt.Int64).UTC()
		m.ProcessedAt = &t
	}
	return &m, nil
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}
