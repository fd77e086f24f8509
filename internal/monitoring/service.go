package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/azure/brand-mentions-bot/internal/brands"
	"github.com/azure/brand-mentions-bot/internal/config"
	"github.com/azure/brand-mentions-bot/internal/matching"
	"github.com/azure/brand-mentions-bot/internal/models"
	"github.com/azure/brand-mentions-bot/internal/notifications"
	"github.com/azure/brand-mentions-bot/internal/sentiment"
	"github.com/azure/brand-mentions-bot/internal/sources"
	"github.com/azure/brand-mentions-bot/internal/storage"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrRunInProgress is returned when a run for the same content kind is already active
var ErrRunInProgress = errors.New("polling run already in progress")

// ErrBudgetExhausted is returned when a run stops early at a checkpoint
var ErrBudgetExhausted = errors.New("run budget exhausted")

// Stage is the pipeline position of a polling run
type Stage string

const (
	StageStart  Stage = "START"
	StageFetch  Stage = "FETCH"
	StageMatch  Stage = "MATCH_AND_PERSIST"
	StageScore  Stage = "SCORE_PENDING"
	StageNotify Stage = "NOTIFY"
	StageDone   Stage = "DONE"
	StageError  Stage = "ERROR"
)

const alertCritical = "critical"

// Deps are the collaborators of the polling pipeline
type Deps struct {
	Feed     sources.FeedClient
	Brands   brands.Provider
	Store    storage.MentionStore
	Cursors  storage.CursorStore
	Archive  storage.Archive
	Notifier notifications.Notifier
	Alerter  notifications.OperatorAlerter
	Scorer   *sentiment.Scorer
	Clock    clockwork.Clock
}

// Service runs the fetch, match, score and notify pipeline
type Service struct {
	config   *config.Config
	feed     sources.FeedClient
	brands   brands.Provider
	store    storage.MentionStore
	cursors  storage.CursorStore
	archive  storage.Archive
	notifier notifications.Notifier
	alerter  notifications.OperatorAlerter
	scorer   *sentiment.Scorer
	clock    clockwork.Clock
	running  map[models.ContentKind]*atomic.Bool
	metrics  *Metrics
	mu       sync.RWMutex
}

// Metrics holds monitoring metrics
type Metrics struct {
	TotalMentions      int                    `json:"total_mentions"`
	TotalNotified      int                    `json:"total_notified"`
	LastRun            time.Time              `json:"last_run"`
	LastRunDuration    string                 `json:"last_run_duration"`
	LastRuns           map[string]*RunSummary `json:"last_runs"`
	SentimentBreakdown map[string]int         `json:"sentiment_breakdown"`
	ErrorCount         int                    `json:"error_count"`
}

// RunSummary describes the outcome of one polling run
type RunSummary struct {
	Kind           models.ContentKind `json:"kind"`
	Stage          Stage              `json:"stage"`
	FailedStage    Stage              `json:"failed_stage,omitempty"`
	Fetched        int                `json:"fetched"`
	Skipped        int                `json:"skipped"`
	Matched        int                `json:"matched"`
	Inserted       int                `json:"inserted"`
	Duplicates     int                `json:"duplicates"`
	Scored         int                `json:"scored"`
	Notified       int                `json:"notified"`
	NotifyFailures int                `json:"notify_failures"`
	Gaps           int                `json:"gaps"`
	Sentiment      map[string]int     `json:"sentiment,omitempty"`
	Errors         []string           `json:"errors,omitempty"`
	StartedAt      time.Time          `json:"started_at"`
	Duration       time.Duration      `json:"duration"`
}

func (r *RunSummary) addError(err error) {
	r.Errors = append(r.Errors, err.Error())
}

type brandMatcher struct {
	brand   *models.Brand
	matcher *matching.Matcher
}

// NewService creates a new monitoring service
func NewService(cfg *config.Config, deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Scorer == nil {
		deps.Scorer = sentiment.Default()
	}

	return &Service{
		config:   cfg,
		feed:     deps.Feed,
		brands:   deps.Brands,
		store:    deps.Store,
		cursors:  deps.Cursors,
		archive:  deps.Archive,
		notifier: deps.Notifier,
		alerter:  deps.Alerter,
		scorer:   deps.Scorer,
		clock:    deps.Clock,
		running: map[models.ContentKind]*atomic.Bool{
			models.ContentKindComment: {},
			models.ContentKindPost:    {},
		},
		metrics: &Metrics{
			LastRuns:           make(map[string]*RunSummary),
			SentimentBreakdown: make(map[string]int),
		},
	}
}

// RunComments polls the recent comment stream
func (s *Service) RunComments(ctx context.Context) (*RunSummary, error) {
	return s.RunPolling(ctx, models.ContentKindComment)
}

// RunPosts searches posts for every tracked keyword
func (s *Service) RunPosts(ctx context.Context) (*RunSummary, error) {
	return s.RunPolling(ctx, models.ContentKindPost)
}

// RunPolling executes one pipeline run for kind. At most one run per kind is
// active at a time; an overlapping call returns ErrRunInProgress.
func (s *Service) RunPolling(ctx context.Context, kind models.ContentKind) (summary *RunSummary, err error) {
	guard, ok := s.running[kind]
	if !ok {
		return nil, fmt.Errorf("unsupported content kind %q", kind)
	}
	if !guard.CompareAndSwap(false, true) {
		pipelineRunsTotal.WithLabelValues(string(kind), "skipped").Inc()
		return nil, ErrRunInProgress
	}
	defer guard.Store(false)

	start := s.clock.Now()
	summary = &RunSummary{
		Kind:      kind,
		Stage:     StageStart,
		Sentiment: make(map[string]int),
		StartedAt: start.UTC(),
	}
	entry := logrus.WithField("kind", kind)
	entry.Info("Starting polling run")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("polling run panicked during %s: %v", summary.Stage, r)
		}
		summary.Duration = s.clock.Since(start)
		if err != nil {
			entry.Errorf("Polling run failed during %s: %v", summary.Stage, err)
			summary.addError(err)
			summary.FailedStage = summary.Stage
			summary.Stage = StageError
		} else {
			summary.Stage = StageDone
		}
		s.finish(summary)
	}()

	if s.config.RunBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RunBudget)
		defer cancel()
	}

	brandList, err := s.brands.ListBrands(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to load brands: %w", err)
	}
	if len(brandList) == 0 {
		entry.Warn("No brands configured, nothing to poll")
		return summary, nil
	}

	summary.Stage = StageFetch
	items, complete, err := s.fetch(ctx, kind, brandList, summary)
	if err != nil {
		if sources.IsAuthorization(err) {
			s.raiseAuthAlert(ctx, kind, err)
		}
		return summary, err
	}

	summary.Stage = StageMatch
	if err := s.matchAndPersist(ctx, kind, items, brandList, complete, summary); err != nil {
		return summary, err
	}

	summary.Stage = StageScore
	scored, err := s.scorePending(ctx, kind, summary)
	if err != nil {
		return summary, err
	}

	summary.Stage = StageNotify
	if err := s.notify(ctx, scored, summary); err != nil {
		return summary, err
	}

	entry.Infof("Polling run completed in %v: fetched=%d matched=%d inserted=%d scored=%d notified=%d",
		s.clock.Since(start), summary.Fetched, summary.Matched, summary.Inserted, summary.Scored, summary.Notified)
	return summary, nil
}

// fetch returns the items to match. Comments older than the stored cursor are
// dropped. Search results are kept whole and left to UpsertMention to dedupe.
// complete is false when any post search failed.
func (s *Service) fetch(ctx context.Context, kind models.ContentKind, brandList []*models.Brand, summary *RunSummary) (items []models.ContentItem, complete bool, err error) {
	cursor, err := s.cursors.GetCursor(ctx, cursorName(kind))
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s cursor: %w", kind, err)
	}

	complete = true
	switch kind {
	case models.ContentKindComment:
		page, err := s.feed.FetchRecent(ctx, s.config.FetchLimit)
		if err != nil {
			return nil, false, fmt.Errorf("failed to fetch recent comments: %w", err)
		}
		s.checkGap(kind, page, cursor, s.config.FetchLimit, summary)
		items = page

	case models.ContentKindPost:
		containers := s.config.SearchSubreddits
		if len(containers) == 0 {
			containers = []string{""}
		}

		for _, keyword := range distinctKeywords(brandList) {
			for _, container := range containers {
				page, err := s.feed.Search(ctx, keyword, s.config.SearchLimit, container)
				if err != nil {
					if sources.IsAuthorization(err) || ctx.Err() != nil {
						return nil, false, fmt.Errorf("failed to search posts for %q: %w", keyword, err)
					}
					complete = false
					logrus.WithFields(logrus.Fields{
						"keyword":   keyword,
						"container": container,
					}).Errorf("Post search failed, skipping keyword: %v", err)
					summary.addError(fmt.Errorf("search %q: %w", keyword, err))
					continue
				}
				s.checkGap(kind, page, cursor, s.config.SearchLimit, summary)
				items = append(items, page...)
			}
		}
	}

	items = dedupeItems(items)
	summary.Fetched = len(items)

	if kind != models.ContentKindComment {
		logrus.WithField("kind", kind).Infof("Fetched %d items", summary.Fetched)
		return items, complete, nil
	}

	fresh := items[:0]
	for _, item := range items {
		if !cursor.IsZero() && item.CreatedAt.Before(cursor) {
			summary.Skipped++
			continue
		}
		fresh = append(fresh, item)
	}

	logrus.WithField("kind", kind).Infof("Fetched %d items (%d older than cursor %s)",
		summary.Fetched, summary.Skipped, cursor.Format(time.RFC3339))
	return fresh, complete, nil
}

// checkGap flags a full page whose oldest item is still newer than the cursor,
// meaning older unseen items may have scrolled past.
func (s *Service) checkGap(kind models.ContentKind, page []models.ContentItem, cursor time.Time, limit int, summary *RunSummary) {
	if cursor.IsZero() || len(page) < limit {
		return
	}

	oldest := page[0].CreatedAt
	for _, item := range page[1:] {
		if item.CreatedAt.Before(oldest) {
			oldest = item.CreatedAt
		}
	}

	if oldest.After(cursor) {
		summary.Gaps++
		feedGapsTotal.WithLabelValues(string(kind)).Inc()
		logrus.WithFields(logrus.Fields{
			"kind":   kind,
			"cursor": cursor.Format(time.RFC3339),
			"oldest": oldest.Format(time.RFC3339),
		}).Warn("Possible feed gap: full page is newer than stored cursor")
	}
}

func (s *Service) matchAndPersist(ctx context.Context, kind models.ContentKind, items []models.ContentItem, brandList []*models.Brand, advance bool, summary *RunSummary) error {
	matchers := make([]brandMatcher, 0, len(brandList))
	for _, b := range brandList {
		m := matching.Compile(b.KeywordTexts())
		if m.Len() == 0 {
			continue
		}
		matchers = append(matchers, brandMatcher{brand: b, matcher: m})
	}

	results := make([][]*models.Mention, len(items))
	var g errgroup.Group
	g.SetLimit(max(s.config.MatchWorkers, 1))
	for i := range items {
		i := i
		g.Go(func() error {
			results[i] = s.matchItem(items[i], matchers)
			return nil
		})
	}
	_ = g.Wait()

	var newest time.Time
	for i, found := range results {
		for _, mention := range found {
			summary.Matched++

			if err := checkpoint(ctx); err != nil {
				return err
			}

			writeCtx, cancel := s.writeContext(ctx)
			stored, created, err := s.store.UpsertMention(writeCtx, mention)
			cancel()
			if err != nil {
				return fmt.Errorf("failed to store mention of %s for content %s: %w", mention.BrandID, mention.ContentID, err)
			}

			if !created {
				summary.Duplicates++
				continue
			}

			summary.Inserted++
			mentionsDetectedTotal.WithLabelValues(string(kind), stored.BrandID).Inc()
			logrus.WithFields(logrus.Fields{
				"mention_id": stored.ID,
				"brand_id":   stored.BrandID,
				"keyword":    stored.KeywordMatched,
				"content_id": stored.ContentID,
			}).Info("New mention detected")
		}

		if items[i].CreatedAt.After(newest) {
			newest = items[i].CreatedAt
		}
	}

	if newest.IsZero() {
		return nil
	}
	if !advance {
		logrus.WithField("kind", kind).Warn("Keeping cursor in place after failed searches")
		return nil
	}

	writeCtx, cancel := s.writeContext(ctx)
	defer cancel()
	if err := s.cursors.UpdateCursor(writeCtx, cursorName(kind), newest); err != nil {
		return fmt.Errorf("failed to advance %s cursor: %w", kind, err)
	}
	return nil
}

// matchItem returns one mention per brand whose keywords occur in the item
func (s *Service) matchItem(item models.ContentItem, matchers []brandMatcher) []*models.Mention {
	text := item.Text()
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var found []*models.Mention
	for _, bm := range matchers {
		keyword, ok := bm.matcher.Match(text)
		if !ok {
			continue
		}
		found = append(found, &models.Mention{
			ID:               uuid.NewString(),
			BrandID:          bm.brand.ID,
			KeywordMatched:   keyword,
			ContentID:        item.ID,
			Kind:             item.Kind,
			Title:            item.Title,
			Content:          item.Body,
			Author:           item.Author,
			SourceContainer:  item.Container,
			SourceURL:        item.URL,
			ContentCreatedAt: item.CreatedAt,
			CreatedAt:        s.clock.Now().UTC(),
		})
	}
	return found
}

func (s *Service) scorePending(ctx context.Context, kind models.ContentKind, summary *RunSummary) ([]*models.Mention, error) {
	pending, err := s.store.FindUnprocessed(ctx, kind, s.config.ScoreBatchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to load unprocessed %s mentions: %w", kind, err)
	}

	var scored []*models.Mention
	for _, m := range pending {
		if err := checkpoint(ctx); err != nil {
			return scored, err
		}

		result := s.scorer.Score(mentionText(m))

		writeCtx, cancel := s.writeContext(ctx)
		flipped, err := s.store.UpdateSentiment(writeCtx, m.ID, result)
		cancel()
		if err != nil {
			logrus.WithField("mention_id", m.ID).Errorf("Failed to store sentiment: %v", err)
			summary.addError(fmt.Errorf("score %s: %w", m.ID, err))
			continue
		}
		if !flipped {
			continue
		}

		m.Sentiment = &result
		m.IsProcessed = true
		scored = append(scored, m)
		summary.Scored++
		summary.Sentiment[string(result.Label)]++
		mentionsScoredTotal.WithLabelValues(string(result.Label)).Inc()
	}

	return scored, nil
}

func (s *Service) notify(ctx context.Context, scored []*models.Mention, summary *RunSummary) error {
	for i, m := range scored {
		if err := checkpoint(ctx); err != nil {
			ids := make([]string, 0, len(scored)-i)
			for _, rest := range scored[i:] {
				ids = append(ids, rest.ID)
			}
			logrus.WithField("mention_ids", ids).Warnf("Run budget exhausted, %d scored mentions not notified", len(ids))
			return err
		}

		if err := s.notifier.Notify(ctx, m.BrandID, m); err != nil {
			summary.NotifyFailures++
			logrus.WithFields(logrus.Fields{
				"mention_id": m.ID,
				"brand_id":   m.BrandID,
			}).Errorf("Notification failed: %v", err)
			continue
		}
		summary.Notified++
	}
	return nil
}

func (s *Service) raiseAuthAlert(ctx context.Context, kind models.ContentKind, cause error) {
	if s.alerter == nil {
		return
	}

	alert := &models.Alert{
		ID:        uuid.NewString(),
		Type:      alertCritical,
		Title:     "Feed authorization failed",
		Message:   fmt.Sprintf("Polling %s stopped: %v. Check the Reddit API credentials.", kind, cause),
		CreatedAt: s.clock.Now().UTC(),
	}

	alertCtx, cancel := s.writeContext(ctx)
	defer cancel()
	if err := s.alerter.SendAlert(alertCtx, alert); err != nil {
		logrus.Errorf("Failed to send authorization alert: %v", err)
	}
}

// finish records metrics and archives the summary
func (s *Service) finish(summary *RunSummary) {
	status := "success"
	if summary.Stage == StageError {
		status = "error"
	}
	pipelineRunsTotal.WithLabelValues(string(summary.Kind), status).Inc()
	pipelineRunDuration.WithLabelValues(string(summary.Kind)).Observe(summary.Duration.Seconds())

	s.updateMetrics(summary)
	s.archiveSummary(summary)
}

func (s *Service) updateMetrics(summary *RunSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := *summary
	s.metrics.LastRun = summary.StartedAt
	s.metrics.LastRunDuration = summary.Duration.String()
	s.metrics.LastRuns[string(summary.Kind)] = &snapshot
	s.metrics.TotalMentions += summary.Inserted
	s.metrics.TotalNotified += summary.Notified
	s.metrics.ErrorCount += len(summary.Errors)
	for label, n := range summary.Sentiment {
		s.metrics.SentimentBreakdown[label] += n
	}
}

func (s *Service) archiveSummary(summary *RunSummary) {
	if s.archive == nil {
		return
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		logrus.Errorf("Failed to marshal run summary: %v", err)
		return
	}

	ctx, cancel := s.writeContext(context.Background())
	defer cancel()
	if err := s.archive.Store(ctx, ArchiveName(summary), data); err != nil {
		logrus.Errorf("Failed to archive run summary: %v", err)
	}
}

// GetMetrics returns current metrics as JSON
func (s *Service) GetMetrics() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, _ := json.MarshalIndent(s.metrics, "", "  ")
	return string(data)
}

// writeContext detaches a write from run cancellation and bounds it instead
func (s *Service) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.config.StoreWriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

// ArchiveName is the archive path of a run summary
func ArchiveName(summary *RunSummary) string {
	return fmt.Sprintf("runs/%s/%s.json", summary.Kind, summary.StartedAt.UTC().Format("20060102T150405Z"))
}

func checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBudgetExhausted, err)
	}
	return nil
}

func cursorName(kind models.ContentKind) string {
	return string(kind) + "s"
}

func mentionText(m *models.Mention) string {
	if m.Kind == models.ContentKindComment || m.Title == "" {
		return m.Content
	}
	if m.Content == "" {
		return m.Title
	}
	return m.Title + "\n" + m.Content
}

// distinctKeywords returns every keyword across brands once, case-insensitively, in first-seen order
func distinctKeywords(brandList []*models.Brand) []string {
	seen := make(map[string]bool)
	var out []string
	for _, b := range brandList {
		for _, kw := range b.KeywordTexts() {
			key := strings.ToLower(kw)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, kw)
		}
	}
	return out
}

func dedupeItems(items []models.ContentItem) []models.ContentItem {
	seen := make(map[string]bool, len(items))
	out := make([]models.ContentItem, 0, len(items))
	for _, item := range items {
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		out = append(out, item)
	}
	return out
}
