package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/azure/brand-mentions-bot/internal/models"
	"github.com/azure/brand-mentions-bot/internal/retry"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	redditSiteURL   = "https://www.reddit.com"
	redditPageLimit = 100
)

// RedditOptions tunes the feed client. Zero values fall back to defaults.
type RedditOptions struct {
	BaseURL         string
	UserAgent       string
	RequestSpacing  time.Duration
	MaxRetries      int
	FetchTimeout    time.Duration
	SearchTimeout   time.Duration
	FetchBaseDelay  time.Duration
	SearchBaseDelay time.Duration
	Jitter          time.Duration
}

// DefaultRedditOptions mirrors the upstream quota guidance
func DefaultRedditOptions() RedditOptions {
	return RedditOptions{
		BaseURL:         "https://oauth.reddit.com",
		UserAgent:       "BrandMentionsBot/1.0",
		RequestSpacing:  3 * time.Second,
		MaxRetries:      3,
		FetchTimeout:    25 * time.Second,
		SearchTimeout:   30 * time.Second,
		FetchBaseDelay:  1 * time.Second,
		SearchBaseDelay: 2 * time.Second,
		Jitter:          1 * time.Second,
	}
}

// RedditClient implements FeedClient against the Reddit listing API.
// One instance is shared for the process lifetime; the limiter spacing
// applies across all callers.
type RedditClient struct {
	client       *resty.Client
	tokens       TokenProvider
	limiter      *rate.Limiter
	baseURL      string
	userAgent    string
	fetchPolicy  retry.Policy
	searchPolicy retry.Policy
}

var _ FeedClient = (*RedditClient)(nil)

type redditListing struct {
	Data *struct {
		After    string        `json:"after"`
		Before   string        `json:"before"`
		Children []redditChild `json:"children"`
	} `json:"data"`
}

type redditChild struct {
	Kind string      `json:"kind"`
	Data redditThing `json:"data"`
}

// redditThing covers both t1 (comment) and t3 (post) payloads
type redditThing struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	LinkTitle   string  `json:"link_title"`
	Selftext    string  `json:"selftext"`
	Body        string  `json:"body"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	Permalink   string  `json:"permalink"`
	Created     float64 `json:"created_utc"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
}

// NewRedditClient creates a feed client. The resty client is reused for every call.
func NewRedditClient(client *resty.Client, tokens TokenProvider, opts RedditOptions) *RedditClient {
	def := DefaultRedditOptions()
	if opts.BaseURL == "" {
		opts.BaseURL = def.BaseURL
	}
	if opts.UserAgent == "" {
		opts.UserAgent = def.UserAgent
	}
	if opts.FetchTimeout == 0 {
		opts.FetchTimeout = def.FetchTimeout
	}
	if opts.SearchTimeout == 0 {
		opts.SearchTimeout = def.SearchTimeout
	}

	limit := rate.Inf
	if opts.RequestSpacing > 0 {
		limit = rate.Every(opts.RequestSpacing)
	}

	return &RedditClient{
		client:    client,
		tokens:    tokens,
		limiter:   rate.NewLimiter(limit, 1),
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		userAgent: opts.UserAgent,
		fetchPolicy: retry.Policy{
			MaxRetries:     opts.MaxRetries,
			BaseDelay:      opts.FetchBaseDelay,
			Jitter:         opts.Jitter,
			AttemptTimeout: opts.FetchTimeout,
			OnRetry:        logRetry("fetch_recent"),
		},
		searchPolicy: retry.Policy{
			MaxRetries:     opts.MaxRetries,
			BaseDelay:      opts.SearchBaseDelay,
			Jitter:         opts.Jitter,
			AttemptTimeout: opts.SearchTimeout,
			OnRetry:        logRetry("search"),
		},
	}
}

// FetchRecent returns the newest comments across the site
func (r *RedditClient) FetchRecent(ctx context.Context, limit int) ([]models.ContentItem, error) {
	return r.listing(ctx, "fetch_recent", "/r/all/comments", url.Values{}, limit, r.fetchPolicy)
}

// Search returns posts matching query as an exact phrase, newest first.
// An empty container searches the whole site.
func (r *RedditClient) Search(ctx context.Context, query string, limit int, container string) ([]models.ContentItem, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf("%q", query))
	params.Set("sort", "new")
	params.Set("t", "month")
	params.Set("syntax", "lucene")

	path := "/search"
	if container != "" {
		path = "/r/" + url.PathEscape(container) + "/search"
		params.Set("restrict_sr", "1")
	} else {
		params.Set("restrict_sr", "0")
	}

	items, err := r.listing(ctx, "search", path, params, limit, r.searchPolicy)
	if err != nil {
		return nil, err
	}
	logrus.Debugf("Search for %q returned %d items", query, len(items))
	return items, nil
}

// listing pages through a listing endpoint; each page is retried independently
func (r *RedditClient) listing(ctx context.Context, op, path string, params url.Values, limit int, policy retry.Policy) ([]models.ContentItem, error) {
	if limit <= 0 {
		limit = redditPageLimit
	}

	var items []models.ContentItem
	after := ""
	for len(items) < limit {
		page := limit - len(items)
		if page > redditPageLimit {
			page = redditPageLimit
		}

		q := cloneValues(params)
		q.Set("limit", strconv.Itoa(page))
		q.Set("raw_json", "1")
		if after != "" {
			q.Set("after", after)
		}

		listing, err := retry.Do(ctx, policy, classify, func(attemptCtx context.Context) (*redditListing, error) {
			return r.get(attemptCtx, op, path, q)
		})
		recordFeedRequest(op, err)
		if err != nil {
			return nil, err
		}

		for _, child := range listing.Data.Children {
			items = append(items, normalize(child))
		}

		after = listing.Data.After
		if after == "" || len(listing.Data.Children) == 0 {
			break
		}
	}

	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (r *RedditClient) get(ctx context.Context, op, path string, q url.Values) (*redditListing, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, transportError(op, err)
	}

	token, err := r.tokens.AccessToken(ctx)
	if err != nil {
		return nil, transportError(op, err)
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetHeader("Authorization", "Bearer "+token).
		SetHeader("User-Agent", r.userAgent).
		SetQueryParamsFromValues(q).
		Get(r.baseURL + path)
	if err != nil {
		return nil, transportError(op, err)
	}

	if resp.StatusCode() != http.StatusOK {
		if resp.StatusCode() == http.StatusUnauthorized {
			if inv, ok := r.tokens.(invalidator); ok {
				inv.Invalidate()
			}
		}
		return nil, statusError(op, resp.StatusCode(), resp.Body())
	}

	var listing redditListing
	if err := json.Unmarshal(resp.Body(), &listing); err != nil {
		return nil, validationError(op, fmt.Errorf("decode listing: %w", err))
	}
	if listing.Data == nil || listing.Data.Children == nil {
		return nil, validationError(op, errors.New("invalid response format: missing data.children"))
	}
	return &listing, nil
}

func normalize(child redditChild) models.ContentItem {
	thing := child.Data

	author := thing.Author
	if author == "" {
		author = "deleted"
	}

	item := models.ContentItem{
		ID:         thing.ID,
		Author:     author,
		Container:  thing.Subreddit,
		URL:        redditSiteURL + thing.Permalink,
		CreatedAt:  time.Unix(int64(thing.Created), 0).UTC(),
		Score:      thing.Score,
		ReplyCount: thing.NumComments,
	}

	if child.Kind == "t1" {
		item.Kind = models.ContentKindComment
		item.Title = thing.LinkTitle
		item.Body = thing.Body
	} else {
		item.Kind = models.ContentKindPost
		item.Title = thing.Title
		item.Body = thing.Selftext
	}
	return item
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}

func logRetry(op string) func(int, error, time.Duration) {
	return func(attempt int, err error, delay time.Duration) {
		fields := logrus.Fields{
			"operation": op,
			"attempt":   attempt,
			"delay":     delay.String(),
			"kind":      KindOf(err),
		}
		if KindOf(err) == KindRateLimited {
			logrus.WithFields(fields).Warn("Rate limit detected, retrying with backoff")
			return
		}
		logrus.WithFields(fields).Warnf("Feed request failed, retrying: %v", err)
	}
}
