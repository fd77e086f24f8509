package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers accepted by STORE_DRIVER
const (
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
	StoreDriverMemory   = "memory"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Reddit credentials
	RedditClientID     string
	RedditClientSecret string
	RedditUsername     string
	RedditPassword     string
	RedditUserAgent    string
	RedditAPIURL       string
	RedditAuthURL      string

	// Feed client behavior
	FeedMaxRetries      int
	FeedRequestSpacing  time.Duration
	FeedFetchTimeout    time.Duration
	FeedSearchTimeout   time.Duration
	FeedFetchBaseDelay  time.Duration
	FeedSearchBaseDelay time.Duration
	FeedRetryJitter     time.Duration
	FetchLimit          int
	SearchLimit         int
	SearchSubreddits    []string

	// Schedule configuration
	PollInterval       time.Duration
	PostSearchInterval time.Duration
	EnablePostSearch   bool
	RunBudget          time.Duration

	// Pipeline tuning
	ScoreBatchSize    int
	MatchWorkers      int
	StoreWriteTimeout time.Duration

	// Mention store
	StoreDriver string
	DatabaseURL string

	// Brand settings
	BrandsFile  string
	WatchBrands bool

	// Notification configuration
	NotifyTimeout time.Duration
	ExcerptLength int
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	EmailFrom     string
	OpsWebhookURL string
	PagerEventURL string

	// Azure Storage configuration
	StorageAccount   string
	StorageContainer string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Debug: getBoolEnv("DEBUG", false),

		RedditClientID:     getEnv("REDDIT_CLIENT_ID", ""),
		RedditClientSecret: getEnv("REDDIT_CLIENT_SECRET", ""),
		RedditUsername:     getEnv("REDDIT_USERNAME", ""),
		RedditPassword:     getEnv("REDDIT_PASSWORD", ""),
		RedditUserAgent:    getEnv("REDDIT_USER_AGENT", "BrandMentionsBot/1.0"),
		RedditAPIURL:       getEnv("REDDIT_API_URL", "https://oauth.reddit.com"),
		RedditAuthURL:      getEnv("REDDIT_AUTH_URL", "https://www.reddit.com"),

		FeedMaxRetries:      getIntEnv("FEED_MAX_RETRIES", 3),
		FeedRequestSpacing:  getDurationEnv("FEED_REQUEST_SPACING", 3*time.Second),
		FeedFetchTimeout:    getDurationEnv("FEED_FETCH_TIMEOUT", 25*time.Second),
		FeedSearchTimeout:   getDurationEnv("FEED_SEARCH_TIMEOUT", 30*time.Second),
		FeedFetchBaseDelay:  getDurationEnv("FEED_FETCH_BASE_DELAY", time.Second),
		FeedSearchBaseDelay: getDurationEnv("FEED_SEARCH_BASE_DELAY", 2*time.Second),
		FeedRetryJitter:     getDurationEnv("FEED_RETRY_JITTER", time.Second),
		FetchLimit:          getIntEnv("FETCH_LIMIT", 100),
		SearchLimit:         getIntEnv("SEARCH_LIMIT", 100),
		SearchSubreddits:    getSliceEnv("SEARCH_SUBREDDITS", nil),

		PollInterval:       getDurationEnv("POLL_INTERVAL", 5*time.Minute),
		PostSearchInterval: getDurationEnv("POST_SEARCH_INTERVAL", 30*time.Minute),
		EnablePostSearch:   getBoolEnv("ENABLE_POST_SEARCH", true),
		RunBudget:          getDurationEnv("RUN_BUDGET", 4*time.Minute),

		ScoreBatchSize:    getIntEnv("SCORE_BATCH_SIZE", 50),
		MatchWorkers:      getIntEnv("MATCH_WORKERS", 4),
		StoreWriteTimeout: getDurationEnv("STORE_WRITE_TIMEOUT", 10*time.Second),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreDriverPostgres)),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		BrandsFile:  getEnv("BRANDS_FILE", "brands.yaml"),
		WatchBrands: getBoolEnv("WATCH_BRANDS", true),

		NotifyTimeout: getDurationEnv("NOTIFY_TIMEOUT", 30*time.Second),
		ExcerptLength: getIntEnv("EXCERPT_LENGTH", 300),
		SMTPHost:      getEnv("SMTP_HOST", ""),
		SMTPPort:      getIntEnv("SMTP_PORT", 587),
		SMTPUsername:  getEnv("SMTP_USERNAME", ""),
		SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
		EmailFrom:     getEnv("EMAIL_FROM", ""),
		OpsWebhookURL: getEnv("OPS_WEBHOOK_URL", ""),
		PagerEventURL: getEnv("PAGER_EVENT_URL", ""),

		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "mentions"),
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for missing or inconsistent values
func (c *Config) Validate() error {
	if c.RedditClientID == "" || c.RedditClientSecret == "" {
		return errors.New("REDDIT_CLIENT_ID and REDDIT_CLIENT_SECRET are required")
	}

	if (c.RedditUsername == "") != (c.RedditPassword == "") {
		return errors.New("REDDIT_USERNAME and REDDIT_PASSWORD must be set together")
	}

	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverSQLite:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER is %q", c.StoreDriver)
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be one of postgres, sqlite, memory (got %q)", c.StoreDriver)
	}

	if c.FeedMaxRetries < 0 {
		return errors.New("FEED_MAX_RETRIES must not be negative")
	}

	if c.FetchLimit <= 0 || c.SearchLimit <= 0 || c.ScoreBatchSize <= 0 || c.MatchWorkers <= 0 {
		return errors.New("FETCH_LIMIT, SEARCH_LIMIT, SCORE_BATCH_SIZE and MATCH_WORKERS must be positive")
	}

	if c.PollInterval <= 0 || c.RunBudget <= 0 {
		return errors.New("POLL_INTERVAL and RUN_BUDGET must be positive")
	}

	if c.EnablePostSearch && c.PostSearchInterval <= 0 {
		return errors.New("POST_SEARCH_INTERVAL must be positive when post search is enabled")
	}

	if c.SMTPHost != "" {
		if c.SMTPUsername == "" || c.SMTPPassword == "" || c.EmailFrom == "" {
			return errors.New("SMTP_USERNAME, SMTP_PASSWORD and EMAIL_FROM are required when SMTP_HOST is set")
		}
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
