package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const tokenRefreshMargin = 60 * time.Second

// RedditCredentials configures the OAuth exchange. Username and Password
// switch the grant from client_credentials to password (script apps).
type RedditCredentials struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
}

// RedditTokenProvider implements TokenProvider against the Reddit OAuth endpoint
type RedditTokenProvider struct {
	creds   RedditCredentials
	authURL string
	client  *resty.Client
	clock   clockwork.Clock

	mu        sync.RWMutex
	token     string
	expiresAt time.Time
	group     singleflight.Group
}

var _ TokenProvider = (*RedditTokenProvider)(nil)

type redditAuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

// NewRedditTokenProvider creates a token provider. authURL is the site root,
// e.g. https://www.reddit.com.
func NewRedditTokenProvider(creds RedditCredentials, authURL string, client *resty.Client, clock clockwork.Clock) *RedditTokenProvider {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RedditTokenProvider{
		creds:   creds,
		authURL: strings.TrimRight(authURL, "/"),
		client:  client,
		clock:   clock,
	}
}

// IsEnabled reports whether credentials are configured
func (p *RedditTokenProvider) IsEnabled() bool {
	return p.creds.ClientID != "" && p.creds.ClientSecret != ""
}

// AccessToken returns the cached token, refreshing it shortly before expiry.
// Concurrent callers share a single refresh.
func (p *RedditTokenProvider) AccessToken(ctx context.Context) (string, error) {
	if token, ok := p.cached(); ok {
		return token, nil
	}

	v, err, _ := p.group.Do("token", func() (interface{}, error) {
		if token, ok := p.cached(); ok {
			return token, nil
		}
		return p.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops the cached token so the next call re-authenticates
func (p *RedditTokenProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = ""
	p.expiresAt = time.Time{}
}

func (p *RedditTokenProvider) cached() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.token == "" || !p.clock.Now().Add(tokenRefreshMargin).Before(p.expiresAt) {
		return "", false
	}
	return p.token, true
}

func (p *RedditTokenProvider) refresh(ctx context.Context) (string, error) {
	const op = "reddit.access_token"

	if !p.IsEnabled() {
		return "", &Error{Kind: KindAuthorization, Op: op, Err: errors.New("missing Reddit API credentials")}
	}

	form := map[string]string{"grant_type": "client_credentials"}
	if p.creds.Username != "" && p.creds.Password != "" {
		form = map[string]string{
			"grant_type": "password",
			"username":   p.creds.Username,
			"password":   p.creds.Password,
		}
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", p.creds.UserAgent).
		SetBasicAuth(p.creds.ClientID, p.creds.ClientSecret).
		SetFormData(form).
		Post(p.authURL + "/api/v1/access_token")
	if err != nil {
		return "", transportError(op, err)
	}

	switch {
	case resp.StatusCode() == http.StatusBadRequest:
		// invalid_grant and friends come back as 400
		return "", &Error{Kind: KindAuthorization, Op: op, StatusCode: resp.StatusCode(), Err: errors.New("invalid credentials")}
	case resp.StatusCode() != http.StatusOK:
		return "", statusError(op, resp.StatusCode(), resp.Body())
	}

	var authResp redditAuthResponse
	if err := json.Unmarshal(resp.Body(), &authResp); err != nil {
		return "", validationError(op, fmt.Errorf("decode token response: %w", err))
	}
	if authResp.Error != "" {
		return "", &Error{Kind: KindAuthorization, Op: op, Err: fmt.Errorf("token endpoint returned %q", authResp.Error)}
	}
	if authResp.AccessToken == "" {
		return "", validationError(op, errors.New("token response has no access_token"))
	}

	expiresIn := time.Duration(authResp.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = time.Hour
	}

	p.mu.Lock()
	p.token = authResp.AccessToken
	p.expiresAt = p.clock.Now().Add(expiresIn)
	p.mu.Unlock()

	logrus.WithField("expires_in", expiresIn).Debug("Obtained Reddit access token")
	return authResp.AccessToken, nil
}
