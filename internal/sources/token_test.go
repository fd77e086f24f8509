package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedditTokenProvider_IsEnabled(t *testing.T) {
	tests := []struct {
		name         string
		clientID     string
		clientSecret string
		expected     bool
	}{
		{name: "Both credentials provided", clientID: "id", clientSecret: "secret", expected: true},
		{name: "Missing client ID", clientSecret: "secret", expected: false},
		{name: "Missing client secret", clientID: "id", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewRedditTokenProvider(RedditCredentials{ClientID: tt.clientID, ClientSecret: tt.clientSecret}, "http://unused", resty.New(), nil)
			assert.Equal(t, tt.expected, p.IsEnabled())
		})
	}
}

func TestRedditTokenProvider_CachesUntilNearExpiry(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "id", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		fmt.Fprintf(w, `{"access_token":"token-%d","token_type":"bearer","expires_in":3600}`, n)
	}))
	defer server.Close()

	clock := clockwork.NewFakeClock()
	p := NewRedditTokenProvider(RedditCredentials{ClientID: "id", ClientSecret: "secret"}, server.URL, resty.New(), clock)

	token, err := p.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)

	token, err = p.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)

	clock.Advance(59 * time.Minute)
	token, err = p.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-2", token)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRedditTokenProvider_PasswordGrant(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.PostForm.Get("grant_type"))
		assert.Equal(t, "bot", r.PostForm.Get("username"))
		fmt.Fprint(w, `{"access_token":"pw-token","expires_in":3600}`)
	}))
	defer server.Close()

	creds := RedditCredentials{ClientID: "id", ClientSecret: "secret", Username: "bot", Password: "hunter2"}
	p := NewRedditTokenProvider(creds, server.URL, resty.New(), nil)

	token, err := p.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pw-token", token)
}

func TestRedditTokenProvider_ConcurrentCallersShareRefresh(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		fmt.Fprint(w, `{"access_token":"shared","expires_in":3600}`)
	}))
	defer server.Close()

	p := NewRedditTokenProvider(RedditCredentials{ClientID: "id", ClientSecret: "secret"}, server.URL, resty.New(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := p.AccessToken(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "shared", token)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestRedditTokenProvider_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected ErrorKind
	}{
		{name: "Bad client credentials", status: http.StatusUnauthorized, body: `{}`, expected: KindAuthorization},
		{name: "Invalid grant", status: http.StatusOK, body: `{"error":"invalid_grant"}`, expected: KindAuthorization},
		{name: "Bad request", status: http.StatusBadRequest, body: `{}`, expected: KindAuthorization},
		{name: "Server error", status: http.StatusBadGateway, body: `oops`, expected: KindTransient},
		{name: "Garbage body", status: http.StatusOK, body: `not json`, expected: KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			p := NewRedditTokenProvider(RedditCredentials{ClientID: "id", ClientSecret: "secret"}, server.URL, resty.New(), nil)
			_, err := p.AccessToken(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.expected, KindOf(err))
		})
	}
}

func TestRedditTokenProvider_MissingCredentials(t *testing.T) {
	p := NewRedditTokenProvider(RedditCredentials{}, "http://unused", resty.New(), nil)
	_, err := p.AccessToken(context.Background())
	assert.True(t, IsAuthorization(err))
}

func TestRedditTokenProvider_Invalidate(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"access_token":"t","expires_in":3600}`)
	}))
	defer server.Close()

	p := NewRedditTokenProvider(RedditCredentials{ClientID: "id", ClientSecret: "secret"}, server.URL, resty.New(), nil)
	_, err := p.AccessToken(context.Background())
	require.NoError(t, err)

	p.Invalidate()
	_, err = p.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}
