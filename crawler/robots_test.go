package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRobotsChecker_InitializesDefaults(t *testing.T) {
	client := &http.Client{Timeout: 5 * time.Second}
	checker := NewRobotsChecker(client)

	require.NotNil(t, checker)
	assert.Same(t, client, checker.client)
	assert.Equal(t, time.Hour, checker.cacheTTL)
}

// robotsServer serves body with status at /robots.txt and 200 elsewhere,
// counting robots.txt requests.
func robotsServer(t *testing.T, status int, body string, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			if hits != nil {
				hits.Add(1)
			}
			w.WriteHeader(status)
			if body != "" {
				_, _ = w.Write([]byte(body))
			}
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRobotsChecker_Allowed(t *testing.T) {
	testCases := []struct {
		name       string
		robotsTxt  string
		statusCode int
		path       string
		userAgent  string
		want       bool
	}{
		{
			name:       "disallow specific path",
			robotsTxt:  "User-agent: *\nDisallow: /private/",
			statusCode: http.StatusOK,
			path:       "/private/secret",
			userAgent:  "testbot",
			want:       false,
		},
		{
			name:       "allow public path",
			robotsTxt:  "User-agent: *\nDisallow: /private/",
			statusCode: http.StatusOK,
			path:       "/public/page",
			userAgent:  "testbot",
			want:       true,
		},
		{
			name:       "disallow root covers bare host",
			robotsTxt:  "User-agent: *\nDisallow: /",
			statusCode: http.StatusOK,
			path:       "",
			userAgent:  "testbot",
			want:       false,
		},
		{
			name:       "404 allows all",
			statusCode: http.StatusNotFound,
			path:       "/any/path",
			userAgent:  "testbot",
			want:       true,
		},
		{
			name:       "500 allows all",
			statusCode: http.StatusInternalServerError,
			path:       "/any/path",
			userAgent:  "testbot",
			want:       true,
		},
		{
			name:       "empty robots.txt allows all",
			statusCode: http.StatusOK,
			path:       "/any/path",
			userAgent:  "testbot",
			want:       true,
		},
		{
			name:       "specific user agent disallowed",
			robotsTxt:  "User-agent: EvilBot\nDisallow: /",
			statusCode: http.StatusOK,
			path:       "/page",
			userAgent:  "EvilBot",
			want:       false,
		},
		{
			name:       "other user agent allowed",
			robotsTxt:  "User-agent: EvilBot\nDisallow: /",
			statusCode: http.StatusOK,
			path:       "/page",
			userAgent:  "GoodBot",
			want:       true,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			server := robotsServer(t, testCase.statusCode, testCase.robotsTxt, nil)
			checker := NewRobotsChecker(&http.Client{Timeout: 5 * time.Second})

			got, err := checker.Allowed(context.Background(), server.URL+testCase.path, testCase.userAgent)
			require.NoError(t, err)
			assert.Equal(t, testCase.want, got)
		})
	}
}

func TestRobotsChecker_CacheExpiration(t *testing.T) {
	var hits atomic.Int32
	server := robotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /blocked/", &hits)

	checker := NewRobotsChecker(&http.Client{Timeout: 5 * time.Second})
	checker.cacheTTL = 100 * time.Millisecond

	allowed, err := checker.Allowed(context.Background(), server.URL+"/blocked/page", "testbot")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, int32(1), hits.Load())

	allowed, err = checker.Allowed(context.Background(), server.URL+"/blocked/page2", "testbot")
	require.NoError(t, err)
	assert.False(t, allowed, "cached rules still apply")
	assert.Equal(t, int32(1), hits.Load(), "second check should hit the cache")

	time.Sleep(150 * time.Millisecond)

	allowed, err = checker.Allowed(context.Background(), server.URL+"/blocked/page3", "testbot")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, int32(2), hits.Load(), "expired entry should be refetched")
}

func TestRobotsChecker_TimeoutAllowsAll(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	defer close(release)

	checker := NewRobotsChecker(&http.Client{Timeout: 10 * time.Millisecond})

	allowed, err := checker.Allowed(context.Background(), server.URL+"/any/path", "testbot")
	assert.True(t, allowed, "timeout should fail open")
	assert.Error(t, err, "timeout should still be reported")
}

func TestRobotsChecker_InvalidURL(t *testing.T) {
	checker := NewRobotsChecker(http.DefaultClient)

	allowed, err := checker.Allowed(context.Background(), "http://[::1", "testbot")
	assert.True(t, allowed)
	assert.Error(t, err)

	allowed, err = checker.Allowed(context.Background(), "/relative/only", "testbot")
	assert.True(t, allowed)
	assert.NoError(t, err)
}
