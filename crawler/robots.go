package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// robotsBodyLimit caps how much of a robots.txt file is read.
const robotsBodyLimit = 512 * 1024

// robotsEntry is a cached robots.txt for one host. A nil data field allows
// everything (missing file, server error or fetch failure).
type robotsEntry struct {
	data      *robotstxt.RobotsData
	fetchedAt time.Time
}

func (e *robotsEntry) allows(path, userAgent string) bool {
	if e.data == nil {
		return true
	}
	return e.data.TestAgent(path, userAgent)
}

// RobotsChecker fetches and caches robots.txt rules per host. It fails
// open: any problem obtaining the rules allows the URL and is returned as
// an error for reporting.
type RobotsChecker struct {
	client   *http.Client
	cache    sync.Map // scheme://host -> *robotsEntry
	cacheTTL time.Duration
}

// NewRobotsChecker creates a RobotsChecker with the given HTTP client.
func NewRobotsChecker(client *http.Client) *RobotsChecker {
	return &RobotsChecker{
		client:   client,
		cacheTTL: time.Hour,
	}
}

// Allowed reports whether userAgent may fetch rawURL.
func (r *RobotsChecker) Allowed(ctx context.Context, rawURL, userAgent string) (bool, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return true, fmt.Errorf("parse URL: %w", err)
	}
	if parsed.Host == "" {
		return true, nil
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}

	key := parsed.Scheme + "://" + parsed.Host
	if cached, ok := r.cache.Load(key); ok {
		if entry, ok := cached.(*robotsEntry); ok && time.Since(entry.fetchedAt) < r.cacheTTL {
			return entry.allows(path, userAgent), nil
		}
		r.cache.Delete(key)
	}

	data, fetchErr := r.fetch(ctx, key+"/robots.txt")
	entry := &robotsEntry{data: data, fetchedAt: time.Now()}
	r.cache.Store(key, entry)

	if fetchErr != nil {
		return true, fmt.Errorf("robots.txt for %s: %w", parsed.Host, fetchErr)
	}
	return entry.allows(path, userAgent), nil
}

// fetch downloads and parses one robots.txt. A nil result with a nil error
// means the host has no usable rules.
func (r *RobotsChecker) fetch(ctx context.Context, robotsURL string) (*robotstxt.RobotsData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, robotsBodyLimit))
	closeErr := resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("read body: %w", readErr)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close body: %w", closeErr)
	}

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode >= 500 {
		return nil, nil
	}

	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return data, nil
}
