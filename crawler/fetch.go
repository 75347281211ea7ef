package crawler

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/lukemcguire/termcrawl/urlutil"
)

const (
	// DefaultUserAgent identifies termcrawl to the sites it visits.
	DefaultUserAgent = "termcrawl/1.0 (+https://github.com/lukemcguire/termcrawl)"

	// maxRedirects bounds a redirect chain before it counts as a loop.
	maxRedirects = 10
)

// HTTPFetcherConfig controls how pages are requested and parsed.
type HTTPFetcherConfig struct {
	RequestTimeout time.Duration // Per-request timeout (default 10s)
	UserAgent      string        // User-Agent header and robots.txt agent
	RateLimit      int           // Requests per second; 0 adapts to server response times
	TargetRTT      time.Duration // Response time the adaptive limiter aims for
	RespectRobots  bool          // Skip URLs disallowed by robots.txt
	MaxBodyBytes   int64         // Largest body read per page
	NormalizeLinks bool          // Normalize link URLs with urlutil.Normalize
	AllowedHost    string        // When set, only links on this host (or subdomains) are reported
}

// DefaultHTTPFetcherConfig returns an HTTPFetcherConfig with sensible defaults.
func DefaultHTTPFetcherConfig() HTTPFetcherConfig {
	return HTTPFetcherConfig{
		RequestTimeout: 10 * time.Second,
		UserAgent:      DefaultUserAgent,
		TargetRTT:      500 * time.Millisecond,
		MaxBodyBytes:   10 << 20,
	}
}

// HTTPFetcher fetches pages over HTTP and parses them with ExtractPage.
type HTTPFetcher struct {
	cfg     HTTPFetcherConfig
	client  *http.Client
	limiter *AdaptiveLimiter
	robots  *RobotsChecker
}

// NewHTTPFetcher creates an HTTPFetcher. Zero fields in cfg take their
// defaults.
func NewHTTPFetcher(cfg HTTPFetcherConfig) *HTTPFetcher {
	defaults := DefaultHTTPFetcherConfig()
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}
	if cfg.TargetRTT <= 0 {
		cfg.TargetRTT = defaults.TargetRTT
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaults.MaxBodyBytes
	}

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("%w: stopped after %d redirects", ErrRedirectLoop, len(via))
			}
			for _, prev := range via {
				if prev.URL.String() == req.URL.String() {
					return fmt.Errorf("%w: %s", ErrRedirectLoop, req.URL)
				}
			}
			return nil
		},
	}

	limiter := NewAdaptiveLimiter(10, cfg.TargetRTT)
	if cfg.RateLimit > 0 {
		limiter.SetRate(cfg.RateLimit)
	}

	f := &HTTPFetcher{
		cfg:     cfg,
		client:  client,
		limiter: limiter,
	}
	if cfg.RespectRobots {
		// Separate client for robots.txt with shorter timeout
		f.robots = NewRobotsChecker(&http.Client{Timeout: 5 * time.Second})
	}
	return f
}

// Limiter returns the fetcher's rate limiter.
func (f *HTTPFetcher) Limiter() *AdaptiveLimiter {
	return f.limiter
}

// Fetch requests rawURL and returns its body text and links.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (page *Page, err error) {
	if !urlutil.IsHTTPScheme(rawURL) {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, ErrUnsupportedScheme)
	}

	if f.robots != nil {
		// Fail open: an unreadable robots.txt allows the page.
		allowed, _ := f.robots.Allowed(ctx, rawURL, f.cfg.UserAgent)
		if !allowed {
			return nil, fmt.Errorf("fetch %s: %w", rawURL, ErrDisallowed)
		}
	}

	if waitErr := f.limiter.Wait(ctx); waitErr != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", waitErr)
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	started := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close response body: %w", closeErr)
		}
	}()
	f.limiter.ObserveRTT(time.Since(started))

	if resp.StatusCode >= 400 {
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	contentType := resp.Header.Get("Content-Type")
	if isBinaryContentType(contentType) {
		return nil, fmt.Errorf("fetch %s: %w: %s", rawURL, ErrUnsupportedContent, contentType)
	}

	body, err := charset.NewReader(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes), contentType)
	if err != nil {
		return nil, fmt.Errorf("decode body of %s: %w", rawURL, err)
	}

	page, err = ExtractPage(body, resp.Request.URL)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", rawURL, err)
	}
	page.Links = f.filterLinks(page.Links)
	return page, nil
}

// filterLinks applies link normalization and the host restriction.
func (f *HTTPFetcher) filterLinks(links []Link) []Link {
	if !f.cfg.NormalizeLinks && f.cfg.AllowedHost == "" {
		return links
	}

	kept := links[:0]
	for _, link := range links {
		if link.URL == "" || link.Href == "" || strings.HasPrefix(link.Href, "#") {
			kept = append(kept, link)
			continue
		}
		if f.cfg.NormalizeLinks {
			normalized, err := urlutil.Normalize(link.URL)
			if err != nil {
				continue
			}
			link.URL = normalized
		}
		if f.cfg.AllowedHost != "" && !urlutil.IsSameDomain(link.URL, f.cfg.AllowedHost) {
			continue
		}
		kept = append(kept, link)
	}
	return kept
}

// isBinaryContentType reports whether a Content-Type header names a format
// that cannot be read as a text document. A missing or unparseable header is
// treated as HTML.
func isBinaryContentType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	major, minor, _ := strings.Cut(mediaType, "/")
	switch major {
	case "text":
		return false
	case "image", "video", "audio", "font":
		return true
	case "application":
		switch {
		case minor == "xhtml+xml", minor == "xml", minor == "json", minor == "javascript":
			return false
		case strings.HasSuffix(minor, "+xml"), strings.HasSuffix(minor, "+json"):
			return false
		}
		return true
	}
	return false
}
