package crawler

import (
	"context"
	"errors"
	"fmt"

	"github.com/lukemcguire/termcrawl/result"
)

// Fetcher retrieves a page and parses it into plain text and outgoing links.
// Implementations report every failure (network, HTTP status, parsing) as an
// error; the crawler treats all of them as a skipped page.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Page, error)
}

// FetcherFunc adapts a plain function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, rawURL string) (*Page, error)

// Fetch calls f(ctx, rawURL).
func (f FetcherFunc) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	return f(ctx, rawURL)
}

// Page is a fetched and parsed document.
type Page struct {
	URL   string // Final URL after redirects
	Text  string // Visible body text
	Links []Link // Anchors in document order
}

// Link is an anchor found on a page.
type Link struct {
	Href string // Raw href attribute value
	URL  string // Absolute URL the href resolves to
}

var (
	// ErrUnsupportedScheme is returned for URLs that are not http or https.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")
	// ErrUnsupportedContent is returned for responses that are not text documents.
	ErrUnsupportedContent = errors.New("unsupported content type")
	// ErrDisallowed is returned when robots.txt forbids fetching a URL.
	ErrDisallowed = errors.New("disallowed by robots.txt")
	// ErrRedirectLoop is returned when a redirect chain revisits a URL or runs too long.
	ErrRedirectLoop = errors.New("redirect loop")
)

// StatusError reports an HTTP response with an error status code.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.StatusCode)
}

// classifyFetchError maps a fetch failure to a reporting category.
func classifyFetchError(err error) result.ErrorCategory {
	switch {
	case errors.Is(err, ErrDisallowed):
		return result.CategoryDisallowed
	case errors.Is(err, ErrUnsupportedScheme), errors.Is(err, ErrUnsupportedContent):
		return result.CategoryUnsupported
	case errors.Is(err, ErrRedirectLoop):
		return result.CategoryRedirectLoop
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return result.ClassifyError(err, statusErr.StatusCode)
	}
	return result.ClassifyError(err, 0)
}
