// Package urlutil holds the URL helpers used by the HTTP fetcher and the
// command line: scheme and host checks, reference resolution and
// normalization.
package urlutil

import (
	"fmt"
	"net/url"
	"strings"
)

// IsSameDomain reports whether targetURL is on baseHost or one of its
// subdomains (blog.example.com matches example.com).
func IsSameDomain(targetURL string, baseHost string) bool {
	parsed, err := url.Parse(targetURL)
	if err != nil {
		return false
	}

	host := strings.ToLower(parsed.Hostname())
	baseHost = strings.ToLower(baseHost)

	return host == baseHost || strings.HasSuffix(host, "."+baseHost)
}

// IsHTTPScheme reports whether rawURL parses with an http or https scheme.
func IsHTTPScheme(rawURL string) bool {
	if rawURL == "" {
		return false
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	scheme := strings.ToLower(parsed.Scheme)
	return scheme == "http" || scheme == "https"
}

// Hostname returns the host of rawURL without its port, or "" if rawURL
// does not parse.
func Hostname(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

// ResolveReference resolves an href as found in a document against the
// document's base URL. Surrounding whitespace in href is ignored.
func ResolveReference(base *url.URL, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parse href %q: %w", href, err)
	}
	return base.ResolveReference(ref).String(), nil
}
