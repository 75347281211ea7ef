package urlutil

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNotAbsolute is returned by Normalize for URLs without scheme or host.
var ErrNotAbsolute = errors.New("URL must have both scheme and host")

// Normalize returns a canonical form of rawURL so that trivially different
// spellings of the same page compare equal:
//   - scheme and host are lowercased
//   - default ports (:80 for http, :443 for https) are dropped
//   - an empty path becomes "/"
//   - trailing slashes are stripped except for the root path
//   - the fragment is removed; the query is kept as is
func Normalize(rawURL string) (string, error) {
	if rawURL == "" {
		return "", errors.New("cannot normalize empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("normalize URL %q: %w", rawURL, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("normalize URL %q: %w", rawURL, ErrNotAbsolute)
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	if port := parsed.Port(); (parsed.Scheme == "http" && port == "80") || (parsed.Scheme == "https" && port == "443") {
		parsed.Host = strings.TrimSuffix(parsed.Host, ":"+port)
	}

	parsed.Fragment = ""
	parsed.RawFragment = ""

	switch {
	case parsed.Path == "":
		parsed.Path = "/"
		parsed.RawPath = ""
	case parsed.Path != "/" && strings.HasSuffix(parsed.Path, "/"):
		parsed.Path = strings.TrimRight(parsed.Path, "/")
		parsed.RawPath = ""
		if parsed.Path == "" {
			parsed.Path = "/"
		}
	}

	return parsed.String(), nil
}
