package result

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrorCategory represents the classification of a failed page fetch.
type ErrorCategory string

const (
	CategoryTimeout           ErrorCategory = "timeout"
	CategoryDNSFailure        ErrorCategory = "dns_failure"
	CategoryConnectionRefused ErrorCategory = "connection_refused"
	Category4xx               ErrorCategory = "4xx"
	Category5xx               ErrorCategory = "5xx"
	CategoryRedirectLoop      ErrorCategory = "redirect_loop"
	CategoryDisallowed        ErrorCategory = "robots_disallowed"
	CategoryUnsupported       ErrorCategory = "unsupported"
	CategoryUnknown           ErrorCategory = "unknown"
)

// CategoryOrder is the display order for failure categories.
var CategoryOrder = []ErrorCategory{
	Category4xx,
	Category5xx,
	CategoryTimeout,
	CategoryDNSFailure,
	CategoryConnectionRefused,
	CategoryRedirectLoop,
	CategoryDisallowed,
	CategoryUnsupported,
	CategoryUnknown,
}

// ClassifyError determines the failure category from a transport error and
// the HTTP status code (0 when no response was received).
func ClassifyError(err error, statusCode int) ErrorCategory {
	if statusCode > 0 {
		if statusCode >= 400 && statusCode <= 499 {
			return Category4xx
		}
		if statusCode >= 500 {
			return Category5xx
		}
	}

	if err == nil {
		return CategoryUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CategoryDNSFailure
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" && strings.Contains(opErr.Error(), "connection refused") {
			return CategoryConnectionRefused
		}
		if opErr.Timeout() {
			return CategoryTimeout
		}
	}

	return CategoryUnknown
}

// FormatCategory returns a human-readable label for an error category.
func FormatCategory(cat ErrorCategory) string {
	switch cat {
	case CategoryTimeout:
		return "Timeouts"
	case CategoryDNSFailure:
		return "DNS Failures"
	case CategoryConnectionRefused:
		return "Connection Refused"
	case Category4xx:
		return "Client Errors (4xx)"
	case Category5xx:
		return "Server Errors (5xx)"
	case CategoryRedirectLoop:
		return "Redirect Loops"
	case CategoryDisallowed:
		return "Blocked by robots.txt"
	case CategoryUnsupported:
		return "Unsupported Content"
	default:
		return "Other Errors"
	}
}
