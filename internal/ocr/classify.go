package ocr

import (
	"net/http"
	"strings"
	"unicode/utf8"
)

// Category is the user-facing classification of an OCR failure
type Category string

const (
	InvalidCredential Category = "invalid_credential"
	PermissionDenied  Category = "permission_denied"
	ModelUnavailable  Category = "model_unavailable"
	RateLimited       Category = "rate_limited"
	NetworkError      Category = "network_error"
	ContentBlocked    Category = "content_blocked"
	UnknownError      Category = "unknown_error"
	// NoTextFound means every backend answered but none returned text
	NoTextFound Category = "no_text_found"
)

// maxRawLength bounds the raw provider message shown for unknown errors
const maxRawLength = 100

type rule struct {
	category Category
	statuses []int
	patterns []string // lower case
}

// rules is evaluated in order; the first match wins. A known HTTP status
// decides before any message pattern.
var rules = []rule{
	{
		category: InvalidCredential,
		statuses: []int{http.StatusUnauthorized},
		patterns: []string{"api_key_invalid", "api key not valid", "invalid api key", "invalid_api_key", "incorrect api key", "api key expired", "unauthenticated", "unauthorized", "api key required"},
	},
	{
		category: PermissionDenied,
		statuses: []int{http.StatusForbidden},
		patterns: []string{"403", "permission_denied", "permission denied"},
	},
	{
		category: ModelUnavailable,
		statuses: []int{http.StatusNotFound},
		patterns: []string{"404", "not found", "not_found"},
	},
	{
		category: RateLimited,
		statuses: []int{http.StatusTooManyRequests},
		patterns: []string{"429", "resource_exhausted", "quota", "rate limit", "rate_limit", "ratelimit", "too many requests"},
	},
	{
		category: NetworkError,
		patterns: []string{"network", "failed to fetch", "fetch failed", "enotfound", "no such host", "connection refused", "connection reset", "dial tcp", "i/o timeout", "tls handshake timeout"},
	},
	{
		category: ContentBlocked,
		patterns: []string{"safety", "blocked", "prohibited_content"},
	},
}

// Classify maps a raw provider error message and HTTP status (0 when
// unknown) to a Category.
func Classify(rawMessage string, httpStatus int) Category {
	if httpStatus != 0 {
		for _, r := range rules {
			for _, s := range r.statuses {
				if httpStatus == s {
					return r.category
				}
			}
		}
	}
	lower := strings.ToLower(rawMessage)
	for _, r := range rules {
		for _, p := range r.patterns {
			if containsPattern(lower, p) {
				return r.category
			}
		}
	}
	return UnknownError
}

// containsPattern matches numeric patterns such as "403" only as a whole
// number, so "Used 29403" is not a status code.
func containsPattern(s, pattern string) bool {
	if !isDigits(pattern) {
		return strings.Contains(s, pattern)
	}
	for i := 0; ; {
		idx := strings.Index(s[i:], pattern)
		if idx < 0 {
			return false
		}
		start, end := i+idx, i+idx+len(pattern)
		if (start == 0 || !isDigit(s[start-1])) && (end == len(s) || !isDigit(s[end])) {
			return true
		}
		i = start + 1
	}
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return s != ""
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// Message returns the text shown to the user for a failure
func Message(c Category, raw string) string {
	switch c {
	case InvalidCredential:
		return "Invalid API key. Check the key and try again."
	case PermissionDenied:
		return "The API key does not have permission. Make sure the Gemini API is enabled for the project."
	case ModelUnavailable:
		return "All models are currently unavailable. Try again later."
	case RateLimited:
		return "Usage limit exceeded after several attempts. Wait a few minutes and try again."
	case NetworkError:
		return "Connection error. Check your internet connection."
	case ContentBlocked:
		return "The content was blocked for safety reasons. Try another image."
	case NoTextFound:
		return "No text was detected in the uploaded image."
	default:
		return "Error: " + truncate(raw, maxRawLength)
	}
}

// InvalidatesCredential reports whether c means the stored key must be dropped
func (c Category) InvalidatesCredential() bool {
	return c == InvalidCredential || c == PermissionDenied
}

// HTTPStatus is the status the API answers with for c
func (c Category) HTTPStatus() int {
	switch c {
	case InvalidCredential:
		return http.StatusUnauthorized
	case PermissionDenied:
		return http.StatusForbidden
	case ModelUnavailable:
		return http.StatusServiceUnavailable
	case RateLimited:
		return http.StatusTooManyRequests
	case NetworkError:
		return http.StatusBadGateway
	case ContentBlocked, NoTextFound:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
