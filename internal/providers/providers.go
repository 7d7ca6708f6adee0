package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/3ltranslate/legtrans/internal/credentials"
)

// Config represents the configuration for a model call
type Config struct {
	Model       string
	Temperature float64
	Prompt      string
}

// OCRRequest is a single OCR invocation against one model
type OCRRequest struct {
	Config
	Image    []byte
	MIMEType string
	Language string
	// Credentials overrides the backend's own provider for this call
	Credentials credentials.Provider
}

// OCRProvider extracts text from an image
type OCRProvider interface {
	ExtractText(ctx context.Context, req OCRRequest) (string, error)
}

// Translator turns source text into translated text
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// StatusError carries the HTTP status a backend answered with alongside the
// backend's own error text.
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("status %d", e.StatusCode)
	}
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Err.Error())
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// NewStatusError builds a StatusError from a response body
func NewStatusError(code int, body string) *StatusError {
	body = strings.TrimSpace(body)
	if body == "" {
		body = "empty response body"
	}
	return &StatusError{StatusCode: code, Err: errors.New(body)}
}

// StatusCode returns the HTTP status attached to err, or 0
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// StripCodeFences removes a surrounding markdown code block that models
// sometimes wrap plain text in.
func StripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") || !strings.HasSuffix(trimmed, "```") || len(trimmed) < 6 {
		return text
	}
	trimmed = strings.TrimSuffix(strings.TrimPrefix(trimmed, "```"), "```")
	// drop a language tag on the opening fence line
	if idx := strings.Index(trimmed, "\n"); idx != -1 && !strings.ContainsAny(trimmed[:idx], " \t") {
		trimmed = trimmed[idx+1:]
	}
	return strings.TrimSpace(trimmed)
}
