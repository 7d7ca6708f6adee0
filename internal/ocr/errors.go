package ocr

import (
	"errors"
	"fmt"
)

var (
	ErrNoModels   = errors.New("at least one OCR model is required")
	ErrEmptyImage = errors.New("no image provided")
)

// Error is the single terminal failure surfaced by Extract
type Error struct {
	Category Category
	Model    string
	Raw      string
	Attempts []Attempt
	Err      error
}

func (e *Error) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("ocr failed (%s) on model %s: %s", e.Category, e.Model, e.Raw)
	}
	return fmt.Sprintf("ocr failed (%s): %s", e.Category, e.Raw)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message is the user-facing description of the failure
func (e *Error) Message() string {
	return Message(e.Category, e.Raw)
}

// CategoryOf returns the category of an ocr *Error, or UnknownError
func CategoryOf(err error) Category {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Category
	}
	return UnknownError
}
