package pipeline

import (
	"fmt"

	"github.com/antoinelm/listful/internal/storage"
)

// QuotaExceededError signals that the user's daily generation allowance is
// exhausted. It carries the quota snapshot so callers can show usage and
// the next reset time.
type QuotaExceededError struct {
	Quota storage.QuotaSnapshot
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily generation quota exceeded (%d/%d)", e.Quota.Used, e.Quota.Max)
}

// ValidationError reports rejected input. Code is a stable machine-readable
// token such as "no_images" or "missing_title".
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Code
}

func errNoImages() *ValidationError {
	return &ValidationError{Code: "no_images", Message: "at least one image is required"}
}

func errMissingTitle() *ValidationError {
	return &ValidationError{Code: "missing_title", Message: "title is required"}
}
