// Package provider defines the boundary types and interfaces for the
// external capabilities the pipeline composes: vision identification, OCR,
// shopping search, and listing text generation.
package provider

import (
	"context"
	"fmt"
	"unicode/utf8"
)

// MaxAttributes bounds the free-form attribute list on an identification.
const MaxAttributes = 10

// Identification is the structured result of identifying an item from
// photos. Empty string means unknown.
type Identification struct {
	Label      string   `json:"label"`
	Brand      string   `json:"brand"`
	Model      string   `json:"model"`
	Color      string   `json:"color"`
	Category   string   `json:"category"`
	Attributes []string `json:"attributes"`
	Confidence float64  `json:"confidence"`
}

// Hints carry optional context into a vision call.
type Hints struct {
	OCRText    string
	PriorLabel string
}

// OCRResult is the extracted text of one image.
type OCRResult struct {
	FullText string `json:"fullText"`
	HasText  bool   `json:"hasText"`
	Model    string `json:"model"`
}

// PriceItem is one comparable listing from a shopping search. Extracted is
// the parsed numeric price; zero means unparseable.
type PriceItem struct {
	Title     string  `json:"title"`
	Source    string  `json:"source"`
	Price     string  `json:"price"`
	Extracted float64 `json:"-"`
	Link      string  `json:"link,omitempty"`
}

// ListingText is the generated description pair.
type ListingText struct {
	DescriptionLong  string `json:"description_long"`
	DescriptionShort string `json:"description_short"`
}

// VisionClient identifies an item from one or more photos.
type VisionClient interface {
	Detect(ctx context.Context, images [][]byte, hints Hints) (Identification, error)
}

// OCRClient extracts printed text from an image.
type OCRClient interface {
	ExtractText(ctx context.Context, image []byte) (OCRResult, error)
}

// ShoppingClient searches comparable listings for a query.
type ShoppingClient interface {
	Search(ctx context.Context, query string) ([]PriceItem, error)
}

// TextModel writes listing copy from a prompt pair and returns strict JSON
// parsed into ListingText.
type TextModel interface {
	WriteListing(ctx context.Context, system, user string) (ListingText, error)
}

// Error wraps a failed capability call with its origin and HTTP status.
// Status 0 means the call never produced a response.
type Error struct {
	Provider string
	Status   int
	Err      error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the failure is worth retrying: transport
// errors and server-side failures are, client errors are not.
func (e *Error) Retryable() bool {
	return e.Status == 0 || e.Status >= 500
}

// ClampConfidence forces a confidence into [0, 1]. NaN clamps to 0.
func ClampConfidence(c float64) float64 {
	if !(c >= 0) {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// ClampBytes caps s at n bytes without splitting a UTF-8 sequence: the cut
// backs up to the nearest rune boundary.
func ClampBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Sanitize normalizes an identification received from an external model:
// confidence clamped, attribute list bounded.
func Sanitize(id Identification) Identification {
	id.Confidence = ClampConfidence(id.Confidence)
	if len(id.Attributes) > MaxAttributes {
		id.Attributes = id.Attributes[:MaxAttributes]
	}
	return id
}
