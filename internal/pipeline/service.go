// Package pipeline orchestrates the scan and listing flows: quota gating,
// two-pass identification, normalization, pricing, generation, and the
// result cache.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/antoinelm/listful/internal/cache"
	"github.com/antoinelm/listful/internal/listing"
	"github.com/antoinelm/listful/internal/metrics"
	"github.com/antoinelm/listful/internal/normalize"
	"github.com/antoinelm/listful/internal/pricing"
	"github.com/antoinelm/listful/internal/provider"
	"github.com/antoinelm/listful/internal/storage"
)

// Identifier runs the two-pass identification protocol.
type Identifier interface {
	Identify(ctx context.Context, images [][]byte) (provider.Identification, provider.OCRResult, error)
}

// PriceEstimator computes a market estimate for a query and re-aggregates
// already-fetched samples once the user has confirmed specs.
type PriceEstimator interface {
	Estimate(ctx context.Context, query string) (pricing.Estimate, error)
	Recalculate(samples []provider.PriceItem, specs pricing.RefinedSpecs) *int
}

// ListingWriter produces finished listing copy.
type ListingWriter interface {
	Generate(ctx context.Context, req listing.Request) listing.Result
}

// QuotaAuthority decides whether a user may consume one generation.
type QuotaAuthority interface {
	CheckAndConsume(userID int64) (storage.QuotaSnapshot, bool, error)
}

// HistoryStore records generated listings per user.
type HistoryStore interface {
	AddHistory(userID int64, entry storage.HistoryEntry) error
	History(userID int64) ([]storage.HistoryEntry, error)
}

// Config tunes caching behavior.
type Config struct {
	VisionCacheTTL time.Duration
	PriceCacheTTL  time.Duration
	// CacheMinConfidence gates scan-result caching: low-confidence
	// identifications are recomputed rather than pinned for an hour.
	CacheMinConfidence float64
}

// Service wires the pipeline steps together. All operations consume one
// generation from the user's quota before doing any provider work.
type Service struct {
	identifier Identifier
	estimator  PriceEstimator
	generator  ListingWriter
	cache      cache.Store
	quota      QuotaAuthority
	history    HistoryStore
	cfg        Config
}

func NewService(
	identifier Identifier,
	estimator PriceEstimator,
	generator ListingWriter,
	store cache.Store,
	quota QuotaAuthority,
	history HistoryStore,
	cfg Config,
) *Service {
	return &Service{
		identifier: identifier,
		estimator:  estimator,
		generator:  generator,
		cache:      store,
		quota:      quota,
		history:    history,
		cfg:        cfg,
	}
}

// ScanResult is the full outcome of one photo scan.
type ScanResult struct {
	Identification provider.Identification `json:"identification"`
	Normalized     normalize.Result        `json:"normalized"`
	OCR            provider.OCRResult      `json:"ocr"`
	Pricing        pricing.Estimate        `json:"pricing"`
	Query          string                  `json:"query,omitempty"`
	Quota          storage.QuotaSnapshot   `json:"quota"`
	Cached         bool                    `json:"cached,omitempty"`
}

// DescribeRequest is the text-only generation input.
type DescribeRequest struct {
	Title     string
	Condition string
	Platform  string
	Lang      string
	Currency  string
	Color     string
	PriceHint *float64
	Specs     pricing.RefinedSpecs
	Hints     listing.Hints
	Options   listing.Options
	Template  bool
}

// DescribeResult is the text-only generation output.
type DescribeResult struct {
	RoundedPrice *int                  `json:"roundedPrice"`
	Description  string                `json:"description"`
	Quota        storage.QuotaSnapshot `json:"quota"`
}

// ListingRequest is the post-scan generation input. RawScan, when present,
// enriches the prompt and supplies a price candidate.
type ListingRequest struct {
	Title     string
	Condition string
	Platform  string
	Lang      string
	Currency  string
	Color     string
	PriceHint *float64
	Specs     pricing.RefinedSpecs
	Hints     listing.Hints
	Options   listing.Options
	Template  bool
	RawScan   *ScanResult
}

// ListingResult is the post-scan generation output.
type ListingResult struct {
	Price       *int                  `json:"price"`
	Currency    string                `json:"currency"`
	Description string                `json:"description"`
	Quota       storage.QuotaSnapshot `json:"quota"`
}

// hashImages creates a SHA256 hash from image data. A length prefix per
// image prevents boundary collisions (e.g. [A,B] vs [AB]).
func hashImages(images [][]byte) string {
	h := sha256.New()
	for _, img := range images {
		binary.Write(h, binary.LittleEndian, int64(len(img)))
		h.Write(img)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Service) consume(userID int64) (storage.QuotaSnapshot, error) {
	snap, allowed, err := s.quota.CheckAndConsume(userID)
	if err != nil {
		return snap, fmt.Errorf("quota check failed: %w", err)
	}
	if !allowed {
		if metrics.QuotaDeniedTotal != nil {
			metrics.QuotaDeniedTotal.Inc()
		}
		return snap, &QuotaExceededError{Quota: snap}
	}
	return snap, nil
}

// Scan identifies the item on the submitted photos, normalizes the label,
// and estimates a market price. The quota is consumed before any provider
// call; a cached scan still consumes one generation.
func (s *Service) Scan(ctx context.Context, userID int64, images [][]byte) (*ScanResult, error) {
	snap, err := s.consume(userID)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, errNoImages()
	}

	key := cache.KeyVision(hashImages(images))
	if v, ok := s.cache.Get(key); ok {
		if cached, ok := v.(ScanResult); ok {
			metrics.ObserveCache("vision", true)
			out := cached
			out.Cached = true
			out.Quota = snap
			return &out, nil
		}
	}
	metrics.ObserveCache("vision", false)

	id, ocrResult, err := s.identifier.Identify(ctx, images)
	if err != nil {
		if metrics.ScansTotal != nil {
			metrics.ScansTotal.WithLabelValues("failure").Inc()
		}
		return nil, err
	}

	norm := normalize.Normalize(nil, id.Label)
	if id.Brand == "" {
		id.Brand = norm.Brand
	}
	if id.Color == "" {
		id.Color = norm.Color
	}
	if norm.Label != "" {
		id.Label = norm.Label
	}

	query := pricing.BuildQuery(id, ocrResult.FullText)
	estimate := s.estimatePrice(ctx, query)

	result := ScanResult{
		Identification: id,
		Normalized:     norm,
		OCR:            ocrResult,
		Pricing:        estimate,
		Query:          query,
		Quota:          snap,
	}

	// Do not pin results for a caller that has already gone away.
	if id.Confidence > s.cfg.CacheMinConfidence && ctx.Err() == nil {
		s.cache.Set(key, result, s.cfg.VisionCacheTTL)
	}
	if metrics.ScansTotal != nil {
		metrics.ScansTotal.WithLabelValues("success").Inc()
	}
	return &result, nil
}

// estimatePrice runs the shopping lookup with its own cache layer. Price
// lookup is a best-effort refinement: failures log and return an empty
// estimate instead of failing the scan.
func (s *Service) estimatePrice(ctx context.Context, query string) pricing.Estimate {
	if query == "" {
		return pricing.Estimate{Currency: "EUR"}
	}

	key := cache.KeyPrice(query)
	if v, ok := s.cache.Get(key); ok {
		if cached, ok := v.(pricing.Estimate); ok {
			metrics.ObserveCache("price", true)
			return cached
		}
	}
	metrics.ObserveCache("price", false)

	start := time.Now()
	estimate, err := s.estimator.Estimate(ctx, query)
	metrics.ObserveProvider("shopping", time.Since(start).Seconds(), err)
	if err != nil {
		log.Warn().Err(err).Str("query", query).Msg("price lookup failed, continuing without estimate")
		return pricing.Estimate{Currency: "EUR"}
	}

	// Only estimates that actually produced a median are worth pinning.
	if estimate.Median != nil && ctx.Err() == nil {
		s.cache.Set(key, estimate, s.cfg.PriceCacheTTL)
	}
	return estimate
}

// Describe generates listing copy from text input alone.
func (s *Service) Describe(ctx context.Context, userID int64, req DescribeRequest) (*DescribeResult, error) {
	snap, err := s.consume(userID)
	if err != nil {
		return nil, err
	}
	if req.Title == "" {
		return nil, errMissingTitle()
	}

	gen := s.generator.Generate(ctx, listing.Request{
		Title:     req.Title,
		Condition: req.Condition,
		Platform:  req.Platform,
		Lang:      req.Lang,
		Currency:  req.Currency,
		Color:     req.Color,
		Specs:     req.Specs,
		Hints:     req.Hints,
		Options:   req.Options,
		Template:  req.Template,
		PriceHint: req.PriceHint,
	})

	s.record(userID, gen)

	return &DescribeResult{
		RoundedPrice: gen.Price,
		Description:  gen.Description,
		Quota:        snap,
	}, nil
}

// Listing generates listing copy after a scan, reusing the scan's pricing
// when the caller gives no explicit hint.
func (s *Service) Listing(ctx context.Context, userID int64, req ListingRequest) (*ListingResult, error) {
	snap, err := s.consume(userID)
	if err != nil {
		return nil, err
	}
	if req.Title == "" {
		return nil, errMissingTitle()
	}

	hints := req.Hints
	var scanMedian *float64
	if req.RawScan != nil {
		if hints.Label == "" {
			hints.Label = req.RawScan.Identification.Label
		}
		if hints.OCRText == "" {
			hints.OCRText = req.RawScan.OCR.FullText
		}
		scanMedian = req.RawScan.Pricing.Median
		// Confirmed specs sharpen the estimate: re-aggregate the scan's own
		// samples instead of trusting the unfiltered median.
		if refined := s.estimator.Recalculate(req.RawScan.Pricing.Samples, req.Specs); refined != nil {
			v := float64(*refined)
			scanMedian = &v
		}
	}

	gen := s.generator.Generate(ctx, listing.Request{
		Title:      req.Title,
		Condition:  req.Condition,
		Platform:   req.Platform,
		Lang:       req.Lang,
		Currency:   req.Currency,
		Color:      req.Color,
		Specs:      req.Specs,
		Hints:      hints,
		Options:    req.Options,
		Template:   req.Template,
		PriceHint:  req.PriceHint,
		ScanMedian: scanMedian,
	})

	s.record(userID, gen)

	return &ListingResult{
		Price:       gen.Price,
		Currency:    gen.Currency,
		Description: gen.Description,
		Quota:       snap,
	}, nil
}

// History returns the user's stored listings. Reads are free: no quota.
func (s *Service) History(userID int64) ([]storage.HistoryEntry, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.History(userID)
}

func (s *Service) record(userID int64, gen listing.Result) {
	if s.history == nil {
		return
	}
	err := s.history.AddHistory(userID, storage.HistoryEntry{
		Title:       gen.Title,
		Description: gen.Description,
		Price:       gen.Price,
		Currency:    gen.Currency,
	})
	if err != nil {
		log.Warn().Err(err).Int64("userID", userID).Msg("failed to record listing history")
	}
}
