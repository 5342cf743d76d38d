package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoinelm/listful/internal/cache"
	"github.com/antoinelm/listful/internal/listing"
	"github.com/antoinelm/listful/internal/pricing"
	"github.com/antoinelm/listful/internal/provider"
	"github.com/antoinelm/listful/internal/storage"
)

type fakeIdentifier struct {
	id    provider.Identification
	ocr   provider.OCRResult
	err   error
	calls int
}

func (f *fakeIdentifier) Identify(_ context.Context, _ [][]byte) (provider.Identification, provider.OCRResult, error) {
	f.calls++
	return f.id, f.ocr, f.err
}

type fakeEstimator struct {
	estimate     pricing.Estimate
	recalculated *int
	err          error
	calls        int
}

func (f *fakeEstimator) Estimate(_ context.Context, _ string) (pricing.Estimate, error) {
	f.calls++
	return f.estimate, f.err
}

func (f *fakeEstimator) Recalculate([]provider.PriceItem, pricing.RefinedSpecs) *int {
	return f.recalculated
}

type fakeGenerator struct {
	result listing.Result
	last   listing.Request
	calls  int
}

func (f *fakeGenerator) Generate(_ context.Context, req listing.Request) listing.Result {
	f.calls++
	f.last = req
	return f.result
}

type fakeQuota struct {
	limit int
	used  int
	calls int
}

func (f *fakeQuota) CheckAndConsume(int64) (storage.QuotaSnapshot, bool, error) {
	f.calls++
	if f.used >= f.limit {
		return storage.QuotaSnapshot{Used: f.used, Max: f.limit, Remaining: 0}, false, nil
	}
	f.used++
	return storage.QuotaSnapshot{Used: f.used, Max: f.limit, Remaining: f.limit - f.used}, true, nil
}

type fakeHistory struct {
	entries []storage.HistoryEntry
	err     error
}

func (f *fakeHistory) AddHistory(_ int64, entry storage.HistoryEntry) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeHistory) History(int64) ([]storage.HistoryEntry, error) {
	return f.entries, f.err
}

func testConfig() Config {
	return Config{
		VisionCacheTTL:     time.Hour,
		PriceCacheTTL:      24 * time.Hour,
		CacheMinConfidence: 0.5,
	}
}

func median(v float64) *float64 { return &v }

func TestScanDeniedWithoutProviderCalls(t *testing.T) {
	identifier := &fakeIdentifier{}
	estimator := &fakeEstimator{}
	quota := &fakeQuota{limit: 0}
	svc := NewService(identifier, estimator, &fakeGenerator{}, cache.NewMemory(), quota, nil, testConfig())

	_, err := svc.Scan(context.Background(), 1, [][]byte{[]byte("img")})
	require.Error(t, err)

	var qerr *QuotaExceededError
	require.True(t, errors.As(err, &qerr))
	assert.Equal(t, 0, qerr.Quota.Remaining)

	// The gate fires before any capability call.
	assert.Equal(t, 0, identifier.calls)
	assert.Equal(t, 0, estimator.calls)
}

func TestScanRejectsEmptyImages(t *testing.T) {
	identifier := &fakeIdentifier{}
	svc := NewService(identifier, &fakeEstimator{}, &fakeGenerator{}, cache.NewMemory(), &fakeQuota{limit: 5}, nil, testConfig())

	_, err := svc.Scan(context.Background(), 1, nil)
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "no_images", verr.Code)
	assert.Equal(t, 0, identifier.calls)
}

func TestScanSuccess(t *testing.T) {
	identifier := &fakeIdentifier{
		id: provider.Identification{
			Label:      "Apple iPhone 13 128Gb",
			Brand:      "Apple",
			Model:      "iPhone 13",
			Confidence: 0.92,
		},
		ocr: provider.OCRResult{FullText: "iPhone 13", HasText: true},
	}
	estimator := &fakeEstimator{estimate: pricing.Estimate{
		Median:      median(437.5),
		Currency:    "EUR",
		SampleCount: 8,
	}}
	svc := NewService(identifier, estimator, &fakeGenerator{}, cache.NewMemory(), &fakeQuota{limit: 5}, nil, testConfig())

	res, err := svc.Scan(context.Background(), 1, [][]byte{[]byte("img")})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, "Apple", res.Identification.Brand)
	assert.Equal(t, "Apple iPhone 13", res.Query)
	require.NotNil(t, res.Pricing.Median)
	assert.Equal(t, 437.5, *res.Pricing.Median)
	assert.Equal(t, 1, res.Quota.Used)
}

func TestScanCacheHitStillConsumesQuota(t *testing.T) {
	identifier := &fakeIdentifier{
		id: provider.Identification{Label: "Apple iPhone 13", Brand: "Apple", Model: "iPhone 13", Confidence: 0.9},
	}
	estimator := &fakeEstimator{estimate: pricing.Estimate{Median: median(440), Currency: "EUR"}}
	quota := &fakeQuota{limit: 5}
	svc := NewService(identifier, estimator, &fakeGenerator{}, cache.NewMemory(), quota, nil, testConfig())

	images := [][]byte{[]byte("img")}
	first, err := svc.Scan(context.Background(), 1, images)
	require.NoError(t, err)
	require.False(t, first.Cached)

	second, err := svc.Scan(context.Background(), 1, images)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, identifier.calls)
	// The cached copy carries the fresh quota snapshot, not the stored one.
	assert.Equal(t, 2, second.Quota.Used)
	assert.Equal(t, 2, quota.calls)
}

func TestScanLowConfidenceNotCached(t *testing.T) {
	identifier := &fakeIdentifier{
		id: provider.Identification{Label: "objet", Confidence: 0.3},
	}
	svc := NewService(identifier, &fakeEstimator{}, &fakeGenerator{}, cache.NewMemory(), &fakeQuota{limit: 5}, nil, testConfig())

	images := [][]byte{[]byte("img")}
	_, err := svc.Scan(context.Background(), 1, images)
	require.NoError(t, err)
	_, err = svc.Scan(context.Background(), 1, images)
	require.NoError(t, err)

	assert.Equal(t, 2, identifier.calls)
}

func TestScanIdentificationFailurePropagates(t *testing.T) {
	identifier := &fakeIdentifier{err: &provider.Error{Provider: "vision", Status: 503, Err: errors.New("down")}}
	estimator := &fakeEstimator{}
	svc := NewService(identifier, estimator, &fakeGenerator{}, cache.NewMemory(), &fakeQuota{limit: 5}, nil, testConfig())

	_, err := svc.Scan(context.Background(), 1, [][]byte{[]byte("img")})
	require.Error(t, err)

	var perr *provider.Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 0, estimator.calls)
}

func TestScanPriceFailureDegrades(t *testing.T) {
	identifier := &fakeIdentifier{
		id: provider.Identification{Label: "Apple iPhone 13", Brand: "Apple", Model: "iPhone 13", Confidence: 0.9},
	}
	estimator := &fakeEstimator{err: errors.New("shopping down")}
	svc := NewService(identifier, estimator, &fakeGenerator{}, cache.NewMemory(), &fakeQuota{limit: 5}, nil, testConfig())

	res, err := svc.Scan(context.Background(), 1, [][]byte{[]byte("img")})
	require.NoError(t, err)
	assert.Nil(t, res.Pricing.Median)
	assert.Equal(t, "EUR", res.Pricing.Currency)
}

func TestPriceCacheOnlyStoresMedians(t *testing.T) {
	identifier := &fakeIdentifier{
		id: provider.Identification{Label: "objet introuvable", Brand: "X", Model: "Y", Confidence: 0.2},
	}
	// No median: the estimate must not be pinned.
	estimator := &fakeEstimator{estimate: pricing.Estimate{Currency: "EUR"}}
	svc := NewService(identifier, estimator, &fakeGenerator{}, cache.NewMemory(), &fakeQuota{limit: 5}, nil, testConfig())

	_, err := svc.Scan(context.Background(), 1, [][]byte{[]byte("a")})
	require.NoError(t, err)
	_, err = svc.Scan(context.Background(), 1, [][]byte{[]byte("b")})
	require.NoError(t, err)

	assert.Equal(t, 2, estimator.calls)
}

func TestPriceCacheHitSkipsEstimator(t *testing.T) {
	identifier := &fakeIdentifier{
		id: provider.Identification{Label: "Apple iPhone 13", Brand: "Apple", Model: "iPhone 13", Confidence: 0.2},
	}
	estimator := &fakeEstimator{estimate: pricing.Estimate{Median: median(440), Currency: "EUR"}}
	svc := NewService(identifier, estimator, &fakeGenerator{}, cache.NewMemory(), &fakeQuota{limit: 5}, nil, testConfig())

	// Low confidence keeps the scan out of the vision cache, but the same
	// query hits the price cache on the second pass.
	_, err := svc.Scan(context.Background(), 1, [][]byte{[]byte("a")})
	require.NoError(t, err)
	res, err := svc.Scan(context.Background(), 1, [][]byte{[]byte("b")})
	require.NoError(t, err)

	assert.Equal(t, 1, estimator.calls)
	require.NotNil(t, res.Pricing.Median)
	assert.Equal(t, 440.0, *res.Pricing.Median)
}

func TestDescribeMissingTitle(t *testing.T) {
	generator := &fakeGenerator{}
	svc := NewService(&fakeIdentifier{}, &fakeEstimator{}, generator, cache.NewMemory(), &fakeQuota{limit: 5}, nil, testConfig())

	_, err := svc.Describe(context.Background(), 1, DescribeRequest{})
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "missing_title", verr.Code)
	assert.Equal(t, 0, generator.calls)
}

func TestDescribeRecordsHistory(t *testing.T) {
	price := 438
	generator := &fakeGenerator{result: listing.Result{
		Title:       "iPhone 13",
		Price:       &price,
		Currency:    "EUR",
		Description: "Je vends mon iPhone 13.",
		Source:      "llm",
	}}
	history := &fakeHistory{}
	svc := NewService(&fakeIdentifier{}, &fakeEstimator{}, generator, cache.NewMemory(), &fakeQuota{limit: 5}, history, testConfig())

	res, err := svc.Describe(context.Background(), 1, DescribeRequest{Title: "iPhone 13"})
	require.NoError(t, err)
	require.NotNil(t, res.RoundedPrice)
	assert.Equal(t, 438, *res.RoundedPrice)
	assert.Equal(t, "Je vends mon iPhone 13.", res.Description)

	require.Len(t, history.entries, 1)
	assert.Equal(t, "iPhone 13", history.entries[0].Title)
}

func TestDescribeSurvivesHistoryFailure(t *testing.T) {
	generator := &fakeGenerator{result: listing.Result{Title: "iPhone 13", Description: "ok"}}
	history := &fakeHistory{err: errors.New("disk full")}
	svc := NewService(&fakeIdentifier{}, &fakeEstimator{}, generator, cache.NewMemory(), &fakeQuota{limit: 5}, history, testConfig())

	res, err := svc.Describe(context.Background(), 1, DescribeRequest{Title: "iPhone 13"})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Description)
}

func TestDescribeThreadsOptionsAndTemplate(t *testing.T) {
	generator := &fakeGenerator{result: listing.Result{Title: "Robe Zara", Description: "ok"}}
	svc := NewService(&fakeIdentifier{}, &fakeEstimator{}, generator, cache.NewMemory(), &fakeQuota{limit: 5}, nil, testConfig())

	_, err := svc.Describe(context.Background(), 1, DescribeRequest{
		Title:    "Robe Zara",
		Options:  listing.Options{Meetup: true, NeverWorn: true},
		Template: true,
	})
	require.NoError(t, err)

	assert.True(t, generator.last.Options.Meetup)
	assert.True(t, generator.last.Options.NeverWorn)
	assert.False(t, generator.last.Options.Recent)
	assert.True(t, generator.last.Template)

	_, err = svc.Listing(context.Background(), 1, ListingRequest{
		Title:   "Robe Zara",
		Options: listing.Options{Recent: true},
	})
	require.NoError(t, err)
	assert.True(t, generator.last.Options.Recent)
}

func TestListingReusesScanContext(t *testing.T) {
	generator := &fakeGenerator{result: listing.Result{Title: "iPhone 13", Currency: "EUR", Description: "ok"}}
	svc := NewService(&fakeIdentifier{}, &fakeEstimator{}, generator, cache.NewMemory(), &fakeQuota{limit: 5}, nil, testConfig())

	scan := &ScanResult{
		Identification: provider.Identification{Label: "Apple iPhone 13 128 Go Noir"},
		OCR:            provider.OCRResult{FullText: "A2633", HasText: true},
		Pricing:        pricing.Estimate{Median: median(440), Currency: "EUR"},
	}

	_, err := svc.Listing(context.Background(), 1, ListingRequest{Title: "iPhone 13", RawScan: scan})
	require.NoError(t, err)

	assert.Equal(t, "Apple iPhone 13 128 Go Noir", generator.last.Hints.Label)
	assert.Equal(t, "A2633", generator.last.Hints.OCRText)
	require.NotNil(t, generator.last.ScanMedian)
	assert.Equal(t, 440.0, *generator.last.ScanMedian)
}

func TestListingRecalculatesWithConfirmedSpecs(t *testing.T) {
	refined := 430
	estimator := &fakeEstimator{recalculated: &refined}
	generator := &fakeGenerator{result: listing.Result{Description: "ok"}}
	svc := NewService(&fakeIdentifier{}, estimator, generator, cache.NewMemory(), &fakeQuota{limit: 5}, nil, testConfig())

	scan := &ScanResult{Pricing: pricing.Estimate{
		Median:  median(440),
		Samples: []provider.PriceItem{{Title: "iPhone 13 128 Go", Price: "430,00 €"}},
	}}
	_, err := svc.Listing(context.Background(), 1, ListingRequest{
		Title:   "iPhone 13",
		Specs:   pricing.RefinedSpecs{Storage: "128 Go"},
		RawScan: scan,
	})
	require.NoError(t, err)

	require.NotNil(t, generator.last.ScanMedian)
	assert.Equal(t, 430.0, *generator.last.ScanMedian)
}

func TestListingCallerHintsWin(t *testing.T) {
	generator := &fakeGenerator{result: listing.Result{Description: "ok"}}
	svc := NewService(&fakeIdentifier{}, &fakeEstimator{}, generator, cache.NewMemory(), &fakeQuota{limit: 5}, nil, testConfig())

	scan := &ScanResult{Identification: provider.Identification{Label: "scan label"}}
	_, err := svc.Listing(context.Background(), 1, ListingRequest{
		Title:   "iPhone 13",
		Hints:   listing.Hints{Label: "caller label"},
		RawScan: scan,
	})
	require.NoError(t, err)
	assert.Equal(t, "caller label", generator.last.Hints.Label)
}

func TestListingQuotaDenied(t *testing.T) {
	generator := &fakeGenerator{}
	svc := NewService(&fakeIdentifier{}, &fakeEstimator{}, generator, cache.NewMemory(), &fakeQuota{limit: 0}, nil, testConfig())

	_, err := svc.Listing(context.Background(), 1, ListingRequest{Title: "iPhone 13"})
	require.Error(t, err)

	var qerr *QuotaExceededError
	require.True(t, errors.As(err, &qerr))
	assert.Equal(t, 0, generator.calls)
}

func TestHistoryReadIsFree(t *testing.T) {
	history := &fakeHistory{entries: []storage.HistoryEntry{{Title: "iPhone 13"}}}
	quota := &fakeQuota{limit: 0}
	svc := NewService(&fakeIdentifier{}, &fakeEstimator{}, &fakeGenerator{}, cache.NewMemory(), quota, history, testConfig())

	entries, err := svc.History(1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 0, quota.calls)
}

func TestHashImagesBoundaries(t *testing.T) {
	a := hashImages([][]byte{[]byte("ab"), []byte("c")})
	b := hashImages([][]byte{[]byte("a"), []byte("bc")})
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, hashImages([][]byte{[]byte("ab"), []byte("c")}))
}
