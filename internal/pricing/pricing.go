// Package pricing derives a market price estimate for an identified item
// from comparable shopping listings, and recalculates it locally once the
// user has confirmed specs.
package pricing

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/antoinelm/listful/internal/provider"
)

// Outlier-rejection constants, preserved from long-standing production
// tuning rather than re-derived. Overridable through Config.
const (
	DefaultMinPrice   = 20.0 // absolute floor once the rule triggers
	DefaultMaxShare   = 0.10 // floor relative to the maximum observed price
	DefaultTriggerMax = 100.0
	MaxSamples        = 10
	MaxQueryLen       = 120
)

// Config carries the outlier-rejection thresholds.
type Config struct {
	MinPrice   float64
	MaxShare   float64
	TriggerMax float64
}

func DefaultConfig() Config {
	return Config{
		MinPrice:   DefaultMinPrice,
		MaxShare:   DefaultMaxShare,
		TriggerMax: DefaultTriggerMax,
	}
}

// Estimate is the market price summary for one query string.
type Estimate struct {
	Median      *float64             `json:"median"`
	Currency    string               `json:"currency"`
	SampleCount int                  `json:"count"`
	Samples     []provider.PriceItem `json:"samples"`
}

// RefinedSpecs are the user-confirmed attributes that drive recalculation
// and listing generation. Free-text fields; empty means unknown.
type RefinedSpecs struct {
	Brand         string `json:"brand,omitempty"`
	Model         string `json:"model,omitempty"`
	Storage       string `json:"storage,omitempty"`
	RAM           string `json:"ram,omitempty"`
	Processor     string `json:"processor,omitempty"`
	GPU           string `json:"gpu,omitempty"`
	ScreenSize    string `json:"screen_size,omitempty"`
	Size          string `json:"size,omitempty"`
	ShoeSize      string `json:"shoe_size,omitempty"`
	BatteryHealth string `json:"battery_health,omitempty"`
	Material      string `json:"material,omitempty"`
	Accessories   string `json:"accessories,omitempty"`
	Controllers   string `json:"controllers,omitempty"`
	Resolution    string `json:"resolution,omitempty"`
	RefreshRate   string `json:"refresh_rate,omitempty"`
	Condition     string `json:"condition,omitempty"`
	Unlocked      bool   `json:"unlocked,omitempty"`
}

// Estimator fetches comparable listings and computes the median estimate.
type Estimator struct {
	shopping provider.ShoppingClient
	cfg      Config
}

func NewEstimator(shopping provider.ShoppingClient, cfg Config) *Estimator {
	if cfg == (Config{}) {
		cfg = DefaultConfig()
	}
	return &Estimator{shopping: shopping, cfg: cfg}
}

var (
	alnumTransitionRe = regexp.MustCompile(`[A-Za-z]\d|\d[A-Za-z]`)
	storageUnitRe     = regexp.MustCompile(`(?i)\s?(?:Go|GB|Tb|To|SSD|HDD)`)
	lastNumberRe      = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// BuildQuery derives the shopping query: brand+model when both are known,
// else the label, else the first OCR line with a letter-digit adjacency.
func BuildQuery(id provider.Identification, ocrText string) string {
	if id.Brand != "" && id.Model != "" {
		return id.Brand + " " + id.Model
	}
	if id.Label != "" {
		return id.Label
	}
	for _, line := range strings.Split(ocrText, "\n") {
		if alnumTransitionRe.MatchString(line) {
			line = strings.TrimSpace(line)
			return provider.ClampBytes(line, MaxQueryLen)
		}
	}
	return ""
}

// ParsePrice parses a raw price label robustly: when both dot and comma are
// present, whichever appears last is the decimal separator; a single
// separator is always decimal.
func ParsePrice(raw string) (float64, bool) {
	clean := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == '.' || r == ',' {
			return r
		}
		return -1
	}, raw)
	if clean == "" {
		return 0, false
	}

	lastDot := strings.LastIndex(clean, ".")
	lastComma := strings.LastIndex(clean, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			clean = strings.ReplaceAll(clean, ".", "")
			clean = strings.Replace(clean, ",", ".", 1)
		} else {
			clean = strings.ReplaceAll(clean, ",", "")
		}
	case lastComma >= 0:
		clean = strings.Replace(clean, ",", ".", 1)
	}

	m := lastNumberRe.FindString(clean)
	if m == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	if math.IsInf(n, 0) || math.IsNaN(n) {
		return 0, false
	}
	return n, true
}

// Median returns the middle value, averaging the two central values on even
// counts. ok is false for an empty slice.
func Median(nums []float64) (float64, bool) {
	if len(nums) == 0 {
		return 0, false
	}
	a := append([]float64(nil), nums...)
	sort.Float64s(a)
	mid := len(a) / 2
	if len(a)%2 == 1 {
		return a[mid], true
	}
	return (a[mid-1] + a[mid]) / 2, true
}

// Estimate searches the shopping index and summarizes the observed prices.
// The sample list is capped at MaxSamples regardless of how many values fed
// the median.
func (e *Estimator) Estimate(ctx context.Context, query string) (Estimate, error) {
	out := Estimate{Currency: "EUR"}
	if query == "" {
		return out, nil
	}

	items, err := e.shopping.Search(ctx, query)
	if err != nil {
		return out, err
	}

	values := make([]float64, 0, len(items))
	for _, it := range items {
		if it.Extracted > 0 {
			values = append(values, it.Extracted)
		}
	}

	out.SampleCount = len(values)
	if med, ok := Median(values); ok {
		out.Median = &med
	}
	out.Currency = detectCurrency(items)
	if len(items) > MaxSamples {
		items = items[:MaxSamples]
	}
	out.Samples = items

	log.Debug().
		Str("query", query).
		Int("count", out.SampleCount).
		Msg("price estimate computed")

	return out, nil
}

func detectCurrency(items []provider.PriceItem) string {
	for _, it := range items {
		switch {
		case strings.Contains(it.Price, "€"):
			return "EUR"
		case strings.Contains(it.Price, "$"):
			return "USD"
		case strings.Contains(it.Price, "£"):
			return "GBP"
		}
	}
	return "EUR"
}

// Recalculate derives a refined price from already-fetched samples and the
// user-confirmed specs. Pure: no network, deterministic for identical input.
// Returns nil when no price survives filtering.
func (e *Estimator) Recalculate(samples []provider.PriceItem, specs RefinedSpecs) *int {
	return Recalculate(samples, specs, e.cfg)
}

// Recalculate is the package-level pure form of sample re-aggregation.
func Recalculate(samples []provider.PriceItem, specs RefinedSpecs, cfg Config) *int {
	if len(samples) == 0 {
		return nil
	}

	matching := samples
	if storage := strings.TrimSpace(storageUnitRe.ReplaceAllString(specs.Storage, "")); storage != "" {
		want := strings.ToLower(storage)
		var filtered []provider.PriceItem
		for _, s := range samples {
			if strings.Contains(strings.ToLower(s.Title), want) {
				filtered = append(filtered, s)
			}
		}
		// No sample mentions the confirmed storage: fall back to the full
		// set rather than returning nothing.
		if len(filtered) > 0 {
			matching = filtered
		}
	}

	var prices []float64
	for _, s := range matching {
		if s.Extracted > 0 {
			prices = append(prices, s.Extracted)
			continue
		}
		if p, ok := ParsePrice(s.Price); ok && p > 0 {
			prices = append(prices, p)
		}
	}
	if len(prices) == 0 {
		return nil
	}

	maxPrice := prices[0]
	for _, p := range prices[1:] {
		if p > maxPrice {
			maxPrice = p
		}
	}
	// Shopping results for expensive items drag in cheap accessory
	// listings; drop anything at or under the floors.
	if maxPrice > cfg.TriggerMax {
		var kept []float64
		for _, p := range prices {
			if p > cfg.MinPrice && p > maxPrice*cfg.MaxShare {
				kept = append(kept, p)
			}
		}
		prices = kept
	}
	if len(prices) == 0 {
		return nil
	}

	med, _ := Median(prices)
	rounded := int(math.Round(med))
	return &rounded
}
