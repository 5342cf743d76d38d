// Package listing turns an identified item plus user-confirmed specs into
// marketplace-ready copy. The generative path is best-effort: any failure
// falls back to deterministic text, never to an error.
package listing

import (
	"context"
	"math"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/antoinelm/listful/internal/pricing"
	"github.com/antoinelm/listful/internal/provider"
)

const (
	maxTitleLen     = 160
	maxDescWords    = 100
	maxHintLabelLen = 300
	maxHintOCRLen   = 5000
	maxLensTitles   = 20
	maxLensTitleLen = 200
	truncationMark  = "…"
	defaultCurrency = "EUR"
)

// Hints carry free-text context from a prior scan into the prompt.
type Hints struct {
	Label      string
	OCRText    string
	LensTitles []string
}

// Options are the seller's quick-answer toggles; when set they shape both
// the prompt and the deterministic fallbacks.
type Options struct {
	Meetup    bool
	Recent    bool
	NeverWorn bool
}

// Request is everything the generator needs to write one listing.
type Request struct {
	Title      string
	Condition  string // free text, normalized through ParseGrade
	Platform   string
	Lang       string
	Currency   string
	CategoryID string
	Color      string

	Specs   pricing.RefinedSpecs
	Hints   Hints
	Options Options

	// Template forces the deterministic bullet template instead of the
	// generative path.
	Template bool

	// Candidate prices in resolution order. PriceHint is the caller's
	// explicit value; ScanMedian comes from a previous scan.
	PriceHint  *float64
	ScanMedian *float64

	// ResolvedPrice is filled by the generator before prompting.
	ResolvedPrice *int
}

// Result is the finished listing.
type Result struct {
	Title       string `json:"title"`
	Price       *int   `json:"price"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	Short       string `json:"description_short,omitempty"`
	Source      string `json:"-"` // "llm", "template" or "fallback"
}

// Generator writes listing copy through a text model, with deterministic
// fallbacks.
type Generator struct {
	model provider.TextModel
}

func NewGenerator(model provider.TextModel) *Generator {
	return &Generator{model: model}
}

// priceResolver returns a candidate price or nil. Resolvers run in order;
// the first finite positive value wins.
type priceResolver func(Request) *float64

var priceResolvers = []priceResolver{
	func(r Request) *float64 { return r.PriceHint },
	func(r Request) *float64 { return r.ScanMedian },
}

// ResolvePrice walks the candidate prices in precedence order and rounds
// the first usable one. Nil when no candidate is usable.
func ResolvePrice(req Request) *int {
	for _, resolve := range priceResolvers {
		p := resolve(req)
		if p == nil {
			continue
		}
		v := *p
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			continue
		}
		rounded := int(math.Round(v))
		return &rounded
	}
	return nil
}

// TruncateWords caps s at n words, appending the truncation marker when
// anything was cut.
func TruncateWords(s string, n int) string {
	s = strings.TrimSpace(s)
	words := strings.Fields(s)
	if len(words) <= n {
		return s
	}
	return strings.Join(words[:n], " ") + truncationMark
}

// clampLen caps s at n bytes, never splitting a UTF-8 sequence.
func clampLen(s string, n int) string {
	return provider.ClampBytes(s, n)
}

func sanitizeRequest(req Request) Request {
	req.Title = clampLen(strings.TrimSpace(req.Title), maxTitleLen)
	if req.Currency == "" {
		req.Currency = defaultCurrency
	}
	if req.Lang == "" {
		req.Lang = "fr"
	}
	req.Hints.Label = clampLen(req.Hints.Label, maxHintLabelLen)
	req.Hints.OCRText = clampLen(req.Hints.OCRText, maxHintOCRLen)
	if titles := req.Hints.LensTitles; len(titles) > 0 {
		if len(titles) > maxLensTitles {
			titles = titles[:maxLensTitles]
		}
		// Copy before clamping so the caller's slice is left alone.
		clamped := make([]string, len(titles))
		for i, t := range titles {
			clamped[i] = clampLen(t, maxLensTitleLen)
		}
		req.Hints.LensTitles = clamped
	}
	req.Specs = normalizeSpecs(req.Specs)
	return req
}

func normalizeSpecs(s pricing.RefinedSpecs) pricing.RefinedSpecs {
	trim := func(p *string) { *p = strings.TrimSpace(*p) }
	trim(&s.Brand)
	trim(&s.Model)
	trim(&s.Storage)
	trim(&s.RAM)
	trim(&s.Processor)
	trim(&s.GPU)
	trim(&s.ScreenSize)
	trim(&s.Size)
	trim(&s.ShoeSize)
	trim(&s.BatteryHealth)
	trim(&s.Material)
	trim(&s.Accessories)
	trim(&s.Controllers)
	trim(&s.Resolution)
	trim(&s.RefreshRate)
	trim(&s.Condition)
	return s
}

// Generate writes the listing. It never returns an error and never returns
// an empty description: on model failure or unusable output it degrades to
// HumanFallback.
func (g *Generator) Generate(ctx context.Context, req Request) Result {
	req = sanitizeRequest(req)
	req.ResolvedPrice = ResolvePrice(req)

	res := Result{
		Title:    req.Title,
		Price:    req.ResolvedPrice,
		Currency: req.Currency,
	}

	var text provider.ListingText
	if req.Template {
		text = BuildTemplate(req)
		res.Source = "template"
	} else if modelText, ok := g.tryModel(ctx, req); ok {
		text = modelText
		res.Source = "llm"
	} else {
		text = HumanFallback(req)
		res.Source = "fallback"
	}

	res.Description = TruncateWords(text.DescriptionLong, maxDescWords)
	res.Short = strings.TrimSpace(text.DescriptionShort)
	if res.Description == "" {
		fb := HumanFallback(req)
		res.Description = TruncateWords(fb.DescriptionLong, maxDescWords)
		res.Short = fb.DescriptionShort
		res.Source = "fallback"
	}
	return res
}

func (g *Generator) tryModel(ctx context.Context, req Request) (provider.ListingText, bool) {
	if g.model == nil {
		return provider.ListingText{}, false
	}
	system, user := DescriptionPrompt(req)
	text, err := g.model.WriteListing(ctx, system, user)
	if err != nil {
		log.Warn().Err(err).Str("title", req.Title).Msg("listing generation failed, using fallback")
		return provider.ListingText{}, false
	}
	if strings.TrimSpace(text.DescriptionLong) == "" {
		return provider.ListingText{}, false
	}
	return text, true
}
