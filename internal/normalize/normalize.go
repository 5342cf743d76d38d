// Package normalize cleans noisy marketplace titles and vision labels into a
// display label with detected brand, model, color and storage capacity, plus
// a confidence score and disambiguation alternatives.
package normalize

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// siteWords is the storefront vocabulary stripped from titles. A leaked site
// name also costs confidence points.
var siteWords = []string{
	"amazon", "amazon.com", "vinted", "leboncoin", "lbc", "beebs", "kiabi", "back market", "backmarket",
	"rakuten", "cdiscount", "fnac", "darty", "ebay", "aliexpress", "wish", "priceminister",
	"carrefour", "auchan", "zara", "zalando", "la redoute", "h&m", "hm", "go sport", "decathlon",
}

// colorMap maps English marketing color names to canonical French colors.
var colorMap = []struct{ en, fr string }{
	{"midnight", "Noir"}, {"black", "Noir"}, {"starlight", "Blanc"}, {"white", "Blanc"},
	{"light blue", "Bleu"}, {"blue", "Bleu"}, {"deep purple", "Violet"}, {"purple", "Violet"}, {"violet", "Violet"},
	{"red", "Rouge"}, {"pink", "Rose"}, {"yellow", "Jaune"}, {"green", "Vert"}, {"silver", "Argent"},
	{"space gray", "Gris"}, {"space grey", "Gris"}, {"graphite", "Gris"}, {"natural", "Titane"},
	{"gold", "Or"}, {"titanium", "Titane"},
}

// CapacityValues are the canonical storage sizes, in Go/GB.
var CapacityValues = []int{64, 128, 256, 512, 1024}

var genericBrands = []string{
	"Apple", "Samsung", "Xiaomi", "Huawei", "Honor", "OnePlus", "Google", "Sony",
	"Nokia", "Oppo", "Vivo", "Motorola", "Quechua", "Decathlon",
}

var (
	prefixSiteRe   = regexp.MustCompile(`(?i)^\s*(?:amazon(?:\.com)?|vinted|leboncoin|beebs(?: by kiabi)?|rakuten|fnac|darty|cdiscount|ebay)\s*[:\-–—]\s*`)
	ageRe          = regexp.MustCompile(`(?i)\b\d{1,2}\s?(?:ans|mois)\b`)
	ageRangeRe     = regexp.MustCompile(`(?i)\b\d{1,2}\s?-\s?\d{1,2}\s?(?:mois|ans)\b`)
	garmentSizeRe  = regexp.MustCompile(`(?i)\b(?:taille|t\.?)\s*(?:\d{2}|xs|s|m|l|xl|xxl|xxxl)\b`)
	bareSizeRe     = regexp.MustCompile(`(?i)\b(?:xs|s|m|l|xl|xxl|xxxl)\b`)
	conditionRe    = regexp.MustCompile(`(?i)\b(?:comme neuf|neuf\b|tr[eè]s bon [eé]tat|bon [eé]tat|occasion\b|reconditionn[eé]|renewed\b|refurbished\b)`)
	carrierRe      = regexp.MustCompile(`(?i)\b(?:t-mobile|verizon|at&t|sfr|orange|bouygues|free)\b`)
	longDashRe     = regexp.MustCompile(`[–—]`)
	hyphenSplitRe  = regexp.MustCompile(`\s*-\s*`)
	multiSpaceRe   = regexp.MustCompile(`\s{2,}`)
	frenchColorRe  = regexp.MustCompile(`(?i)\b(noir|blanc|bleu|violet|rouge|rose|jaune|vert|argent|gris|or|titane)\b`)
	capacityRe     = regexp.MustCompile(`(?i)\b(64|128|256|512|1024)\s?(?:gb|go|g|tb|to)\b`)
	iphoneRe       = regexp.MustCompile(`(?i)\bi\s*phone\s*(se|[0-9]{1,2})(?:\s*(pro\s*max|pro|max|plus))?`)
	iphonePrefixRe = regexp.MustCompile(`(?i)^i\s*phone`)
	labelCapRe     = regexp.MustCompile(`(?i)\s(64|128|256|512|1024)\s?Go`)

	suffixSiteRe = buildSuffixSiteRe()
)

type brandMatcher struct {
	brand   string
	brandRe *regexp.Regexp
	modelRe *regexp.Regexp
}

var brandMatchers = buildBrandMatchers()

func buildBrandMatchers() []brandMatcher {
	out := make([]brandMatcher, 0, len(genericBrands))
	for _, b := range genericBrands {
		q := regexp.QuoteMeta(b)
		out = append(out, brandMatcher{
			brand:   b,
			brandRe: regexp.MustCompile(`(?i)\b` + q + `\b`),
			modelRe: regexp.MustCompile(`(?i)\b` + q + `\b\s+([A-Za-z0-9]+(?:\s+[A-Za-z0-9]+){0,3})`),
		})
	}
	return out
}

func buildSuffixSiteRe() *regexp.Regexp {
	joined := make([]string, len(siteWords))
	for i, w := range siteWords {
		joined[i] = strings.ReplaceAll(regexp.QuoteMeta(w), ` `, `\s*`)
	}
	return regexp.MustCompile(`(?i)\s*[\|\-–—:]\s*(?:` + strings.Join(joined, "|") + `).*$`)
}

// Result is the output of Normalize.
type Result struct {
	Label             string   `json:"label"`
	Brand             string   `json:"brand,omitempty"`
	Model             string   `json:"model,omitempty"`
	Color             string   `json:"color,omitempty"`
	Capacity          int      `json:"capacity,omitempty"`
	Confidence        float64  `json:"confidence"`
	Alternatives      []string `json:"alternatives"`
	CleanedCandidates []string `json:"cleanedCandidates"`
	NeedsConfirmation bool     `json:"needsConfirmation"`
}

type candidate struct {
	label    string
	base     string
	brand    string
	model    string
	color    string
	capacity int
	conf     float64
}

// brandModel is a detected brand/model pair.
type brandModel struct {
	brand string
	model string
}

func normalizeSpaces(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func capFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// StripMarketplace removes storefront names appearing as a prefix
// ("Amazon: ...") or trailing segment ("... | Vinted").
func StripMarketplace(s string) string {
	if s == "" {
		return ""
	}
	t := prefixSiteRe.ReplaceAllString(s, "")
	t = suffixSiteRe.ReplaceAllString(t, "")
	return strings.TrimSpace(t)
}

// StripJunk drops age ranges, garment sizes, condition adjectives, carrier
// names and decorative dashes.
func StripJunk(s string) string {
	// Ranges first, so "3-6 mois" doesn't leave a dangling "3-".
	t := ageRangeRe.ReplaceAllString(s, "")
	t = ageRe.ReplaceAllString(t, "")
	t = garmentSizeRe.ReplaceAllString(t, "")
	t = bareSizeRe.ReplaceAllString(t, "")
	t = conditionRe.ReplaceAllString(t, "")
	t = carrierRe.ReplaceAllString(t, "")
	t = longDashRe.ReplaceAllString(t, " ")
	t = hyphenSplitRe.ReplaceAllString(t, " ")
	t = multiSpaceRe.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}

// DetectColor returns the canonical French color found in s, or "".
func DetectColor(s string) string {
	lc := strings.ToLower(s)
	for _, c := range colorMap {
		if strings.Contains(lc, c.en) {
			return c.fr
		}
	}
	if m := frenchColorRe.FindStringSubmatch(lc); m != nil {
		return capFirst(m[1])
	}
	return ""
}

// DetectCapacity returns the canonical storage size found in s, or 0.
func DetectCapacity(s string) int {
	m := capacityRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	switch m[1] {
	case "64":
		return 64
	case "128":
		return 128
	case "256":
		return 256
	case "512":
		return 512
	default:
		return 1024
	}
}

// extractIphone matches the iPhone family with generation and variant suffix
// normalization ("i phone 13 pro  max" -> "iPhone 13 Pro Max").
func extractIphone(s string) (brandModel, bool) {
	m := iphoneRe.FindStringSubmatch(s)
	if m == nil {
		return brandModel{}, false
	}
	gen := strings.ToUpper(m[1])
	suf := multiSpaceRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(m[2])), " ")
	var variant string
	switch suf {
	case "pro max":
		variant = "Pro Max"
	case "pro":
		variant = "Pro"
	case "max":
		variant = "Max"
	case "plus":
		variant = "Plus"
	}
	model := "iPhone " + gen
	if variant != "" {
		model += " " + variant
	}
	return brandModel{brand: "Apple", model: model}, true
}

// extractBrandModel tries the iPhone matcher first, then the generic brand
// vocabulary with up to 4 trailing model tokens.
func extractBrandModel(s string) (brandModel, bool) {
	if bm, ok := extractIphone(s); ok {
		return bm, true
	}
	for _, bm := range brandMatchers {
		if !bm.brandRe.MatchString(s) {
			continue
		}
		if m := bm.modelRe.FindStringSubmatch(s); m != nil {
			return brandModel{brand: bm.brand, model: bm.brand + " " + m[1]}, true
		}
		return brandModel{brand: bm.brand, model: bm.brand}, true
	}
	return brandModel{}, false
}

// BuildLabel renders the display label "{model} {brand} {color} {capacity} Go"
// with brand-prefix de-duplication for non-iPhone models.
func BuildLabel(brand, model, color string, capacity int) string {
	var out string
	if iphonePrefixRe.MatchString(model) {
		out = multiSpaceRe.ReplaceAllString(model, " ") + " " + brand
	} else {
		mlc, blc := strings.ToLower(model), strings.ToLower(brand)
		if strings.HasPrefix(mlc, blc) {
			out = strings.TrimSpace(strings.TrimSpace(model[len(brand):]) + " " + brand)
		} else {
			out = strings.TrimSpace(model + " " + brand)
		}
	}
	if color != "" {
		out += " " + color
	}
	if capacity != 0 && isCanonicalCapacity(capacity) {
		out += fmt.Sprintf(" %d Go", capacity)
	}
	return normalizeSpaces(out)
}

func isCanonicalCapacity(c int) bool {
	for _, v := range CapacityValues {
		if v == c {
			return true
		}
	}
	return false
}

// scoreConfidence adds fixed weights per detected component and clamps the
// total to [0,1].
func scoreConfidence(c candidate, rawTitle string) float64 {
	var score float64
	if c.brand != "" {
		score += 0.25
	}
	if c.model != "" {
		score += 0.35
	}
	if c.color != "" {
		score += 0.15
	}
	if c.capacity != 0 {
		score += 0.15
	}
	leaked := false
	lc := strings.ToLower(rawTitle)
	for _, w := range siteWords {
		if strings.Contains(lc, w) {
			leaked = true
			break
		}
	}
	if !leaked {
		score += 0.10
	}
	return math.Max(0, math.Min(1, score))
}

func uniqCaseInsensitive(in []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range in {
		k := strings.ToLower(strings.TrimSpace(s))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, strings.TrimSpace(s))
	}
	return out
}

// Normalize cleans the raw titles plus the optional vision label and ranks
// the candidates. It never fails: with no matchable pattern the best cleaned
// string passes through at low confidence.
func Normalize(rawTitles []string, visionLabel string) Result {
	var cleaned []string
	for _, t := range append(append([]string{}, rawTitles...), visionLabel) {
		if t == "" {
			continue
		}
		s := normalizeSpaces(StripJunk(StripMarketplace(t)))
		if s != "" {
			cleaned = append(cleaned, s)
		}
	}

	var candidates []candidate
	for _, c := range cleaned {
		if bm, ok := extractBrandModel(c); ok {
			cand := candidate{
				base:     c,
				brand:    bm.brand,
				model:    bm.model,
				color:    DetectColor(c),
				capacity: DetectCapacity(c),
			}
			cand.label = BuildLabel(cand.brand, cand.model, cand.color, cand.capacity)
			cand.conf = scoreConfidence(cand, c)
			candidates = append(candidates, cand)
		} else {
			candidates = append(candidates, candidate{label: c, base: c, conf: 0.3})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].conf != candidates[j].conf {
			return candidates[i].conf > candidates[j].conf
		}
		return len(candidates[i].label) < len(candidates[j].label)
	})

	best := candidate{}
	if len(candidates) > 0 {
		best = candidates[0]
	}

	var alternatives []string

	// On an iPhone-family label without a detected capacity, propose the
	// common storage variants.
	looksIphone := iphonePrefixRe.MatchString(best.label) || iphoneRe.MatchString(best.base)
	if looksIphone && best.capacity == 0 {
		for _, size := range []int{128, 256, 512} {
			base := strings.TrimSpace(labelCapRe.ReplaceAllString(best.label, ""))
			alternatives = append(alternatives, fmt.Sprintf("%s %d Go", base, size))
		}
	}

	var colorsSeen []string
	for _, c := range candidates {
		if c.color != "" {
			colorsSeen = append(colorsSeen, c.color)
		}
	}
	colorsSeen = uniqCaseInsensitive(colorsSeen)
	if len(colorsSeen) > 1 {
		for _, col := range colorsSeen {
			withoutColor := strings.TrimSpace(frenchColorRe.ReplaceAllString(best.label, ""))
			withoutColor = normalizeSpaces(withoutColor)
			alternatives = append(alternatives, strings.TrimSpace(withoutColor+" "+col))
		}
	}

	alternatives = uniqCaseInsensitive(alternatives)
	filtered := alternatives[:0]
	for _, a := range alternatives {
		if !strings.EqualFold(a, best.label) {
			filtered = append(filtered, a)
		}
	}
	alternatives = filtered

	conf := math.Round(best.conf*100) / 100

	return Result{
		Label:             best.label,
		Brand:             best.brand,
		Model:             best.model,
		Color:             best.color,
		Capacity:          best.capacity,
		Confidence:        conf,
		Alternatives:      alternatives,
		CleanedCandidates: uniqCaseInsensitive(cleaned),
		NeedsConfirmation: conf < 0.8 || len(alternatives) >= 1,
	}
}
