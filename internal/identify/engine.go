// Package identify runs the confidence-gated two-pass identification
// protocol: a first vision pass, and when the result is weak, an OCR-assisted
// refinement pass.
package identify

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/antoinelm/listful/internal/metrics"
	"github.com/antoinelm/listful/internal/provider"
)

// DefaultThreshold is the pass-1 confidence below which a refinement pass is
// attempted.
const DefaultThreshold = 0.75

// genericWords are bare category nouns and colors that carry no
// model-specific signal.
var genericWords = map[string]bool{
	"écran": true, "screen": true, "moniteur": true, "monitor": true,
	"ordinateur": true, "pc": true, "laptop": true, "portable": true,
	"chaussure": true, "shoes": true, "t-shirt": true, "pull": true,
	"vêtement": true, "vetement": true, "veste": true, "pantalon": true, "sac": true,
	"objet": true, "article": true, "produit": true, "appareil": true, "device": true,
	"noir": true, "blanc": true, "bleu": true, "rouge": true, "gris": true,
}

// modelishRe matches alphanumeric model-like tokens such as "X200" or
// "SM-G991".
var modelishRe = regexp.MustCompile(`(?i)[A-Z]*\d[A-Z0-9-]{2,}`)

var spacesRe = regexp.MustCompile(`\s+`)

// Engine orchestrates vision and OCR clients for one scan.
type Engine struct {
	vision    provider.VisionClient
	ocr       provider.OCRClient
	threshold float64
}

func NewEngine(vision provider.VisionClient, ocr provider.OCRClient, threshold float64) *Engine {
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	return &Engine{vision: vision, ocr: ocr, threshold: threshold}
}

// LooksGeneric reports whether a label is a low-information category/color
// word: at most two words with one from the stoplist, or a stoplist word as
// the whole label or its last word, unless a model-like token is present.
func LooksGeneric(label string) bool {
	if label == "" {
		return true
	}
	s := strings.TrimSpace(spacesRe.ReplaceAllString(strings.ToLower(label), " "))
	words := strings.Split(s, " ")
	if len(words) <= 2 {
		for _, w := range words {
			if genericWords[w] {
				return true
			}
		}
	}
	if modelishRe.MatchString(s) {
		return false
	}
	for w := range genericWords {
		if s == w || strings.HasSuffix(s, " "+w) {
			return true
		}
	}
	return false
}

// NeedsRefinement is the pass-2 decision gate, a pure predicate over the
// pass-1 result. Any one condition is enough: low confidence, generic label,
// or missing brand.
func NeedsRefinement(pass1 provider.Identification, threshold float64) bool {
	return pass1.Confidence < threshold || LooksGeneric(pass1.Label) || pass1.Brand == ""
}

// ShouldAdopt reports whether the refined pass strictly improves on pass 1:
// higher confidence, fixed genericness, or a filled-in brand.
func ShouldAdopt(pass1, pass2 provider.Identification) bool {
	if pass2.Confidence > pass1.Confidence {
		return true
	}
	if LooksGeneric(pass1.Label) && !LooksGeneric(pass2.Label) {
		return true
	}
	if pass1.Brand == "" && pass2.Brand != "" {
		return true
	}
	return false
}

// Identify runs the two-pass protocol over the submitted images. At most two
// vision calls and one OCR call are made; OCR only ever inspects the first
// image. A pass-1 failure fails the scan; OCR and pass-2 failures degrade to
// "no improvement".
func (e *Engine) Identify(ctx context.Context, images [][]byte) (provider.Identification, provider.OCRResult, error) {
	ocrResult := provider.OCRResult{}

	start := time.Now()
	id, err := e.vision.Detect(ctx, images, provider.Hints{})
	metrics.ObserveProvider("vision", time.Since(start).Seconds(), err)
	if err != nil {
		return provider.Identification{}, ocrResult, err
	}

	if !NeedsRefinement(id, e.threshold) {
		return id, ocrResult, nil
	}

	start = time.Now()
	res, err := e.ocr.ExtractText(ctx, images[0])
	metrics.ObserveProvider("ocr", time.Since(start).Seconds(), err)
	if err != nil {
		log.Warn().Err(err).Msg("ocr step failed, refining without text")
	} else {
		ocrResult = res
	}

	start = time.Now()
	refined, err := e.vision.Detect(ctx, images, provider.Hints{
		OCRText:    ocrResult.FullText,
		PriorLabel: id.Label,
	})
	metrics.ObserveProvider("vision", time.Since(start).Seconds(), err)
	if err != nil {
		log.Warn().Err(err).Msg("refinement pass failed, keeping first result")
		return id, ocrResult, nil
	}

	if ShouldAdopt(id, refined) {
		// A pass adopted for fixing genericness or filling a brand must not
		// report less certainty than the pass it replaces.
		if refined.Confidence < id.Confidence {
			refined.Confidence = id.Confidence
		}
		log.Debug().
			Float64("pass1Confidence", id.Confidence).
			Float64("pass2Confidence", refined.Confidence).
			Str("label", refined.Label).
			Msg("adopted refined identification")
		return refined, ocrResult, nil
	}

	return id, ocrResult, nil
}
