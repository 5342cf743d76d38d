package identify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoinelm/listful/internal/provider"
)

type fakeVision struct {
	results []provider.Identification
	errs    []error
	calls   int
	hints   []provider.Hints
}

func (f *fakeVision) Detect(_ context.Context, _ [][]byte, hints provider.Hints) (provider.Identification, error) {
	i := f.calls
	f.calls++
	f.hints = append(f.hints, hints)
	if i < len(f.errs) && f.errs[i] != nil {
		return provider.Identification{}, f.errs[i]
	}
	if i >= len(f.results) {
		return provider.Identification{}, errors.New("unexpected vision call")
	}
	return f.results[i], nil
}

type fakeOCR struct {
	result provider.OCRResult
	err    error
	calls  int
}

func (f *fakeOCR) ExtractText(_ context.Context, _ []byte) (provider.OCRResult, error) {
	f.calls++
	if f.err != nil {
		return provider.OCRResult{}, f.err
	}
	return f.result, nil
}

var testImages = [][]byte{[]byte("jpeg-bytes")}

func TestLooksGeneric(t *testing.T) {
	tests := []struct {
		label string
		want  bool
	}{
		{"écran", true},
		{"screen", true},
		{"objet noir", true},
		{"iPhone 13 Pro", false},
		{"Dell U2720Q", false}, // model-like token overrides the noun
		{"chaussure", true},
		{"", true},
		{"MacBook Air", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LooksGeneric(tt.label), "label: %q", tt.label)
	}
}

func TestNeedsRefinement(t *testing.T) {
	strong := provider.Identification{Label: "iPhone 13 Pro", Brand: "Apple", Confidence: 0.9}
	assert.False(t, NeedsRefinement(strong, DefaultThreshold))

	// Each trigger qualifies on its own.
	lowConf := strong
	lowConf.Confidence = 0.5
	assert.True(t, NeedsRefinement(lowConf, DefaultThreshold))

	generic := strong
	generic.Label = "écran"
	assert.True(t, NeedsRefinement(generic, DefaultThreshold))

	noBrand := strong
	noBrand.Brand = ""
	assert.True(t, NeedsRefinement(noBrand, DefaultThreshold))
}

func TestShouldAdopt(t *testing.T) {
	pass1 := provider.Identification{Label: "écran", Confidence: 0.4}

	assert.True(t, ShouldAdopt(pass1, provider.Identification{Label: "écran", Confidence: 0.6}))
	assert.True(t, ShouldAdopt(pass1, provider.Identification{Label: "Dell U2720Q", Confidence: 0.3}))
	assert.True(t, ShouldAdopt(
		provider.Identification{Label: "Dell U2720Q", Confidence: 0.5},
		provider.Identification{Label: "Dell U2720Q", Brand: "Dell", Confidence: 0.5},
	))
	// No improvement on any axis.
	assert.False(t, ShouldAdopt(
		provider.Identification{Label: "Dell U2720Q", Brand: "Dell", Confidence: 0.7},
		provider.Identification{Label: "moniteur", Confidence: 0.5},
	))
}

func TestIdentifyStrongFirstPassSkipsRefinement(t *testing.T) {
	vision := &fakeVision{results: []provider.Identification{
		{Label: "iPhone 13 Pro", Brand: "Apple", Confidence: 0.9},
	}}
	ocr := &fakeOCR{}
	engine := NewEngine(vision, ocr, DefaultThreshold)

	id, _, err := engine.Identify(context.Background(), testImages)

	require.NoError(t, err)
	assert.Equal(t, "iPhone 13 Pro", id.Label)
	assert.Equal(t, 1, vision.calls)
	assert.Equal(t, 0, ocr.calls)
}

func TestIdentifyGenericTriggersRefinement(t *testing.T) {
	vision := &fakeVision{results: []provider.Identification{
		{Label: "écran", Confidence: 0.4},
		{Label: "Dell U2720Q", Brand: "Dell", Confidence: 0.85},
	}}
	ocr := &fakeOCR{result: provider.OCRResult{FullText: "DELL U2720Q", HasText: true}}
	engine := NewEngine(vision, ocr, DefaultThreshold)

	id, ocrRes, err := engine.Identify(context.Background(), testImages)

	require.NoError(t, err)
	assert.Equal(t, "Dell U2720Q", id.Label)
	assert.Equal(t, 2, vision.calls)
	assert.Equal(t, 1, ocr.calls)
	assert.True(t, ocrRes.HasText)

	// The refinement call carries the OCR text and the prior label.
	require.Len(t, vision.hints, 2)
	assert.Equal(t, "DELL U2720Q", vision.hints[1].OCRText)
	assert.Equal(t, "écran", vision.hints[1].PriorLabel)
}

func TestIdentifyAdoptedResultNeverLosesConfidence(t *testing.T) {
	vision := &fakeVision{results: []provider.Identification{
		{Label: "écran", Confidence: 0.6},
		{Label: "Dell U2720Q", Brand: "Dell", Confidence: 0.4},
	}}
	engine := NewEngine(vision, &fakeOCR{}, DefaultThreshold)

	id, _, err := engine.Identify(context.Background(), testImages)

	require.NoError(t, err)
	assert.Equal(t, "Dell U2720Q", id.Label)
	assert.Equal(t, 0.6, id.Confidence)
}

func TestIdentifyPass1ErrorPropagates(t *testing.T) {
	provErr := &provider.Error{Provider: "gemini-vision", Status: 503, Err: errors.New("unavailable")}
	vision := &fakeVision{errs: []error{provErr}}
	ocr := &fakeOCR{}
	engine := NewEngine(vision, ocr, DefaultThreshold)

	_, _, err := engine.Identify(context.Background(), testImages)

	require.Error(t, err)
	var pe *provider.Error
	assert.ErrorAs(t, err, &pe)
	assert.Equal(t, 0, ocr.calls)
}

func TestIdentifyOCRFailureDegrades(t *testing.T) {
	vision := &fakeVision{results: []provider.Identification{
		{Label: "écran", Confidence: 0.4},
		{Label: "Dell U2720Q", Brand: "Dell", Confidence: 0.85},
	}}
	ocr := &fakeOCR{err: errors.New("ocr down")}
	engine := NewEngine(vision, ocr, DefaultThreshold)

	id, ocrRes, err := engine.Identify(context.Background(), testImages)

	require.NoError(t, err)
	assert.Equal(t, "Dell U2720Q", id.Label)
	assert.Empty(t, ocrRes.FullText)
}

func TestIdentifyPass2FailureKeepsPass1(t *testing.T) {
	vision := &fakeVision{
		results: []provider.Identification{{Label: "écran", Confidence: 0.4}},
		errs:    []error{nil, errors.New("second pass failed")},
	}
	engine := NewEngine(vision, &fakeOCR{}, DefaultThreshold)

	id, _, err := engine.Identify(context.Background(), testImages)

	require.NoError(t, err)
	assert.Equal(t, "écran", id.Label)
	assert.Equal(t, 2, vision.calls)
}
