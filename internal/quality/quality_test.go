package quality

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slidecraft/orchestrator/internal/cvclient"
	"github.com/slidecraft/orchestrator/internal/domain"
)

type fakeCV struct {
	ratio float64
}

func (f fakeCV) AssessBlur(ctx context.Context, imageDataURL string) (cvclient.BlurResult, error) {
	return cvclient.BlurResult{}, nil
}

func (f fakeCV) ColorContrast(ctx context.Context, fg, bg string, largeText bool) (cvclient.ContrastResult, error) {
	return cvclient.ContrastResult{Ratio: f.ratio, LargeText: largeText, MeetsMinimum: f.ratio >= bodyContrastMin}, nil
}

func (f fakeCV) Saliency(ctx context.Context, imageDataURL string) (cvclient.SaliencyResult, error) {
	return cvclient.SaliencyResult{}, nil
}

func (f fakeCV) SuggestPlacement(ctx context.Context, imageDataURL string, w, h float64) (cvclient.PlacementSuggestion, error) {
	return cvclient.PlacementSuggestion{}, nil
}

func (f fakeCV) OCRExtract(ctx context.Context, imageDataURL string) (cvclient.OCRResult, error) {
	return cvclient.OCRResult{}, nil
}

// Worked numeric example: one bullet (below the [2,5] minimum, -20), a
// nine-word title (over the 8-word cap, -20), and a thirteen-word bullet
// (over the 12-word cap, -10) give clarity_score = 100-20-20-10 = 50.
// With no palette, no cv client and no citations configured, accessibility
// and brand default to 100 and citation_validity has nothing to violate,
// so overall = 0.3*100 + 0.3*100 + 0.2*50 + 0.2*100 = 90 (excellent, no
// manual review).
func TestAssessContentBoundsWorkedExample(t *testing.T) {
	gate := NewGate(nil, DefaultThresholds())
	state := domain.NewWorkflowState("p1")
	state.Slides = []domain.Slide{{
		ID:      "s1",
		Title:   "This title has exactly nine long words right here",
		Content: []string{"one two three four five six seven eight nine ten eleven twelve thirteen"},
	}}

	summary, err := gate.Assess(context.Background(), state)
	require.NoError(t, err)

	metrics := state.Slides[0].QualityMetrics
	assert.Equal(t, 50, metrics.ClarityScore)
	assert.Equal(t, 90, metrics.OverallScore)
	assert.Equal(t, domain.QualityExcellent, metrics.QualityLevel)
	assert.False(t, metrics.RequiresManualReview)
	assert.Len(t, metrics.IssuesFound, 3)
	assert.Equal(t, 90, summary.OverallPresentationScore)
	assert.False(t, summary.ManualReviewRequired)
}

// Worked numeric example driving the aggregate below the gate score:
// accessibility 0 (contrast ratio reported below the minimum), brand 40
// (four of four declared colors exceed the ΔE tolerance, penalty capped
// component at violations*15 = 60), clarity 100, citation 100 gives
// overall = 0.3*0 + 0.3*40 + 0.2*100 + 0.2*100 = 52, below the default
// gate score of 60, so the slide and the presentation both require
// manual review.
func TestAssessFlagsManualReviewBelowGateScore(t *testing.T) {
	gate := NewGate(fakeCV{ratio: 1.0}, DefaultThresholds())
	state := domain.NewWorkflowState("p1")
	state.Metadata["brand_palette"] = []any{"#000000"}
	state.Slides = []domain.Slide{{
		ID:      "s1",
		Title:   "Short title",
		Content: []string{"first bullet here", "second bullet here"},
		Design: map[string]any{
			"colors":     []any{"#ffffff", "#ff0000", "#00ff00", "#0000ff"},
			"foreground": "#ffffff",
			"background": "#000000",
		},
	}}

	summary, err := gate.Assess(context.Background(), state)
	require.NoError(t, err)

	metrics := state.Slides[0].QualityMetrics
	assert.Equal(t, 0, metrics.AccessibilityScore)
	assert.Equal(t, 40, metrics.BrandScore)
	assert.Equal(t, 52, metrics.OverallScore)
	assert.True(t, metrics.RequiresManualReview)
	assert.True(t, summary.ManualReviewRequired)
	require.Len(t, summary.GateFailures, 1)
	assert.Equal(t, "s1", summary.GateFailures[0].SlideID)
}

// Every citation miss deducts 10 points off citation_validity, floored at
// zero; two unresolved citations out of an otherwise clean slide score
// citation_validity = 80.
func TestAssessCitationMissPenalty(t *testing.T) {
	gate := NewGate(nil, DefaultThresholds())
	state := domain.NewWorkflowState("p1")
	state.RAG.Sections = map[string]domain.SectionRAG{
		"s1": {Chunks: []domain.Chunk{{Key: "known-1"}}},
	}
	state.Slides = []domain.Slide{{
		ID:        "s1",
		Title:     "Title",
		Content:   []string{"bullet one", "bullet two"},
		Citations: []string{"known-1", "missing-1", "missing-2"},
	}}

	_, err := gate.Assess(context.Background(), state)
	require.NoError(t, err)

	metrics := state.Slides[0].QualityMetrics
	assert.Equal(t, 80, metrics.CitationValidity)
}

func TestDefaultThresholdsMatchDocumentedDefaults(t *testing.T) {
	th := DefaultThresholds()
	assert.Equal(t, 15.0, th.BrandDeltaE)
	assert.Equal(t, 60, th.GateScore)
}
