// Package quality implements the Quality Gate (§4.5): per-slide scoring,
// citation validation, brand/accessibility checks and the aggregate
// manual-review decision.
package quality

import (
	"context"
	"fmt"
	"strings"

	"github.com/slidecraft/orchestrator/internal/cvclient"
	"github.com/slidecraft/orchestrator/internal/domain"
)

// Thresholds holds the configurable knobs §4.5 calls out explicitly.
type Thresholds struct {
	// BrandDeltaE is the tolerance below which a slide color is
	// considered brand-compliant (§9 Design Notes: documented choice, not
	// reconstructed from a source).
	BrandDeltaE float64
	// GateScore is the aggregate presentation score below which
	// manual_review_required is set, absent an auto-fix (§4.5).
	GateScore int
}

// DefaultThresholds returns the documented defaults: ΔE tolerance 15,
// gate score 60.
func DefaultThresholds() Thresholds {
	return Thresholds{BrandDeltaE: 15, GateScore: 60}
}

const (
	minBullets       = 2
	maxBullets       = 5
	maxTitleWords    = 8
	maxBulletWords   = 12
	bodyContrastMin  = 4.5
	largeContrastMin = 3.0
	citationPenalty  = 10
)

// Gate assesses slides and produces per-slide QualityMetrics plus the
// aggregate WorkflowQualityState.
type Gate struct {
	cv         cvclient.Client
	thresholds Thresholds
}

// NewGate builds a Gate. cv may be nil, in which case accessibility
// checks are skipped and accessibility_score defaults to 100 — tests and
// offline runs should inject a fake instead of relying on this.
func NewGate(cv cvclient.Client, thresholds Thresholds) *Gate {
	return &Gate{cv: cv, thresholds: thresholds}
}

// Assess runs every check in §4.5 over state.Slides and returns the
// updated WorkflowQualityState. Per-slide QualityMetrics are written back
// onto state.Slides in place.
func (g *Gate) Assess(ctx context.Context, state *domain.WorkflowState) (domain.WorkflowQualityState, error) {
	brand, _ := state.Metadata["brand_palette"].([]any)

	var failures []domain.GateFailure
	var fixesApplied []string
	totalScore := 0

	for i := range state.Slides {
		slide := &state.Slides[i]
		metrics, issues, err := g.assessSlide(ctx, state, slide, brand)
		if err != nil {
			return domain.WorkflowQualityState{}, fmt.Errorf("quality gate: slide %s: %w", slide.ID, err)
		}
		slide.QualityMetrics = metrics
		totalScore += metrics.OverallScore

		if len(issues) > 0 && metrics.RequiresManualReview {
			failures = append(failures, domain.GateFailure{SlideID: slide.ID, Reasons: issues})
		}
		fixesApplied = append(fixesApplied, metrics.FixesApplied...)
	}

	overall := 0
	if len(state.Slides) > 0 {
		overall = totalScore / len(state.Slides)
	}

	result := domain.WorkflowQualityState{
		OverallPresentationScore: overall,
		ManualReviewRequired:     overall < g.thresholds.GateScore && len(failures) > 0,
		GateFailures:             failures,
		FixesApplied:             fixesApplied,
	}
	state.Quality = result
	return result, nil
}

func (g *Gate) assessSlide(ctx context.Context, state *domain.WorkflowState, slide *domain.Slide, brand []any) (domain.QualityMetrics, []string, error) {
	var issues []string

	citationValidity := g.checkCitations(state, slide, &issues)
	brandScore := g.checkBrand(slide, brand, &issues)
	accessibilityScore, err := g.checkAccessibility(ctx, slide, &issues)
	if err != nil {
		return domain.QualityMetrics{}, nil, err
	}
	clarityScore := g.checkContentBounds(slide, &issues)

	overall := int(round(
		0.3*float64(accessibilityScore) +
			0.3*float64(brandScore) +
			0.2*float64(clarityScore) +
			0.2*float64(citationValidity),
	))

	metrics := domain.QualityMetrics{
		OverallScore:         overall,
		AccessibilityScore:   accessibilityScore,
		BrandScore:           brandScore,
		ClarityScore:         clarityScore,
		CitationValidity:     citationValidity,
		IssuesFound:          issues,
		RequiresManualReview: overall < g.thresholds.GateScore,
		QualityLevel:         domain.LevelForScore(overall),
	}
	return metrics, issues, nil
}

// checkCitations implements §4.5 check 1: every citation must resolve to
// a known chunk_key; each miss deducts 10 points, floored at 0.
func (g *Gate) checkCitations(state *domain.WorkflowState, slide *domain.Slide, issues *[]string) int {
	known := state.RAG.ChunkKeys(slide.ID)
	score := 100
	for _, citation := range slide.Citations {
		if _, ok := known[citation]; !ok {
			score -= citationPenalty
			*issues = append(*issues, fmt.Sprintf("citation %q does not resolve to any ingested chunk", citation))
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}

// checkBrand implements §4.5 check 2: design.colors must fall within the
// configured ΔE tolerance of a palette entry. No palette configured means
// full marks — there is nothing to violate.
func (g *Gate) checkBrand(slide *domain.Slide, palette []any, issues *[]string) int {
	if len(palette) == 0 {
		return 100
	}
	colorsRaw, _ := slide.Design["colors"].([]any)
	if len(colorsRaw) == 0 {
		return 100
	}

	paletteColors := make([]string, 0, len(palette))
	for _, p := range palette {
		if s, ok := p.(string); ok {
			paletteColors = append(paletteColors, s)
		}
	}

	violations := 0
	for _, c := range colorsRaw {
		hex, ok := c.(string)
		if !ok {
			continue
		}
		if !withinPaletteTolerance(hex, paletteColors, g.thresholds.BrandDeltaE) {
			violations++
			*issues = append(*issues, fmt.Sprintf("color %s exceeds brand ΔE tolerance", hex))
		}
	}
	if violations == 0 {
		return 100
	}
	penalty := violations * 15
	if penalty > 100 {
		penalty = 100
	}
	return 100 - penalty
}

// checkAccessibility implements §4.5 check 3 by deferring to the external
// CV client. Absent a configured client, the check is skipped (treated as
// passing) rather than failing every slide for a dependency the run
// doesn't have.
func (g *Gate) checkAccessibility(ctx context.Context, slide *domain.Slide, issues *[]string) (int, error) {
	if g.cv == nil {
		return 100, nil
	}
	fg, fgOK := slide.Design["foreground"].(string)
	bg, bgOK := slide.Design["background"].(string)
	if !fgOK || !bgOK {
		return 100, nil
	}
	largeText, _ := slide.Design["large_text"].(bool)

	result, err := g.cv.ColorContrast(ctx, fg, bg, largeText)
	if err != nil {
		return 0, fmt.Errorf("color_contrast: %w", err)
	}

	minRatio := bodyContrastMin
	if largeText {
		minRatio = largeContrastMin
	}
	if result.Ratio < minRatio {
		*issues = append(*issues, fmt.Sprintf("contrast ratio %.2f below required %.2f", result.Ratio, minRatio))
		return 0, nil
	}
	return 100, nil
}

// checkContentBounds implements §4.5 check 4: bullet count in [2,5],
// title ≤8 words, each bullet ≤12 words.
func (g *Gate) checkContentBounds(slide *domain.Slide, issues *[]string) int {
	score := 100
	if n := len(slide.Content); n < minBullets || n > maxBullets {
		score -= 20
		*issues = append(*issues, fmt.Sprintf("bullet count %d out of range [%d,%d]", n, minBullets, maxBullets))
	}
	if wordCount(slide.Title) > maxTitleWords {
		score -= 20
		*issues = append(*issues, fmt.Sprintf("title exceeds %d words", maxTitleWords))
	}
	for _, bullet := range slide.Content {
		if wordCount(bullet) > maxBulletWords {
			score -= 10
			*issues = append(*issues, fmt.Sprintf("bullet %q exceeds %d words", bullet, maxBulletWords))
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func round(f float64) float64 {
	if f < 0 {
		return float64(int(f - 0.5))
	}
	return float64(int(f + 0.5))
}
