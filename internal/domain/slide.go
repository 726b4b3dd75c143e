package domain

// QualityMetrics is the per-slide quality assessment produced by the
// Quality Gate (§3, §4.5).
type QualityMetrics struct {
	OverallScore          int          `json:"overall_score"`
	AccessibilityScore    int          `json:"accessibility_score"`
	BrandScore            int          `json:"brand_score"`
	ClarityScore          int          `json:"clarity_score"`
	CitationValidity      int          `json:"citation_validity"`
	IssuesFound           []string     `json:"issues_found"`
	FixesApplied          []string     `json:"fixes_applied"`
	RequiresManualReview  bool         `json:"requires_manual_review"`
	QualityLevel          QualityLevel `json:"quality_level"`
}

// Slide is one authored slide (§3).
type Slide struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Content       []string       `json:"content"`
	SpeakerNotes  string         `json:"speaker_notes,omitempty"`
	Citations     []string       `json:"citations"`
	Design        map[string]any `json:"design,omitempty"`
	ImagePrompt   string         `json:"image_prompt,omitempty"`
	ImageURL      string         `json:"image_url,omitempty"`
	QualityMetrics QualityMetrics `json:"quality_metrics"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// GateFailure records one slide that failed the aggregate quality gate
// with no auto-fix path (§4.5).
type GateFailure struct {
	SlideID string   `json:"slide_id"`
	Reasons []string `json:"reasons"`
}

// WorkflowQualityState is the presentation-wide quality rollup (§3).
type WorkflowQualityState struct {
	OverallPresentationScore int           `json:"overall_presentation_score"`
	ManualReviewRequired     bool          `json:"manual_review_required"`
	GateFailures             []GateFailure `json:"gate_failures"`
	FixesApplied             []string      `json:"fixes_applied"`
}
