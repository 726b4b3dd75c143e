// Package cvclient is the typed contract to the external computer-vision
// collaborator (§6): OCR, contrast, saliency and placement are invoked as
// remote services, never implemented locally (§1 Out of scope).
package cvclient

import "context"

// ContrastResult is the outcome of a foreground/background contrast check
// (§4.5 Accessibility).
type ContrastResult struct {
	Ratio        float64 `json:"ratio"`
	LargeText    bool    `json:"large_text"`
	MeetsMinimum bool    `json:"meets_minimum"`
}

// BlurResult reports how sharp an image asset is.
type BlurResult struct {
	Score     float64 `json:"score"`
	IsBlurry  bool    `json:"is_blurry"`
}

// SaliencyResult locates the visually salient region of an image, as a
// normalized bounding box.
type SaliencyResult struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// PlacementSuggestion proposes where to put overlay content without
// covering the salient region.
type PlacementSuggestion struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	W      float64 `json:"w"`
	H      float64 `json:"h"`
	Reason string  `json:"reason"`
}

// OCRResult is text extracted from an image asset, for evidence indexing
// (§4.3 ingestion step 2: "for images, optionally enrich via external OCR
// service and index the extracted text").
type OCRResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Client is the full set of calls the Quality Gate and Evidence Store
// make against the external CV service (§6 "CV client"). imageDataURL is
// a data: URL or http(s) URL to the asset being inspected.
type Client interface {
	AssessBlur(ctx context.Context, imageDataURL string) (BlurResult, error)
	ColorContrast(ctx context.Context, foregroundHex, backgroundHex string, largeText bool) (ContrastResult, error)
	Saliency(ctx context.Context, imageDataURL string) (SaliencyResult, error)
	SuggestPlacement(ctx context.Context, imageDataURL string, overlayW, overlayH float64) (PlacementSuggestion, error)
	OCRExtract(ctx context.Context, imageDataURL string) (OCRResult, error)
}
