package cvclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPClient calls a single CV service base URL with one sub-path per
// operation (§6): POST {baseURL}/assess_blur, /color_contrast, /saliency,
// /suggest_placement, /ocr_extract.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient builds a Client bound to one CV service deployment.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{baseURL: baseURL, http: &http.Client{Timeout: 30 * time.Second}}
}

func (c *HTTPClient) call(ctx context.Context, op string, req any, resp any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("cvclient: marshal %s request: %w", op, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+op, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("cvclient: build %s request: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("cvclient: %s call: %w", op, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		return fmt.Errorf("cvclient: %s returned status %d", op, httpResp.StatusCode)
	}
	if err := json.NewDecoder(httpResp.Body).Decode(resp); err != nil {
		return fmt.Errorf("cvclient: decode %s response: %w", op, err)
	}
	return nil
}

func (c *HTTPClient) AssessBlur(ctx context.Context, imageDataURL string) (BlurResult, error) {
	var out BlurResult
	err := c.call(ctx, "assess_blur", map[string]string{"image_data_url": imageDataURL}, &out)
	return out, err
}

func (c *HTTPClient) ColorContrast(ctx context.Context, foregroundHex, backgroundHex string, largeText bool) (ContrastResult, error) {
	var out ContrastResult
	err := c.call(ctx, "color_contrast", map[string]any{
		"foreground": foregroundHex, "background": backgroundHex, "large_text": largeText,
	}, &out)
	return out, err
}

func (c *HTTPClient) Saliency(ctx context.Context, imageDataURL string) (SaliencyResult, error) {
	var out SaliencyResult
	err := c.call(ctx, "saliency", map[string]string{"image_data_url": imageDataURL}, &out)
	return out, err
}

func (c *HTTPClient) SuggestPlacement(ctx context.Context, imageDataURL string, overlayW, overlayH float64) (PlacementSuggestion, error) {
	var out PlacementSuggestion
	err := c.call(ctx, "suggest_placement", map[string]any{
		"image_data_url": imageDataURL, "overlay_w": overlayW, "overlay_h": overlayH,
	}, &out)
	return out, err
}

func (c *HTTPClient) OCRExtract(ctx context.Context, imageDataURL string) (OCRResult, error) {
	var out OCRResult
	err := c.call(ctx, "ocr_extract", map[string]string{"image_data_url": imageDataURL}, &out)
	return out, err
}
