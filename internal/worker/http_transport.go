package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// wireRequest is the §6 worker wire protocol request envelope.
type wireRequest struct {
	Input       any            `json:"input"`
	Model       string         `json:"model,omitempty"`
	Temperature float64        `json:"temperature,omitempty"`
	Metadata    wireMetadata   `json:"metadata"`
}

type wireMetadata struct {
	TraceID        string `json:"trace_id"`
	StepID         string `json:"step_id"`
	PresentationID string `json:"presentation_id"`
}

type wireUsage struct {
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	Model            string `json:"model"`
}

type wireResponse struct {
	Result    json.RawMessage `json:"result"`
	Usage     wireUsage       `json:"usage"`
	Telemetry map[string]any  `json:"telemetry,omitempty"`
}

type wireError struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
}

// HTTPTransport calls a remote worker kind over HTTP/JSON, one base URL
// per worker name (§4.2, §6).
type HTTPTransport struct {
	client   *http.Client
	baseURLs map[string]string
}

// NewHTTPTransport builds a transport with one endpoint URL per worker
// name, sourced from the WORKER_<name>_URL environment variables (§6).
func NewHTTPTransport(baseURLs map[string]string) *HTTPTransport {
	return &HTTPTransport{
		client:   &http.Client{},
		baseURLs: baseURLs,
	}
}

func (t *HTTPTransport) Call(ctx context.Context, workerName string, input any, meta CallMeta) (Result, error) {
	url, ok := t.baseURLs[workerName]
	if !ok {
		return Result{}, NewCallError(ErrBadRequest, "no endpoint configured for worker "+workerName)
	}

	body, err := json.Marshal(wireRequest{
		Input:       input,
		Model:       meta.Model,
		Temperature: meta.Temperature,
		Metadata: wireMetadata{
			TraceID:        meta.TraceID,
			StepID:         meta.StepID,
			PresentationID: meta.PresentationID,
		},
	})
	if err != nil {
		return Result{}, NewCallError(ErrInternal, "marshal request: "+err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{}, NewCallError(ErrInternal, "build request: "+err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := t.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, NewCallError(ErrTimeout, err.Error())
		}
		return Result{}, NewCallError(ErrTransient, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var we wireError
		_ = json.NewDecoder(resp.Body).Decode(&we)
		if we.Code == "" {
			we.Code = statusToCode(resp.StatusCode)
			we.Message = fmt.Sprintf("worker %s returned status %d", workerName, resp.StatusCode)
		}
		return Result{}, &CallError{Code: we.Code, Message: we.Message, Retryable: we.Retryable || we.Code.retryable()}
	}

	var wr wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return Result{}, NewCallError(ErrSchema, "decode response: "+err.Error())
	}

	var result any
	if len(wr.Result) > 0 {
		if err := json.Unmarshal(wr.Result, &result); err != nil {
			return Result{}, NewCallError(ErrSchema, "decode result field: "+err.Error())
		}
	}

	return Result{
		Result: result,
		Usage: Usage{
			PromptTokens:     wr.Usage.PromptTokens,
			CompletionTokens: wr.Usage.CompletionTokens,
			TotalTokens:      wr.Usage.PromptTokens + wr.Usage.CompletionTokens,
			Model:            wr.Usage.Model,
		},
		DurationMS: time.Since(start).Milliseconds(),
		Telemetry:  wr.Telemetry,
	}, nil
}

func statusToCode(status int) ErrorCode {
	switch {
	case status == 401 || status == 403:
		return ErrAuth
	case status == 429:
		return ErrRateLimit
	case status == 400 || status == 422:
		return ErrBadRequest
	case status == 408 || status == 504:
		return ErrTimeout
	case status >= 500:
		return ErrTransient
	default:
		return ErrInternal
	}
}
