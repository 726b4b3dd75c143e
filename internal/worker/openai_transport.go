package worker

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAITransport dispatches text-generation worker kinds (clarify,
// outline, write-slide, critique, polish-notes, design, script, research) to the
// OpenAI chat-completion API in-process, without a network hop to a
// separate worker process (§4.2 "transport is pluggable (HTTP or
// in-process direct call)").
type OpenAITransport struct {
	client *openai.Client
	model  string
}

// NewOpenAITransport builds a transport bound to one API key. Resolution
// of which key to use (node config > env > default) happens one layer up,
// in the caller that wires the worker registry.
func NewOpenAITransport(apiKey, model string) *OpenAITransport {
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAITransport{client: openai.NewClient(apiKey), model: model}
}

// Call implements Transport. input is expected to be the fully-rendered
// prompt string produced by the step's input_mapping.
func (t *OpenAITransport) Call(ctx context.Context, workerName string, input any, meta CallMeta) (Result, error) {
	prompt, ok := input.(string)
	if !ok {
		return Result{}, NewCallError(ErrBadRequest, fmt.Sprintf("worker %s expects a string prompt, got %T", workerName, input))
	}

	model := t.model
	if meta.Model != "" {
		model = meta.Model
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: float32(meta.Temperature),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	resp, err := t.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Result{}, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, NewCallError(ErrTransient, "openai returned no choices")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	return Result{
		Result: content,
		Usage: Usage{
			PromptTokens:     int64(resp.Usage.PromptTokens),
			CompletionTokens: int64(resp.Usage.CompletionTokens),
			TotalTokens:      int64(resp.Usage.TotalTokens),
			Model:            resp.Model,
		},
	}, nil
}

// classifyOpenAIError maps the go-openai error surface onto the §6 error
// taxonomy so the retry/circuit-breaker layer can make the right call.
func classifyOpenAIError(err error) *CallError {
	msg := err.Error()
	if apiErr, ok := err.(*openai.APIError); ok {
		switch apiErr.HTTPStatusCode {
		case 401, 403:
			return NewCallError(ErrAuth, msg)
		case 429:
			return NewCallError(ErrRateLimit, msg)
		case 400, 422:
			return NewCallError(ErrBadRequest, msg)
		case 408, 504:
			return NewCallError(ErrTimeout, msg)
		}
		if apiErr.HTTPStatusCode >= 500 {
			return NewCallError(ErrTransient, msg)
		}
	}
	if _, ok := err.(*openai.RequestError); ok {
		return NewCallError(ErrTransient, msg)
	}
	return NewCallError(ErrTransient, msg)
}
