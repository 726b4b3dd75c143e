package evidence

import (
	"context"
	"fmt"

	"github.com/slidecraft/orchestrator/internal/worker"
)

// RAGTransport adapts the Evidence Store's retrieval path onto the
// worker.Transport interface, so the declarative engine can invoke it
// through the same dispatch, timeout and circuit-breaking envelope as any
// remote worker (§4.2, §4.3). Registered under the worker names
// "rag-section" and "rag-presentation" (§4.1's cache_section_rag /
// cache_presentation_rag mutations).
type RAGTransport struct {
	store *Store
}

// NewRAGTransport wraps store for use as a worker.Transport.
func NewRAGTransport(store *Store) *RAGTransport {
	return &RAGTransport{store: store}
}

func (t *RAGTransport) Call(ctx context.Context, workerName string, input any, meta worker.CallMeta) (worker.Result, error) {
	req, ok := input.(map[string]any)
	if !ok {
		return worker.Result{}, worker.NewCallError(worker.ErrBadRequest, fmt.Sprintf("%s: expected map input, got %T", workerName, input))
	}
	query, _ := req["query"].(string)
	limit, _ := req["limit"].(int)
	if limit <= 0 {
		limit = 10
	}

	chunks, err := t.store.Retrieve(ctx, meta.PresentationID, query, limit)
	if err != nil {
		return worker.Result{}, worker.NewCallError(worker.ErrTransient, err.Error())
	}

	rawChunks := make([]any, 0, len(chunks))
	for _, c := range chunks {
		rawChunks = append(rawChunks, map[string]any{
			"chunk_key": c.ChunkKey,
			"name":      c.Name,
			"text":      c.Text,
			"url":       c.URL,
		})
	}

	return worker.Result{
		Result: map[string]any{"chunks": rawChunks},
		Usage:  worker.Usage{TotalTokens: worker.EstimateTokens(query)},
	}, nil
}
