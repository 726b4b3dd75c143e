package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slidecraft/orchestrator/internal/domain"
	"github.com/slidecraft/orchestrator/internal/engine"
	"github.com/slidecraft/orchestrator/internal/session"
	"github.com/slidecraft/orchestrator/internal/telemetry"
	"github.com/slidecraft/orchestrator/internal/worker"
	"github.com/slidecraft/orchestrator/internal/workflowdef"
)

type memStateStore struct {
	states map[string]*domain.WorkflowState
}

func newMemStateStore() *memStateStore {
	return &memStateStore{states: make(map[string]*domain.WorkflowState)}
}

func (m *memStateStore) Get(ctx context.Context, presentationID string) (*domain.WorkflowState, error) {
	if s, ok := m.states[presentationID]; ok {
		return s, nil
	}
	return domain.NewWorkflowState(presentationID), nil
}

func (m *memStateStore) Commit(ctx context.Context, state *domain.WorkflowState, expectedVersion int64) error {
	m.states[state.PresentationID] = state
	return nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	log := zerolog.Nop()

	def := &workflowdef.Definition{
		Name:    "presentation",
		Version: "1",
		Steps:   []workflowdef.Step{{ID: "noop", Kind: domain.StepNoop}},
	}

	workers := worker.NewClient(map[string]worker.Transport{}, worker.DefaultCircuitBreakerConfig(), worker.DefaultRetryPolicy(), log)

	eventLog := telemetry.NewLog()
	hub := NewHub(log)
	registry := NewTraceRegistry()
	sink := NewTraceSink(hub, eventLog, registry)
	eng := engine.New(workers, sink, log)

	sessions := session.NewManager(newMemStateStore(), session.BudgetDefaults{MaxTokens: 10_000, MaxWallClock: time.Minute})

	return NewServer(def, eng, sessions, workers, nil, eventLog, hub, registry, nil, nil, log)
}

func TestHandleRunWorkflowSucceeds(t *testing.T) {
	srv := newTestServer(t)

	body, _ := json.Marshal(runWorkflowRequest{PresentationID: "pres-1", InitialInput: "build me a deck"})
	req := httptest.NewRequest(http.MethodPost, "/v1/workflow/presentation", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp runWorkflowResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Final)
	assert.Equal(t, "pres-1", resp.State.PresentationID)
}

func TestHandleHealthReportsOK(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleRetrieveWithoutEvidenceStoreReturns503(t *testing.T) {
	srv := newTestServer(t)

	body, _ := json.Marshal(retrieveRequest{PresentationID: "pres-1", Query: "q"})
	req := httptest.NewRequest(http.MethodPost, "/rag/retrieve", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleRunWorkflowRejectsConcurrentSession(t *testing.T) {
	srv := newTestServer(t)

	// Open a session directly (simulating an in-flight run) then attempt
	// a second request for the same presentation_id through the HTTP layer.
	opened, err := srv.sessions.Open(context.Background(), session.OpenRequest{PresentationID: "pres-2"})
	require.NoError(t, err)
	defer srv.sessions.Close(opened)

	body, _ := json.Marshal(runWorkflowRequest{PresentationID: "pres-2", InitialInput: "x"})
	req := httptest.NewRequest(http.MethodPost, "/v1/workflow/presentation", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleMetricsWithoutRegistryReturns503(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type echoTransport struct{}

func (echoTransport) Call(ctx context.Context, workerName string, input any, meta worker.CallMeta) (worker.Result, error) {
	return worker.Result{Result: input}, nil
}

func TestHandleInvokeWorkerBypassesWorkflow(t *testing.T) {
	log := zerolog.Nop()
	workers := worker.NewClient(map[string]worker.Transport{"outline": echoTransport{}}, worker.DefaultCircuitBreakerConfig(), worker.DefaultRetryPolicy(), log)
	eventLog := telemetry.NewLog()
	hub := NewHub(log)
	registry := NewTraceRegistry()
	sink := NewTraceSink(hub, eventLog, registry)
	eng := engine.New(workers, sink, log)
	sessions := session.NewManager(newMemStateStore(), session.BudgetDefaults{MaxTokens: 10_000, MaxWallClock: time.Minute})
	def := &workflowdef.Definition{Name: "presentation", Version: "1", Steps: []workflowdef.Step{{ID: "noop", Kind: domain.StepNoop}}}
	srv := NewServer(def, eng, sessions, workers, nil, eventLog, hub, registry, nil, nil, log)

	body, _ := json.Marshal(invokeWorkerRequest{Input: map[string]any{"query": "hello"}})
	req := httptest.NewRequest(http.MethodPost, "/v1/workers/outline/invoke", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp worker.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "hello", resp.Result.(map[string]any)["query"])
}

func TestHandleInvokeWorkerUnknownNameFails(t *testing.T) {
	srv := newTestServer(t)

	body, _ := json.Marshal(invokeWorkerRequest{Input: "x"})
	req := httptest.NewRequest(http.MethodPost, "/v1/workers/unknown/invoke", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
