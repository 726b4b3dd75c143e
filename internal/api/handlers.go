package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/slidecraft/orchestrator/internal/apperr"
	"github.com/slidecraft/orchestrator/internal/domain"
	"github.com/slidecraft/orchestrator/internal/evidence"
	"github.com/slidecraft/orchestrator/internal/session"
	"github.com/slidecraft/orchestrator/internal/telemetry"
	"github.com/slidecraft/orchestrator/internal/worker"
)

// runWorkflowRequest is the body of POST /v1/workflow/presentation (§4.7).
type runWorkflowRequest struct {
	PresentationID string               `json:"presentation_id,omitempty"`
	History        []domain.HistoryTurn `json:"history,omitempty"`
	InitialInput   string               `json:"initial_input"`
	NewFiles       []ingestFileRequest  `json:"new_files,omitempty"`
	Assets         map[string]any       `json:"assets,omitempty"`
}

type ingestFileRequest struct {
	Name        string `json:"name"`
	URL         string `json:"url,omitempty"`
	Kind        string `json:"kind"`
	ContentType string `json:"content_type,omitempty"`
	DataBase64  string `json:"data_base64"`
}

type runWorkflowResponse struct {
	Trace []traceEventView      `json:"trace"`
	State *domain.WorkflowState `json:"state"`
	Final bool                  `json:"final"`
}

type traceEventView struct {
	StepID     string `json:"step_id"`
	Worker     string `json:"worker,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

func (s *Server) handleRunWorkflow(w http.ResponseWriter, r *http.Request) {
	var req runWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PresentationID == "" {
		req.PresentationID = uuid.NewString()
	}

	opened, err := s.sessions.Open(r.Context(), session.OpenRequest{PresentationID: req.PresentationID})
	if err != nil {
		writeAppError(w, err)
		return
	}

	if len(req.NewFiles) > 0 {
		if s.evidence == nil {
			s.sessions.Close(opened)
			writeError(w, http.StatusServiceUnavailable, "evidence store not configured")
			return
		}
		files, err := toIngestFiles(req.NewFiles)
		if err != nil {
			s.sessions.Close(opened)
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if _, _, err := s.evidence.Ingest(opened.Ctx, req.PresentationID, files); err != nil {
			s.sessions.Close(opened)
			writeError(w, http.StatusBadGateway, "ingest failed: "+err.Error())
			return
		}
	}

	if len(req.History) > 0 {
		opened.State.History = append(opened.State.History, req.History...)
	}
	if req.InitialInput != "" {
		opened.State.Metadata["initial_input"] = req.InitialInput
	}
	for k, v := range req.Assets {
		opened.State.Metadata[k] = v
	}

	s.registry.Begin(opened.Session.SessionID, req.PresentationID)
	finalState, runErr := s.engine.Run(opened.Ctx, s.def, opened.State, opened.Session)
	s.registry.End(opened.Session.SessionID)

	trace := traceForSession(s.eventLog, opened.Session.SessionID)

	if runErr != nil {
		s.sessions.Close(opened)
		writeAppErrorWithTrace(w, runErr, trace)
		return
	}

	if err := s.sessions.Commit(r.Context(), opened); err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, runWorkflowResponse{
		Trace: trace,
		State: finalState,
		Final: true,
	})
}

func traceForSession(log *telemetry.Log, traceID string) []traceEventView {
	var out []traceEventView
	for _, e := range log.Events() {
		if e.TraceID != traceID {
			continue
		}
		out = append(out, traceEventView{
			StepID:     e.StepID,
			Worker:     e.Worker,
			DurationMS: e.DurationMS,
			Status:     string(e.Status),
			Error:      e.Error,
		})
	}
	return out
}

func toIngestFiles(reqs []ingestFileRequest) ([]evidence.IngestFile, error) {
	files := make([]evidence.IngestFile, 0, len(reqs))
	for _, f := range reqs {
		data, err := base64.StdEncoding.DecodeString(f.DataBase64)
		if err != nil {
			return nil, err
		}
		kind := domain.DocumentKind(f.Kind)
		if kind == "" {
			kind = domain.DocumentOther
		}
		files = append(files, evidence.IngestFile{
			Name:        f.Name,
			URL:         f.URL,
			Kind:        kind,
			ContentType: f.ContentType,
			Data:        data,
		})
	}
	return files, nil
}

type retrieveRequest struct {
	PresentationID string `json:"presentation_id"`
	Query          string `json:"query"`
	Limit          int    `json:"limit"`
}

type retrieveResponse struct {
	Chunks []domain.RetrievedChunk `json:"chunks"`
}

func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	if s.evidence == nil {
		writeError(w, http.StatusServiceUnavailable, "evidence store not configured")
		return
	}
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}
	chunks, err := s.evidence.Retrieve(r.Context(), req.PresentationID, req.Query, req.Limit)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, retrieveResponse{Chunks: chunks})
}

type healthResponse struct {
	Status  string            `json:"status"`
	Workers map[string]string `json:"workers"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Workers: s.workers.Breakers().Snapshot()}
	for _, state := range resp.Workers {
		if state == "open" {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCircuits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.workers.Breakers().Snapshot())
}

// invokeWorkerRequest is the body of POST /v1/workers/{name}/invoke (§4.7:
// "Additional endpoints mirror each worker directly (for debugging)").
// Input is passed through to the worker's Transport verbatim, bypassing
// the workflow engine, input mappings and state mutation entirely.
type invokeWorkerRequest struct {
	Input          any    `json:"input"`
	PresentationID string `json:"presentation_id,omitempty"`
}

func (s *Server) handleInvokeWorker(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req invokeWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	meta := worker.CallMeta{
		TraceID:        "debug-" + uuid.NewString(),
		StepID:         "debug_invoke",
		PresentationID: req.PresentationID,
	}
	result, err := s.workers.Invoke(r.Context(), name, req.Input, meta, nil)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeError(w, http.StatusServiceUnavailable, "metrics not configured")
		return
	}
	s.metrics.ServeHTTP(w, r)
}

func (s *Server) handleTraceStream(w http.ResponseWriter, r *http.Request) {
	presentationID := r.PathValue("id")
	if _, err := s.auth.Authenticate(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error().Err(err).Msg("trace stream upgrade failed")
		return
	}

	client := newClient(conn, presentationID, s.logger)
	s.hub.register(presentationID, client)

	go client.writePump()
	client.readPump(s.hub)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeAppError(w http.ResponseWriter, err error) {
	writeAppErrorWithTrace(w, err, nil)
}

func writeAppErrorWithTrace(w http.ResponseWriter, err error, trace []traceEventView) {
	appErr, ok := apperr.AsAppError(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error(), "trace": trace})
		return
	}
	status := http.StatusInternalServerError
	switch appErr.Kind {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindWorkerUnavailable, apperr.KindWorkerTransient:
		status = http.StatusBadGateway
	case apperr.KindBudgetExceeded:
		status = http.StatusPaymentRequired
	case apperr.KindCancelled:
		status = http.StatusRequestTimeout
	case apperr.KindQualityGateFailed:
		status = http.StatusUnprocessableEntity
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindInternal:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]any{"error": appErr.Error(), "trace": trace})
}
