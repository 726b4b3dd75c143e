package api

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/slidecraft/orchestrator/internal/engine"
	"github.com/slidecraft/orchestrator/internal/evidence"
	"github.com/slidecraft/orchestrator/internal/session"
	"github.com/slidecraft/orchestrator/internal/telemetry"
	"github.com/slidecraft/orchestrator/internal/worker"
	"github.com/slidecraft/orchestrator/internal/workflowdef"
)

// Server is the thin HTTP translator in front of the workflow engine
// (§4.7): it opens a session, runs the declared workflow, and returns the
// resulting state and trace. The Hub and TraceRegistry are constructed
// before the Engine (whose sink wraps them) and handed in here, since the
// Engine itself must exist before the Server does.
type Server struct {
	def      *workflowdef.Definition
	engine   *engine.Engine
	sessions *session.Manager
	workers  *worker.Client
	evidence *evidence.Store
	eventLog *telemetry.Log
	hub      *Hub
	registry *TraceRegistry
	auth     Authenticator
	metrics  http.Handler
	logger   zerolog.Logger

	mux *http.ServeMux
}

// NewServer wires a Server. evidenceStore and auth may be nil: without an
// evidence store, /rag/retrieve returns 503; without an auth, the trace
// stream accepts every connection (development mode). metrics may be nil,
// in which case GET /metrics returns 503.
func NewServer(
	def *workflowdef.Definition,
	eng *engine.Engine,
	sessions *session.Manager,
	workers *worker.Client,
	evidenceStore *evidence.Store,
	eventLog *telemetry.Log,
	hub *Hub,
	registry *TraceRegistry,
	auth Authenticator,
	metrics http.Handler,
	logger zerolog.Logger,
) *Server {
	if auth == nil {
		auth = NoAuth{}
	}
	s := &Server{
		def:      def,
		engine:   eng,
		sessions: sessions,
		workers:  workers,
		evidence: evidenceStore,
		eventLog: eventLog,
		hub:      hub,
		registry: registry,
		auth:     auth,
		metrics:  metrics,
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /v1/workflow/presentation", s.handleRunWorkflow)
	s.mux.HandleFunc("POST /rag/retrieve", s.handleRetrieve)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /v1/workers/circuits", s.handleCircuits)
	s.mux.HandleFunc("POST /v1/workers/{name}/invoke", s.handleInvokeWorker)
	s.mux.HandleFunc("GET /v1/workflow/{id}/trace/stream", s.handleTraceStream)
	s.mux.HandleFunc("GET /metrics", s.handleMetrics)
}

// ServeHTTP implements http.Handler, applying the middleware chain the
// teacher's rest.Server wires around its own mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	recoveryMiddleware(s.logger, loggingMiddleware(s.logger, corsMiddleware(s.mux))).ServeHTTP(w, r)
}
