// Package api exposes the orchestrator's HTTP surface (§6): the
// presentation workflow endpoint, health and circuit-breaker debug
// endpoints, and a websocket live-trace feed for a running presentation.
package api

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/slidecraft/orchestrator/internal/telemetry"
)

// Hub fans telemetry events out to websocket clients subscribed to a
// given presentation_id's trace stream.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	log     zerolog.Logger
}

// NewHub creates an empty Hub.
func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		log:     log.With().Str("component", "trace_hub").Logger(),
	}
}

func (h *Hub) register(presentationID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[presentationID] == nil {
		h.clients[presentationID] = make(map[*Client]struct{})
	}
	h.clients[presentationID][c] = struct{}{}
}

func (h *Hub) unregister(presentationID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.clients[presentationID]
	if !ok {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.clients, presentationID)
	}
}

// Broadcast delivers e to every client currently watching presentationID.
// Slow clients are dropped rather than blocking the engine's event log.
func (h *Hub) Broadcast(presentationID string, e telemetry.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[presentationID] {
		select {
		case c.send <- e:
		default:
			h.log.Warn().Str("presentation_id", presentationID).Msg("trace stream client buffer full, dropping event")
		}
	}
}

// TraceRegistry tracks which presentation_id owns a trace_id for the
// duration of one engine.Run, so a telemetry event carrying only a
// trace_id can still be routed to the right trace-stream subscribers.
// It is constructed independently of Server/Hub so it can be threaded
// into the engine's sink before the Server (which needs an already-built
// engine) exists.
type TraceRegistry struct {
	mu    sync.Mutex
	owner map[string]string
}

// NewTraceRegistry creates an empty registry.
func NewTraceRegistry() *TraceRegistry {
	return &TraceRegistry{owner: make(map[string]string)}
}

// Begin records that traceID belongs to presentationID.
func (r *TraceRegistry) Begin(traceID, presentationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owner[traceID] = presentationID
}

// End forgets traceID once its run has finished.
func (r *TraceRegistry) End(traceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.owner, traceID)
}

// Resolve looks up the presentation_id owning traceID, if its run is
// still in flight.
func (r *TraceRegistry) Resolve(traceID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	presentationID, ok := r.owner[traceID]
	return presentationID, ok
}

// TraceSink adapts Hub into a telemetry.Sink by resolving each event's
// trace_id to the presentation_id currently running it via registry.
type TraceSink struct {
	hub      *Hub
	inner    telemetry.Sink
	registry *TraceRegistry
}

// NewTraceSink wraps inner so every recorded event is also broadcast to
// hub, in addition to whatever inner does with it (e.g. the engine's
// append-only Log).
func NewTraceSink(hub *Hub, inner telemetry.Sink, registry *TraceRegistry) *TraceSink {
	return &TraceSink{hub: hub, inner: inner, registry: registry}
}

// Record implements telemetry.Sink.
func (t *TraceSink) Record(e telemetry.Event) {
	t.inner.Record(e)
	if presentationID, ok := t.registry.Resolve(e.TraceID); ok {
		t.hub.Broadcast(presentationID, e)
	}
}
