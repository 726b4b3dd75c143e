package api

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slidecraft/orchestrator/internal/telemetry"
)

type recordingSink struct {
	events []telemetry.Event
}

func (r *recordingSink) Record(e telemetry.Event) { r.events = append(r.events, e) }

func TestTraceRegistryResolvesOnlyWhileInFlight(t *testing.T) {
	reg := NewTraceRegistry()

	_, ok := reg.Resolve("trace-1")
	assert.False(t, ok)

	reg.Begin("trace-1", "pres-1")
	presentationID, ok := reg.Resolve("trace-1")
	require.True(t, ok)
	assert.Equal(t, "pres-1", presentationID)

	reg.End("trace-1")
	_, ok = reg.Resolve("trace-1")
	assert.False(t, ok)
}

func TestTraceSinkForwardsToInnerAlways(t *testing.T) {
	inner := &recordingSink{}
	hub := NewHub(zerolog.Nop())
	reg := NewTraceRegistry()
	sink := NewTraceSink(hub, inner, reg)

	sink.Record(telemetry.Event{TraceID: "trace-1", StepID: "outline"})

	require.Len(t, inner.events, 1)
	assert.Equal(t, "outline", inner.events[0].StepID)
}

func TestHubBroadcastsOnlyToRegisteredPresentation(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	client := &Client{send: make(chan telemetry.Event, 1), presentationID: "pres-1"}
	hub.register("pres-1", client)

	hub.Broadcast("pres-2", telemetry.Event{StepID: "ignored"})
	select {
	case <-client.send:
		t.Fatal("client should not have received an event for a different presentation")
	default:
	}

	hub.Broadcast("pres-1", telemetry.Event{StepID: "outline"})
	received := <-client.send
	assert.Equal(t, "outline", received.StepID)
}
