package sse

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/carechat/internal/domain"
)

const sampleStream = ": keep-alive\n\n" +
	"data: {\"type\":\"trace\",\"event\":{\"type\":\"orchestrator_start\",\"timestamp\":0.01,\"agent\":\"Orchestrator\",\"title\":\"Analyzing request\",\"detail\":\"\\\"What's wrong with my bill?\\\"\",\"icon\":\"🎯\",\"status\":\"running\"}}\n\n" +
	"data: {\"type\":\"trace\",\"event\":{\"type\":\"tool_start\",\"timestamp\":0.2,\"agent\":\"ServiceNow\",\"title\":\"Billing Lookup\",\"detail\":\"Request: Überprüfung – straße\",\"icon\":\"🔧\",\"status\":\"running\"}}\n\n" +
	"data: {\"type\":\"trace\",\"event\":{\"type\":\"tool_end\",\"timestamp\":0.9,\"agent\":\"ServiceNow\",\"title\":\"Found coding error\",\"detail\":\"Code: 99214 → 99214-25\",\"icon\":\"✅\",\"status\":\"complete\"}}\n\n" +
	"data: {\"type\":\"metrics\",\"data\":{\"total_time\":2.0,\"tokens\":{\"input\":120,\"output\":80},\"estimated_cost\":0.0016,\"timings\":{\"orchestrator\":1.2,\"servicenow\":0.8}}}\n\n" +
	"data: {\"type\":\"response\",\"text\":\"Hi Maria — I found the problem.\",\"session_id\":\"abc123\"}\n\n" +
	"data: {\"type\":\"done\"}\n\n"

func collect(t *testing.T, chunks ...[]byte) []domain.StreamEvent {
	t.Helper()
	var dec Decoder
	var events []domain.StreamEvent
	for _, c := range chunks {
		events = append(events, dec.Write(c)...)
	}
	return events
}

func TestDecoderWholeStream(t *testing.T) {
	events := collect(t, []byte(sampleStream))
	require.Len(t, events, 6)

	kinds := make([]domain.EventKind, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, ev.Kind())
	}
	assert.Equal(t, []domain.EventKind{
		domain.EventKindTrace,
		domain.EventKindTrace,
		domain.EventKindTrace,
		domain.EventKindMetrics,
		domain.EventKindResponse,
		domain.EventKindDone,
	}, kinds)

	trace := events[1].(domain.TraceFrame)
	assert.Equal(t, "Request: Überprüfung – straße", trace.Event.Detail)
	assert.Equal(t, "abc123", events[4].(domain.ResponseFrame).SessionID)
}

func TestDecoderEverySplitOffsetMatchesUnsplit(t *testing.T) {
	data := []byte(sampleStream)
	want := collect(t, data)

	for i := 0; i <= len(data); i++ {
		got := collect(t, data[:i], data[i:])
		require.Equal(t, want, got, "split at byte %d", i)
	}
}

func TestDecoderByteAtATime(t *testing.T) {
	data := []byte(sampleStream)
	want := collect(t, data)

	chunks := make([][]byte, 0, len(data))
	for i := range data {
		chunks = append(chunks, data[i:i+1])
	}
	assert.Equal(t, want, collect(t, chunks...))
}

func TestDecoderDropsMalformedLine(t *testing.T) {
	events := collect(t, []byte("data: {malformed\n"+
		"data: {\"type\":\"error\",\"message\":\"agent unavailable\"}\n"+
		"data: {\"type\":\"unknown\"}\n"+
		"event: trace\n"+
		"data:{\"type\":\"done\"}\n"+
		"data: {\"type\":\"done\"}\n"))

	require.Len(t, events, 2)
	assert.Equal(t, domain.ErrorFrame{Message: "agent unavailable"}, events[0])
	assert.Equal(t, domain.DoneFrame{}, events[1])
}

func TestDecoderHoldsPartialLine(t *testing.T) {
	var dec Decoder
	events := dec.Write([]byte("data: {\"type\":\"do"))
	assert.Empty(t, events)
	assert.Equal(t, len("data: {\"type\":\"do"), dec.Buffered())

	events = dec.Write([]byte("ne\"}\n"))
	require.Len(t, events, 1)
	assert.Equal(t, 0, dec.Buffered())
}

func TestConsumeDiscardsTrailingPartial(t *testing.T) {
	var events []domain.StreamEvent
	err := Consume(strings.NewReader("data: {\"type\":\"done\"}\ndata: {\"type\":\"error\",\"message\":\"cut"), func(ev domain.StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.StreamEvent{domain.DoneFrame{}}, events)
}

func TestConsumeSmallReads(t *testing.T) {
	var events []domain.StreamEvent
	err := Consume(iotest.OneByteReader(strings.NewReader(sampleStream)), func(ev domain.StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, collect(t, []byte(sampleStream)), events)
}

func TestConsumeReadFailureSurfacesSingleError(t *testing.T) {
	boom := errors.New("connection reset by peer")
	r := io.MultiReader(
		strings.NewReader("data: {\"type\":\"trace\",\"event\":{\"type\":\"tool_start\",\"agent\":\"Salesforce\",\"status\":\"running\"}}\n"),
		iotest.ErrReader(boom),
	)

	var events []domain.StreamEvent
	err := Consume(r, func(ev domain.StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	require.ErrorIs(t, err, boom)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventKindTrace, events[0].Kind())
	assert.Equal(t, domain.ErrorFrame{Message: TransportErrorMessage, Transport: true}, events[1])
}

func TestConsumeStopsOnHandlerError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	err := Consume(strings.NewReader(sampleStream), func(ev domain.StreamEvent) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}
