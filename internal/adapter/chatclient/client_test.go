package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/carechat/internal/domain"
	"github.com/xiaot623/carechat/internal/sse"
)

func TestStreamPostsRequestAndParsesEvents(t *testing.T) {
	var gotReq map[string]any
	var gotAccept string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat/stream" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAccept = r.Header.Get("Accept")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotReq)

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"type\":\"trace\",\"event\":{\"type\":\"tool_start\",\"agent\":\"ServiceNow\",\"title\":\"Billing Lookup\",\"status\":\"running\"}}\n\n")
		flusher.Flush()
		fmt.Fprint(w, "data: {\"type\":\"response\",\"text\":\"hi\",\"session_id\":\"abc123\"}\n\n")
		fmt.Fprint(w, "data: {\"type\":\"done\"}\n\n")
	}))
	defer server.Close()

	client := NewClientWithHTTP(server.URL+"/", server.Client())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var events []domain.StreamEvent
	err := client.Stream(ctx, domain.ChatRequest{Message: "What's wrong with my bill?"}, func(ev domain.StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "text/event-stream", gotAccept)
	assert.Equal(t, "What's wrong with my bill?", gotReq["message"])
	v, present := gotReq["session_id"]
	assert.True(t, present, "session_id must be sent as null")
	assert.Nil(t, v)

	require.Len(t, events, 3)
	assert.Equal(t, domain.EventKindTrace, events[0].Kind())
	assert.Equal(t, "abc123", events[1].(domain.ResponseFrame).SessionID)
	assert.Equal(t, domain.DoneFrame{}, events[2])
}

func TestStreamNonOKStatusIsTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClientWithHTTP(server.URL, server.Client())

	var events []domain.StreamEvent
	err := client.Stream(context.Background(), domain.ChatRequest{Message: "hi"}, func(ev domain.StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Equal(t, []domain.StreamEvent{domain.ErrorFrame{Message: sse.TransportErrorMessage, Transport: true}}, events)
}

func TestStreamUnreachableServer(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient(url)
	calls := 0
	err := client.Stream(context.Background(), domain.ChatRequest{Message: "hi"}, func(ev domain.StreamEvent) error {
		calls++
		assert.Equal(t, domain.EventKindError, ev.Kind())
		return nil
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDeleteSession(t *testing.T) {
	var gotPath, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		if r.URL.Path == "/api/session/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClientWithHTTP(server.URL, server.Client())
	require.NoError(t, client.DeleteSession(context.Background(), "abc123"))
	assert.Equal(t, "/api/session/abc123", gotPath)
	assert.Equal(t, http.MethodDelete, gotMethod)

	assert.Error(t, client.DeleteSession(context.Background(), "missing"))
}

func TestChatAndHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/chat":
			fmt.Fprint(w, `{"response":"hello","session_id":"s1","trace":[{"type":"orchestrator_end","agent":"Orchestrator","status":"complete"}]}`)
		case "/api/health":
			fmt.Fprint(w, `{"status":"healthy","agents":["orchestrator","servicenow","salesforce"]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClientWithHTTP(server.URL, server.Client())
	resp, err := client.Chat(context.Background(), domain.ChatRequest{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Response)
	assert.Len(t, resp.Trace, 1)

	health, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, domain.KnownAgents, health.Agents)
}
