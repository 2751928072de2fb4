package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/carechat/internal/domain"
	"github.com/xiaot623/carechat/internal/protocol"
)

// fakeServer streams canned frames and records session deletions.
type fakeServer struct {
	*httptest.Server

	frames []domain.StreamEvent

	mu       sync.Mutex
	requests []domain.ChatRequest
	deleted  []string
}

func newFakeServer(t *testing.T, frames ...domain.StreamEvent) *fakeServer {
	t.Helper()
	fs := &fakeServer{frames: frames}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/stream", func(w http.ResponseWriter, r *http.Request) {
		var req domain.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fs.mu.Lock()
		fs.requests = append(fs.requests, req)
		fs.mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range fs.frames {
			data, err := domain.EncodeStreamEvent(ev)
			if err != nil {
				t.Errorf("encode frame: %v", err)
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
		}
	})
	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req domain.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		fs.mu.Lock()
		fs.requests = append(fs.requests, req)
		fs.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(domain.ChatResponse{
			Response:  "Hi Maria, all set.",
			SessionID: "s-1",
			Trace:     []domain.TraceEvent{{Agent: "Orchestrator", Type: domain.TraceTypeOrchestratorStart, Title: "Analyzing request"}},
			Metrics:   &domain.Metrics{TotalTime: 0.5, Tokens: domain.TokenUsage{Input: 10, Output: 20}},
		})
	})
	mux.HandleFunc("DELETE /api/session/{id}", func(w http.ResponseWriter, r *http.Request) {
		fs.mu.Lock()
		fs.deleted = append(fs.deleted, r.PathValue("id"))
		fs.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"deleted"}`)
	})
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"healthy","agents":["orchestrator","servicenow","salesforce"]}`)
	})

	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Close)
	return fs
}

func turnFrames() []domain.StreamEvent {
	return []domain.StreamEvent{
		domain.TraceFrame{Event: domain.TraceEvent{Agent: "Orchestrator", Type: domain.TraceTypeOrchestratorStart, Status: domain.TraceStatusRunning, Title: "Analyzing request", Icon: "🎯"}},
		domain.TraceFrame{Event: domain.TraceEvent{Agent: "Orchestrator", Type: domain.TraceTypeOrchestratorEnd, Status: domain.TraceStatusComplete, Title: "Response ready", Icon: "✨", Timestamp: 0.5}},
		domain.MetricsFrame{Metrics: domain.Metrics{TotalTime: 0.5, Tokens: domain.TokenUsage{Input: 10, Output: 20}, Timings: map[string]float64{"orchestrator": 0.5}}},
		domain.ResponseFrame{Text: "Hi Maria, all set.", SessionID: "s-1"},
		domain.DoneFrame{},
	}
}

func execute(t *testing.T, serverURL, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--server", serverURL + "/", "--log-level", "error", "--grace", "1h"}, args...))

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAskPrintsActivityAndResponse(t *testing.T) {
	srv := newFakeServer(t, turnFrames()...)

	out, err := execute(t, srv.URL, "", "ask", "What's", "wrong", "with", "my", "bill?")
	require.NoError(t, err)

	assert.Contains(t, out, "Analyzing request")
	assert.Contains(t, out, "Hi Maria, all set.")
	require.Len(t, srv.requests, 1)
	assert.Equal(t, "What's wrong with my bill?", srv.requests[0].Message)
	assert.Nil(t, srv.requests[0].SessionID)
}

func TestAskFlags(t *testing.T) {
	srv := newFakeServer(t, turnFrames()...)

	t.Run("trace", func(t *testing.T) {
		out, err := execute(t, srv.URL, "", "ask", "--trace", "hello")
		require.NoError(t, err)
		assert.Contains(t, out, `"type": "orchestrator_start"`)
		assert.Contains(t, out, `"title": "Response ready"`)
	})

	t.Run("quiet", func(t *testing.T) {
		out, err := execute(t, srv.URL, "", "ask", "-q", "hello")
		require.NoError(t, err)
		assert.NotContains(t, out, "Analyzing request")
		assert.Contains(t, out, "Hi Maria, all set.")
	})

	t.Run("session", func(t *testing.T) {
		_, err := execute(t, srv.URL, "", "ask", "--session", "abc123", "hello")
		require.NoError(t, err)
		last := srv.requests[len(srv.requests)-1]
		require.NotNil(t, last.SessionID)
		assert.Equal(t, "abc123", *last.SessionID)
	})
}

func TestAskShowsServerError(t *testing.T) {
	srv := newFakeServer(t, domain.ErrorFrame{Message: "policy engine unavailable"}, domain.DoneFrame{})

	out, err := execute(t, srv.URL, "", "ask", "hello")
	require.ErrorIs(t, err, errTurnFailed)
	assert.Contains(t, out, "Error: policy engine unavailable")
}

func TestAskNoStream(t *testing.T) {
	srv := newFakeServer(t)

	out, err := execute(t, srv.URL, "", "ask", "--no-stream", "--trace", "--session", "abc123", "hello")
	require.NoError(t, err)

	assert.Contains(t, out, "Hi Maria, all set.")
	assert.Contains(t, out, `"title": "Analyzing request"`)
	require.Len(t, srv.requests, 1)
	require.NotNil(t, srv.requests[0].SessionID)
	assert.Equal(t, "abc123", *srv.requests[0].SessionID)
}

func TestAskFailsWhenServerIsDown(t *testing.T) {
	srv := newFakeServer(t)
	url := srv.URL
	srv.Close()

	_, err := execute(t, url, "", "ask", "hello")
	assert.Error(t, err)
}

func TestAskRequiresMessage(t *testing.T) {
	srv := newFakeServer(t)

	_, err := execute(t, srv.URL, "", "ask")
	assert.Error(t, err)
}

func TestChatREPL(t *testing.T) {
	srv := newFakeServer(t, turnFrames()...)

	stdin := strings.Join([]string{
		"/status",
		"/trace",
		"hello",
		"",
		"/status",
		"/trace",
		"/reset",
		"/bogus",
		"/help",
		"/quit",
		"never sent",
	}, "\n") + "\n"

	out, err := execute(t, srv.URL, stdin, "chat")
	require.NoError(t, err)

	assert.Contains(t, out, "Type /help for commands.")
	assert.Contains(t, out, "session:  (new)")
	assert.Contains(t, out, "No trace yet. Send a message first.")
	assert.Contains(t, out, "Hi Maria, all set.")
	assert.Contains(t, out, "session:  s-1")
	assert.Contains(t, out, "events:   2")
	assert.Contains(t, out, `"title": "Analyzing request"`)
	assert.Contains(t, out, "conversation reset")
	assert.Contains(t, out, "unknown command /bogus")
	assert.Contains(t, out, "/reset   start a new conversation")

	require.Len(t, srv.requests, 1)
	assert.Equal(t, []string{"s-1"}, srv.deleted)
}

func TestChatEndsAtEOF(t *testing.T) {
	srv := newFakeServer(t, turnFrames()...)

	_, err := execute(t, srv.URL, "hello\n", "chat")
	require.NoError(t, err)
	assert.Len(t, srv.requests, 1)
}

func TestHealth(t *testing.T) {
	srv := newFakeServer(t)

	out, err := execute(t, srv.URL, "", "health")
	require.NoError(t, err)
	assert.Contains(t, out, "Status: healthy")
	assert.Contains(t, out, "Agents: orchestrator, servicenow, salesforce")

	out, err = execute(t, srv.URL, "", "health", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"healthy","agents":["orchestrator","servicenow","salesforce"]}`, out)
}

func TestWatchPrintsFeed(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/ws/trace" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var hello protocol.HelloMessage
		if err := conn.ReadJSON(&hello); err != nil {
			return
		}
		base := func(typ string) protocol.BaseMessage {
			return protocol.BaseMessage{Type: typ, Ts: time.Now().UnixMilli(), SessionID: hello.SessionID}
		}
		_ = conn.WriteJSON(protocol.HelloAckMessage{BaseMessage: base(protocol.TypeHelloAck)})
		_ = conn.WriteJSON(protocol.TraceMessage{
			BaseMessage: base(protocol.TypeTrace),
			Event:       domain.TraceEvent{Agent: "ServiceNow", Type: domain.TraceTypeToolStart, Title: "Billing Lookup", Detail: "Request: Look up billing records", Icon: "🔧", Timestamp: 0.25},
		})
		_ = conn.WriteJSON(protocol.TurnDoneMessage{
			BaseMessage: base(protocol.TypeTurnDone),
			Metrics:     &domain.Metrics{TotalTime: 1.5, Tokens: domain.TokenUsage{Input: 40, Output: 60}},
		})
		_ = conn.WriteJSON(base(protocol.TypeSessionDeleted))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	out, err := execute(t, srv.URL, "", "watch", "--session", "sess-1234567890")
	require.NoError(t, err)

	assert.Contains(t, out, "Watching sess-1234567890")
	assert.Contains(t, out, "sess-123")
	assert.Contains(t, out, "[ServiceNow]")
	assert.Contains(t, out, "Billing Lookup")
	assert.Contains(t, out, "turn done")
	assert.Contains(t, out, "1.50s, 100 tokens")
	assert.Contains(t, out, "session deleted")
}
