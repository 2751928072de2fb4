package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownEventType is returned when a frame carries a type outside the known set.
var ErrUnknownEventType = errors.New("unknown event type")

// StreamEvent is one frame of a chat stream. The concrete type is one of
// TraceFrame, MetricsFrame, ResponseFrame, ErrorFrame or DoneFrame.
type StreamEvent interface {
	Kind() EventKind
	isStreamEvent()
}

// TraceFrame carries one unit of agent activity.
type TraceFrame struct {
	Event TraceEvent
}

// MetricsFrame carries the resource snapshot of a turn.
type MetricsFrame struct {
	Metrics Metrics
}

// ResponseFrame carries the final assistant text of a turn.
type ResponseFrame struct {
	Text      string
	SessionID string
	Trace     []TraceEvent
}

// ErrorFrame carries a turn failure. Transport is set when the frame was
// synthesized by the client after a network failure rather than sent by the server.
type ErrorFrame struct {
	Message   string
	Transport bool
}

// DoneFrame marks the end of the server's stream.
type DoneFrame struct{}

func (TraceFrame) Kind() EventKind    { return EventKindTrace }
func (MetricsFrame) Kind() EventKind  { return EventKindMetrics }
func (ResponseFrame) Kind() EventKind { return EventKindResponse }
func (ErrorFrame) Kind() EventKind    { return EventKindError }
func (DoneFrame) Kind() EventKind     { return EventKindDone }

func (TraceFrame) isStreamEvent()    {}
func (MetricsFrame) isStreamEvent()  {}
func (ResponseFrame) isStreamEvent() {}
func (ErrorFrame) isStreamEvent()    {}
func (DoneFrame) isStreamEvent()     {}

// envelope is the wire form shared by every frame.
type envelope struct {
	Type      EventKind    `json:"type"`
	Event     *TraceEvent  `json:"event,omitempty"`
	Data      *Metrics     `json:"data,omitempty"`
	Text      *string      `json:"text,omitempty"`
	SessionID string       `json:"session_id,omitempty"`
	Trace     []TraceEvent `json:"trace,omitempty"`
	Message   *string      `json:"message,omitempty"`
}

// DecodeStreamEvent parses the JSON payload of one `data: ` line.
func DecodeStreamEvent(data []byte) (StreamEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse stream event: %w", err)
	}

	switch env.Type {
	case EventKindTrace:
		if env.Event == nil {
			return nil, fmt.Errorf("trace event without payload")
		}
		return TraceFrame{Event: *env.Event}, nil
	case EventKindMetrics:
		if env.Data == nil {
			return nil, fmt.Errorf("metrics event without payload")
		}
		return MetricsFrame{Metrics: *env.Data}, nil
	case EventKindResponse:
		resp := ResponseFrame{SessionID: env.SessionID, Trace: env.Trace}
		if env.Text != nil {
			resp.Text = *env.Text
		}
		return resp, nil
	case EventKindError:
		errFrame := ErrorFrame{}
		if env.Message != nil {
			errFrame.Message = *env.Message
		}
		return errFrame, nil
	case EventKindDone:
		return DoneFrame{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, env.Type)
	}
}

// EncodeStreamEvent renders a frame in its wire form.
func EncodeStreamEvent(ev StreamEvent) ([]byte, error) {
	env := envelope{Type: ev.Kind()}
	switch e := ev.(type) {
	case TraceFrame:
		env.Event = &e.Event
	case MetricsFrame:
		env.Data = &e.Metrics
	case ResponseFrame:
		env.Text = &e.Text
		env.SessionID = e.SessionID
		env.Trace = e.Trace
	case ErrorFrame:
		env.Message = &e.Message
	case DoneFrame:
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownEventType, ev)
	}
	return json.Marshal(env)
}
