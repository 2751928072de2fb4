package domain

import (
	"encoding/json"
	"strings"
)

// TraceEvent is one unit of agent activity shown in the activity panel.
type TraceEvent struct {
	Agent     string          `json:"agent"`
	Type      string          `json:"type"`
	Status    TraceStatus     `json:"status"`
	Title     string          `json:"title"`
	Detail    string          `json:"detail,omitempty"`
	Icon      string          `json:"icon"`
	Timestamp float64         `json:"timestamp"` // seconds since the turn started
	Data      json.RawMessage `json:"data,omitempty"`
}

// IsEnd reports whether the event closes the activity of its agent.
func (e TraceEvent) IsEnd() bool {
	return strings.Contains(e.Type, "end")
}

// IsThinking reports whether the event is an agent-independent reasoning note.
func (e TraceEvent) IsThinking() bool {
	return e.Type == TraceTypeThinking
}

// Visual returns the card attached under data.visual, if any.
func (e TraceEvent) Visual() (*VisualCard, bool) {
	if len(e.Data) == 0 {
		return nil, false
	}
	var data struct {
		Visual *VisualCard `json:"visual"`
	}
	if err := json.Unmarshal(e.Data, &data); err != nil || data.Visual == nil {
		return nil, false
	}
	return data.Visual, true
}

// VisualCard is a structured summary attached to a trace event. Type is one of
// billing, insurance, correction or case; the remaining keys depend on it.
type VisualCard struct {
	Type   string         `json:"type"`
	Fields map[string]any `json:"-"`
}

// MarshalJSON flattens Fields next to the type key.
func (v VisualCard) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(v.Fields)+1)
	for k, val := range v.Fields {
		out[k] = val
	}
	out["type"] = v.Type
	return json.Marshal(out)
}

// UnmarshalJSON collects every key other than type into Fields.
func (v *VisualCard) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if t, ok := raw["type"].(string); ok {
		v.Type = t
	}
	delete(raw, "type")
	v.Fields = raw
	return nil
}

// TokenUsage counts model tokens for a turn.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Total returns input plus output tokens.
func (t TokenUsage) Total() int {
	return t.Input + t.Output
}

// Metrics is the resource snapshot reported at the end of a turn.
type Metrics struct {
	TotalTime     float64            `json:"total_time"`
	Tokens        TokenUsage         `json:"tokens"`
	EstimatedCost float64            `json:"estimated_cost"`
	Timings       map[string]float64 `json:"timings"`
}
