package service

import (
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/xiaot623/carechat/internal/domain"
)

// Collector records the trace events of one turn, stamping each with the
// seconds elapsed since the turn started.
type Collector struct {
	start time.Time
	now   func() time.Time
	sink  func(domain.TraceEvent)

	mu      sync.Mutex
	events  []domain.TraceEvent
	timings map[string]float64
}

// NewCollector starts a collector. sink, if set, sees every event as it is added.
func NewCollector(now func() time.Time, sink func(domain.TraceEvent)) *Collector {
	if now == nil {
		now = time.Now
	}
	return &Collector{
		start:   now(),
		now:     now,
		sink:    sink,
		timings: make(map[string]float64),
	}
}

// Elapsed returns seconds since the turn started, rounded to two places.
func (c *Collector) Elapsed() float64 {
	return round2(c.now().Sub(c.start).Seconds())
}

// Add appends an event and hands it to the sink.
func (c *Collector) Add(eventType, agent, title, detail, icon string, status domain.TraceStatus, data any) domain.TraceEvent {
	ev := domain.TraceEvent{
		Type:      eventType,
		Agent:     agent,
		Title:     title,
		Detail:    detail,
		Icon:      icon,
		Status:    status,
		Timestamp: c.Elapsed(),
	}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			ev.Data = raw
		}
	}

	c.mu.Lock()
	// Timestamps never go backwards within a turn.
	if n := len(c.events); n > 0 && ev.Timestamp < c.events[n-1].Timestamp {
		ev.Timestamp = c.events[n-1].Timestamp
	}
	c.events = append(c.events, ev)
	c.mu.Unlock()

	if c.sink != nil {
		c.sink(ev)
	}
	return ev
}

// Time adds d to the agent's timing.
func (c *Collector) Time(agent domain.AgentKey, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timings[string(agent)] += d.Seconds()
}

// Events returns a copy of the events so far.
func (c *Collector) Events() []domain.TraceEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.TraceEvent, len(c.events))
	copy(out, c.events)
	return out
}

// Timings returns per-agent seconds. The orchestrator is credited with the
// part of total not spent in a specialist.
func (c *Collector) Timings(total float64) map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]float64, len(domain.KnownAgents))
	spent := 0.0
	for agent, secs := range c.timings {
		if agent == string(domain.AgentOrchestrator) {
			continue
		}
		out[agent] = round2(secs)
		spent += secs
	}
	out[string(domain.AgentOrchestrator)] = round2(math.Max(0, total-spent))
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
