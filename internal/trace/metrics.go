package trace

import (
	"math"

	"github.com/xiaot623/carechat/internal/domain"
)

// Segment is one agent's share of the turn's wall time.
type Segment struct {
	Agent   domain.AgentKey
	Seconds float64
	Percent int
}

// Segments splits the total time across the known agents in display order.
// Percentages are rounded and clamped so that together they never exceed 100.
func Segments(m domain.Metrics) []Segment {
	total := m.TotalTime
	if total <= 0 {
		total = 1
	}

	segs := make([]Segment, 0, len(domain.KnownAgents))
	sum := 0
	for _, agent := range domain.KnownAgents {
		secs := m.Timings[string(agent)]
		pct := int(math.Round(secs / total * 100))
		pct = max(0, min(pct, 100))
		segs = append(segs, Segment{Agent: agent, Seconds: secs, Percent: pct})
		sum += pct
	}

	for excess := sum - 100; excess > 0; {
		i := largest(segs)
		take := min(excess, segs[i].Percent)
		segs[i].Percent -= take
		excess -= take
	}
	return segs
}

func largest(segs []Segment) int {
	idx := 0
	for i, s := range segs {
		if s.Percent > segs[idx].Percent {
			idx = i
		}
	}
	return idx
}
