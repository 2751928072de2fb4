// Package ui renders chat turns to a terminal.
package ui

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/xiaot623/carechat/internal/domain"
	"github.com/xiaot623/carechat/internal/trace"
)

const barWidth = 30

// Console writes trace instructions as styled lines.
type Console struct {
	mu  sync.Mutex
	out io.Writer

	agent     lipgloss.Style
	dim       lipgloss.Style
	done      lipgloss.Style
	active    lipgloss.Style
	errStyle  lipgloss.Style
	response  lipgloss.Style
	card      lipgloss.Style
	cardTitle lipgloss.Style
	cardKey   lipgloss.Style

	// Hides the activity rows; only the response and errors are printed.
	Quiet bool
}

// NewConsole creates a console writing to out. Colors follow out's terminal capabilities.
func NewConsole(out io.Writer) *Console {
	r := lipgloss.NewRenderer(out)
	return &Console{
		out:       out,
		agent:     r.NewStyle().Foreground(lipgloss.Color("63")).Bold(true),
		dim:       r.NewStyle().Foreground(lipgloss.Color("241")),
		done:      r.NewStyle().Foreground(lipgloss.Color("42")),
		active:    r.NewStyle().Foreground(lipgloss.Color("205")).Bold(true),
		errStyle:  r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		response:  r.NewStyle().Foreground(lipgloss.Color("252")).BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1),
		card:      r.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderForeground(lipgloss.Color("244")).Padding(0, 1).MarginLeft(4),
		cardTitle: r.NewStyle().Foreground(lipgloss.Color("86")).Bold(true),
		cardKey:   r.NewStyle().Foreground(lipgloss.Color("244")),
	}
}

// Render implements chat.View.
func (c *Console) Render(ins trace.Instruction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch in := ins.(type) {
	case trace.AddItem:
		if !c.Quiet {
			c.addItem(in.Item)
		}
	case trace.CompleteItems:
		if !c.Quiet {
			c.println(fmt.Sprintf("  %s %s finished (%d)", c.done.Render("✓"), c.agent.Render(DisplayName(in.Bucket)), len(in.IDs)))
		}
	case trace.Highlight:
		if !c.Quiet {
			c.println(c.active.Render("▶ " + DisplayName(in.Agent)))
		}
	case trace.ShowMetrics:
		if !c.Quiet {
			c.println(c.metrics(in.Metrics, in.Segments))
		}
	case trace.ShowResponse:
		c.println(c.response.Render(in.Text))
	case trace.ShowError:
		c.println(c.errStyle.Render(ErrorText(in.Message, in.Transport)))
	case trace.StatusChanged:
		if !c.Quiet {
			c.println(c.dim.Render("status: " + in.Phase.String()))
		}
	case trace.Cleared:
		if in.Conversation {
			c.println(c.dim.Render("conversation reset"))
		}
	}
}

func (c *Console) addItem(item trace.Item) {
	ev := item.Event
	marker := c.done.Render("✓")
	if item.Open {
		marker = c.active.Render("…")
	}
	if item.Bucket == trace.Thinking {
		marker = c.dim.Render("·")
	}

	line := fmt.Sprintf("  %s %s %s", marker, c.agent.Render("["+DisplayName(item.Bucket)+"]"), strings.TrimSpace(ev.Icon+" "+ev.Title))
	if ev.Detail != "" {
		line += c.dim.Render(" - " + ev.Detail)
	}
	if ev.Timestamp > 0 {
		line += c.dim.Render(fmt.Sprintf(" (%.2fs)", ev.Timestamp))
	}
	c.println(line)

	if card, ok := ev.Visual(); ok {
		c.println(c.visual(card))
	}
}

func (c *Console) visual(card *domain.VisualCard) string {
	var b strings.Builder
	b.WriteString(c.cardTitle.Render(strings.ToUpper(card.Type)))
	for _, k := range slices.Sorted(maps.Keys(card.Fields)) {
		fmt.Fprintf(&b, "\n%s %v", c.cardKey.Render(k+":"), card.Fields[k])
	}
	return c.card.Render(b.String())
}

func (c *Console) metrics(m domain.Metrics, segs []trace.Segment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %.2fs  tokens %d  cost $%.4f", c.agent.Render("metrics"), m.TotalTime, m.Tokens.Total(), m.EstimatedCost)
	for _, s := range segs {
		filled := s.Percent * barWidth / 100
		bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
		fmt.Fprintf(&b, "\n  %-12s %s %3d%% %.2fs", DisplayName(s.Agent), bar, s.Percent, s.Seconds)
	}
	return b.String()
}

func (c *Console) println(s string) {
	fmt.Fprintln(c.out, s)
}

// DisplayName returns the label shown for an agent bucket.
func DisplayName(agent domain.AgentKey) string {
	switch agent {
	case domain.AgentOrchestrator:
		return "Orchestrator"
	case domain.AgentServiceNow:
		return "ServiceNow"
	case domain.AgentSalesforce:
		return "Salesforce"
	case trace.Thinking:
		return "Thinking"
	default:
		return string(agent)
	}
}

// ErrorText is the line shown for a failed turn. Transport failures already
// carry a user-facing apology; server errors are prefixed.
func ErrorText(message string, transport bool) string {
	if transport {
		return message
	}
	return "Error: " + message
}
