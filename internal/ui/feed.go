package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/xiaot623/carechat/internal/domain"
)

// FeedPrinter writes live feed messages, one line each, prefixed by session.
type FeedPrinter struct {
	out io.Writer

	session lipgloss.Style
	agent   lipgloss.Style
	dim     lipgloss.Style
	done    lipgloss.Style
	errs    lipgloss.Style
}

// NewFeedPrinter creates a printer writing to out.
func NewFeedPrinter(out io.Writer) *FeedPrinter {
	r := lipgloss.NewRenderer(out)
	return &FeedPrinter{
		out:     out,
		session: r.NewStyle().Foreground(lipgloss.Color("244")),
		agent:   r.NewStyle().Foreground(lipgloss.Color("63")).Bold(true),
		dim:     r.NewStyle().Foreground(lipgloss.Color("241")),
		done:    r.NewStyle().Foreground(lipgloss.Color("42")),
		errs:    r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
}

// Trace prints one trace event.
func (p *FeedPrinter) Trace(sessionID string, ev domain.TraceEvent) {
	line := fmt.Sprintf("%s %s %s", p.prefix(sessionID), p.agent.Render("["+DisplayName(domain.AgentKey(ev.Agent))+"]"), strings.TrimSpace(ev.Icon+" "+ev.Title))
	if ev.Detail != "" {
		line += p.dim.Render(" - " + ev.Detail)
	}
	line += p.dim.Render(fmt.Sprintf(" (%.2fs)", ev.Timestamp))
	fmt.Fprintln(p.out, line)
}

// TurnDone prints the end of a turn with its metrics or failure.
func (p *FeedPrinter) TurnDone(sessionID string, metrics *domain.Metrics, errMsg string) {
	switch {
	case errMsg != "":
		fmt.Fprintf(p.out, "%s %s\n", p.prefix(sessionID), p.errs.Render("turn failed: "+errMsg))
	case metrics != nil:
		fmt.Fprintf(p.out, "%s %s %s\n", p.prefix(sessionID), p.done.Render("turn done"),
			p.dim.Render(fmt.Sprintf("%.2fs, %d tokens, $%.4f", metrics.TotalTime, metrics.Tokens.Total(), metrics.EstimatedCost)))
	default:
		fmt.Fprintf(p.out, "%s %s\n", p.prefix(sessionID), p.done.Render("turn done"))
	}
}

// Notice prints a feed-level message such as a deleted session.
func (p *FeedPrinter) Notice(sessionID, text string) {
	fmt.Fprintf(p.out, "%s %s\n", p.prefix(sessionID), p.dim.Render(text))
}

// Error prints an error reported by the feed.
func (p *FeedPrinter) Error(code, message string) {
	fmt.Fprintln(p.out, p.errs.Render(fmt.Sprintf("feed error %s: %s", code, message)))
}

func (p *FeedPrinter) prefix(sessionID string) string {
	if len(sessionID) > 8 {
		sessionID = sessionID[:8]
	}
	return p.session.Render(fmt.Sprintf("%-8s", sessionID))
}
