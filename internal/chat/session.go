// Package chat drives one client-side conversation: it serializes turns, feeds
// the stream into the trace state machine and forwards instructions to a view.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/xiaot623/carechat/internal/domain"
	"github.com/xiaot623/carechat/internal/sse"
	"github.com/xiaot623/carechat/internal/trace"
)

var (
	// ErrTurnInProgress is returned when a message or reset arrives during a turn.
	ErrTurnInProgress = errors.New("a turn is already in progress")
	// ErrEmptyMessage is returned for blank input.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrEmptyTrace is returned when there is no trace to export.
	ErrEmptyTrace = errors.New("no trace events recorded")
)

// Backend is the transport a Session talks to.
type Backend interface {
	Stream(ctx context.Context, req domain.ChatRequest, handler sse.Handler) error
	DeleteSession(ctx context.Context, sessionID string) error
}

// View renders state machine instructions.
type View interface {
	Render(ins trace.Instruction)
}

// ViewFunc adapts a function to View.
type ViewFunc func(ins trace.Instruction)

// Render calls f.
func (f ViewFunc) Render(ins trace.Instruction) { f(ins) }

// Options configures a Session.
type Options struct {
	// GraceDelay is how long the last active agent stays highlighted after
	// a response. Zero clears the highlight as soon as the response lands.
	GraceDelay    time.Duration
	StreamTimeout time.Duration
	Logger        zerolog.Logger
}

// Session is one conversation with the backend.
type Session struct {
	backend Backend
	view    View
	opts    Options
	log     zerolog.Logger

	mu        sync.Mutex
	state     trace.State
	turn      uint64
	idle      *time.Timer
	cancel    context.CancelFunc
	resetting bool
}

// NewSession creates a conversation bound to backend and view.
func NewSession(backend Backend, view View, opts Options) *Session {
	if opts.GraceDelay < 0 {
		opts.GraceDelay = 0
	}
	if view == nil {
		view = ViewFunc(func(trace.Instruction) {})
	}
	return &Session{
		backend: backend,
		view:    view,
		opts:    opts,
		log:     opts.Logger.With().Str("component", "chat").Logger(),
	}
}

// Send runs one turn and blocks until the stream closes. Failures reported by
// the server or the transport are rendered to the view; the returned error
// only describes transport problems and rejected input.
func (s *Session) Send(ctx context.Context, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	if s.busyLocked() {
		s.mu.Unlock()
		return ErrTurnInProgress
	}
	s.stopIdleLocked()
	s.turn++
	turn := s.turn

	var ins []trace.Instruction
	s.state, ins = trace.BeginTurn(s.state)

	req := domain.ChatRequest{Message: message}
	if s.state.SessionID != "" {
		id := s.state.SessionID
		req.SessionID = &id
	}

	var (
		streamCtx context.Context
		cancel    context.CancelFunc
	)
	if s.opts.StreamTimeout > 0 {
		streamCtx, cancel = context.WithTimeout(ctx, s.opts.StreamTimeout)
	} else {
		streamCtx, cancel = context.WithCancel(ctx)
	}
	s.cancel = cancel
	sessionID := s.state.SessionID
	s.mu.Unlock()

	s.render(ins)
	s.log.Debug().Uint64("turn", turn).Str("session_id", sessionID).Msg("turn started")

	streamErr := s.backend.Stream(streamCtx, req, func(ev domain.StreamEvent) error {
		s.apply(turn, ev)
		return nil
	})
	cancel()

	s.mu.Lock()
	s.cancel = nil
	s.state, ins = trace.FinishTurn(s.state)
	s.mu.Unlock()
	s.render(ins)

	if streamErr != nil {
		s.log.Warn().Err(streamErr).Uint64("turn", turn).Msg("stream failed")
		return fmt.Errorf("turn failed: %w", streamErr)
	}
	return nil
}

func (s *Session) apply(turn uint64, ev domain.StreamEvent) {
	s.mu.Lock()
	var ins []trace.Instruction
	s.state, ins = trace.Apply(s.state, ev)

	out := ins[:0:0]
	for _, in := range ins {
		if _, ok := in.(trace.ScheduleIdle); ok {
			out = append(out, s.scheduleIdleLocked(turn)...)
			continue
		}
		out = append(out, in)
	}
	s.mu.Unlock()

	s.render(out)
}

// scheduleIdleLocked arms the grace timer. With no grace delay the highlight
// clears immediately and the resulting instructions are returned.
func (s *Session) scheduleIdleLocked(turn uint64) []trace.Instruction {
	s.stopIdleLocked()
	if s.opts.GraceDelay == 0 {
		var ins []trace.Instruction
		s.state, ins = trace.Idle(s.state)
		return ins
	}
	s.idle = time.AfterFunc(s.opts.GraceDelay, func() {
		s.mu.Lock()
		if s.turn != turn {
			s.mu.Unlock()
			return
		}
		var ins []trace.Instruction
		s.state, ins = trace.Idle(s.state)
		s.idle = nil
		s.mu.Unlock()
		s.render(ins)
	})
	return nil
}

// busyLocked reports whether a turn or a reset owns the session.
func (s *Session) busyLocked() bool {
	return s.state.Processing || s.resetting
}

func (s *Session) stopIdleLocked() {
	if s.idle != nil {
		s.idle.Stop()
		s.idle = nil
	}
}

// Reset deletes the server-side session (best effort) and clears local state.
// Sends issued while the delete is in flight are rejected with ErrTurnInProgress.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	if s.busyLocked() {
		s.mu.Unlock()
		return ErrTurnInProgress
	}
	s.resetting = true
	s.stopIdleLocked()
	s.turn++
	sessionID := s.state.SessionID
	s.mu.Unlock()

	if sessionID != "" {
		if err := s.backend.DeleteSession(ctx, sessionID); err != nil {
			s.log.Debug().Err(err).Str("session_id", sessionID).Msg("session delete failed, clearing locally")
		}
	}

	s.mu.Lock()
	var ins []trace.Instruction
	s.state, ins = trace.Reset(s.state)
	s.resetting = false
	s.mu.Unlock()
	s.render(ins)
	return nil
}

// Resume continues an existing server-side session on the next turn.
func (s *Session) Resume(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busyLocked() {
		return ErrTurnInProgress
	}
	s.state.SessionID = strings.TrimSpace(sessionID)
	return nil
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() trace.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ExportTrace renders the current turn's trace log as indented JSON.
func (s *Session) ExportTrace() ([]byte, error) {
	s.mu.Lock()
	log := s.state.Log
	s.mu.Unlock()

	if len(log) == 0 {
		return nil, ErrEmptyTrace
	}
	return json.MarshalIndent(log, "", "  ")
}

// Close aborts an in-flight stream and stops the grace timer.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopIdleLocked()
	s.turn++
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Session) render(ins []trace.Instruction) {
	for _, in := range ins {
		s.view.Render(in)
	}
}
