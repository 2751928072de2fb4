package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xiaot623/carechat/internal/domain"
	"github.com/xiaot623/carechat/internal/protocol"
)

// Emitter receives the frames of a turn in order.
type Emitter func(domain.StreamEvent) error

// Turn is one accepted chat message waiting to be run.
type Turn struct {
	ID      string
	Session *domain.Session
	Message string

	svc       *Service
	collector *Collector
	emit      Emitter
	seq       int
	// emitErr is the first emitter failure; once set the turn stops early.
	emitErr error
}

// Begin validates a request and resolves its session. A nil session id starts
// a new conversation; an unknown id is created on first use.
func (s *Service) Begin(ctx context.Context, req domain.ChatRequest) (*Turn, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	sessionID := uuid.New().String()
	if req.SessionID != nil && strings.TrimSpace(*req.SessionID) != "" {
		sessionID = strings.TrimSpace(*req.SessionID)
	}
	session, err := s.store.GetOrCreateSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get/create session: %w", err)
	}

	return &Turn{
		ID:      "turn_" + uuid.New().String()[:8],
		Session: session,
		Message: message,
		svc:     s,
	}, nil
}

// Run executes the turn, sending trace frames followed by metrics and the
// response, or an error frame when the pipeline fails. The final frame is
// always done. Run only returns an error when emit fails.
func (t *Turn) Run(ctx context.Context, emit Emitter) error {
	s := t.svc
	t.emit = emit
	t.collector = NewCollector(s.now, t.onTrace)
	log := s.log.With().Str("session_id", t.Session.SessionID).Str("turn_id", t.ID).Logger()

	s.saveMessage(ctx, t, domain.RoleUser, t.Message)

	reply, err := s.orchestrate(ctx, t)
	if t.emitErr != nil {
		log.Debug().Err(t.emitErr).Msg("client went away")
		return t.emitErr
	}

	if err != nil {
		log.Error().Err(err).Msg("turn failed")
		s.broadcast(t.Session.SessionID, protocol.TurnDoneMessage{
			BaseMessage: t.base(protocol.TypeTurnDone),
			Error:       err.Error(),
		})
		t.send(domain.ErrorFrame{Message: err.Error()})
		t.send(domain.DoneFrame{})
		return t.emitErr
	}

	metrics := t.metrics(reply)
	s.saveMessage(ctx, t, domain.RoleAssistant, reply)
	s.broadcast(t.Session.SessionID, protocol.TurnDoneMessage{
		BaseMessage: t.base(protocol.TypeTurnDone),
		Metrics:     &metrics,
	})

	t.send(domain.MetricsFrame{Metrics: metrics})
	t.send(domain.ResponseFrame{
		Text:      reply,
		SessionID: t.Session.SessionID,
		Trace:     t.collector.Events(),
	})
	t.send(domain.DoneFrame{})

	log.Info().
		Float64("total_time", metrics.TotalTime).
		Int("tokens", metrics.Tokens.Total()).
		Msg("turn complete")
	return t.emitErr
}

// Chat runs a turn without streaming and returns the collected response.
func (s *Service) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	turn, err := s.Begin(ctx, req)
	if err != nil {
		return nil, err
	}

	resp := &domain.ChatResponse{SessionID: turn.Session.SessionID}
	var failure string
	err = turn.Run(ctx, func(ev domain.StreamEvent) error {
		switch e := ev.(type) {
		case domain.MetricsFrame:
			m := e.Metrics
			resp.Metrics = &m
		case domain.ResponseFrame:
			resp.Response = e.Text
			resp.Trace = e.Trace
		case domain.ErrorFrame:
			failure = e.Message
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if failure != "" {
		return nil, fmt.Errorf("turn failed: %s", failure)
	}
	return resp, nil
}

// onTrace streams, persists and broadcasts one trace event.
func (t *Turn) onTrace(ev domain.TraceEvent) {
	s := t.svc
	t.seq++
	record := &domain.TraceRecord{
		EventID:   "evt_" + uuid.New().String()[:8],
		SessionID: t.Session.SessionID,
		TurnID:    t.ID,
		Seq:       t.seq,
		Event:     ev,
		CreatedAt: s.now(),
	}
	// Persisting outlives the request context so a disconnect does not drop the trace.
	if err := s.store.CreateTraceEvent(context.Background(), record); err != nil {
		s.log.Warn().Err(err).Str("turn_id", t.ID).Msg("failed to record trace event")
	}
	s.broadcast(t.Session.SessionID, protocol.TraceMessage{
		BaseMessage: t.base(protocol.TypeTrace),
		Event:       ev,
	})
	t.send(domain.TraceFrame{Event: ev})
}

func (t *Turn) send(ev domain.StreamEvent) {
	if t.emitErr != nil || t.emit == nil {
		return
	}
	if err := t.emit(ev); err != nil {
		t.emitErr = err
	}
}

func (t *Turn) base(msgType string) protocol.BaseMessage {
	return protocol.BaseMessage{
		Type:      msgType,
		Ts:        t.svc.now().UnixMilli(),
		SessionID: t.Session.SessionID,
		TurnID:    t.ID,
	}
}

func (s *Service) saveMessage(ctx context.Context, t *Turn, role, content string) {
	msg := &domain.Message{
		MessageID: "msg_" + uuid.New().String()[:8],
		SessionID: t.Session.SessionID,
		TurnID:    t.ID,
		Role:      role,
		Content:   content,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateMessage(context.WithoutCancel(ctx), msg); err != nil {
		s.log.Warn().Err(err).Str("turn_id", t.ID).Str("role", role).Msg("failed to save message")
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
