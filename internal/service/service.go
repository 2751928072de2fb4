// Package service runs chat turns for the demo backend: it routes each message
// to the specialist agents, streams their trace and persists the conversation.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/xiaot623/carechat/internal/agents"
	"github.com/xiaot623/carechat/internal/config"
	"github.com/xiaot623/carechat/internal/domain"
	"github.com/xiaot623/carechat/internal/policy"
	"github.com/xiaot623/carechat/internal/protocol"
	"github.com/xiaot623/carechat/internal/repository"
)

var (
	// ErrEmptyMessage is returned for a request without message text.
	ErrEmptyMessage = errors.New("message is required")
	// ErrSessionNotFound is returned for operations on an unknown session.
	ErrSessionNotFound = errors.New("session not found")
)

// Broadcaster fans messages out to live watchers of a session.
type Broadcaster interface {
	BroadcastJSON(sessionID string, v any) error
	HasWatchers(sessionID string) bool
}

// Service is the chat backend.
type Service struct {
	store       repository.Store
	policy      *policy.Engine
	roster      *agents.Roster
	broadcaster Broadcaster
	config      *config.ServerConfig
	log         zerolog.Logger
	now         func() time.Time
}

// New creates a Service. broadcaster may be nil.
func New(store repository.Store, policyEngine *policy.Engine, roster *agents.Roster, broadcaster Broadcaster, cfg *config.ServerConfig, logger zerolog.Logger) *Service {
	return &Service{
		store:       store,
		policy:      policyEngine,
		roster:      roster,
		broadcaster: broadcaster,
		config:      cfg,
		log:         logger.With().Str("component", "service").Logger(),
		now:         time.Now,
	}
}

// Agents lists the agents the backend runs.
func (s *Service) Agents() []domain.AgentKey {
	return append([]domain.AgentKey(nil), domain.KnownAgents...)
}

// DeleteSession removes a session and notifies its watchers.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to delete session: %w", err)
	}
	s.broadcast(sessionID, protocol.BaseMessage{
		Type:      protocol.TypeSessionDeleted,
		Ts:        s.now().UnixMilli(),
		SessionID: sessionID,
	})
	s.log.Info().Str("session_id", sessionID).Msg("session deleted")
	return nil
}

// ListMessages returns the conversation of a session, oldest first.
func (s *Service) ListMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	if _, err := s.getSession(ctx, sessionID); err != nil {
		return nil, err
	}
	messages, err := s.store.GetMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return messages, nil
}

// LatestTrace returns the persisted trace of the session's most recent turn.
// The turn id is empty when the session has no trace yet.
func (s *Service) LatestTrace(ctx context.Context, sessionID string) (string, []domain.TraceEvent, error) {
	if _, err := s.getSession(ctx, sessionID); err != nil {
		return "", nil, err
	}
	records, err := s.store.GetTraceEvents(ctx, sessionID, "")
	if err != nil {
		return "", nil, fmt.Errorf("failed to get trace events: %w", err)
	}
	events := []domain.TraceEvent{}
	if len(records) == 0 {
		return "", events, nil
	}
	turnID := records[len(records)-1].TurnID
	for _, rec := range records {
		if rec.TurnID == turnID {
			events = append(events, rec.Event)
		}
	}
	return turnID, events, nil
}

func (s *Service) getSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

func (s *Service) broadcast(sessionID string, v any) {
	if s.broadcaster == nil || !s.broadcaster.HasWatchers(sessionID) {
		return
	}
	if err := s.broadcaster.BroadcastJSON(sessionID, v); err != nil {
		s.log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to broadcast")
	}
}
