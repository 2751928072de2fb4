// Package repository persists chat sessions, messages and trace events.
package repository

import (
	"context"
	"errors"

	"github.com/xiaot623/carechat/internal/domain"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("not found")

// Store is the persistence interface used by the chat service.
type Store interface {
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	GetOrCreateSession(ctx context.Context, sessionID string) (*domain.Session, error)
	UpdateSessionPatient(ctx context.Context, sessionID, patientID string) error
	// DeleteSession removes the session with its messages and trace events.
	DeleteSession(ctx context.Context, sessionID string) error

	CreateMessage(ctx context.Context, message *domain.Message) error
	GetMessages(ctx context.Context, sessionID string, limit int) ([]domain.Message, error)

	CreateTraceEvent(ctx context.Context, record *domain.TraceRecord) error
	// GetTraceEvents returns the session's trace in turn order. An empty turnID returns every turn.
	GetTraceEvents(ctx context.Context, sessionID, turnID string) ([]domain.TraceRecord, error)

	Close() error
}
