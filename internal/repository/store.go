package repository

import (
	"context"
	"time"

	"github.com/xiaot623/deskrelay/internal/domain"
)

// Store defines the persistence operations used by the session coordinator.
// Lookups return nil, nil when nothing matches.
type Store interface {
	CreateConfiguration(ctx context.Context, cfg *domain.Configuration) error
	GetConfiguration(ctx context.Context, id int64) (*domain.Configuration, error)

	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	GetSessionDetail(ctx context.Context, sessionID string) (*domain.SessionDetail, error)
	UpdateSessionStatus(ctx context.Context, sessionID string, status domain.SessionStatus, at time.Time) (bool, error)
	TransitionSessionStatus(ctx context.Context, sessionID string, from, to domain.SessionStatus, at time.Time) (bool, error)
	TouchSession(ctx context.Context, sessionID string, at time.Time) (bool, error)
	ListSessions(ctx context.Context) ([]domain.SessionSummary, error)

	Ping(ctx context.Context) error
	Close() error
}

var _ Store = (*SQLiteStore)(nil)
