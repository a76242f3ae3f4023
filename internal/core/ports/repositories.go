package ports

import (
	"context"

	"livesession/internal/core/domain"
)

type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByID(ctx context.Context, id domain.SessionID) (*domain.Session, error)
	UpdateStatus(ctx context.Context, id domain.SessionID, status domain.SessionStatus) error
	Delete(ctx context.Context, id domain.SessionID) error
	ListActive(ctx context.Context) ([]*domain.Session, error)
}
