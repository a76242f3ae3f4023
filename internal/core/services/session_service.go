package services

import (
	"context"
	"fmt"
	"time"

	"livesession/internal/core/domain"
	"livesession/internal/core/ports"

	"github.com/google/uuid"
)

type sessionService struct {
	repo ports.SessionRepository
}

func NewSessionService(repo ports.SessionRepository) ports.SessionService {
	return &sessionService{repo: repo}
}

func (s *sessionService) CreateSession(ctx context.Context, initiator, responder domain.ParticipantID) (*domain.Session, error) {
	if initiator == "" || responder == "" {
		return nil, fmt.Errorf("both participant slots are required")
	}
	if initiator == responder {
		return nil, fmt.Errorf("initiator and responder must differ")
	}

	session := &domain.Session{
		ID:        domain.SessionID(uuid.NewString()),
		Initiator: initiator,
		Responder: responder,
		Status:    domain.StatusScheduled,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return session, nil
}

func (s *sessionService) GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *sessionService) GetStatus(ctx context.Context, id domain.SessionID) (domain.SessionStatus, error) {
	session, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return session.Status, nil
}

func (s *sessionService) ActivateSession(ctx context.Context, id domain.SessionID) error {
	session, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if session.Status != domain.StatusScheduled {
		return nil
	}
	return s.repo.UpdateStatus(ctx, id, domain.StatusActive)
}

// CompleteSession marks the session completed. Marking twice is a
// no-op so the collaborator's business rules can fire redundantly.
func (s *sessionService) CompleteSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	session, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Status == domain.StatusCompleted {
		return session, nil
	}
	if err := s.repo.UpdateStatus(ctx, id, domain.StatusCompleted); err != nil {
		return nil, err
	}
	session.Status = domain.StatusCompleted
	return session, nil
}

func (s *sessionService) CancelSession(ctx context.Context, id domain.SessionID) error {
	session, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if session.Status == domain.StatusCompleted {
		return domain.ErrSessionEnded
	}
	return s.repo.UpdateStatus(ctx, id, domain.StatusCancelled)
}
