package services

import (
	"context"
	"sync"
	"time"

	"livesession/internal/core/domain"
	"livesession/internal/core/ports"

	"go.uber.org/zap"
)

// room is one session's membership entry. Rooms are created on first
// join and destroyed when the last participant leaves; there is no
// ambient shared state outside this registry.
type room struct {
	participants map[domain.ParticipantID]*domain.Participant
}

type membershipService struct {
	sessionRepo ports.SessionRepository

	rooms map[domain.SessionID]*room
	mu    sync.RWMutex

	logger *zap.SugaredLogger
}

func NewMembershipService(sessionRepo ports.SessionRepository, logger *zap.SugaredLogger) ports.MembershipService {
	return &membershipService{
		sessionRepo: sessionRepo,
		rooms:       make(map[domain.SessionID]*room),
		logger:      logger,
	}
}

// Join validates the participant against the session's role assignments
// and registers it. A rejoin by the same user replaces the old handle.
// ready is true exactly when occupancy went from one to two, which also
// covers the rejoin-after-disconnect case: each refill starts a fresh
// call instance.
func (m *membershipService) Join(ctx context.Context, p *domain.Participant) (bool, error) {
	session, err := m.sessionRepo.GetByID(ctx, p.SessionID)
	if err != nil {
		return false, err
	}
	if session.Status == domain.StatusCompleted || session.Status == domain.StatusCancelled {
		return false, domain.ErrSessionEnded
	}

	role, ok := session.RoleOf(p.UserID)
	if !ok {
		return false, domain.ErrNotASlot
	}
	p.Role = role
	p.JoinedAt = time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	rm, ok := m.rooms[p.SessionID]
	if !ok {
		rm = &room{participants: make(map[domain.ParticipantID]*domain.Participant)}
		m.rooms[p.SessionID] = rm
	}

	_, rejoin := rm.participants[p.UserID]
	if !rejoin && len(rm.participants) >= 2 {
		return false, domain.ErrSessionFull
	}

	before := len(rm.participants)
	rm.participants[p.UserID] = p

	ready := before == 1 && len(rm.participants) == 2

	m.logger.Infow("participant joined session",
		"session_id", p.SessionID,
		"user_id", p.UserID,
		"role", p.Role,
		"rejoin", rejoin,
		"ready", ready,
	)

	return ready, nil
}

// Leave removes the participant and destroys the room when it empties.
// Whiteboard and chat replicas live client-side, so a transient leave
// does not lose them; only the membership entry goes away.
func (m *membershipService) Leave(ctx context.Context, sessionID domain.SessionID, userID domain.ParticipantID) (*domain.Participant, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rm, ok := m.rooms[sessionID]
	if !ok {
		return nil, false, domain.ErrParticipantNotFound
	}
	p, ok := rm.participants[userID]
	if !ok {
		return nil, false, domain.ErrParticipantNotFound
	}

	delete(rm.participants, userID)
	empty := len(rm.participants) == 0
	if empty {
		delete(m.rooms, sessionID)
	}

	m.logger.Infow("participant left session",
		"session_id", sessionID,
		"user_id", userID,
		"room_destroyed", empty,
	)

	return p, empty, nil
}

func (m *membershipService) Participants(ctx context.Context, sessionID domain.SessionID) ([]*domain.Participant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rm, ok := m.rooms[sessionID]
	if !ok {
		return nil, nil
	}
	out := make([]*domain.Participant, 0, len(rm.participants))
	for _, p := range rm.participants {
		out = append(out, p)
	}
	return out, nil
}
