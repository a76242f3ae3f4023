package ports

import (
	"context"

	"livesession/internal/core/domain"
)

// SessionService is the authority side of the collaborator interface:
// session metadata, role assignments and authoritative status.
type SessionService interface {
	CreateSession(ctx context.Context, initiator, responder domain.ParticipantID) (*domain.Session, error)
	GetSession(ctx context.Context, id domain.SessionID) (*domain.Session, error)
	GetStatus(ctx context.Context, id domain.SessionID) (domain.SessionStatus, error)
	ActivateSession(ctx context.Context, id domain.SessionID) error
	CompleteSession(ctx context.Context, id domain.SessionID) (*domain.Session, error)
	CancelSession(ctx context.Context, id domain.SessionID) error
}

// MembershipService tracks which participant handles are currently
// connected to each session. It is a process-wide registry whose room
// entries live from first join to last leave.
type MembershipService interface {
	// Join registers the participant. ready is true exactly when this
	// join made the room full, i.e. occupancy went from one to two.
	Join(ctx context.Context, p *domain.Participant) (ready bool, err error)
	// Leave removes the participant. empty reports whether the room was
	// destroyed as a result.
	Leave(ctx context.Context, sessionID domain.SessionID, userID domain.ParticipantID) (left *domain.Participant, empty bool, err error)
	Participants(ctx context.Context, sessionID domain.SessionID) ([]*domain.Participant, error)
}

// RelayPublisher injects a server-originated event into a session's
// relay room, e.g. session-completed after the collaborator marks a
// session done.
type RelayPublisher interface {
	Publish(ctx context.Context, sessionID domain.SessionID, event domain.Event) error
}

// SessionAuthority is the client-side view of the collaborator service,
// read-only during a call. FetchStatus backs the completion fallback
// check.
type SessionAuthority interface {
	FetchSession(ctx context.Context, id domain.SessionID) (*domain.Session, error)
	FetchStatus(ctx context.Context, id domain.SessionID) (domain.SessionStatus, error)
}
