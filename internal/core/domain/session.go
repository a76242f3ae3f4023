package domain

import "time"

type SessionID string
type ParticipantID string

// Role determines which side originates the media offer.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// SessionStatus is the authoritative lifecycle status kept by the
// session service. Clients only ever read it during a call; completion
// is triggered by business rules outside the relay.
type SessionStatus string

const (
	StatusScheduled SessionStatus = "scheduled"
	StatusActive    SessionStatus = "active"
	StatusCompleted SessionStatus = "completed"
	StatusCancelled SessionStatus = "cancelled"
)

// Session is one two-party call instance.
type Session struct {
	ID        SessionID     `json:"id"`
	Initiator ParticipantID `json:"initiator"`
	Responder ParticipantID `json:"responder"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
}

// RoleOf returns the role assigned to the given user in this session.
func (s *Session) RoleOf(userID ParticipantID) (Role, bool) {
	switch userID {
	case s.Initiator:
		return RoleInitiator, true
	case s.Responder:
		return RoleResponder, true
	default:
		return "", false
	}
}

// Participant is a session-scoped connection handle. It exists only for
// the duration of a relay connection and is never persisted.
type Participant struct {
	SessionID   SessionID     `json:"session_id"`
	UserID      ParticipantID `json:"user_id"`
	Role        Role          `json:"role"`
	DisplayName string        `json:"display_name"`
	JoinedAt    time.Time     `json:"joined_at"`
}
