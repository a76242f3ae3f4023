package domain

import "errors"

var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionExists       = errors.New("session already exists")
	ErrSessionFull         = errors.New("session already has two participants")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrNotASlot            = errors.New("user is not assigned to this session")
	ErrSessionEnded        = errors.New("session has ended")
	ErrRelayUnavailable    = errors.New("relay unavailable")
	ErrMediaAccessDenied   = errors.New("local media access denied")
	ErrUnknownEvent        = errors.New("unknown event name")
	ErrInvalidPayload      = errors.New("invalid event payload")
)
