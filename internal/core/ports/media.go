package ports

import (
	"context"

	"livesession/internal/core/domain"
)

// MediaSession is the black-box peer-connection capability. The engine
// drives it through discrete calls and consumes its asynchronous
// callbacks as events; it never reimplements codec or transport
// internals.
type MediaSession interface {
	CreateOffer(ctx context.Context) (domain.SessionDescription, error)
	CreateAnswer(ctx context.Context) (domain.SessionDescription, error)
	SetRemoteDescription(ctx context.Context, desc domain.SessionDescription) error
	// HasRemoteDescription gates trickle-ICE: candidates arriving before
	// a remote description are dropped, not queued.
	HasRemoteDescription() bool
	AddICECandidate(cand domain.ICECandidate) error
	OnICECandidate(fn func(domain.ICECandidate))
	// OnRemoteTrack fires when remote media is actually observed, which
	// is the trigger for the call-start clock (signaling completion does
	// not guarantee media flow).
	OnRemoteTrack(fn func(kind string))
	Close() error
}

// MediaSessionFactory creates a fresh capability instance per call
// instance.
type MediaSessionFactory interface {
	NewMediaSession() (MediaSession, error)
}

// MediaCapture owns the local capture devices. Acquire failure is
// fatal to the call attempt and must happen before any relay join.
// Release is idempotent and runs on every exit path.
type MediaCapture interface {
	Acquire(ctx context.Context) error
	Release()
}
