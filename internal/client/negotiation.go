package client

import (
	"context"
	"fmt"
	"sync"

	"livesession/internal/core/domain"
	"livesession/internal/core/ports"

	"go.uber.org/zap"
)

// NegotiationState tracks where one call instance is in the
// offer/answer exchange.
type NegotiationState string

const (
	// NegotiationIdle: no exchange in flight for the current call
	// instance.
	NegotiationIdle NegotiationState = "idle"
	// NegotiationHaveLocalOffer: our offer is out, awaiting an answer.
	NegotiationHaveLocalOffer NegotiationState = "have-local-offer"
	// NegotiationStable: offer and answer are both applied.
	NegotiationStable NegotiationState = "stable"
	// NegotiationClosed is terminal for the call instance. A later
	// renegotiation happens on a fresh instance via Reset.
	NegotiationClosed NegotiationState = "closed"
)

// Negotiator runs the offer/answer state machine for one call instance
// over the relay. The initiator originates the offer when the room
// becomes ready; glare resolves last-offer-wins, so a remote offer
// always overrides a pending local one.
type Negotiator struct {
	mu        sync.Mutex
	state     NegotiationState
	role      domain.Role
	media     ports.MediaSession
	factory   ports.MediaSessionFactory
	transport ports.RelayTransport
	logger    *zap.SugaredLogger
}

func NewNegotiator(
	role domain.Role,
	factory ports.MediaSessionFactory,
	transport ports.RelayTransport,
	logger *zap.SugaredLogger,
) (*Negotiator, error) {
	n := &Negotiator{
		state:     NegotiationIdle,
		role:      role,
		factory:   factory,
		transport: transport,
		logger:    logger,
	}
	if err := n.attachMedia(); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *Negotiator) attachMedia() error {
	media, err := n.factory.NewMediaSession()
	if err != nil {
		return fmt.Errorf("create media session: %w", err)
	}
	media.OnICECandidate(func(cand domain.ICECandidate) {
		err := n.transport.Emit(domain.EventICECandidate, domain.ICECandidatePayload{Candidate: cand})
		if err != nil && n.logger != nil {
			n.logger.Warnw("failed to emit ice candidate", "error", err)
		}
	})
	n.media = media
	return nil
}

func (n *Negotiator) State() NegotiationState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Media exposes the current call instance's capability so the engine
// can hook remote-track observation. The handle changes on Reset.
func (n *Negotiator) Media() ports.MediaSession {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.media
}

// StartOffer originates the exchange. Only the initiator calls this,
// and only in reaction to the room becoming ready.
func (n *Negotiator) StartOffer(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == NegotiationClosed {
		return domain.ErrSessionEnded
	}
	if n.role != domain.RoleInitiator {
		return fmt.Errorf("only the initiator originates offers")
	}

	offer, err := n.media.CreateOffer(ctx)
	if err != nil {
		return err
	}
	if err := n.transport.Emit(domain.EventOffer, domain.OfferPayload{Description: offer}); err != nil {
		return err
	}
	n.state = NegotiationHaveLocalOffer
	return nil
}

// HandleRemoteOffer applies the peer's offer and sends back an answer.
// If our own offer is still unanswered this is glare, and the remote
// offer wins: the local one is abandoned and we answer theirs.
func (n *Negotiator) HandleRemoteOffer(ctx context.Context, desc domain.SessionDescription) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == NegotiationClosed {
		return domain.ErrSessionEnded
	}
	if n.state == NegotiationHaveLocalOffer && n.logger != nil {
		n.logger.Infow("offer glare, yielding to remote offer", "role", n.role)
	}

	if err := n.media.SetRemoteDescription(ctx, desc); err != nil {
		return fmt.Errorf("apply remote offer: %w", err)
	}
	answer, err := n.media.CreateAnswer(ctx)
	if err != nil {
		return err
	}
	if err := n.transport.Emit(domain.EventAnswer, domain.AnswerPayload{Description: answer}); err != nil {
		return err
	}
	n.state = NegotiationStable
	return nil
}

// HandleRemoteAnswer completes an exchange we originated. An answer
// arriving in any other state is stale (e.g. after glare resolution)
// and is discarded.
func (n *Negotiator) HandleRemoteAnswer(ctx context.Context, desc domain.SessionDescription) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == NegotiationClosed {
		return domain.ErrSessionEnded
	}
	if n.state != NegotiationHaveLocalOffer {
		if n.logger != nil {
			n.logger.Debugw("discarding stale answer", "state", n.state)
		}
		return nil
	}

	if err := n.media.SetRemoteDescription(ctx, desc); err != nil {
		return fmt.Errorf("apply remote answer: %w", err)
	}
	n.state = NegotiationStable
	return nil
}

// HandleRemoteCandidate feeds a trickled candidate to the capability.
// Candidates arriving before any remote description are dropped, not
// queued: connectivity recovers from later candidates.
func (n *Negotiator) HandleRemoteCandidate(cand domain.ICECandidate) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == NegotiationClosed {
		return nil
	}
	if !n.media.HasRemoteDescription() {
		if n.logger != nil {
			n.logger.Debugw("dropping early ice candidate")
		}
		return nil
	}
	return n.media.AddICECandidate(cand)
}

// Reset tears down the current call instance and prepares a fresh one,
// used when the peer disconnects mid-call and may rejoin.
func (n *Negotiator) Reset() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.media != nil {
		_ = n.media.Close()
	}
	if err := n.attachMedia(); err != nil {
		n.state = NegotiationClosed
		return err
	}
	n.state = NegotiationIdle
	return nil
}

// Close ends the current call instance permanently.
func (n *Negotiator) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == NegotiationClosed {
		return nil
	}
	n.state = NegotiationClosed
	if n.media != nil {
		return n.media.Close()
	}
	return nil
}
