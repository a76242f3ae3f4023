package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"livesession/internal/core/domain"
	"livesession/internal/core/ports"

	"go.uber.org/zap"
)

// CallState is the client-side lifecycle of one session attendance.
type CallState string

const (
	CallJoining        CallState = "joining"
	CallWaitingForPeer CallState = "waiting-for-peer"
	CallNegotiating    CallState = "negotiating"
	CallActive         CallState = "active"
	CallEnding         CallState = "ending"
	CallEnded          CallState = "ended"
)

// EngineOptions configures one session attendance.
type EngineOptions struct {
	SessionID   domain.SessionID
	Self        domain.ParticipantID
	DisplayName string
	Role        domain.Role

	// CompletionFallback bounds how long the responder waits for the
	// session-completed event before falling back to one authoritative
	// status fetch.
	CompletionFallback time.Duration
	ReactionTTL        time.Duration

	Logger *zap.SugaredLogger
}

func (o *EngineOptions) withDefaults() EngineOptions {
	out := *o
	if out.CompletionFallback == 0 {
		out.CompletionFallback = 8 * time.Second
	}
	if out.ReactionTTL == 0 {
		out.ReactionTTL = 5 * time.Second
	}
	return out
}

// Engine orchestrates one participant's attendance of a session: media
// acquisition, relay membership, negotiation, the collaboration
// surfaces and the teardown handshake. One Engine serves one join; a
// rejoin builds a new Engine.
type Engine struct {
	opts EngineOptions

	capture   ports.MediaCapture
	factory   ports.MediaSessionFactory
	transport ports.RelayTransport
	authority ports.SessionAuthority

	negotiator  *Negotiator
	whiteboard  *WhiteboardReplica
	annotator   *Annotator
	broadcaster *Broadcaster

	mu            sync.Mutex
	state         CallState
	callStartedAt time.Time
	peerName      string

	completionCh   chan domain.SessionStatus
	completionOnce sync.Once

	finishOnce sync.Once
	done       chan struct{}

	onStateChange func(CallState)
	onCompletion  func(domain.SessionStatus, error)

	logger *zap.SugaredLogger
}

// NewEngine assembles an engine around an already-connected relay
// transport. Media capture must be acquired by Start before any relay
// traffic is meaningful.
func NewEngine(
	opts EngineOptions,
	capture ports.MediaCapture,
	factory ports.MediaSessionFactory,
	transport ports.RelayTransport,
	authority ports.SessionAuthority,
) *Engine {
	resolved := opts.withDefaults()
	return &Engine{
		opts:         resolved,
		capture:      capture,
		factory:      factory,
		transport:    transport,
		authority:    authority,
		state:        CallJoining,
		completionCh: make(chan domain.SessionStatus, 1),
		done:         make(chan struct{}),
		logger:       resolved.Logger,
	}
}

// OnStateChange registers the lifecycle observer. Set before Start.
func (e *Engine) OnStateChange(fn func(CallState)) { e.onStateChange = fn }

// OnCompletion registers the observer for the final authoritative
// session status, delivered at most once after the call ends.
func (e *Engine) OnCompletion(fn func(domain.SessionStatus, error)) { e.onCompletion = fn }

func (e *Engine) Whiteboard() *WhiteboardReplica { return e.whiteboard }
func (e *Engine) Annotator() *Annotator          { return e.annotator }
func (e *Engine) Broadcaster() *Broadcaster      { return e.broadcaster }

// Done closes once teardown has fully run.
func (e *Engine) Done() <-chan struct{} { return e.done }

func (e *Engine) State() CallState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// CallStartedAt reports when remote media was first observed for the
// current call instance. Zero until then.
func (e *Engine) CallStartedAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.callStartedAt
}

// PeerDisplayName returns the connected peer's name, if one has joined.
func (e *Engine) PeerDisplayName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.peerName
}

// Start acquires media and arms the engine. Capture failure aborts the
// attendance before the peer ever sees us join.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.capture.Acquire(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMediaAccessDenied, err)
	}

	negotiator, err := NewNegotiator(e.opts.Role, e.factory, e.transport, e.logger)
	if err != nil {
		e.capture.Release()
		return err
	}
	e.negotiator = negotiator
	e.watchRemoteTrack()

	e.whiteboard = NewWhiteboardReplica(e.transport, e.logger)
	e.annotator = NewAnnotator(e.transport, e.logger)
	e.broadcaster = NewBroadcaster(e.opts.Self, e.opts.DisplayName, e.transport, e.opts.ReactionTTL, e.logger)

	e.whiteboard.Register(e.transport)
	e.annotator.Register(e.transport)
	e.broadcaster.Register(e.transport)
	e.registerLifecycleHandlers(ctx)

	if rc, ok := e.transport.(reconnectAware); ok {
		rc.OnDegraded(func(err error) {
			if e.logger != nil {
				e.logger.Warnw("relay connection degraded", "error", err)
			}
			e.finish(context.Background())
		})
		rc.OnReconnected(func() {
			e.handleTransportReconnected()
		})
	}

	e.setState(CallWaitingForPeer)
	return nil
}

func (e *Engine) registerLifecycleHandlers(ctx context.Context) {
	e.transport.On(domain.EventParticipantJoined, func(ev domain.Event) {
		p, err := decodeAs[domain.ParticipantJoinedPayload](ev)
		if err != nil {
			return
		}
		e.mu.Lock()
		e.peerName = p.DisplayName
		e.mu.Unlock()
	})

	e.transport.On(domain.EventReady, func(ev domain.Event) {
		e.setState(CallNegotiating)
		if e.opts.Role != domain.RoleInitiator {
			return
		}
		if err := e.negotiator.StartOffer(ctx); err != nil && e.logger != nil {
			e.logger.Errorw("failed to start offer", "error", err)
		}
	})

	e.transport.On(domain.EventOffer, func(ev domain.Event) {
		p, err := decodeAs[domain.OfferPayload](ev)
		if err != nil {
			return
		}
		if err := e.negotiator.HandleRemoteOffer(ctx, p.Description); err != nil && e.logger != nil {
			e.logger.Errorw("failed to handle offer", "error", err)
		}
	})

	e.transport.On(domain.EventAnswer, func(ev domain.Event) {
		p, err := decodeAs[domain.AnswerPayload](ev)
		if err != nil {
			return
		}
		if err := e.negotiator.HandleRemoteAnswer(ctx, p.Description); err != nil && e.logger != nil {
			e.logger.Errorw("failed to handle answer", "error", err)
		}
	})

	e.transport.On(domain.EventICECandidate, func(ev domain.Event) {
		p, err := decodeAs[domain.ICECandidatePayload](ev)
		if err != nil {
			return
		}
		if err := e.negotiator.HandleRemoteCandidate(p.Candidate); err != nil && e.logger != nil {
			e.logger.Warnw("failed to add ice candidate", "error", err)
		}
	})

	e.transport.On(domain.EventParticipantLeft, func(ev domain.Event) {
		e.handlePeerLeft()
	})

	e.transport.On(domain.EventEndCall, func(ev domain.Event) {
		e.finish(ctx)
	})

	e.transport.On(domain.EventSessionCompleted, func(ev domain.Event) {
		p, err := decodeAs[domain.SessionCompletedPayload](ev)
		if err != nil {
			return
		}
		e.resolveCompletion(p.Status)
	})
}

// watchRemoteTrack hooks the current media instance. The first remote
// packet, not signaling completion, starts the call clock.
func (e *Engine) watchRemoteTrack() {
	e.negotiator.Media().OnRemoteTrack(func(kind string) {
		e.mu.Lock()
		first := e.callStartedAt.IsZero()
		if first {
			e.callStartedAt = time.Now()
		}
		e.mu.Unlock()
		if first {
			if e.logger != nil {
				e.logger.Infow("remote media observed", "kind", kind, "session_id", e.opts.SessionID)
			}
			e.setState(CallActive)
		}
	})
}

// reconnectAware is satisfied by transports that redial a dropped
// connection before giving up.
type reconnectAware interface {
	OnDegraded(func(error))
	OnReconnected(func())
}

// handlePeerLeft rewinds to waiting-for-peer with a fresh call
// instance. A rejoin negotiates from scratch; the collaboration state
// (whiteboard, chat) survives because it lives outside the call
// instance.
func (e *Engine) handlePeerLeft() {
	e.resetCallInstance()
}

// handleTransportReconnected treats a relay reconnect as a rejoin. The
// peer saw participant-left while we were gone, so the call starts over
// while whiteboard and chat state carry through.
func (e *Engine) handleTransportReconnected() {
	if e.logger != nil {
		e.logger.Infow("relay connection restored", "session_id", e.opts.SessionID)
	}
	e.resetCallInstance()
}

func (e *Engine) resetCallInstance() {
	e.mu.Lock()
	if e.state == CallEnding || e.state == CallEnded {
		e.mu.Unlock()
		return
	}
	e.callStartedAt = time.Time{}
	e.peerName = ""
	e.mu.Unlock()

	if err := e.negotiator.Reset(); err != nil {
		if e.logger != nil {
			e.logger.Errorw("failed to reset negotiation", "error", err)
		}
		e.finish(context.Background())
		return
	}
	e.watchRemoteTrack()
	e.annotator.ClearLocal()
	e.setState(CallWaitingForPeer)
}

// EndCall ends the attendance from our side: the peer is told once,
// then local teardown runs regardless of delivery.
func (e *Engine) EndCall(ctx context.Context) {
	if err := e.transport.Emit(domain.EventEndCall, nil); err != nil && e.logger != nil {
		e.logger.Warnw("failed to emit end-call", "error", err)
	}
	e.finish(ctx)
}

// resolveCompletion records the authoritative status. Only the first
// resolution counts, whether it came from the relay event or from the
// fallback fetch.
func (e *Engine) resolveCompletion(status domain.SessionStatus) {
	e.completionOnce.Do(func() {
		e.completionCh <- status
	})
}

// finish runs teardown exactly once. The responder first resolves the
// session's final status; both sides then release every resource on
// the single cleanup path.
func (e *Engine) finish(ctx context.Context) {
	e.finishOnce.Do(func() {
		e.setState(CallEnding)
		go func() {
			if e.opts.Role == domain.RoleResponder {
				e.deliverCompletion(ctx)
			}
			e.cleanup()
			e.setState(CallEnded)
			close(e.done)
		}()
	})
}

// deliverCompletion waits for the session-completed event up to the
// fallback deadline, then performs the one authoritative status fetch.
// Whichever resolves first is what the observer sees.
func (e *Engine) deliverCompletion(ctx context.Context) {
	var (
		status domain.SessionStatus
		err    error
	)

	select {
	case status = <-e.completionCh:
	case <-time.After(e.opts.CompletionFallback):
		fetchCtx, cancel := context.WithTimeout(ctx, e.opts.CompletionFallback)
		status, err = e.authority.FetchStatus(fetchCtx, e.opts.SessionID)
		cancel()
		if err != nil {
			select {
			case status = <-e.completionCh:
				err = nil
			default:
				if e.logger != nil {
					e.logger.Errorw("completion status fetch failed", "error", err,
						"session_id", e.opts.SessionID)
				}
			}
		}
	}

	if e.onCompletion != nil {
		e.onCompletion(status, err)
	}
}

func (e *Engine) cleanup() {
	if e.negotiator != nil {
		_ = e.negotiator.Close()
	}
	e.capture.Release()
	_ = e.transport.Close()
}

func (e *Engine) setState(s CallState) {
	e.mu.Lock()
	// Once teardown starts, the only transition left is ending -> ended.
	// A remote-track callback racing teardown must not reactivate the
	// call.
	if e.state == CallEnded || (e.state == CallEnding && s != CallEnded) {
		e.mu.Unlock()
		return
	}
	prev := e.state
	e.state = s
	e.mu.Unlock()

	if prev != s && e.onStateChange != nil {
		e.onStateChange(s)
	}
}
