package client

import (
	"context"
	"testing"
	"time"

	"livesession/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type engineFixture struct {
	engine    *Engine
	relay     *fakeRelay
	peerRelay *fakeRelay
	capture   *fakeCapture
	factory   *fakeMediaFactory
	authority *fakeAuthority
}

func newEngineFixture(t *testing.T, role domain.Role, opts EngineOptions) *engineFixture {
	t.Helper()
	ra, rb := newFakeRelayPair("bob", "alice")
	capture := &fakeCapture{}
	factory := &fakeMediaFactory{}
	auth := &fakeAuthority{status: domain.StatusCompleted}

	opts.SessionID = "sess-1"
	opts.Self = "bob"
	opts.DisplayName = "Bob"
	opts.Role = role
	opts.Logger = zap.NewNop().Sugar()

	engine := NewEngine(opts, capture, factory, ra, auth)
	return &engineFixture{
		engine:    engine,
		relay:     ra,
		peerRelay: rb,
		capture:   capture,
		factory:   factory,
		authority: auth,
	}
}

func (f *engineFixture) injectAndDeliver(t *testing.T, name string, payload interface{}) {
	t.Helper()
	ev, err := domain.NewEvent(name, payload)
	require.NoError(t, err)
	ev.Sender = "alice"
	f.relay.inject(ev)
	for f.relay.deliver() {
	}
}

func waitDone(t *testing.T, e *Engine) {
	t.Helper()
	select {
	case <-e.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("engine never finished teardown")
	}
}

func TestStartFailsWhenCaptureDenied(t *testing.T) {
	f := newEngineFixture(t, domain.RoleInitiator, EngineOptions{})
	f.capture.fail = domain.ErrMediaAccessDenied

	err := f.engine.Start(context.Background())
	assert.ErrorIs(t, err, domain.ErrMediaAccessDenied)
	assert.Equal(t, CallJoining, f.engine.State())
}

func TestInitiatorOffersOnReady(t *testing.T) {
	f := newEngineFixture(t, domain.RoleInitiator, EngineOptions{})
	require.NoError(t, f.engine.Start(context.Background()))
	assert.Equal(t, CallWaitingForPeer, f.engine.State())

	f.injectAndDeliver(t, domain.EventReady, nil)

	assert.Equal(t, CallNegotiating, f.engine.State())
	assert.Len(t, f.relay.sentEvents(domain.EventOffer), 1)
}

func TestResponderDoesNotOfferOnReady(t *testing.T) {
	f := newEngineFixture(t, domain.RoleResponder, EngineOptions{})
	require.NoError(t, f.engine.Start(context.Background()))

	f.injectAndDeliver(t, domain.EventReady, nil)

	assert.Equal(t, CallNegotiating, f.engine.State())
	assert.Empty(t, f.relay.sentEvents(domain.EventOffer))
}

func TestRemoteTrackStartsCallClock(t *testing.T) {
	f := newEngineFixture(t, domain.RoleInitiator, EngineOptions{})
	require.NoError(t, f.engine.Start(context.Background()))
	require.True(t, f.engine.CallStartedAt().IsZero())

	f.injectAndDeliver(t, domain.EventReady, nil)
	f.factory.current().fireRemoteTrack("video")

	assert.Equal(t, CallActive, f.engine.State())
	assert.False(t, f.engine.CallStartedAt().IsZero())
}

func TestPeerLeftRewindsToWaiting(t *testing.T) {
	f := newEngineFixture(t, domain.RoleInitiator, EngineOptions{})
	require.NoError(t, f.engine.Start(context.Background()))

	f.injectAndDeliver(t, domain.EventReady, nil)
	f.factory.current().fireRemoteTrack("video")
	require.Equal(t, CallActive, f.engine.State())

	f.injectAndDeliver(t, domain.EventParticipantLeft, domain.ParticipantLeftPayload{Role: domain.RoleResponder})

	assert.Equal(t, CallWaitingForPeer, f.engine.State())
	assert.True(t, f.engine.CallStartedAt().IsZero())
	// A fresh media instance backs the next negotiation.
	assert.Equal(t, 2, f.factory.count())
}

func TestEndCallTellsPeerAndCleansUp(t *testing.T) {
	f := newEngineFixture(t, domain.RoleInitiator, EngineOptions{})
	require.NoError(t, f.engine.Start(context.Background()))

	f.engine.EndCall(context.Background())
	waitDone(t, f.engine)

	assert.Len(t, f.relay.sentEvents(domain.EventEndCall), 1)
	assert.Equal(t, CallEnded, f.engine.State())
	assert.Equal(t, 1, f.capture.releaseCount())
	assert.True(t, f.factory.current().closed)
	// The initiator never consults the authority.
	assert.Equal(t, 0, f.authority.fetchCount())
}

func TestRemoteEndCallTriggersTeardown(t *testing.T) {
	f := newEngineFixture(t, domain.RoleInitiator, EngineOptions{})
	require.NoError(t, f.engine.Start(context.Background()))

	f.injectAndDeliver(t, domain.EventEndCall, nil)
	waitDone(t, f.engine)

	assert.Equal(t, CallEnded, f.engine.State())
	assert.Equal(t, 1, f.capture.releaseCount())
}

func TestResponderCompletionFromRelayEvent(t *testing.T) {
	f := newEngineFixture(t, domain.RoleResponder, EngineOptions{CompletionFallback: 5 * time.Second})
	require.NoError(t, f.engine.Start(context.Background()))

	var gotStatus domain.SessionStatus
	f.engine.OnCompletion(func(status domain.SessionStatus, err error) {
		require.NoError(t, err)
		gotStatus = status
	})

	f.injectAndDeliver(t, domain.EventSessionCompleted, domain.SessionCompletedPayload{Status: domain.StatusCompleted})
	f.injectAndDeliver(t, domain.EventEndCall, nil)
	waitDone(t, f.engine)

	assert.Equal(t, domain.StatusCompleted, gotStatus)
	// The event resolved completion; no fallback fetch happened.
	assert.Equal(t, 0, f.authority.fetchCount())
}

func TestResponderCompletionFallbackFetchesOnce(t *testing.T) {
	f := newEngineFixture(t, domain.RoleResponder, EngineOptions{CompletionFallback: 50 * time.Millisecond})
	require.NoError(t, f.engine.Start(context.Background()))

	var gotStatus domain.SessionStatus
	f.engine.OnCompletion(func(status domain.SessionStatus, err error) {
		require.NoError(t, err)
		gotStatus = status
	})

	f.injectAndDeliver(t, domain.EventEndCall, nil)
	waitDone(t, f.engine)

	assert.Equal(t, domain.StatusCompleted, gotStatus)
	assert.Equal(t, 1, f.authority.fetchCount())
}

func TestTeardownRunsOnce(t *testing.T) {
	f := newEngineFixture(t, domain.RoleInitiator, EngineOptions{})
	require.NoError(t, f.engine.Start(context.Background()))

	f.engine.EndCall(context.Background())
	f.injectAndDeliver(t, domain.EventEndCall, nil)
	f.engine.EndCall(context.Background())
	waitDone(t, f.engine)

	assert.Equal(t, 1, f.capture.releaseCount())
	assert.Equal(t, CallEnded, f.engine.State())
}

func TestReconnectStartsFreshCallInstance(t *testing.T) {
	f := newEngineFixture(t, domain.RoleInitiator, EngineOptions{})
	require.NoError(t, f.engine.Start(context.Background()))

	f.injectAndDeliver(t, domain.EventReady, nil)
	f.factory.current().fireRemoteTrack("video")
	require.Equal(t, CallActive, f.engine.State())

	f.engine.Whiteboard().StartPath(domain.ToolPen, "#000", 4, 1, 1)

	f.relay.fireReconnected()

	assert.Equal(t, CallWaitingForPeer, f.engine.State())
	assert.True(t, f.engine.CallStartedAt().IsZero())
	// The rejoin negotiates on a fresh media instance.
	assert.Equal(t, 2, f.factory.count())
	// Collaboration state survives the gap.
	assert.Equal(t, 1, f.engine.Whiteboard().Document().Page(1).StrokeCount())
}

func TestDegradedTransportTearsDown(t *testing.T) {
	f := newEngineFixture(t, domain.RoleInitiator, EngineOptions{})
	require.NoError(t, f.engine.Start(context.Background()))

	f.relay.fireDegraded(domain.ErrRelayUnavailable)
	waitDone(t, f.engine)

	assert.Equal(t, CallEnded, f.engine.State())
	assert.Equal(t, 1, f.capture.releaseCount())
}

func TestRemoteTrackDuringTeardownDoesNotReactivate(t *testing.T) {
	f := newEngineFixture(t, domain.RoleInitiator, EngineOptions{})
	require.NoError(t, f.engine.Start(context.Background()))
	f.injectAndDeliver(t, domain.EventReady, nil)

	f.engine.setState(CallEnding)
	f.factory.current().fireRemoteTrack("video")

	assert.Equal(t, CallEnding, f.engine.State())
}
