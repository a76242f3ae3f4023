package client

import (
	"context"
	"fmt"
	"sync"

	"livesession/internal/core/domain"
	"livesession/internal/core/ports"
)

// fakeRelay is an in-process stand-in for the relay: two linked ends,
// each with an inbox drained explicitly by the test. Emitted events
// land in the peer's inbox stamped with the sender, mirroring the
// server's no-loopback fan-out.
type fakeRelay struct {
	self domain.ParticipantID
	peer *fakeRelay

	mu       sync.Mutex
	handlers map[string]func(domain.Event)
	inbox    []domain.Event
	sent     []domain.Event
	closed   bool

	onDegraded    func(error)
	onReconnected func()
}

func newFakeRelayPair(a, b domain.ParticipantID) (*fakeRelay, *fakeRelay) {
	ra := &fakeRelay{self: a, handlers: make(map[string]func(domain.Event))}
	rb := &fakeRelay{self: b, handlers: make(map[string]func(domain.Event))}
	ra.peer = rb
	rb.peer = ra
	return ra, rb
}

func (r *fakeRelay) Emit(event string, payload interface{}) error {
	ev, err := domain.NewEvent(event, payload)
	if err != nil {
		return err
	}
	ev.Sender = r.self

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return domain.ErrRelayUnavailable
	}
	r.sent = append(r.sent, ev)
	r.mu.Unlock()

	if r.peer != nil {
		r.peer.mu.Lock()
		r.peer.inbox = append(r.peer.inbox, ev)
		r.peer.mu.Unlock()
	}
	return nil
}

func (r *fakeRelay) On(event string, handler func(domain.Event)) {
	r.mu.Lock()
	r.handlers[event] = handler
	r.mu.Unlock()
}

func (r *fakeRelay) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *fakeRelay) OnDegraded(fn func(error)) {
	r.mu.Lock()
	r.onDegraded = fn
	r.mu.Unlock()
}

func (r *fakeRelay) OnReconnected(fn func()) {
	r.mu.Lock()
	r.onReconnected = fn
	r.mu.Unlock()
}

// fireDegraded simulates redial exhaustion on the transport.
func (r *fakeRelay) fireDegraded(err error) {
	r.mu.Lock()
	fn := r.onDegraded
	r.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// fireReconnected simulates the transport restoring a dropped
// connection.
func (r *fakeRelay) fireReconnected() {
	r.mu.Lock()
	fn := r.onReconnected
	r.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// inject queues a server-originated event on this end.
func (r *fakeRelay) inject(ev domain.Event) {
	r.mu.Lock()
	r.inbox = append(r.inbox, ev)
	r.mu.Unlock()
}

// deliver processes one pending event, returning false when the inbox
// is empty.
func (r *fakeRelay) deliver() bool {
	r.mu.Lock()
	if len(r.inbox) == 0 {
		r.mu.Unlock()
		return false
	}
	ev := r.inbox[0]
	r.inbox = r.inbox[1:]
	handler := r.handlers[ev.Name]
	r.mu.Unlock()

	if handler != nil {
		handler(ev)
	}
	return true
}

func (r *fakeRelay) sentEvents(name string) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Event
	for _, ev := range r.sent {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

// pump drains both inboxes until the pair is quiescent.
func pump(a, b *fakeRelay) {
	for {
		progressed := false
		for a.deliver() {
			progressed = true
		}
		for b.deliver() {
			progressed = true
		}
		if !progressed {
			return
		}
	}
}

// fakeMedia records negotiation calls without any real peer connection.
type fakeMedia struct {
	mu          sync.Mutex
	offerCount  int
	answerCount int
	remote      *domain.SessionDescription
	candidates  []domain.ICECandidate
	onICE       func(domain.ICECandidate)
	onTrack     func(string)
	closed      bool
}

func (m *fakeMedia) CreateOffer(ctx context.Context) (domain.SessionDescription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offerCount++
	return domain.SessionDescription{Type: "offer", SDP: fmt.Sprintf("offer-sdp-%d", m.offerCount)}, nil
}

func (m *fakeMedia) CreateAnswer(ctx context.Context) (domain.SessionDescription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answerCount++
	return domain.SessionDescription{Type: "answer", SDP: fmt.Sprintf("answer-sdp-%d", m.answerCount)}, nil
}

func (m *fakeMedia) SetRemoteDescription(ctx context.Context, desc domain.SessionDescription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remote = &desc
	return nil
}

func (m *fakeMedia) HasRemoteDescription() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remote != nil
}

func (m *fakeMedia) AddICECandidate(cand domain.ICECandidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candidates = append(m.candidates, cand)
	return nil
}

func (m *fakeMedia) OnICECandidate(fn func(domain.ICECandidate)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onICE = fn
}

func (m *fakeMedia) OnRemoteTrack(fn func(kind string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTrack = fn
}

func (m *fakeMedia) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// fireRemoteTrack simulates the first remote packet arriving.
func (m *fakeMedia) fireRemoteTrack(kind string) {
	m.mu.Lock()
	fn := m.onTrack
	m.mu.Unlock()
	if fn != nil {
		fn(kind)
	}
}

type fakeMediaFactory struct {
	mu       sync.Mutex
	sessions []*fakeMedia
}

func (f *fakeMediaFactory) NewMediaSession() (ports.MediaSession, error) {
	m := &fakeMedia{}
	f.mu.Lock()
	f.sessions = append(f.sessions, m)
	f.mu.Unlock()
	return m, nil
}

func (f *fakeMediaFactory) current() *fakeMedia {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sessions) == 0 {
		return nil
	}
	return f.sessions[len(f.sessions)-1]
}

func (f *fakeMediaFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

// fakeCapture tracks acquire/release calls.
type fakeCapture struct {
	mu       sync.Mutex
	acquires int
	releases int
	fail     error
}

func (c *fakeCapture) Acquire(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.acquires++
	return nil
}

func (c *fakeCapture) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releases++
}

func (c *fakeCapture) releaseCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releases
}

// fakeAuthority counts status fetches.
type fakeAuthority struct {
	mu      sync.Mutex
	status  domain.SessionStatus
	err     error
	fetches int
}

func (a *fakeAuthority) FetchSession(ctx context.Context, id domain.SessionID) (*domain.Session, error) {
	return nil, domain.ErrSessionNotFound
}

func (a *fakeAuthority) FetchStatus(ctx context.Context, id domain.SessionID) (domain.SessionStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fetches++
	if a.err != nil {
		return "", a.err
	}
	return a.status, nil
}

func (a *fakeAuthority) fetchCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fetches
}
