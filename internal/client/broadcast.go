package client

import (
	"sync"
	"time"

	"livesession/internal/core/domain"
	"livesession/internal/core/ports"

	"go.uber.org/zap"
)

// Broadcaster handles the ancillary in-call channels: chat, reactions,
// hold status and shared images. Local sends echo into local state
// immediately; remote events land without re-emitting.
type Broadcaster struct {
	self        domain.ParticipantID
	displayName string
	transport   ports.RelayTransport

	chat      *domain.ChatLog
	reactions *domain.ReactionBoard

	mu         sync.Mutex
	peerOnHold bool
	sharedURL  string

	clock  func() time.Time
	logger *zap.SugaredLogger
}

func NewBroadcaster(
	self domain.ParticipantID,
	displayName string,
	transport ports.RelayTransport,
	reactionTTL time.Duration,
	logger *zap.SugaredLogger,
) *Broadcaster {
	return &Broadcaster{
		self:        self,
		displayName: displayName,
		transport:   transport,
		chat:        domain.NewChatLog(),
		reactions:   domain.NewReactionBoard(reactionTTL),
		clock:       time.Now,
		logger:      logger,
	}
}

func (b *Broadcaster) Chat() *domain.ChatLog              { return b.chat }
func (b *Broadcaster) Reactions() *domain.ReactionBoard   { return b.reactions }
func (b *Broadcaster) ActiveReactions() []domain.Reaction { return b.reactions.Active(b.clock()) }

func (b *Broadcaster) PeerOnHold() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peerOnHold
}

func (b *Broadcaster) SharedImageURL() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sharedURL
}

func (b *Broadcaster) emit(event string, payload interface{}) {
	if err := b.transport.Emit(event, payload); err != nil && b.logger != nil {
		b.logger.Warnw("broadcast emit failed", "event", event, "error", err)
	}
}

// SendChat appends the message locally and relays it. The local echo
// is unconditional: the sender sees their own message even if delivery
// later fails.
func (b *Broadcaster) SendChat(text string) {
	msg := domain.ChatMessage{
		Sender:      b.self,
		DisplayName: b.displayName,
		Text:        text,
		SentAt:      b.clock(),
	}
	b.chat.Append(msg)
	b.emit(domain.EventChatMessage, domain.ChatMessagePayload{Text: msg.Text, SentAt: msg.SentAt})
}

// SendReaction shows the reaction locally and relays it.
func (b *Broadcaster) SendReaction(reactionType string) {
	b.reactions.Add(domain.Reaction{
		Type:       reactionType,
		Sender:     b.self,
		ReceivedAt: b.clock(),
	})
	b.emit(domain.EventReaction, domain.ReactionPayload{Type: reactionType})
}

// SetHold announces our hold state to the peer.
func (b *Broadcaster) SetHold(onHold bool) {
	b.emit(domain.EventHoldStatus, domain.HoldStatusPayload{OnHold: onHold})
}

// ShareImage publishes an image URL into the session.
func (b *Broadcaster) ShareImage(url string) {
	b.mu.Lock()
	b.sharedURL = url
	b.mu.Unlock()
	b.emit(domain.EventSharedImage, domain.SharedImagePayload{URL: url})
}

// RemoveImage clears the shared image for both sides.
func (b *Broadcaster) RemoveImage() {
	b.mu.Lock()
	b.sharedURL = ""
	b.mu.Unlock()
	b.emit(domain.EventRemoveImage, nil)
}

func (b *Broadcaster) Register(transport ports.RelayTransport) {
	transport.On(domain.EventChatMessage, func(ev domain.Event) {
		p, err := decodeAs[domain.ChatMessagePayload](ev)
		if err != nil {
			b.logDecode(ev, err)
			return
		}
		b.chat.Append(domain.ChatMessage{
			Sender: ev.Sender,
			Text:   p.Text,
			SentAt: p.SentAt,
		})
	})
	transport.On(domain.EventReaction, func(ev domain.Event) {
		p, err := decodeAs[domain.ReactionPayload](ev)
		if err != nil {
			b.logDecode(ev, err)
			return
		}
		b.reactions.Add(domain.Reaction{
			Type:       p.Type,
			Sender:     ev.Sender,
			ReceivedAt: b.clock(),
		})
	})
	transport.On(domain.EventHoldStatus, func(ev domain.Event) {
		p, err := decodeAs[domain.HoldStatusPayload](ev)
		if err != nil {
			b.logDecode(ev, err)
			return
		}
		b.mu.Lock()
		b.peerOnHold = p.OnHold
		b.mu.Unlock()
	})
	transport.On(domain.EventSharedImage, func(ev domain.Event) {
		p, err := decodeAs[domain.SharedImagePayload](ev)
		if err != nil {
			b.logDecode(ev, err)
			return
		}
		b.mu.Lock()
		b.sharedURL = p.URL
		b.mu.Unlock()
	})
	transport.On(domain.EventRemoveImage, func(ev domain.Event) {
		b.mu.Lock()
		b.sharedURL = ""
		b.mu.Unlock()
	})
}

func (b *Broadcaster) logDecode(ev domain.Event, err error) {
	if b.logger != nil {
		b.logger.Warnw("dropping malformed broadcast event", "event", ev.Name, "error", err)
	}
}
