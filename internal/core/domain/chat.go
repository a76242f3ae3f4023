package domain

import (
	"sync"
	"time"
)

// ChatMessage is client-local only; persistence, if any, belongs to
// the collaborator service.
type ChatMessage struct {
	Sender      ParticipantID `json:"sender"`
	DisplayName string        `json:"display_name,omitempty"`
	Text        string        `json:"text"`
	SentAt      time.Time     `json:"sent_at"`
}

// ChatLog is an append-only ordered message sequence.
type ChatLog struct {
	mu       sync.Mutex
	messages []ChatMessage
}

func NewChatLog() *ChatLog {
	return &ChatLog{}
}

func (l *ChatLog) Append(msg ChatMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

func (l *ChatLog) Messages() []ChatMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ChatMessage, len(l.messages))
	copy(out, l.messages)
	return out
}

func (l *ChatLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

// Reaction is an ephemeral emoji reaction. It leaves the display set
// once its TTL elapses and is never persisted.
type Reaction struct {
	Type       string        `json:"type"`
	Sender     ParticipantID `json:"sender"`
	ReceivedAt time.Time     `json:"received_at"`
}

// ReactionBoard holds the currently visible reactions. Expiry is
// evaluated against the given clock so callers can drive it from a
// timer or from tests.
type ReactionBoard struct {
	mu        sync.Mutex
	ttl       time.Duration
	reactions []Reaction
}

func NewReactionBoard(ttl time.Duration) *ReactionBoard {
	return &ReactionBoard{ttl: ttl}
}

func (b *ReactionBoard) TTL() time.Duration { return b.ttl }

func (b *ReactionBoard) Add(r Reaction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reactions = append(b.reactions, r)
}

// Active prunes expired reactions and returns the remainder.
func (b *ReactionBoard) Active(now time.Time) []Reaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	live := b.reactions[:0]
	for _, r := range b.reactions {
		if now.Sub(r.ReceivedAt) < b.ttl {
			live = append(live, r)
		}
	}
	b.reactions = live
	out := make([]Reaction, len(live))
	copy(out, live)
	return out
}
