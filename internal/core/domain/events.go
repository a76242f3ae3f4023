package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event names carried over the relay. The relay itself never inspects
// payloads beyond validating their shape at the boundary.
const (
	EventJoinSession  = "join-session"
	EventLeaveSession = "leave-session"

	EventOffer        = "offer"
	EventAnswer       = "answer"
	EventICECandidate = "ice-candidate"

	EventParticipantJoined = "participant-joined"
	EventParticipantLeft   = "participant-left"
	EventReady             = "ready"
	EventEndCall           = "end-call"
	EventSessionCompleted  = "session-completed"

	EventChatMessage = "chat-message"
	EventReaction    = "reaction"
	EventHoldStatus  = "hold-status"
	EventSharedImage = "shared-image"
	EventRemoveImage = "remove-image"

	EventWhiteboardToggle     = "whiteboard-toggle"
	EventWhiteboardScroll     = "whiteboard-scroll"
	EventWhiteboardStartPath  = "whiteboard-start-path"
	EventWhiteboardAddPoint   = "whiteboard-add-point"
	EventWhiteboardRemovePath = "whiteboard-remove-path"
	EventWhiteboardClearPage  = "whiteboard-clear-page"
	EventWhiteboardAddPage    = "whiteboard-add-page"
	EventWhiteboardSwitchPage = "whiteboard-switch-page"

	EventAnnotationDraw  = "annotation-draw"
	EventAnnotationClear = "annotation-clear"
)

// Event is the relay envelope. Sender is stamped by the relay server,
// never trusted from the wire.
type Event struct {
	Name      string          `json:"event"`
	SessionID SessionID       `json:"session_id,omitempty"`
	Sender    ParticipantID   `json:"sender,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent marshals payload into an envelope. A nil payload produces an
// empty-payload event.
func NewEvent(name string, payload interface{}) (Event, error) {
	ev := Event{Name: name}
	if payload == nil {
		return ev, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", name, err)
	}
	ev.Payload = raw
	return ev, nil
}

type OfferPayload struct {
	Description SessionDescription `json:"description"`
}

type AnswerPayload struct {
	Description SessionDescription `json:"description"`
}

type ICECandidatePayload struct {
	Candidate ICECandidate `json:"candidate"`
}

type ParticipantJoinedPayload struct {
	Role        Role   `json:"role"`
	DisplayName string `json:"display_name"`
}

type ParticipantLeftPayload struct {
	Role Role `json:"role"`
}

type ReadyPayload struct{}

type EndCallPayload struct{}

type SessionCompletedPayload struct {
	Status SessionStatus `json:"status"`
}

type ChatMessagePayload struct {
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

type ReactionPayload struct {
	Type string `json:"type"`
}

type HoldStatusPayload struct {
	OnHold bool `json:"on_hold"`
}

type SharedImagePayload struct {
	URL string `json:"url"`
}

type RemoveImagePayload struct{}

type WhiteboardTogglePayload struct {
	Visible bool `json:"visible"`
}

type WhiteboardScrollPayload struct {
	Page int     `json:"page"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

type StartPathPayload struct {
	Page   int     `json:"page"`
	PathID string  `json:"path_id"`
	Tool   Tool    `json:"tool"`
	Color  string  `json:"color"`
	Size   float64 `json:"size"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

type AddPointPayload struct {
	Page   int     `json:"page"`
	PathID string  `json:"path_id"`
	Seq    int     `json:"seq"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
}

type RemovePathPayload struct {
	Page   int    `json:"page"`
	PathID string `json:"path_id"`
}

type ClearPagePayload struct {
	Page int `json:"page"`
}

type AddPagePayload struct {
	Page int `json:"page"`
}

type SwitchPagePayload struct {
	Page int `json:"page"`
}

type AnnotationDrawPayload struct {
	Segment AnnotationSegment `json:"segment"`
}

type AnnotationClearPayload struct{}

// DecodePayload unmarshals and validates the payload variant matching
// the event name. A malformed payload fails here, at the relay
// boundary, instead of corrupting replicated state downstream.
func DecodePayload(ev Event) (interface{}, error) {
	decode := func(v interface{}) (interface{}, error) {
		if len(ev.Payload) == 0 {
			return nil, fmt.Errorf("%w: %s requires a payload", ErrInvalidPayload, ev.Name)
		}
		if err := json.Unmarshal(ev.Payload, v); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, ev.Name, err)
		}
		return v, nil
	}

	switch ev.Name {
	case EventOffer:
		p := &OfferPayload{}
		if _, err := decode(p); err != nil {
			return nil, err
		}
		if p.Description.SDP == "" {
			return nil, fmt.Errorf("%w: offer requires sdp", ErrInvalidPayload)
		}
		return p, nil

	case EventAnswer:
		p := &AnswerPayload{}
		if _, err := decode(p); err != nil {
			return nil, err
		}
		if p.Description.SDP == "" {
			return nil, fmt.Errorf("%w: answer requires sdp", ErrInvalidPayload)
		}
		return p, nil

	case EventICECandidate:
		p := &ICECandidatePayload{}
		if _, err := decode(p); err != nil {
			return nil, err
		}
		if p.Candidate.Candidate == "" {
			return nil, fmt.Errorf("%w: ice candidate must not be empty", ErrInvalidPayload)
		}
		return p, nil

	case EventParticipantJoined:
		p := &ParticipantJoinedPayload{}
		if _, err := decode(p); err != nil {
			return nil, err
		}
		if p.Role != RoleInitiator && p.Role != RoleResponder {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidPayload, p.Role)
		}
		return p, nil

	case EventParticipantLeft:
		p := &ParticipantLeftPayload{}
		if _, err := decode(p); err != nil {
			return nil, err
		}
		return p, nil

	case EventJoinSession, EventLeaveSession:
		return nil, nil

	case EventReady:
		return &ReadyPayload{}, nil

	case EventEndCall:
		return &EndCallPayload{}, nil

	case EventSessionCompleted:
		p := &SessionCompletedPayload{}
		if _, err := decode(p); err != nil {
			return nil, err
		}
		return p, nil

	case EventChatMessage:
		p := &ChatMessagePayload{}
		if _, err := decode(p); err != nil {
			return nil, err
		}
		if p.Text == "" {
			return nil, fmt.Errorf("%w: chat message text must not be empty", ErrInvalidPayload)
		}
		return p, nil

	case EventReaction:
		p := &ReactionPayload{}
		if _, err := decode(p); err != nil {
			return nil, err
		}
		if p.Type == "" {
			return nil, fmt.Errorf("%w: reaction type must not be empty", ErrInvalidPayload)
		}
		return p, nil

	case EventHoldStatus:
		p := &HoldStatusPayload{}
		if _, err := decode(p); err != nil {
			return nil, err
		}
		return p, nil

	case EventSharedImage:
		p := &SharedImagePayload{}
		if _, err := decode(p); err != nil {
			return nil, err
		}
		if p.URL == "" {
			return nil, fmt.Errorf("%w: shared image requires url", ErrInvalidPayload)
		}
		return p, nil

	case EventRemoveImage:
		return &RemoveImagePayload{}, nil

	case EventWhiteboardToggle:
		p := &WhiteboardTogglePayload{}
		if _, err := decode(p); err != nil {
			return nil, err
		}
		return p, nil

	case EventWhiteboardScroll:
		p := &WhiteboardScrollPayload{}
		if _, err := decode(p); err != nil {
			return nil, err
		}
		if err := validatePage(p.Page); err != nil {
			return nil, err
		}
		return p, nil

	case EventWhiteboardStartPath:
		p := &StartPathPayload{}
		if _, err := decode(p); err != nil {
			return nil, err
		}
		if p.PathID == "" {
			return nil, fmt.Errorf("%w: start-path requires path_id", ErrInvalidPayload)
		}
		if !ValidTool(p.Tool) {
			return nil, fmt.Errorf("%w: unknown tool %q", ErrInvalidPayload, p.Tool)
		}
		if err := validatePage(p.Page); err != nil {
			return nil, err
		}
		return p, nil

	case EventWhiteboardAddPoint:
		p := &AddPointPayload{}
		if _, err := decode(p); err != nil {
			return nil, err
		}
		if p.PathID == "" {
			return nil, fmt.Errorf("%w: add-point requires path_id", ErrInvalidPayload)
		}
		if err := validatePage(p.Page); err != nil {
			return nil, err
		}
		return p, nil

	case EventWhiteboardRemovePath:
		p := &RemovePathPayload{}
		if _, err := decode(p); err != nil {
			return nil, err
		}
		if p.PathID == "" {
			return nil, fmt.Errorf("%w: remove-path requires path_id", ErrInvalidPayload)
		}
		if err := validatePage(p.Page); err != nil {
			return nil, err
		}
		return p, nil

	case EventWhiteboardClearPage:
		p := &ClearPagePayload{}
		if _, err := decode(p); err != nil {
			return nil, err
		}
		if err := validatePage(p.Page); err != nil {
			return nil, err
		}
		return p, nil

	case EventWhiteboardAddPage:
		p := &AddPagePayload{}
		if _, err := decode(p); err != nil {
			return nil, err
		}
		if err := validatePage(p.Page); err != nil {
			return nil, err
		}
		return p, nil

	case EventWhiteboardSwitchPage:
		p := &SwitchPagePayload{}
		if _, err := decode(p); err != nil {
			return nil, err
		}
		if err := validatePage(p.Page); err != nil {
			return nil, err
		}
		return p, nil

	case EventAnnotationDraw:
		p := &AnnotationDrawPayload{}
		if _, err := decode(p); err != nil {
			return nil, err
		}
		if !ValidTool(p.Segment.Tool) {
			return nil, fmt.Errorf("%w: unknown tool %q", ErrInvalidPayload, p.Segment.Tool)
		}
		return p, nil

	case EventAnnotationClear:
		return &AnnotationClearPayload{}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Name)
	}
}

func validatePage(page int) error {
	if page < 1 {
		return fmt.Errorf("%w: page number must be >= 1", ErrInvalidPayload)
	}
	return nil
}
