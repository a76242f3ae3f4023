package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"livesession/internal/core/domain"
	"livesession/internal/core/ports"
	"livesession/internal/core/services"
	"livesession/internal/infrastructure/monitoring"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Options tunes the relay server's connection handling.
type Options struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	SendBuffer        int
	MessagesPerSecond float64
	MessageBurst      int
	MaxMessageSize    int64
}

func DefaultOptions() Options {
	return Options{
		PingInterval:      30 * time.Second,
		PongTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SendBuffer:        64,
		MessagesPerSecond: 0, // disabled
		MessageBurst:      0,
		MaxMessageSize:    64 * 1024,
	}
}

// subscriber is one connected participant. Outbound events go through
// a buffered channel drained by a dedicated writer goroutine, so one
// slow connection can never block fan-out to the other side.
type subscriber struct {
	participant *domain.Participant
	conn        *websocket.Conn
	send        chan domain.Event
	done        chan struct{}
	closeOnce   sync.Once
}

func (s *subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// RelayServer is the per-session event relay: pure fan-out between the
// two participants of a session, with payload validation at the
// boundary and no inspection beyond that.
type RelayServer struct {
	membership ports.MembershipService
	sessions   ports.SessionService
	auth       services.AuthService
	metrics    *monitoring.PrometheusCollector

	rooms map[domain.SessionID]map[domain.ParticipantID]*subscriber
	mu    sync.RWMutex

	opts   Options
	logger *zap.SugaredLogger
}

func NewRelayServer(
	membership ports.MembershipService,
	sessions ports.SessionService,
	auth services.AuthService,
	metrics *monitoring.PrometheusCollector,
	opts Options,
	logger *zap.SugaredLogger,
) *RelayServer {
	return &RelayServer{
		membership: membership,
		sessions:   sessions,
		auth:       auth,
		metrics:    metrics,
		rooms:      make(map[domain.SessionID]map[domain.ParticipantID]*subscriber),
		opts:       opts,
		logger:     logger,
	}
}

func (s *RelayServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	claims, err := s.auth.ValidateToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	participant := &domain.Participant{
		SessionID:   claims.SessionID,
		UserID:      claims.UserID,
		DisplayName: claims.DisplayName,
	}

	ready, err := s.membership.Join(r.Context(), participant)
	if err != nil {
		s.logger.Warnw("join rejected",
			"session_id", participant.SessionID,
			"user_id", participant.UserID,
			"error", err,
		)
		s.writeError(conn, err.Error())
		conn.Close()
		return
	}

	sub := &subscriber{
		participant: participant,
		conn:        conn,
		send:        make(chan domain.Event, s.opts.SendBuffer),
		done:        make(chan struct{}),
	}
	s.register(sub)
	if s.metrics != nil {
		s.metrics.RecordJoin()
	}

	s.logger.Infow("participant connected",
		"session_id", participant.SessionID,
		"user_id", participant.UserID,
		"role", participant.Role,
		"ready", ready,
	)

	go s.writePump(sub)

	joined, _ := domain.NewEvent(domain.EventParticipantJoined, domain.ParticipantJoinedPayload{
		Role:        participant.Role,
		DisplayName: participant.DisplayName,
	})
	joined.SessionID = participant.SessionID
	joined.Sender = participant.UserID
	s.fanOut(sub, joined)

	if ready {
		// Both slots are filled: announce ready to the whole room
		// exactly once per refill. The initiator's negotiation machine
		// keys off this.
		ev, _ := domain.NewEvent(domain.EventReady, nil)
		ev.SessionID = participant.SessionID
		s.broadcast(participant.SessionID, ev)

		if err := s.sessions.ActivateSession(r.Context(), participant.SessionID); err != nil {
			s.logger.Warnw("failed to activate session",
				"session_id", participant.SessionID, "error", err)
		}
	}

	s.readLoop(sub)
	s.disconnect(sub)
}

func (s *RelayServer) readLoop(sub *subscriber) {
	conn := sub.conn
	if s.opts.MaxMessageSize > 0 {
		conn.SetReadLimit(s.opts.MaxMessageSize)
	}
	conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
		return nil
	})

	var limiter *rate.Limiter
	if s.opts.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.opts.MessagesPerSecond), s.opts.MessageBurst)
	}

	for {
		var ev domain.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Infow("read error",
					"session_id", sub.participant.SessionID,
					"user_id", sub.participant.UserID,
					"error", err,
				)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))

		if ev.Name == domain.EventLeaveSession {
			return
		}

		if limiter != nil && !limiter.Allow() {
			if s.metrics != nil {
				s.metrics.RecordEventDropped("rate_limited")
			}
			continue
		}

		// Sender and session are stamped server-side; the envelope's
		// own values are never trusted.
		ev.SessionID = sub.participant.SessionID
		ev.Sender = sub.participant.UserID

		if _, err := domain.DecodePayload(ev); err != nil {
			s.logger.Warnw("dropping malformed event",
				"session_id", ev.SessionID,
				"user_id", ev.Sender,
				"event", ev.Name,
				"error", err,
			)
			if s.metrics != nil {
				s.metrics.RecordEventDropped("invalid_payload")
			}
			s.enqueueError(sub, fmt.Sprintf("invalid %s payload", ev.Name))
			continue
		}

		s.fanOut(sub, ev)
	}
}

func (s *RelayServer) writePump(sub *subscriber) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := sub.conn.WriteJSON(ev); err != nil {
				s.logger.Infow("write error",
					"session_id", sub.participant.SessionID,
					"user_id", sub.participant.UserID,
					"error", err,
				)
				sub.close()
				return
			}

		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				sub.close()
				return
			}

		case <-sub.done:
			return
		}
	}
}

// fanOut delivers the event to every other participant in the room.
// Delivery to the sender never happens.
func (s *RelayServer) fanOut(from *subscriber, ev domain.Event) {
	s.mu.RLock()
	room := s.rooms[from.participant.SessionID]
	targets := make([]*subscriber, 0, 1)
	for userID, sub := range room {
		if userID != from.participant.UserID {
			targets = append(targets, sub)
		}
	}
	s.mu.RUnlock()

	for _, sub := range targets {
		s.enqueue(sub, ev)
	}
	if s.metrics != nil {
		s.metrics.RecordEventRelayed(ev.Name)
	}
}

// broadcast delivers to every participant in the room, sender included.
// Used for server-originated events such as ready.
func (s *RelayServer) broadcast(sessionID domain.SessionID, ev domain.Event) {
	s.mu.RLock()
	room := s.rooms[sessionID]
	targets := make([]*subscriber, 0, len(room))
	for _, sub := range room {
		targets = append(targets, sub)
	}
	s.mu.RUnlock()

	for _, sub := range targets {
		s.enqueue(sub, ev)
	}
	if s.metrics != nil {
		s.metrics.RecordEventRelayed(ev.Name)
	}
}

// Publish implements ports.RelayPublisher for server-originated events
// such as session-completed.
func (s *RelayServer) Publish(ctx context.Context, sessionID domain.SessionID, ev domain.Event) error {
	ev.SessionID = sessionID
	s.broadcast(sessionID, ev)
	return nil
}

// enqueue hands the event to the subscriber's writer without blocking.
// A full buffer means the subscriber is too slow; the event is dropped
// for that subscriber only.
func (s *RelayServer) enqueue(sub *subscriber, ev domain.Event) {
	select {
	case sub.send <- ev:
	default:
		s.logger.Warnw("send buffer full, dropping event",
			"session_id", sub.participant.SessionID,
			"user_id", sub.participant.UserID,
			"event", ev.Name,
		)
		if s.metrics != nil {
			s.metrics.RecordEventDropped("slow_subscriber")
		}
	}
}

func (s *RelayServer) enqueueError(sub *subscriber, message string) {
	raw, _ := json.Marshal(map[string]string{"message": message})
	s.enqueue(sub, domain.Event{Name: "error", Payload: raw})
}

func (s *RelayServer) register(sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessionID := sub.participant.SessionID
	room, ok := s.rooms[sessionID]
	if !ok {
		room = make(map[domain.ParticipantID]*subscriber)
		s.rooms[sessionID] = room
		if s.metrics != nil {
			s.metrics.RecordRoomOpened()
		}
	}
	// A reconnect replaces the old subscriber; close the stale one.
	if old, exists := room[sub.participant.UserID]; exists {
		old.close()
	}
	room[sub.participant.UserID] = sub
}

func (s *RelayServer) disconnect(sub *subscriber) {
	sub.close()

	s.mu.Lock()
	sessionID := sub.participant.SessionID
	room, ok := s.rooms[sessionID]
	if ok && room[sub.participant.UserID] == sub {
		delete(room, sub.participant.UserID)
		if len(room) == 0 {
			delete(s.rooms, sessionID)
			if s.metrics != nil {
				s.metrics.RecordRoomClosed()
			}
		}
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordLeave()
	}

	left, _, err := s.membership.Leave(context.Background(), sessionID, sub.participant.UserID)
	if err != nil {
		s.logger.Debugw("leave bookkeeping skipped",
			"session_id", sessionID,
			"user_id", sub.participant.UserID,
			"error", err,
		)
		return
	}

	ev, _ := domain.NewEvent(domain.EventParticipantLeft, domain.ParticipantLeftPayload{Role: left.Role})
	ev.SessionID = sessionID
	ev.Sender = sub.participant.UserID
	s.broadcast(sessionID, ev)

	s.logger.Infow("participant disconnected",
		"session_id", sessionID,
		"user_id", sub.participant.UserID,
	)
}

func (s *RelayServer) HealthCheck(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	roomCount := len(s.rooms)
	connCount := 0
	for _, room := range s.rooms {
		connCount += len(room)
	}
	s.mu.RUnlock()

	response := map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"rooms":       roomCount,
		"connections": connCount,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (s *RelayServer) writeError(conn *websocket.Conn, message string) {
	raw, _ := json.Marshal(map[string]string{"message": message})
	conn.WriteJSON(domain.Event{Name: "error", Payload: raw})
}
