package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"livesession/internal/core/domain"
	"livesession/pkg/retry"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// RelayClientOptions tunes the websocket transport. Zero values fall
// back to the defaults below.
type RelayClientOptions struct {
	HandshakeTimeout time.Duration
	PingInterval     time.Duration
	PongTimeout      time.Duration
	WriteTimeout     time.Duration
	SendBuffer       int

	// ReconnectAttempts bounds how many redials are made after a lost
	// connection before the transport reports itself degraded.
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	ReconnectMaxDelay time.Duration
}

func (o *RelayClientOptions) withDefaults() RelayClientOptions {
	out := *o
	if out.HandshakeTimeout == 0 {
		out.HandshakeTimeout = 10 * time.Second
	}
	if out.PingInterval == 0 {
		out.PingInterval = 20 * time.Second
	}
	if out.PongTimeout == 0 {
		out.PongTimeout = 45 * time.Second
	}
	if out.WriteTimeout == 0 {
		out.WriteTimeout = 10 * time.Second
	}
	if out.SendBuffer == 0 {
		out.SendBuffer = 256
	}
	if out.ReconnectAttempts == 0 {
		out.ReconnectAttempts = 5
	}
	if out.ReconnectDelay == 0 {
		out.ReconnectDelay = 500 * time.Millisecond
	}
	if out.ReconnectMaxDelay == 0 {
		out.ReconnectMaxDelay = 5 * time.Second
	}
	return out
}

// RelayClient is the client end of the relay connection. All outbound
// events funnel through one buffered channel drained by a single writer
// goroutine, and all inbound events are dispatched sequentially from
// one reader goroutine, which preserves per-sender, per-event-name
// ordering end to end.
//
// A lost connection is redialed with bounded exponential backoff.
// Events emitted while disconnected queue in the send buffer and flush
// once the connection is restored; only after the redials are exhausted
// does the transport go degraded.
type RelayClient struct {
	dialURL string
	opts    RelayClientOptions

	send chan domain.Event

	connMu sync.Mutex
	conn   *websocket.Conn

	mu       sync.Mutex
	handlers map[string]func(domain.Event)
	catchAll func(domain.Event)

	onDegraded    func(error)
	onReconnected func()

	ctx    context.Context
	cancel context.CancelFunc

	done      chan struct{}
	closeOnce sync.Once

	logger *zap.SugaredLogger
}

// DialRelay connects to the relay for one session using a join token
// minted by the collaborator service.
func DialRelay(relayURL, token string, opts RelayClientOptions, logger *zap.SugaredLogger) (*RelayClient, error) {
	u, err := url.Parse(relayURL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	resolved := opts.withDefaults()
	dialer := websocket.Dialer{HandshakeTimeout: resolved.HandshakeTimeout}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRelayUnavailable, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &RelayClient{
		dialURL:  u.String(),
		conn:     conn,
		opts:     resolved,
		send:     make(chan domain.Event, resolved.SendBuffer),
		handlers: make(map[string]func(domain.Event)),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		logger:   logger,
	}

	go c.run()

	return c, nil
}

// OnDegraded registers the callback fired once when the connection is
// lost for good, after the redial attempts are exhausted. Must be set
// before events start flowing.
func (c *RelayClient) OnDegraded(fn func(error)) {
	c.onDegraded = fn
}

// OnReconnected registers the callback fired after a dropped connection
// is re-established. The relay treated the gap as a leave, so the peer
// saw participant-left; the caller decides what a rejoin means.
func (c *RelayClient) OnReconnected(fn func()) {
	c.onReconnected = fn
}

// Emit queues an event for delivery. Success means the event was
// accepted locally, not that the peer received it.
func (c *RelayClient) Emit(event string, payload interface{}) error {
	ev, err := domain.NewEvent(event, payload)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return domain.ErrRelayUnavailable
	default:
	}
	select {
	case <-c.done:
		return domain.ErrRelayUnavailable
	case c.send <- ev:
		return nil
	}
}

// On registers the handler for one event name. Handlers run on the
// reader goroutine, one event at a time, so they must not block on
// relay I/O.
func (c *RelayClient) On(event string, handler func(domain.Event)) {
	c.mu.Lock()
	c.handlers[event] = handler
	c.mu.Unlock()
}

// OnAny registers a fallback handler for events with no named handler.
func (c *RelayClient) OnAny(handler func(domain.Event)) {
	c.mu.Lock()
	c.catchAll = handler
	c.mu.Unlock()
}

func (c *RelayClient) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *RelayClient) shutdown(cause error) {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()
		conn := c.currentConn()
		deadline := time.Now().Add(c.opts.WriteTimeout)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
		if cause != nil && c.onDegraded != nil {
			c.onDegraded(cause)
		}
	})
}

func (c *RelayClient) currentConn() *websocket.Conn {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn
}

// run owns the connection lifecycle: pump the current connection until
// it fails, then redial and go again until Close or redial exhaustion.
func (c *RelayClient) run() {
	for {
		err := c.serve(c.currentConn())

		select {
		case <-c.done:
			return
		default:
		}

		if err == nil {
			err = errors.New("relay connection closed")
		}
		if rerr := c.redial(err); rerr != nil {
			c.shutdown(rerr)
			return
		}
		if c.onReconnected != nil {
			c.onReconnected()
		}
	}
}

// serve runs the write and read pumps for one connection and returns
// the error that ended it.
func (c *RelayClient) serve(conn *websocket.Conn) error {
	stop := make(chan struct{})
	writeErr := make(chan error, 1)
	go func() {
		err := c.writePump(conn, stop)
		if err != nil {
			// Unblock the reader so both pumps wind down together.
			conn.Close()
		}
		writeErr <- err
	}()

	readErr := c.readPump(conn)
	close(stop)
	conn.Close()

	if werr := <-writeErr; werr != nil {
		return werr
	}
	return readErr
}

func (c *RelayClient) redial(cause error) error {
	if c.logger != nil {
		c.logger.Warnw("relay connection lost, reconnecting", "error", cause)
	}

	cfg := retry.Config{
		MaxAttempts:  c.opts.ReconnectAttempts,
		InitialDelay: c.opts.ReconnectDelay,
		MaxDelay:     c.opts.ReconnectMaxDelay,
		Multiplier:   2.0,
		Jitter:       true,
	}
	conn, err := retry.DoWithResult(c.ctx, cfg, func() (*websocket.Conn, error) {
		dialer := websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
		conn, resp, derr := dialer.Dial(c.dialURL, nil)
		if derr != nil {
			if resp != nil && resp.StatusCode == http.StatusUnauthorized {
				// The join token is no longer accepted; more dials
				// cannot help.
				return nil, retry.Permanent(fmt.Errorf("relay rejected rejoin: %w", derr))
			}
			return nil, derr
		}
		return conn, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRelayUnavailable, err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	if c.logger != nil {
		c.logger.Infow("relay connection restored")
	}
	return nil
}

func (c *RelayClient) writePump(conn *websocket.Conn, stop chan struct{}) error {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return nil
		case <-stop:
			return nil
		case ev := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return fmt.Errorf("relay write failed: %w", err)
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("relay ping failed: %w", err)
			}
		}
	}
}

func (c *RelayClient) readPump(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
		return nil
	})

	for {
		var ev domain.Event
		if err := conn.ReadJSON(&ev); err != nil {
			return fmt.Errorf("relay read failed: %w", err)
		}

		c.mu.Lock()
		handler := c.handlers[ev.Name]
		if handler == nil {
			handler = c.catchAll
		}
		c.mu.Unlock()

		if handler == nil {
			if c.logger != nil {
				c.logger.Debugw("unhandled relay event", "event", ev.Name, "sender", ev.Sender)
			}
			continue
		}
		handler(ev)
	}
}
