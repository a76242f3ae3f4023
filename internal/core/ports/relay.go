package ports

import "livesession/internal/core/domain"

// RelayTransport is the client-side handle on the per-session event
// relay. Emit is fire-and-forget; delivery is FIFO per (sender, event
// name) and never loops back to the sender.
type RelayTransport interface {
	Emit(event string, payload interface{}) error
	// On registers the handler for one event name. Handlers run on the
	// transport's dispatch goroutine, one event at a time.
	On(event string, handler func(domain.Event))
	Close() error
}
