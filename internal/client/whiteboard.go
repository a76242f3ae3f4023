package client

import (
	"livesession/internal/core/domain"
	"livesession/internal/core/ports"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WhiteboardReplica keeps the local copy of the shared drawing state
// converged with the peer's. Local gestures apply immediately and emit
// the corresponding operation; remote operations apply without
// re-emitting, so nothing ever echoes back around the loop.
type WhiteboardReplica struct {
	doc       *domain.WhiteboardDocument
	transport ports.RelayTransport
	logger    *zap.SugaredLogger
}

func NewWhiteboardReplica(transport ports.RelayTransport, logger *zap.SugaredLogger) *WhiteboardReplica {
	return &WhiteboardReplica{
		doc:       domain.NewWhiteboardDocument(),
		transport: transport,
		logger:    logger,
	}
}

func (w *WhiteboardReplica) Document() *domain.WhiteboardDocument { return w.doc }

func (w *WhiteboardReplica) emit(event string, payload interface{}) {
	if err := w.transport.Emit(event, payload); err != nil && w.logger != nil {
		w.logger.Warnw("whiteboard emit failed", "event", event, "error", err)
	}
}

// SetVisible toggles the board for both participants.
func (w *WhiteboardReplica) SetVisible(visible bool) {
	w.doc.SetVisible(visible)
	w.emit(domain.EventWhiteboardToggle, domain.WhiteboardTogglePayload{Visible: visible})
}

// SetScroll mirrors the local scroll position to the peer.
func (w *WhiteboardReplica) SetScroll(x, y float64) {
	w.doc.SetScroll(x, y)
	w.emit(domain.EventWhiteboardScroll, domain.WhiteboardScrollPayload{
		Page: w.doc.CurrentPage(), X: x, Y: y,
	})
}

// StartPath begins a local stroke on the current page and returns its
// id for the follow-up points.
func (w *WhiteboardReplica) StartPath(tool domain.Tool, color string, size, x, y float64) string {
	page := w.doc.CurrentPage()
	pathID := uuid.New().String()
	w.doc.StartPath(page, pathID, tool, color, size, x, y)
	w.emit(domain.EventWhiteboardStartPath, domain.StartPathPayload{
		Page: page, PathID: pathID, Tool: tool, Color: color, Size: size, X: x, Y: y,
	})
	return pathID
}

// AddPoint extends a local stroke. The point's index within the stroke
// travels with the operation so redelivery cannot duplicate geometry.
func (w *WhiteboardReplica) AddPoint(pathID string, x, y float64) {
	page := w.doc.CurrentPage()
	seq := w.doc.PointCount(page, pathID)
	if seq < 0 {
		return
	}
	if w.doc.AddPoint(page, pathID, seq, x, y) {
		w.emit(domain.EventWhiteboardAddPoint, domain.AddPointPayload{
			Page: page, PathID: pathID, Seq: seq, X: x, Y: y,
		})
	}
}

// EraseAt hit-tests the eraser position and removes the topmost stroke
// under it, if any. Returns the erased path id.
func (w *WhiteboardReplica) EraseAt(x, y float64) (string, bool) {
	page := w.doc.CurrentPage()
	pathID, ok := w.doc.StrokeAt(page, x, y)
	if !ok {
		return "", false
	}
	w.doc.RemovePath(page, pathID)
	w.emit(domain.EventWhiteboardRemovePath, domain.RemovePathPayload{Page: page, PathID: pathID})
	return pathID, true
}

// ClearPage wipes the current page for both participants.
func (w *WhiteboardReplica) ClearPage() {
	page := w.doc.CurrentPage()
	w.doc.ClearPage(page)
	w.emit(domain.EventWhiteboardClearPage, domain.ClearPagePayload{Page: page})
}

// AddPage creates the next page and switches both sides to it.
func (w *WhiteboardReplica) AddPage() int {
	number := w.doc.NextPageNumber()
	w.doc.AddPage(number)
	w.emit(domain.EventWhiteboardAddPage, domain.AddPagePayload{Page: number})
	w.SwitchPage(number)
	return number
}

// SwitchPage changes the shared current page.
func (w *WhiteboardReplica) SwitchPage(number int) {
	w.doc.SwitchPage(number)
	w.emit(domain.EventWhiteboardSwitchPage, domain.SwitchPagePayload{Page: number})
}

// Register wires the remote-side handlers onto the transport. Remote
// operations mutate the document directly and never re-emit.
func (w *WhiteboardReplica) Register(transport ports.RelayTransport) {
	transport.On(domain.EventWhiteboardToggle, func(ev domain.Event) {
		p, err := decodeAs[domain.WhiteboardTogglePayload](ev)
		if err != nil {
			w.logDecode(ev, err)
			return
		}
		w.doc.SetVisible(p.Visible)
	})
	transport.On(domain.EventWhiteboardScroll, func(ev domain.Event) {
		p, err := decodeAs[domain.WhiteboardScrollPayload](ev)
		if err != nil {
			w.logDecode(ev, err)
			return
		}
		w.doc.SetScroll(p.X, p.Y)
	})
	transport.On(domain.EventWhiteboardStartPath, func(ev domain.Event) {
		p, err := decodeAs[domain.StartPathPayload](ev)
		if err != nil {
			w.logDecode(ev, err)
			return
		}
		w.doc.StartPath(p.Page, p.PathID, p.Tool, p.Color, p.Size, p.X, p.Y)
	})
	transport.On(domain.EventWhiteboardAddPoint, func(ev domain.Event) {
		p, err := decodeAs[domain.AddPointPayload](ev)
		if err != nil {
			w.logDecode(ev, err)
			return
		}
		w.doc.AddPoint(p.Page, p.PathID, p.Seq, p.X, p.Y)
	})
	transport.On(domain.EventWhiteboardRemovePath, func(ev domain.Event) {
		p, err := decodeAs[domain.RemovePathPayload](ev)
		if err != nil {
			w.logDecode(ev, err)
			return
		}
		w.doc.RemovePath(p.Page, p.PathID)
	})
	transport.On(domain.EventWhiteboardClearPage, func(ev domain.Event) {
		p, err := decodeAs[domain.ClearPagePayload](ev)
		if err != nil {
			w.logDecode(ev, err)
			return
		}
		w.doc.ClearPage(p.Page)
	})
	transport.On(domain.EventWhiteboardAddPage, func(ev domain.Event) {
		p, err := decodeAs[domain.AddPagePayload](ev)
		if err != nil {
			w.logDecode(ev, err)
			return
		}
		w.doc.AddPage(p.Page)
	})
	transport.On(domain.EventWhiteboardSwitchPage, func(ev domain.Event) {
		p, err := decodeAs[domain.SwitchPagePayload](ev)
		if err != nil {
			w.logDecode(ev, err)
			return
		}
		w.doc.SwitchPage(p.Page)
	})
}

func (w *WhiteboardReplica) logDecode(ev domain.Event, err error) {
	if w.logger != nil {
		w.logger.Warnw("dropping malformed whiteboard event", "event", ev.Name, "error", err)
	}
}
