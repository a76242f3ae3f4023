package client

import (
	"livesession/internal/core/domain"
	"livesession/internal/core/ports"

	"go.uber.org/zap"
)

// Annotator manages the screen-share annotation overlay. Segments are
// identity-free raw lines; the eraser draws transparent ink instead of
// removing segments, and clearing is the only wholesale reset.
type Annotator struct {
	overlay   *domain.AnnotationOverlay
	transport ports.RelayTransport
	logger    *zap.SugaredLogger
}

func NewAnnotator(transport ports.RelayTransport, logger *zap.SugaredLogger) *Annotator {
	return &Annotator{
		overlay:   domain.NewAnnotationOverlay(),
		transport: transport,
		logger:    logger,
	}
}

func (a *Annotator) Overlay() *domain.AnnotationOverlay { return a.overlay }

// Draw applies a local segment and mirrors it to the peer. Erase
// segments carry the transparent color so both sides render them the
// same way.
func (a *Annotator) Draw(seg domain.AnnotationSegment) {
	if seg.Erase {
		seg.Color = "transparent"
	}
	a.overlay.Add(seg)
	err := a.transport.Emit(domain.EventAnnotationDraw, domain.AnnotationDrawPayload{Segment: seg})
	if err != nil && a.logger != nil {
		a.logger.Warnw("annotation emit failed", "error", err)
	}
}

// Clear wipes the overlay on both sides. Also invoked locally when the
// screen share ends, since the overlay is scoped to one share instance.
func (a *Annotator) Clear() {
	a.overlay.Clear()
	if err := a.transport.Emit(domain.EventAnnotationClear, nil); err != nil && a.logger != nil {
		a.logger.Warnw("annotation clear emit failed", "error", err)
	}
}

// ClearLocal drops the overlay without notifying the peer, for the
// share-ended path where each side clears independently.
func (a *Annotator) ClearLocal() {
	a.overlay.Clear()
}

func (a *Annotator) Register(transport ports.RelayTransport) {
	transport.On(domain.EventAnnotationDraw, func(ev domain.Event) {
		p, err := decodeAs[domain.AnnotationDrawPayload](ev)
		if err != nil {
			if a.logger != nil {
				a.logger.Warnw("dropping malformed annotation event", "error", err)
			}
			return
		}
		a.overlay.Add(p.Segment)
	})
	transport.On(domain.EventAnnotationClear, func(ev domain.Event) {
		a.overlay.Clear()
	})
}
