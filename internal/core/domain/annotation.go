package domain

import "sync"

// AnnotationSegment is one raw line segment drawn over an active
// screen share. Segments have no identity, so there is no removal by
// id, only a full clear.
type AnnotationSegment struct {
	FromX float64 `json:"from_x"`
	FromY float64 `json:"from_y"`
	ToX   float64 `json:"to_x"`
	ToY   float64 `json:"to_y"`
	Color string  `json:"color"`
	Size  float64 `json:"size"`
	Tool  Tool    `json:"tool"`
	Erase bool    `json:"erase"`
}

// AnnotationOverlay is the non-persistent drawing layer scoped to the
// current screen-share instance.
//
// Erasing is simulated by drawing with a fully-transparent stroke (the
// Erase flag) rather than true removal: an erase segment only covers
// ink drawn before it, in segment order, and cannot remove ink drawn
// after it. This is an accepted design limitation of the identity-free
// segment model.
type AnnotationOverlay struct {
	mu       sync.Mutex
	segments []AnnotationSegment
}

func NewAnnotationOverlay() *AnnotationOverlay {
	return &AnnotationOverlay{}
}

func (o *AnnotationOverlay) Add(seg AnnotationSegment) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.segments = append(o.segments, seg)
}

// Clear drops all segments. Also used when screen sharing stops.
func (o *AnnotationOverlay) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.segments = nil
}

func (o *AnnotationOverlay) Segments() []AnnotationSegment {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]AnnotationSegment, len(o.segments))
	copy(out, o.segments)
	return out
}
