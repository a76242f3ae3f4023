package domain

import (
	"math"
	"sort"
	"sync"
)

// Tool is the drawing instrument for whiteboard strokes and annotation
// segments.
type Tool string

const (
	ToolPen         Tool = "pen"
	ToolHighlighter Tool = "highlighter"
	ToolEraser      Tool = "eraser"
)

func ValidTool(t Tool) bool {
	switch t {
	case ToolPen, ToolHighlighter, ToolEraser:
		return true
	}
	return false
}

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke is one continuous freehand drawing action. IDs are unique
// within a session and belong to exactly one page.
type Stroke struct {
	ID     string  `json:"id"`
	Tool   Tool    `json:"tool"`
	Color  string  `json:"color"`
	Size   float64 `json:"size"`
	Points []Point `json:"points"`
}

// Page holds strokes in creation order. Removed stroke ids are
// tombstoned so that a redelivered start-path can never resurrect an
// erased stroke.
type Page struct {
	Number  int
	strokes []*Stroke
	byID    map[string]*Stroke
	removed map[string]struct{}
}

func newPage(number int) *Page {
	return &Page{
		Number:  number,
		byID:    make(map[string]*Stroke),
		removed: make(map[string]struct{}),
	}
}

// Strokes returns the live strokes in creation order.
func (p *Page) Strokes() []*Stroke {
	out := make([]*Stroke, len(p.strokes))
	copy(out, p.strokes)
	return out
}

func (p *Page) StrokeCount() int { return len(p.strokes) }

// WhiteboardDocument is the per-session replicated multi-page drawing
// state. Both participants apply the identical operation stream; every
// mutation is idempotent under redelivery.
type WhiteboardDocument struct {
	mu      sync.Mutex
	pages   map[int]*Page
	order   []int
	current int
	scroll  Point
	visible bool
}

// NewWhiteboardDocument creates a document with page 1 present.
func NewWhiteboardDocument() *WhiteboardDocument {
	d := &WhiteboardDocument{
		pages:   make(map[int]*Page),
		current: 1,
	}
	d.pages[1] = newPage(1)
	d.order = append(d.order, 1)
	return d
}

// AddPage creates the page if it does not exist yet. Page numbers are
// never reused, so a duplicate add is a no-op.
func (d *WhiteboardDocument) AddPage(number int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.pages[number]; ok {
		return false
	}
	d.pages[number] = newPage(number)
	d.order = append(d.order, number)
	return true
}

// NextPageNumber returns the number a locally-created page should use.
func (d *WhiteboardDocument) NextPageNumber() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	max := 0
	for n := range d.pages {
		if n > max {
			max = n
		}
	}
	return max + 1
}

// SwitchPage is pure view state. The page is not required to exist: a
// remote switch-page may arrive before the matching add-page, in which
// case the view is simply an empty page until content arrives.
func (d *WhiteboardDocument) SwitchPage(number int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.current = number
}

func (d *WhiteboardDocument) CurrentPage() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// SetScroll records the mirrored scroll position.
func (d *WhiteboardDocument) SetScroll(x, y float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scroll = Point{X: x, Y: y}
}

func (d *WhiteboardDocument) Scroll() Point {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scroll
}

func (d *WhiteboardDocument) SetVisible(v bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.visible = v
}

func (d *WhiteboardDocument) Visible() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.visible
}

// StartPath creates a stroke with its first point. A duplicate path id
// on the page is ignored, as is an id that was already erased.
func (d *WhiteboardDocument) StartPath(page int, pathID string, tool Tool, color string, size, x, y float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	pg := d.pageLocked(page)
	if _, exists := pg.byID[pathID]; exists {
		return false
	}
	if _, erased := pg.removed[pathID]; erased {
		return false
	}
	s := &Stroke{
		ID:     pathID,
		Tool:   tool,
		Color:  color,
		Size:   size,
		Points: []Point{{X: x, Y: y}},
	}
	pg.strokes = append(pg.strokes, s)
	pg.byID[pathID] = s
	return true
}

// AddPoint appends to an existing stroke. seq is the point's index in
// the stroke (the start-path point is index 0), which makes redelivered
// points exact duplicates instead of new geometry. Stale points whose
// path was already erased are silently dropped.
func (d *WhiteboardDocument) AddPoint(page int, pathID string, seq int, x, y float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	pg, ok := d.pages[page]
	if !ok {
		return false
	}
	s, ok := pg.byID[pathID]
	if !ok {
		return false
	}
	if seq != len(s.Points) {
		return false
	}
	s.Points = append(s.Points, Point{X: x, Y: y})
	return true
}

// PointCount returns the number of points in the stroke, or -1 when
// the page or stroke does not exist.
func (d *WhiteboardDocument) PointCount(page int, pathID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	pg, ok := d.pages[page]
	if !ok {
		return -1
	}
	s, ok := pg.byID[pathID]
	if !ok {
		return -1
	}
	return len(s.Points)
}

// RemovePath erases a stroke. Removing an unknown or already-removed
// id still records the tombstone: events carry no cross-name ordering,
// so the remove may arrive before the page or the stroke exists, and
// the tombstone is what keeps the later start-path from resurrecting
// the erased stroke.
func (d *WhiteboardDocument) RemovePath(page int, pathID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	pg := d.pageLocked(page)
	s, ok := pg.byID[pathID]
	if !ok {
		pg.removed[pathID] = struct{}{}
		return false
	}
	delete(pg.byID, pathID)
	pg.removed[pathID] = struct{}{}
	for i, st := range pg.strokes {
		if st == s {
			pg.strokes = append(pg.strokes[:i], pg.strokes[i+1:]...)
			break
		}
	}
	return true
}

// ClearPage removes all strokes on one page only. The page is created
// if a reordered clear arrives before its add-page.
func (d *WhiteboardDocument) ClearPage(page int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pg := d.pageLocked(page)
	for id := range pg.byID {
		pg.removed[id] = struct{}{}
	}
	pg.strokes = nil
	pg.byID = make(map[string]*Stroke)
}

// Page returns the page, or nil if it has not been created.
func (d *WhiteboardDocument) Page(number int) *Page {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pages[number]
}

// PageNumbers returns existing page numbers in ascending order.
func (d *WhiteboardDocument) PageNumbers() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]int, len(d.order))
	copy(out, d.order)
	sort.Ints(out)
	return out
}

// StrokeAt hit-tests the eraser position against the page's strokes.
// The most recently drawn stroke wins when several overlap, so strokes
// are scanned in reverse creation order and the first hit is returned.
func (d *WhiteboardDocument) StrokeAt(page int, x, y float64) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	pg, ok := d.pages[page]
	if !ok {
		return "", false
	}
	for i := len(pg.strokes) - 1; i >= 0; i-- {
		s := pg.strokes[i]
		radius := math.Max(s.Size/2, 5) + 5
		if strokeHit(s, x, y, radius) {
			return s.ID, true
		}
	}
	return "", false
}

func (d *WhiteboardDocument) pageLocked(number int) *Page {
	pg, ok := d.pages[number]
	if !ok {
		pg = newPage(number)
		d.pages[number] = pg
		d.order = append(d.order, number)
	}
	return pg
}

func strokeHit(s *Stroke, x, y, radius float64) bool {
	if len(s.Points) == 1 {
		p := s.Points[0]
		return math.Hypot(p.X-x, p.Y-y) <= radius
	}
	for i := 0; i < len(s.Points)-1; i++ {
		a, b := s.Points[i], s.Points[i+1]
		if pointSegmentDistance(x, y, a, b) <= radius {
			return true
		}
	}
	return false
}

// pointSegmentDistance is the distance from (px,py) to segment a-b.
func pointSegmentDistance(px, py float64, a, b Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(px-a.X, py-a.Y)
	}
	t := ((px-a.X)*dx + (py-a.Y)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(px-(a.X+t*dx), py-(a.Y+t*dy))
}
