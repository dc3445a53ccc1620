package schemas

import (
	"fmt"
	"strings"
)

// -- Geometry --

// Point is a position in CSS pixels relative to the viewport.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an element bounding box in CSS pixels relative to the viewport.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the midpoint of the box.
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Right returns the x coordinate of the right edge.
func (r Rect) Right() float64 { return r.X + r.Width }

// Bottom returns the y coordinate of the bottom edge.
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// Empty reports whether the box has no area, which is how detached or
// display:none elements are reported.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Contains reports whether p falls inside the box, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.Right() && p.Y >= r.Y && p.Y <= r.Bottom()
}

// -- Element Location --

// Query locates elements by CSS selector, optionally narrowed to those whose
// rendered text contains Text (case-insensitive).
type Query struct {
	CSS  string `json:"css"`
	Text string `json:"text,omitempty"`
}

func (q Query) String() string {
	if q.Text == "" {
		return q.CSS
	}
	return fmt.Sprintf("%s:has-text(%q)", q.CSS, q.Text)
}

// MatchesText applies the Text filter of the query to s.
func (q Query) MatchesText(s string) bool {
	if q.Text == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(q.Text))
}

// ElementRef is an opaque handle to an element matched by a Query. Index is the
// position of the element among all matches of the query at lookup time.
type ElementRef struct {
	Query   Query  `json:"query"`
	Index   int    `json:"index"`
	Box     Rect   `json:"box"`
	TagName string `json:"tagName"`
	Text    string `json:"text,omitempty"`
	Visible bool   `json:"visible"`
}

func (e ElementRef) String() string {
	return fmt.Sprintf("%s[%d]", e.Query, e.Index)
}

// -- Low-Level Input --

// MouseEventType defines the type of a mouse event.
type MouseEventType string

const (
	MouseMove    MouseEventType = "mouseMoved"
	MousePress   MouseEventType = "mousePressed"
	MouseRelease MouseEventType = "mouseReleased"
)

// MouseButton defines the mouse button being pressed.
type MouseButton string

const (
	ButtonNone MouseButton = "none"
	ButtonLeft MouseButton = "left"
)

// MouseEventData is a single synthesized pointer event.
type MouseEventData struct {
	Type       MouseEventType `json:"type"`
	X          float64        `json:"x"`
	Y          float64        `json:"y"`
	Button     MouseButton    `json:"button"`
	Buttons    int64          `json:"buttons"`
	ClickCount int            `json:"clickCount"`
}
