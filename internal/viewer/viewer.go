// Package viewer tracks the zoom and pan of the source image preview.
package viewer

import "math"

const (
	MinZoom = 1.0
	MaxZoom = 5.0

	// WheelSensitivity converts wheel deltaY into a zoom step
	WheelSensitivity = 0.001
)

// State is the pointer state of the viewer
type State int

const (
	Idle State = iota
	Panning
)

func (s State) String() string {
	if s == Panning {
		return "panning"
	}
	return "idle"
}

// Point is a position or offset in pixels
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns p - q
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Transform is the translate+scale applied to the preview
type Transform struct {
	Zoom float64 `json:"zoom"`
	Pan  Point   `json:"pan"`
}

// Viewer is the pan/zoom state machine. The zero value is not ready; use New.
type Viewer struct {
	zoom   float64
	pan    Point
	state  State
	offset Point
}

// New returns a viewer at zoom 1 with no pan
func New() *Viewer {
	v := &Viewer{}
	v.Reset()
	return v
}

// Reset returns to zoom 1, pan (0,0). Called on every new image.
func (v *Viewer) Reset() {
	v.zoom = MinZoom
	v.pan = Point{}
	v.state = Idle
	v.offset = Point{}
}

// Wheel adjusts zoom by -deltaY*WheelSensitivity, clamped to [MinZoom, MaxZoom]
func (v *Viewer) Wheel(deltaY float64) {
	if math.IsNaN(deltaY) || math.IsInf(deltaY, 0) {
		return
	}
	v.zoom = clamp(v.zoom-deltaY*WheelSensitivity, MinZoom, MaxZoom)
	if v.zoom == MinZoom {
		v.state = Idle
	}
}

// PointerDown starts panning when zoomed in
func (v *Viewer) PointerDown(pos Point) {
	if v.zoom <= MinZoom {
		return
	}
	v.state = Panning
	v.offset = pos.Sub(v.pan)
}

// PointerMove updates pan while panning
func (v *Viewer) PointerMove(pos Point) {
	if v.state != Panning {
		return
	}
	v.pan = pos.Sub(v.offset)
}

// PointerUp ends panning
func (v *Viewer) PointerUp() {
	v.state = Idle
}

// PointerLeave ends panning
func (v *Viewer) PointerLeave() {
	v.state = Idle
}

// State returns the current pointer state
func (v *Viewer) State() State {
	return v.state
}

// Transform returns the transform to render with. At zoom 1 the pan is
// reported as (0,0) whatever was stored.
func (v *Viewer) Transform() Transform {
	if v.zoom <= MinZoom {
		return Transform{Zoom: MinZoom}
	}
	return Transform{Zoom: v.zoom, Pan: v.pan}
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}

// Event is a serialized input event from the front end
type Event struct {
	Type   string  `json:"event"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	DeltaY float64 `json:"delta_y"`
}

// Apply dispatches e and reports whether the event type was recognized
func (v *Viewer) Apply(e Event) bool {
	pos := Point{X: e.X, Y: e.Y}
	switch e.Type {
	case "wheel":
		v.Wheel(e.DeltaY)
	case "down":
		v.PointerDown(pos)
	case "move":
		v.PointerMove(pos)
	case "up":
		v.PointerUp()
	case "leave":
		v.PointerLeave()
	case "reset":
		v.Reset()
	default:
		return false
	}
	return true
}
