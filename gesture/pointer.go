package gesture

// EventKind is the phase of a pointer interaction.
type EventKind int

const (
	PointerDown EventKind = iota
	PointerMove
	PointerUp
)

// Source tells mouse input, which reports movement deltas, from touch
// input, which only reports positions.
type Source int

const (
	Mouse Source = iota
	Touch
)

// PointerEvent is one mouse or touch sample. MovementX/Y are only read for
// mouse moves.
type PointerEvent struct {
	Kind                 EventKind
	Source               Source
	X, Y                 float64
	MovementX, MovementY float64
}

// Tracker turns a pointer event stream into per-event deltas. Touch deltas
// are measured against the previous touch point, which is replaced on every
// move.
type Tracker struct {
	last   Point
	active bool
}

// Delta returns the movement carried by ev. Down and Up report no movement.
func (t *Tracker) Delta(ev PointerEvent) Vec {
	switch ev.Kind {
	case PointerDown:
		t.last = Point{X: ev.X, Y: ev.Y}
		t.active = true
		return Vec{}
	case PointerUp:
		t.active = false
		return Vec{}
	}
	if !t.active {
		return Vec{}
	}
	var d Vec
	if ev.Source == Mouse {
		d = Vec{DX: ev.MovementX, DY: ev.MovementY}
	} else {
		d = Vec{DX: ev.X - t.last.X, DY: ev.Y - t.last.Y}
	}
	t.last = Point{X: ev.X, Y: ev.Y}
	return d
}

// Active reports whether a pointer is down.
func (t *Tracker) Active() bool { return t.active }
