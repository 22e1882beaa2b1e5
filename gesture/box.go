package gesture

// Box is the draggable, resizable behaviour shared by all attachment
// widgets. Pointer moves only change the visual rect; the commit callback
// runs once per gesture, on pointer up, and only when the rect changed.
type Box struct {
	rect      Rect
	committed Rect
	page      Size
	minSize   float64

	tracker  Tracker
	dragging bool
	resizing Direction
	locked   bool

	commit func(Rect)
}

// NewBox starts a behaviour for rect on a page. commit receives the final
// rect of each gesture.
func NewBox(rect Rect, page Size, minSize float64, commit func(Rect)) *Box {
	if minSize <= 0 {
		minSize = DefaultMinSize
	}
	return &Box{rect: rect, committed: rect, page: page, minSize: minSize, commit: commit}
}

// Rect is the rect as currently displayed.
func (b *Box) Rect() Rect { return b.rect }

// Page returns the page size the box is clamped to.
func (b *Box) Page() Size { return b.page }

// SetPage changes the clamping page.
func (b *Box) SetPage(page Size) { b.page = page }

// Sync replaces the rect after the authoritative copy changed elsewhere.
// Any gesture in progress is abandoned.
func (b *Box) Sync(r Rect) {
	b.rect, b.committed = r, r
	b.dragging, b.resizing = false, 0
	b.tracker = Tracker{}
}

// Lock disables dragging, e.g. while text is being edited.
func (b *Box) Lock(locked bool) {
	b.locked = locked
	if locked {
		b.dragging = false
	}
}

func (b *Box) Locked() bool { return b.locked }

// Active reports whether a move or resize is in progress.
func (b *Box) Active() bool { return b.dragging || b.resizing != 0 }

// Down starts a move.
func (b *Box) Down(ev PointerEvent) {
	if b.locked {
		return
	}
	b.tracker.Delta(ev)
	b.dragging, b.resizing = true, 0
}

// DownHandle starts a resize from the handle at dir.
func (b *Box) DownHandle(ev PointerEvent, dir Direction) {
	if dir == 0 {
		return
	}
	b.tracker.Delta(ev)
	b.dragging, b.resizing = false, dir
}

// Move applies one pointer sample and reports whether the visual rect
// changed. Rejected resize steps leave the rect untouched.
func (b *Box) Move(ev PointerEvent) bool {
	if !b.Active() {
		return false
	}
	d := b.tracker.Delta(ev)
	prev := b.rect
	switch {
	case b.dragging:
		b.rect = Move(b.rect, d, b.page)
	case b.resizing != 0:
		b.rect, _ = Resize(b.rect, b.resizing, d, b.page, b.minSize)
	}
	return b.rect != prev
}

// Up ends the gesture and commits if the rect changed. It reports whether
// a commit happened.
func (b *Box) Up(ev PointerEvent) bool {
	if !b.Active() {
		return false
	}
	b.tracker.Delta(ev)
	b.dragging, b.resizing = false, 0
	return b.flush()
}

// Wheel scales the box by one tick and commits immediately.
func (b *Box) Wheel(up bool) bool {
	if b.Active() {
		return false
	}
	next, ok := WheelScale(b.rect, up, b.page, b.minSize)
	if !ok {
		return false
	}
	b.rect = next
	return b.flush()
}

func (b *Box) flush() bool {
	if b.rect == b.committed {
		return false
	}
	b.committed = b.rect
	if b.commit != nil {
		b.commit(b.rect)
	}
	return true
}
