package component

import (
	"math"

	"github.com/wudi/pdfannot/attachment"
	"github.com/wudi/pdfannot/fonts"
	"github.com/wudi/pdfannot/gesture"
)

const (
	DefaultTextSize        = 16
	DefaultLineHeight      = 1.4
	DefaultTextPlaceholder = "New Text Field"
)

// Mode is the text widget's editing state.
type Mode int

const (
	// ModeCommand is the default: the box can be dragged.
	ModeCommand Mode = iota
	// ModeInsert edits the text; dragging is disabled.
	ModeInsert
)

func (m Mode) String() string {
	if m == ModeInsert {
		return "insert"
	}
	return "command"
}

// NewTextAttachment builds a text attachment at pos sized to its
// placeholder text.
func NewTextAttachment(pos gesture.Point, m fonts.Measurer, family string) *attachment.TextAttachment {
	if family == "" {
		family = fonts.DefaultFamily
	}
	text := DefaultTextPlaceholder
	width := math.Max(math.Ceil(m.Width(text, DefaultTextSize)), gesture.DefaultMinSize)
	return &attachment.TextAttachment{
		Base: attachment.Base{
			X:      pos.X,
			Y:      pos.Y,
			Width:  width,
			Height: math.Max(fonts.Height(1, DefaultTextSize, DefaultLineHeight), gesture.DefaultMinSize),
		},
		Text:       text,
		Lines:      []string{text},
		Size:       DefaultTextSize,
		LineHeight: DefaultLineHeight,
		FontFamily: family,
	}
}

// Text is the text widget. Leaving INSERT commits the draft as both the
// raw string and a single-element Lines slice.
type Text struct {
	widget
	mode       Mode
	draft      string
	committed  string
	size       float64
	lineHeight float64
	measure    fonts.Measurer
}

func NewText(store Store, a *attachment.TextAttachment, page gesture.Size, m fonts.Measurer) *Text {
	t := &Text{
		draft:      a.Text,
		committed:  a.Text,
		size:       a.Size,
		lineHeight: a.LineHeight,
		measure:    m,
	}
	t.init(a.ID, store, a.Bounds(), page, func(r gesture.Rect) {
		store.Update(t.id, attachment.BoundsPatch(r))
	})
	return t
}

func (t *Text) Mode() Mode { return t.mode }

// Draft is the text as currently edited.
func (t *Text) Draft() string { return t.draft }

// Lines wraps the draft at the box width exactly like the serializer.
func (t *Text) Lines() []string {
	return fonts.Layout(t.measure, t.draft, t.size, t.Rect().Width)
}

// DoubleClick enters INSERT.
func (t *Text) DoubleClick() { t.enterInsert() }

// ToggleMode flips between the two modes, committing when leaving INSERT.
func (t *Text) ToggleMode() bool {
	if t.mode == ModeInsert {
		return t.leaveInsert()
	}
	t.enterInsert()
	return false
}

// Input replaces the draft. It is ignored outside INSERT.
func (t *Text) Input(s string) {
	if t.mode == ModeInsert {
		t.draft = s
	}
}

// Blur leaves INSERT, committing the draft.
func (t *Text) Blur() bool { return t.leaveInsert() }

// PointerLeave leaves INSERT when the pointer exits the box mid-edit.
func (t *Text) PointerLeave() bool { return t.leaveInsert() }

// Delete removes the attachment immediately; text has no confirm step.
func (t *Text) Delete() bool { return t.store.Remove(t.id) }

func (t *Text) enterInsert() {
	if t.mode == ModeInsert {
		return
	}
	t.mode = ModeInsert
	t.box.Lock(true)
}

// leaveInsert returns to COMMAND and reports whether a commit happened.
// The box grows or shrinks vertically to the wrapped height.
func (t *Text) leaveInsert() bool {
	if t.mode != ModeInsert {
		return false
	}
	t.mode = ModeCommand
	t.box.Lock(false)
	if t.draft == t.committed {
		return false
	}
	t.committed = t.draft

	r := t.Rect()
	lines := fonts.Layout(t.measure, t.draft, t.size, r.Width)
	r.Height = math.Max(fonts.Height(len(lines), t.size, t.lineHeight), gesture.DefaultMinSize)
	r = gesture.Clamp(r, t.box.Page(), gesture.DefaultMinSize)
	t.box.Sync(r)

	p := attachment.BoundsPatch(r)
	p.Text = attachment.String(t.draft)
	p.Lines = []string{t.draft}
	return t.store.Update(t.id, p)
}
