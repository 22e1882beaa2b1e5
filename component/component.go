// Package component implements the interactive behaviour of the three
// attachment widgets on top of the shared gesture engine. Widgets are
// headless: a host forwards pointer input and reads Rect and mode back.
package component

import (
	"github.com/wudi/pdfannot/attachment"
	"github.com/wudi/pdfannot/gesture"
)

// Store is the part of attachment.Store widgets write through.
type Store interface {
	Update(id string, p attachment.Patch) bool
	Remove(id string) bool
}

// widget binds one attachment id to a gesture box.
type widget struct {
	id    string
	store Store
	box   *gesture.Box
}

func (w *widget) init(id string, store Store, rect gesture.Rect, page gesture.Size, commit func(gesture.Rect)) {
	w.id = id
	w.store = store
	w.box = gesture.NewBox(rect, page, gesture.DefaultMinSize, commit)
}

func (w *widget) ID() string { return w.id }

// Rect is the box as currently displayed, including an uncommitted drag.
func (w *widget) Rect() gesture.Rect { return w.box.Rect() }

func (w *widget) PointerDown(ev gesture.PointerEvent) { w.box.Down(ev) }

// HandleDown starts a resize from the given edge or corner handle.
func (w *widget) HandleDown(ev gesture.PointerEvent, dir gesture.Direction) {
	w.box.DownHandle(ev, dir)
}

func (w *widget) PointerMove(ev gesture.PointerEvent) bool { return w.box.Move(ev) }

// PointerUp ends a drag or resize and commits the result to the store.
func (w *widget) PointerUp(ev gesture.PointerEvent) bool { return w.box.Up(ev) }

// Refresh adopts a rect that changed in the store.
func (w *widget) Refresh(r gesture.Rect) { w.box.Sync(r) }

func (w *widget) SetPage(page gesture.Size) { w.box.SetPage(page) }

// confirm is the two-step delete used by images and drawings: a click on
// the widget arms it, an explicit confirmation removes it, and anything else
// disarms.
type confirm struct {
	armed bool
}

// Click arms the delete overlay.
func (c *confirm) Click() { c.armed = true }

func (c *confirm) Armed() bool { return c.armed }

// Cancel disarms without deleting.
func (c *confirm) Cancel() { c.armed = false }

// ClickOutside disarms, like Cancel.
func (c *confirm) ClickOutside() { c.armed = false }

func (c *confirm) confirmed() bool {
	ok := c.armed
	c.armed = false
	return ok
}
