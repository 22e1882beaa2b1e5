package attachment

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/wudi/pdfannot/gesture"
	"github.com/wudi/pdfannot/observability"
)

var ErrPageRange = errors.New("page index out of range")

// Op names the mutation an Event reports.
type Op int

const (
	OpAdd Op = iota
	OpUpdate
	OpRemove
	OpReset
	OpPage
)

func (o Op) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpUpdate:
		return "update"
	case OpRemove:
		return "remove"
	case OpReset:
		return "reset"
	case OpPage:
		return "page"
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// Event is delivered to subscribers after every successful mutation.
type Event struct {
	Op   Op
	Page int
	ID   string
	// HasCurrent is true when the current page holds at least one attachment.
	HasCurrent bool
	// Empty is true when no page holds an attachment.
	Empty bool
}

// Content reports whether the event changed attachment data, as opposed to
// only switching the current page.
func (e Event) Content() bool { return e.Op != OpPage }

type Option func(*Store)

func WithLogger(l observability.Logger) Option {
	return func(s *Store) { s.logger = observability.OrNop(l) }
}

// WithIDGenerator replaces the uuid generator, mostly for tests.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithMinSize sets the size floor used when clamping new attachments.
func WithMinSize(v float64) Option {
	return func(s *Store) { s.minSize = v }
}

// Store keeps attachments per page in insertion order. Add, Update and
// Remove target the current page. Ids are never reused: an id once handed
// out stays reserved after its attachment is removed or the store is reset.
//
// Store is safe for concurrent use. Subscribers run after the lock is
// released, in subscription order.
type Store struct {
	mu      sync.RWMutex
	pages   [][]Attachment
	sizes   []gesture.Size
	current int
	used    map[string]struct{}
	minSize float64

	subMu  sync.Mutex
	subs   map[int]func(Event)
	subSeq int

	newID  func() string
	logger observability.Logger
}

func NewStore(pageCount int, opts ...Option) *Store {
	s := &Store{
		used:    make(map[string]struct{}),
		subs:    make(map[int]func(Event)),
		minSize: gesture.DefaultMinSize,
		newID:   func() string { return uuid.NewString() },
		logger:  observability.NopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.pages = make([][]Attachment, max(pageCount, 0))
	return s
}

// Subscribe registers fn for change events and returns a function that
// removes it.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.subSeq
	s.subSeq++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Reset replaces every page with pageCount empty lists and returns to the
// first page. Known page sizes are dropped.
func (s *Store) Reset(pageCount int) {
	s.mu.Lock()
	s.pages = make([][]Attachment, max(pageCount, 0))
	s.sizes = nil
	s.current = 0
	ev := s.eventLocked(OpReset, "")
	s.mu.Unlock()
	s.notify(ev)
}

// SetPageSizes records page dimensions; Add clamps new attachments into
// them. sizes is indexed like the pages.
func (s *Store) SetPageSizes(sizes []gesture.Size) {
	s.mu.Lock()
	s.sizes = append([]gesture.Size(nil), sizes...)
	s.mu.Unlock()
}

// PageSize returns the recorded size of page i.
func (s *Store) PageSize(i int) (gesture.Size, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.sizes) {
		return gesture.Size{}, false
	}
	return s.sizes[i], true
}

func (s *Store) PageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}

func (s *Store) SetPageIndex(i int) error {
	s.mu.Lock()
	if i < 0 || i >= len(s.pages) {
		n := len(s.pages)
		s.mu.Unlock()
		return fmt.Errorf("%w: %d of %d", ErrPageRange, i, n)
	}
	if i == s.current {
		s.mu.Unlock()
		return nil
	}
	s.current = i
	ev := s.eventLocked(OpPage, "")
	s.mu.Unlock()
	s.notify(ev)
	return nil
}

func (s *Store) PageIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Add appends a copy of a to the current page and returns its id. A missing
// or previously used id is replaced by a fresh one. With no pages loaded
// the attachment is dropped and "" returned.
func (s *Store) Add(a Attachment) string {
	a = a.Clone()
	s.mu.Lock()
	if len(s.pages) == 0 {
		s.mu.Unlock()
		s.logger.Debug("attachment dropped: no pages loaded", observability.String("kind", string(a.Kind())))
		return ""
	}
	base := a.common()
	if _, taken := s.used[base.ID]; base.ID == "" || taken {
		base.ID = s.freshIDLocked()
	}
	s.used[base.ID] = struct{}{}
	if s.current < len(s.sizes) {
		a.SetBounds(gesture.Clamp(a.Bounds(), s.sizes[s.current], s.minSize))
	}
	s.pages[s.current] = append(s.pages[s.current], a)
	ev := s.eventLocked(OpAdd, base.ID)
	s.mu.Unlock()
	s.notify(ev)
	return ev.ID
}

// Update merges p into the attachment with id on the current page.
// Unknown ids are ignored.
func (s *Store) Update(id string, p Patch) bool {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		s.logger.Debug("update of unknown attachment ignored", observability.String("id", id))
		return false
	}
	s.pages[s.current][idx].apply(p)
	ev := s.eventLocked(OpUpdate, id)
	s.mu.Unlock()
	s.notify(ev)
	return true
}

// Remove deletes the attachment with id from the current page. Unknown ids
// are ignored.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		s.logger.Debug("remove of unknown attachment ignored", observability.String("id", id))
		return false
	}
	list := s.pages[s.current]
	s.pages[s.current] = append(list[:idx:idx], list[idx+1:]...)
	ev := s.eventLocked(OpRemove, id)
	s.mu.Unlock()
	s.notify(ev)
	return true
}

// Get returns a copy of the attachment with id on the current page.
func (s *Store) Get(id string) (Attachment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return nil, false
	}
	return s.pages[s.current][idx].Clone(), true
}

// Page returns copies of page i's attachments in insertion order.
func (s *Store) Page(i int) []Attachment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.pages) {
		return nil
	}
	return cloneList(s.pages[i])
}

// All returns copies of every page's attachments.
func (s *Store) All() [][]Attachment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([][]Attachment, len(s.pages))
	for i, list := range s.pages {
		out[i] = cloneList(list)
	}
	return out
}

// HasCurrent reports whether the current page holds an attachment.
func (s *Store) HasCurrent() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasCurrentLocked()
}

// Empty reports whether no page holds an attachment.
func (s *Store) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.emptyLocked()
}

func (s *Store) hasCurrentLocked() bool {
	return s.current < len(s.pages) && len(s.pages[s.current]) > 0
}

func (s *Store) emptyLocked() bool {
	for _, list := range s.pages {
		if len(list) > 0 {
			return false
		}
	}
	return true
}

func (s *Store) indexLocked(id string) int {
	if id == "" || s.current >= len(s.pages) {
		return -1
	}
	for i, a := range s.pages[s.current] {
		if a.common().ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) freshIDLocked() string {
	for {
		id := s.newID()
		if _, taken := s.used[id]; id != "" && !taken {
			return id
		}
	}
}

func (s *Store) eventLocked(op Op, id string) Event {
	return Event{
		Op:         op,
		Page:       s.current,
		ID:         id,
		HasCurrent: s.hasCurrentLocked(),
		Empty:      s.emptyLocked(),
	}
}

func (s *Store) notify(ev Event) {
	s.subMu.Lock()
	ids := make([]int, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	fns := make([]func(Event), 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func cloneList(list []Attachment) []Attachment {
	out := make([]Attachment, len(list))
	for i, a := range list {
		out[i] = a.Clone()
	}
	return out
}
