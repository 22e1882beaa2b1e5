// Package recovery decides how the parser treats damaged parts of a
// document: fail the whole parse, or drop the part and keep going.
package recovery

import (
	"context"
	"fmt"
	"sync"
)

type Strategy interface {
	OnError(ctx context.Context, err error, loc Location) Action
}

// Location identifies the damaged part.
type Location struct {
	ObjectNum int
	ObjectGen int
	Component string
}

func (l Location) String() string {
	if l.ObjectNum == 0 {
		return l.Component
	}
	return fmt.Sprintf("%s %d %d R", l.Component, l.ObjectNum, l.ObjectGen)
}

type Action int

const (
	ActionFail Action = iota
	ActionSkip
)

func (a Action) String() string {
	switch a {
	case ActionFail:
		return "fail"
	case ActionSkip:
		return "skip"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Strict fails on the first damaged part.
type Strict struct{}

func (Strict) OnError(context.Context, error, Location) Action { return ActionFail }

// Lenient skips damaged parts and remembers why.
type Lenient struct {
	mu   sync.Mutex
	errs []error
}

func NewLenient() *Lenient { return &Lenient{} }

func (s *Lenient) OnError(ctx context.Context, err error, loc Location) Action {
	if ctx.Err() != nil {
		return ActionFail
	}
	s.mu.Lock()
	s.errs = append(s.errs, fmt.Errorf("%s: %w", loc, err))
	s.mu.Unlock()
	return ActionSkip
}

// Errors returns the skipped failures in the order they were seen.
func (s *Lenient) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}
