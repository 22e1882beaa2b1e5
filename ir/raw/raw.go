// Package raw holds PDF objects exactly as the file spells them, before any
// stream is decoded.
package raw

import "fmt"

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// Object is implemented by every value in this package. Type names the
// PDF object kind for error messages.
type Object interface {
	Type() string
	IsIndirect() bool
}
