package fonts

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/sfnt"
)

// DefaultFamily is used when an attachment names no family.
const DefaultFamily = "Times-Roman"

var ErrUnknownFont = errors.New("unknown font family")

func unknownFont(name string) error { return fmt.Errorf("%w: %q", ErrUnknownFont, name) }

// Common desktop family names resolved to their base-14 equivalents.
var aliases = map[string]string{
	"Arial":           "Helvetica",
	"Sans":            "Helvetica",
	"sans-serif":      "Helvetica",
	"Times":           "Times-Roman",
	"Times New Roman": "Times-Roman",
	"serif":           "Times-Roman",
	"Courier New":     "Courier",
	"monospace":       "Courier",
}

// Registry resolves family names to fonts. The base-14 Latin fonts and the
// Go font family are always available; further TrueType programs can be
// registered.
type Registry struct {
	mu       sync.RWMutex
	programs map[string][]byte
}

func NewRegistry() *Registry {
	return &Registry{programs: map[string][]byte{
		"Go":            goregular.TTF,
		"Go-Bold":       gobold.TTF,
		"Go-Italic":     goitalic.TTF,
		"Go-BoldItalic": gobolditalic.TTF,
		"Go-Mono":       gomono.TTF,
	}}
}

// Register adds a TrueType/OpenType program under family.
func (r *Registry) Register(family string, program []byte) error {
	if family == "" {
		return errors.New("font family name is empty")
	}
	if _, err := sfnt.Parse(program); err != nil {
		return fmt.Errorf("register %q: %w", family, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[family] = program
	return nil
}

// Lookup returns a fresh font for family. TrueType fonts track the glyphs
// they encode, so each document needs its own instance.
func (r *Registry) Lookup(family string) (Font, error) {
	if family == "" {
		family = DefaultFamily
	}
	if alias, ok := aliases[family]; ok {
		family = alias
	}
	if _, ok := standardFonts[family]; ok {
		return NewStandard(family)
	}
	r.mu.RLock()
	program, ok := r.programs[family]
	r.mu.RUnlock()
	if !ok {
		return nil, unknownFont(family)
	}
	return NewTrueType(family, program)
}

// Families lists every name Lookup accepts, aliases excluded.
func (r *Registry) Families() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(standardFonts)+len(r.programs))
	for name := range standardFonts {
		out = append(out, name)
	}
	for name := range r.programs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
