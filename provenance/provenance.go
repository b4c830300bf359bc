// Package provenance implements the ordered activation-name chain that
// records the nested call path of a plexus stream.
package provenance

import (
	"encoding/json"
	"errors"
	"strings"
)

// Provenance is an ordered, non-empty sequence of activation names. It is
// immutable once created; Extend returns a new value and never mutates the
// receiver.
type Provenance struct {
	segments []string
}

// ErrEmpty is returned by New/Root when no segments are supplied.
var ErrEmpty = errors.New("provenance: must have at least one segment")

// Root creates a root Provenance for a call dispatched directly against the
// named activation.
func Root(namespace string) (Provenance, error) {
	return New(namespace)
}

// New builds a Provenance from one or more segments.
func New(segments ...string) (Provenance, error) {
	if len(segments) == 0 {
		return Provenance{}, ErrEmpty
	}
	cp := make([]string, len(segments))
	copy(cp, segments)
	return Provenance{segments: cp}, nil
}

// MustNew is New but panics on error; intended for use with compile-time
// constant segment lists (tests, exemplar activations).
func MustNew(segments ...string) Provenance {
	p, err := New(segments...)
	if err != nil {
		panic(err)
	}
	return p
}

// Extend returns a new Provenance with segment appended. It does not modify
// the receiver.
func (p Provenance) Extend(segment string) Provenance {
	cp := make([]string, len(p.segments)+1)
	copy(cp, p.segments)
	cp[len(p.segments)] = segment
	return Provenance{segments: cp}
}

// Segments returns a copy of the ordered segment list.
func (p Provenance) Segments() []string {
	cp := make([]string, len(p.segments))
	copy(cp, p.segments)
	return cp
}

// Depth is the number of segments, equivalently the nesting depth of the
// call this Provenance describes.
func (p Provenance) Depth() int {
	return len(p.segments)
}

// Root returns the first segment, the namespace the call was originally
// dispatched against. Root panics if the Provenance is the zero value.
func (p Provenance) Root() string {
	if len(p.segments) == 0 {
		panic("provenance: Root called on zero value")
	}
	return p.segments[0]
}

// String renders the dot-joined canonical form, e.g. "health.tree.notes".
func (p Provenance) String() string {
	return strings.Join(p.segments, ".")
}

// IsZero reports whether p carries no segments (the zero value).
func (p Provenance) IsZero() bool {
	return len(p.segments) == 0
}

type wireForm struct {
	Segments []string `json:"segments"`
}

// MarshalJSON always emits the canonical object form {"segments": [...]},
// per spec.md §6 ("On output, the object form is canonical").
func (p Provenance) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireForm{Segments: p.segments})
}

// UnmarshalJSON accepts both wire forms described in spec.md §6: a
// dot-joined string, or an object {"segments": [...]}.
func (p *Provenance) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		if asString == "" {
			return ErrEmpty
		}
		p.segments = strings.Split(asString, ".")
		return nil
	}
	var wf wireForm
	if err := json.Unmarshal(data, &wf); err != nil {
		return err
	}
	if len(wf.Segments) == 0 {
		return ErrEmpty
	}
	p.segments = wf.Segments
	return nil
}
