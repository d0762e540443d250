package statline

// strings.go re-exports the flexible string carrier used for metric names
// and tags.  Provenance decides whether storing a new aggregation key
// allocates: Static values are retained as-is, Borrowed and Owned values are
// copied on first insertion.
//
// Use Static for compile-time literals whenever possible — it is the only
// variant whose bytes are stored without a copy on key insertion.
//
// © 2025 statline authors. MIT License.

import "github.com/statline/statline/internal/flexstr"

// Str is a string plus its provenance.  Equality and ordering are byte-wise
// over content, never over the provenance tag.
type Str = flexstr.String

// Static wraps a compile-time literal.  The caller promises program
// lifetime; key promotion never copies it.
func Static(s string) Str { return flexstr.Static(s) }

// Borrowed wraps a string valid only for the duration of the recording call,
// e.g. a view over a reused buffer.  Copied on first key insertion.
func Borrowed(s string) Str { return flexstr.Borrowed(s) }

// Owned wraps a runtime-built string.  Copied on first key insertion.
func Owned(s string) Str { return flexstr.Owned(s) }
