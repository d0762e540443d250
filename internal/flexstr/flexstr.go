// Package flexstr provides the polymorphic string carrier used for metric
// names and tags throughout statline.  A String records *where its bytes came
// from* — a program‑lifetime literal, a caller‑scoped borrow, or a
// runtime‑owned string — and that provenance alone decides whether promoting
// the value into an aggregation key allocates.
//
// Choosing the right constructor:
//
//	┌──────────┬──────────────────────────────────────┬────────────────┐
//	│ Variant  │ When to use                          │ Promote() cost │
//	├──────────┼──────────────────────────────────────┼────────────────┤
//	│ Static   │ compile‑time literals                │ zero‑copy      │
//	│ Borrowed │ views over reused/short‑lived buffers│ copies         │
//	│ Owned    │ runtime‑built strings                │ copies         │
//	└──────────┴──────────────────────────────────────┴────────────────┘
//
// Equality and ordering are defined over byte content only, never over the
// provenance tag.  For best performance use Static whenever the string is
// known at compile time: the aggregator then stores new keys without copying
// the string bytes.
//
// © 2025 statline authors. MIT License.

package flexstr

import (
	"strings"

	"github.com/statline/statline/internal/unsafehelpers"
)

// Provenance tags the origin of a String's bytes.
type Provenance uint8

const (
	// ProvStatic marks a program‑lifetime literal.
	ProvStatic Provenance = iota
	// ProvBorrowed marks a caller‑scoped string; it may alias a buffer the
	// caller reuses after the recording call returns.
	ProvBorrowed
	// ProvOwned marks a runtime‑produced string handed to the library.
	ProvOwned
)

// String is a string plus its provenance.  The zero value is an empty
// Static string.
type String struct {
	s    string
	prov Provenance
}

// Static wraps a compile‑time literal.  The caller promises the string lives
// for the whole program; in exchange Promote never copies it.
func Static(s string) String {
	return String{s: s, prov: ProvStatic}
}

// Borrowed wraps a string whose lifetime is only guaranteed to dominate the
// recording call it is passed to.  Typical source: an unsafe view over a
// reused []byte buffer.
func Borrowed(s string) String {
	return String{s: s, prov: ProvBorrowed}
}

// Owned wraps a runtime‑built string.
func Owned(s string) String {
	return String{s: s, prov: ProvOwned}
}

// Str returns the underlying string.  Valid for the same lifetime as the
// source the String was built from.
func (f String) Str() string { return f.s }

// Bytes returns a read‑only byte view of the content without copying.
func (f String) Bytes() []byte { return unsafehelpers.StringToBytes(f.s) }

// Len returns the byte length of the content.
func (f String) Len() int { return len(f.s) }

// Provenance returns the origin tag.
func (f String) Provenance() Provenance { return f.prov }

// Promote converts the value into a string safe to retain for the program's
// lifetime.  Static is returned as‑is (zero‑copy — the whole point of
// accepting literals); Borrowed and Owned are cloned so a key never aliases
// caller storage.
func (f String) Promote() string {
	if f.prov == ProvStatic {
		return f.s
	}
	return strings.Clone(f.s)
}

// Equal reports byte equality of the contents, ignoring provenance.
func (f String) Equal(other String) bool { return f.s == other.s }

// Compare orders two values byte‑wise, ignoring provenance.  Used for the
// in‑place tag sort on the recording hot path.
func Compare(a, b String) int { return strings.Compare(a.s, b.s) }
