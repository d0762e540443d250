// transmit.go holds the Transmit building block of the batched writers: a
// queued datagram being assembled as a vector of borrowed byte slices prior
// to a single syscall.  Pushing a slice never copies; the backing strings
// (prefix, key metric/tags, arena-interned values) are guaranteed by the
// flush worker to outlive the send.
//
// © 2025 statline authors. MIT License.

package wire

import "github.com/statline/statline/internal/unsafehelpers"

// Transmit accumulates iovec parts for one datagram, bounded by the maximum
// UDP packet size.
type Transmit struct {
	parts     [][]byte
	length    int
	maxPacket int
}

// NewTransmit constructs an empty transmit for the given packet bound.
func NewTransmit(maxPacket uint16) *Transmit {
	return &Transmit{
		parts:     make([][]byte, 0, 64),
		maxPacket: int(maxPacket),
	}
}

// Fits reports whether n more bytes stay within the packet bound.
func (t *Transmit) Fits(n int) bool {
	return t.length+n <= t.maxPacket
}

// PushString appends a read-only view of s without copying.
func (t *Transmit) PushString(s string) {
	if len(s) == 0 {
		return
	}
	t.parts = append(t.parts, unsafehelpers.StringToBytes(s))
	t.length += len(s)
}

// Len returns the assembled datagram size in bytes.
func (t *Transmit) Len() int { return t.length }

// Buffers exposes the iovec vector for submission.
func (t *Transmit) Buffers() [][]byte { return t.parts }

// Reset clears the vector for reuse.
func (t *Transmit) Reset() {
	clear(t.parts)
	t.parts = t.parts[:0]
	t.length = 0
}
