package statline

// writer.go re-exports the serialization contract so user code can supply a
// custom sink (WriterCustom) or capture rendered datagrams in tests without
// reaching into internal packages.
//
// © 2025 statline authors. MIT License.

import "github.com/statline/statline/internal/wire"

// LineWriter is the contract every serialization backend implements.  A
// custom implementation receives fully decomposed lines and owns datagram
// packing; see the wire-format notes on Write for the exact byte layout.
//
// MetricCopied governs string lifetimes: when it reports false, every string
// passed to Write must remain valid until the next Flush returns — the flush
// worker interns value strings accordingly.
type LineWriter = wire.LineWriter

// CaptureWriter is an in-memory LineWriter collecting rendered datagrams;
// intended for tests, examples and tooling.
type CaptureWriter = wire.CaptureWriter

// NewCaptureWriter constructs a CaptureWriter with the given prefix and
// packet bound.
func NewCaptureWriter(prefix string, maxPacket uint16) *CaptureWriter {
	return wire.NewCaptureWriter(prefix, maxPacket)
}

// ErrOversizedLine marks a single serialized line exceeding the maximum UDP
// packet size; the line is dropped and logged, the flush continues.
var ErrOversizedLine = wire.ErrOversizedLine

// ErrWriterUnavailable marks a platform-specific writer requested on the
// wrong GOOS.
var ErrWriterUnavailable = wire.ErrWriterUnavailable

// ErrIPv6NotSupported marks an AppleBatch writer constructed against an IPv6
// destination.
var ErrIPv6NotSupported = wire.ErrIPv6NotSupported
