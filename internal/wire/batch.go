// batch.go implements the vectored, non-copying writer shared by the Linux
// and Apple batched backends.  Lines are appended as discrete slice
// references into the current Transmit; full transmits queue up to the batch
// bound and Flush submits the whole queue in one batched send, recycling
// transmits through an internal free list.
//
// Because nothing is copied, the flush worker interns rendered values in its
// per-flush arena so their storage survives until the syscall; key metric
// and tag strings live as long as their map entries, and the flush worker
// evicts before the send only keys that wrote no line.
//
// © 2025 statline authors. MIT License.

package wire

import (
	"go.uber.org/zap"
	"golang.org/x/net/ipv4"
)

// BatchWriter is the shared body of the Linux and Apple batched writers.
// Construct through NewLinuxBatchWriter / NewAppleBatchWriter, which gate on
// platform availability.
type BatchWriter struct {
	transport Transport
	prefix    string
	maxPacket uint16
	maxBatch  int
	log       *zap.Logger

	current *Transmit
	queued  []*Transmit
	sent    int

	pool []*Transmit
	msgs []ipv4.Message
}

func newBatchWriter(t Transport, prefix string, maxBatch uint32, maxPacket uint16, log *zap.Logger) *BatchWriter {
	return &BatchWriter{
		transport: t,
		prefix:    prefix,
		maxPacket: maxPacket,
		maxBatch:  int(maxBatch),
		log:       log,
		current:   NewTransmit(maxPacket),
		queued:    make([]*Transmit, 0, maxBatch),
		pool:      make([]*Transmit, 0, maxBatch),
		msgs:      make([]ipv4.Message, 0, maxBatch),
	}
}

// MetricCopied reports false: every string handed to Write must stay valid
// until the next Flush returns.
func (w *BatchWriter) MetricCopied() bool { return false }

// Write appends one line as slice references, closing the current transmit
// when the line would overflow it.
func (w *BatchWriter) Write(metric []string, tags, value, metricType string) error {
	n := lineLen(w.prefix, metric, tags, value, metricType)
	if n > int(w.maxPacket) {
		return ErrOversizedLine
	}
	if !w.current.Fits(n) {
		w.queueCurrent()
	}

	w.current.PushString(w.prefix)
	for _, m := range metric {
		w.current.PushString(m)
	}
	w.current.PushString(":")
	w.current.PushString(value)
	w.current.PushString("|")
	w.current.PushString(metricType)
	if len(tags) > 0 {
		w.current.PushString("|#")
		w.current.PushString(tags)
	}
	w.current.PushString("\n")

	if len(w.queued) >= w.maxBatch {
		w.log.Warn("udp transmit queue full, flushing early",
			zap.Int("queued", len(w.queued)))
		if err := w.flushQueued(); err != nil {
			return err
		}
	}
	return nil
}

func (w *BatchWriter) queueCurrent() {
	var next *Transmit
	if n := len(w.pool); n > 0 {
		next = w.pool[n-1]
		w.pool = w.pool[:n-1]
	} else {
		next = NewTransmit(w.maxPacket)
	}
	w.queued = append(w.queued, w.current)
	w.current = next
}

func (w *BatchWriter) flushQueued() error {
	if len(w.queued) == 0 {
		return nil
	}
	w.msgs = w.msgs[:0]
	for _, t := range w.queued {
		w.msgs = append(w.msgs, ipv4.Message{Buffers: t.Buffers()})
	}
	n, err := w.transport.SendBatch(w.msgs)
	w.msgs = w.msgs[:0]
	for _, t := range w.queued {
		t.Reset()
		w.pool = append(w.pool, t)
	}
	w.queued = w.queued[:0]
	w.sent += n
	return err
}

// Flush queues the partial transmit, submits everything in one batched send
// and reports the bytes sent since the previous Flush (early sends forced by
// a full queue included).
func (w *BatchWriter) Flush() (int, error) {
	if w.current.Len() > 0 {
		w.queueCurrent()
	}
	err := w.flushQueued()
	n := w.sent
	w.sent = 0
	return n, err
}

// Reset discards queued and partial transmits, recycling them.
func (w *BatchWriter) Reset() {
	for _, t := range w.queued {
		t.Reset()
		w.pool = append(w.pool, t)
	}
	w.queued = w.queued[:0]
	w.current.Reset()
	w.msgs = w.msgs[:0]
	w.sent = 0
}
