package statline

// job.go is the flush worker: a single long-lived goroutine owning the
// double-buffer swap protocol, the drain/serialize/evict cycle and the
// transport writer.
//
// Swap protocol
// -------------
// When a flush is due the worker publishes a fresh (or recycled) Aggregator
// into the shared slot and captures the previous one as *pending*.  It then
// polls on a short fast tick until no recorder reference to the pending
// snapshot remains, at which point the snapshot is exclusively owned and can
// be drained without locks.  The drained aggregator parks in the *available*
// slot for the next swap, so at most two generations ever exist.
//
// There is no hard ceiling on the drain wait: a recorder reference leaked
// across a blocking operation would stall the worker forever.  The worker
// logs a warning once the wait becomes suspicious but deliberately does not
// time out.
//
// Value rendering
// ---------------
// Integer-to-decimal conversion targets a reusable scratch buffer when the
// writer copies line bytes on Write; otherwise the digits are interned in a
// per-flush chunked arena so the slices stay valid until the vectored send,
// and the arena is reset afterwards.
//
// © 2025 statline authors. MIT License.

import (
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/statline/statline/internal/agg"
	"github.com/statline/statline/internal/histpool"
	"github.com/statline/statline/internal/unsafehelpers"
	"github.com/statline/statline/internal/wire"
)

const (
	// fastPollInterval is the drain-poll period while waiting for recorder
	// references to drop.
	fastPollInterval = 10 * time.Millisecond

	// drainWarnAfter is the number of consecutive failed drain polls before
	// the worker logs a warning (~5s at the fast poll rate).
	drainWarnAfter = 500
)

// Histogram rollup suffixes; .count is a counter, the rest are gauges.
const (
	suffixCount = ".count"
	suffixMin   = ".min"
	suffixAvg   = ".avg"
	suffixP99   = ".99percentile"
	suffixMax   = ".max"
)

type job struct {
	c      *Collector
	writer wire.LineWriter
	copied bool

	// pending holds a swapped-out aggregator until its references drain;
	// available holds the drained one for reuse on the next swap.  Together
	// with the published generation these are the only two that ever exist.
	pending   *agg.Aggregator
	available *agg.Aggregator

	removeKeys []agg.RemoveKey
	values     *numArena
	scratch    [20]byte
	segs       [2]string
}

// runJob is the worker body; it exits after the final flush following a
// shutdown signal.
func (c *Collector) runJob(writer wire.LineWriter, flushInterval time.Duration) {
	defer c.wg.Done()

	j := &job{
		c:      c,
		writer: writer,
		copied: writer.MetricCopied(),
		values: newNumArena(),
	}

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()
	fast := time.NewTicker(fastPollInterval)
	defer fast.Stop()

	finish := false
	for {
		select {
		case <-ticker.C:
		case <-c.done:
			finish = true
		}

		for polls := 0; ; polls++ {
			if j.sendMetrics() {
				break
			}
			if polls == drainWarnAfter {
				c.log.Warn("aggregator drain is taking unusually long; a recorder reference may be stuck")
			}
			<-fast.C
		}
		if finish {
			return
		}
	}
}

// sendMetrics advances the swap state machine one step.  Returns true once a
// full swap+drain cycle has completed.
func (j *job) sendMetrics() bool {
	if j.pending == nil {
		fresh := j.available
		if fresh == nil {
			fresh = agg.NewAggregator()
		}
		j.available = nil
		j.pending = j.c.current.Swap(fresh)
		return false
	}
	if !j.pending.Idle() {
		return false
	}

	j.process(j.pending)
	j.available = j.pending
	j.pending = nil
	return true
}

// process drains an exclusively-owned snapshot: render every live rollup,
// evict zero-contribution keys, flush the writer and recycle flush-local
// state.
func (j *job) process(a *agg.Aggregator) {
	defer j.writer.Reset()
	start := time.Now()

	j.processCounts(a.Counts)
	j.processGauges(a.Gauges)
	j.processHistograms(a)

	n, err := j.writer.Flush()
	if err != nil {
		j.c.log.Error("error sending metrics", zap.Error(err))
		j.c.telemetry.incSendError()
	}
	j.c.telemetry.addBytes(n)
	j.c.telemetry.incFlush(time.Since(start))
	j.values.reset()
}

func (j *job) processCounts(m *agg.Map[*atomic.Uint64]) {
	m.Range(func(k *agg.Key, v *atomic.Uint64) bool {
		value := v.Load()
		if value == 0 {
			j.removeKeys = append(j.removeKeys, k.Remover())
			return true
		}
		j.segs[0] = k.Metric
		j.emit(j.segs[:1], k.Tags.Joined, value, wire.TypeCount)
		v.Store(0)
		return true
	})
	for _, rk := range j.removeKeys {
		m.Remove(rk)
	}
	j.evicted(len(j.removeKeys))
	j.removeKeys = j.removeKeys[:0]
}

func (j *job) processGauges(m *agg.Map[*agg.Gauge]) {
	m.Range(func(k *agg.Key, g *agg.Gauge) bool {
		count := g.Count.Load()
		if count == 0 {
			j.removeKeys = append(j.removeKeys, k.Remover())
			return true
		}
		j.segs[0] = k.Metric
		j.emit(j.segs[:1], k.Tags.Joined, g.Sum.Load()/count, wire.TypeGauge)
		g.Sum.Store(0)
		g.Count.Store(0)
		return true
	})
	for _, rk := range j.removeKeys {
		m.Remove(rk)
	}
	j.evicted(len(j.removeKeys))
	j.removeKeys = j.removeKeys[:0]
}

func (j *job) processHistograms(a *agg.Aggregator) {
	m := a.Histograms
	m.Range(func(k *agg.Key, cell *histpool.Cell) bool {
		count := cell.Count()
		if count == 0 {
			j.removeKeys = append(j.removeKeys, k.Remover())
			return true
		}

		j.segs[0] = k.Metric
		joined := k.Tags.Joined

		j.segs[1] = suffixCount
		j.emit(j.segs[:2], joined, count, wire.TypeCount)
		j.segs[1] = suffixMin
		j.emit(j.segs[:2], joined, cell.Min(), wire.TypeGauge)
		j.segs[1] = suffixAvg
		j.emit(j.segs[:2], joined, cell.ValueAtPercentile(50), wire.TypeGauge)
		j.segs[1] = suffixP99
		j.emit(j.segs[:2], joined, cell.ValueAtPercentile(99), wire.TypeGauge)
		j.segs[1] = suffixMax
		j.emit(j.segs[:2], joined, cell.Max(), wire.TypeGauge)

		cell.Reset()
		return true
	})
	for _, rk := range j.removeKeys {
		if cell, ok := m.Remove(rk); ok {
			a.Recycle(cell)
		}
	}
	j.evicted(len(j.removeKeys))
	j.removeKeys = j.removeKeys[:0]
}

// emit renders one line; oversized lines are dropped with a warning, other
// writer errors are logged and the flush continues.
func (j *job) emit(metric []string, tags string, value uint64, metricType string) {
	if err := j.writer.Write(metric, tags, j.renderValue(value), metricType); err != nil {
		if errors.Is(err, wire.ErrOversizedLine) {
			j.c.log.Warn("dropping oversized metric line", zap.String("metric", metric[0]))
			j.c.telemetry.incDroppedLine()
			return
		}
		j.c.log.Warn("error writing metric line", zap.Error(err))
		j.c.telemetry.incSendError()
		return
	}
	j.c.telemetry.addLines(1)
}

// renderValue formats value into the reusable scratch when the writer copies,
// or into the flush arena when the bytes must survive until the send.
func (j *job) renderValue(v uint64) string {
	if j.copied {
		return unsafehelpers.BytesToString(strconv.AppendUint(j.scratch[:0], v, 10))
	}
	return j.values.internUint(v)
}

func (j *job) evicted(n int) {
	if n > 0 {
		j.c.telemetry.addEvicted(n)
	}
}

/*
   ---------------- Per-flush value arena ----------------
*/

// numArenaChunk is the allocation granule of the flush arena; a chunk holds
// a few hundred rendered values.
const numArenaChunk = 8 << 10

// numArena interns rendered decimal strings for the non-copying writers.
// Chunks are never grown in place, so previously returned views stay valid
// until reset.
type numArena struct {
	chunks [][]byte
	cur    []byte
}

func newNumArena() *numArena {
	return &numArena{cur: make([]byte, 0, numArenaChunk)}
}

// internUint appends the decimal form of v and returns a stable view of it.
func (a *numArena) internUint(v uint64) string {
	if cap(a.cur)-len(a.cur) < 20 {
		a.chunks = append(a.chunks, a.cur)
		a.cur = make([]byte, 0, numArenaChunk)
	}
	start := len(a.cur)
	a.cur = strconv.AppendUint(a.cur, v, 10)
	return unsafehelpers.BytesToString(a.cur[start:])
}

// reset discards interned values; the writer has flushed by now, so no view
// into the arena survives.
func (a *numArena) reset() {
	a.chunks = nil
	a.cur = a.cur[:0]
}
