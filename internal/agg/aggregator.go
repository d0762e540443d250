// aggregator.go assembles one *generation* of aggregation state: the three
// sharded maps (counters, gauges, histograms — one map per value variant,
// never mixed), the per-precision histogram cell pools, and the reference
// count backing the double-buffered handoff to the flush worker.
//
// Reference discipline
// --------------------
// Recorders never hold an aggregator across blocking operations; they
// acquire, update one shard, and release.  The flush worker swaps the shared
// pointer and then waits for the refcount to drain before treating the
// snapshot as exclusively owned.  At most two generations exist at any time:
// the current one and the pending/available one being drained or recycled.
//
// © 2025 statline authors. MIT License.

package agg

import (
	"sync/atomic"

	"github.com/statline/statline/internal/histpool"
)

// Gauge accumulates a sum and an observation count; the flush emits the
// integer average.  Updates are atomic so the gauge path can run under a
// shard's shared lock.
type Gauge struct {
	Sum   atomic.Uint64
	Count atomic.Uint64
}

// Aggregator is one complete sharded-map triple used during one flush
// window, plus the cell pools its histogram map draws from.
type Aggregator struct {
	Counts     *Map[*atomic.Uint64]
	Gauges     *Map[*Gauge]
	Histograms *Map[*histpool.Cell]

	pools *histpool.Pools
	refs  atomic.Int64
}

// NewAggregator constructs an empty generation with fresh pools.
func NewAggregator() *Aggregator {
	return &Aggregator{
		Counts:     NewMap[*atomic.Uint64](),
		Gauges:     NewMap[*Gauge](),
		Histograms: NewMap[*histpool.Cell](),
		pools:      histpool.NewPools(),
	}
}

// Cell draws a histogram cell of the given precision class from the pools.
func (a *Aggregator) Cell(p histpool.Precision) *histpool.Cell {
	return a.pools.Get(p)
}

// Recycle returns an evicted histogram cell to its pool bucket.
func (a *Aggregator) Recycle(c *histpool.Cell) {
	a.pools.Put(c)
}

// Acquire registers a recorder reference.  Callers pair it with Release and
// re-check the shared pointer after acquiring (see Collector) so a swap
// concurrent with the load is detected.
func (a *Aggregator) Acquire() {
	a.refs.Add(1)
}

// Release drops a recorder reference.
func (a *Aggregator) Release() {
	a.refs.Add(-1)
}

// Idle reports whether no recorder currently holds a reference.  Once the
// shared pointer no longer exposes this aggregator, Idle()==true is stable
// and the flush worker owns the snapshot exclusively.
func (a *Aggregator) Idle() bool {
	return a.refs.Load() == 0
}
