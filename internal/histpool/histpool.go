// Package histpool wraps HDR histograms in the bounded aggregation cell used
// by statline's histogram map, and pools cells by precision class so the
// flush worker can recycle them across aggregation windows instead of
// re-allocating the (large) underlying bucket arrays.
//
// A *precision class* is the significant-figures parameter of an HDR
// histogram (0..=5) controlling bucket density.  There is exactly one pool
// bucket per class; cells always return to the bucket they were drawn from.
//
// Concurrency model
// -----------------
// Cell is NOT safe for concurrent use — the owning shard's exclusive lock
// serialises all Record calls (histogram cells are not atomic).  Pools is
// safe for any number of goroutines: buckets are sync.Pool instances, the
// runtime's lock-free per-P free lists.
//
// © 2025 statline authors. MIT License.

package histpool

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// MaxPrecision is the largest valid precision class.
const MaxPrecision = 5

// DefaultPrecision is the precision class used when a metric has no explicit
// configuration.
const DefaultPrecision = Precision(3)

// poolCount is the number of pool buckets: one per precision class 0..=5.
const poolCount = MaxPrecision + 1

// ErrInvalidPrecision is returned when a precision class exceeds MaxPrecision.
var ErrInvalidPrecision = errors.New("histpool: precision must be 0, 1, 2, 3, 4 or 5")

// Precision is the significant-figures class of an HDR histogram (0..=5).
// Higher values increase percentile accuracy but also memory usage.
type Precision uint8

// NewPrecision validates value and returns it as a Precision.
func NewPrecision(value uint8) (Precision, error) {
	if value > MaxPrecision {
		return 0, fmt.Errorf("%w: got %d", ErrInvalidPrecision, value)
	}
	return Precision(value), nil
}

// Cell is a single histogram aggregation value: an HDR histogram plus exact
// min/max tracking.  HDR buckets are lossy within a bucket; the extrema are
// kept alongside so `.min`/`.max` lines are exact.
type Cell struct {
	min       uint64
	max       uint64
	hist      *hdrhistogram.Histogram
	precision Precision
}

// newCell allocates a cell with the fixed value range [1, math.MaxInt64] at
// the given precision.  The Go HDR implementation is int64-valued, so the
// upper bound is MaxInt64 rather than the full uint64 range; values beyond
// it fail to record.  It also requires at least one significant figure, so
// precision class 0 shares class 1's bucket granularity while keeping its
// own pool bucket.
func newCell(p Precision) *Cell {
	sigfigs := int(p)
	if sigfigs < 1 {
		sigfigs = 1
	}
	return &Cell{
		min:       math.MaxUint64,
		max:       0,
		hist:      hdrhistogram.New(1, math.MaxInt64, sigfigs),
		precision: p,
	}
}

// Record adds value to the distribution and updates the extrema.  Must be
// called under the owning shard's exclusive lock.
func (c *Cell) Record(value uint64) error {
	if value > math.MaxInt64 {
		return fmt.Errorf("histpool: value %d exceeds histogram bounds", value)
	}
	if value < c.min {
		c.min = value
	}
	if value > c.max {
		c.max = value
	}
	return c.hist.RecordValue(int64(value))
}

// Count returns the number of recorded values in the current window.
func (c *Cell) Count() uint64 { return uint64(c.hist.TotalCount()) }

// Min returns the exact minimum recorded value.  Meaningless when Count==0.
func (c *Cell) Min() uint64 { return c.min }

// Max returns the exact maximum recorded value.  Meaningless when Count==0.
func (c *Cell) Max() uint64 { return c.max }

// ValueAtPercentile returns the HDR-approximated value at percentile p
// (0..100].  Not linearizable against individual Record calls.
func (c *Cell) ValueAtPercentile(p float64) uint64 {
	return uint64(c.hist.ValueAtQuantile(p))
}

// Precision returns the cell's pool class.
func (c *Cell) Precision() Precision { return c.precision }

// Reset clears the distribution and extrema, keeping the allocated buckets.
func (c *Cell) Reset() {
	c.min = math.MaxUint64
	c.max = 0
	c.hist.Reset()
}

// Pools is the per-precision free list of cells.  The zero value is not
// usable; construct with NewPools.
type Pools struct {
	buckets [poolCount]sync.Pool
}

// NewPools constructs an empty pool set.
func NewPools() *Pools {
	return &Pools{}
}

// Get returns a cleared cell of the given precision class, reusing a pooled
// one when available and allocating otherwise.
func (p *Pools) Get(class Precision) *Cell {
	if v := p.buckets[class].Get(); v != nil {
		return v.(*Cell)
	}
	return newCell(class)
}

// Put clears the cell and returns it to the bucket of its precision class.
func (p *Pools) Put(c *Cell) {
	c.Reset()
	p.buckets[c.precision].Put(c)
}
