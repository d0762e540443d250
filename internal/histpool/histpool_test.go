package histpool

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPrecision(t *testing.T) {
	for v := uint8(0); v <= MaxPrecision; v++ {
		p, err := NewPrecision(v)
		require.NoError(t, err)
		require.Equal(t, Precision(v), p)
	}
	_, err := NewPrecision(6)
	require.ErrorIs(t, err, ErrInvalidPrecision)
	_, err = NewPrecision(255)
	require.ErrorIs(t, err, ErrInvalidPrecision)
}

func TestCellRecordTracksExtrema(t *testing.T) {
	p := NewPools()
	c := p.Get(DefaultPrecision)

	for _, v := range []uint64{100, 200, 150, 300} {
		require.NoError(t, c.Record(v))
	}
	require.Equal(t, uint64(4), c.Count())
	require.Equal(t, uint64(100), c.Min())
	require.Equal(t, uint64(300), c.Max())

	p50 := c.ValueAtPercentile(50)
	p99 := c.ValueAtPercentile(99)
	require.GreaterOrEqual(t, p50, uint64(100))
	require.LessOrEqual(t, p50, uint64(300))
	require.GreaterOrEqual(t, p99, uint64(100))
	require.LessOrEqual(t, p99, uint64(300))
}

func TestCellRecordOutOfBounds(t *testing.T) {
	p := NewPools()
	c := p.Get(DefaultPrecision)
	require.Error(t, c.Record(math.MaxUint64))
	require.Equal(t, uint64(0), c.Count())
}

func TestCellReset(t *testing.T) {
	p := NewPools()
	c := p.Get(2)
	require.NoError(t, c.Record(42))
	c.Reset()
	require.Equal(t, uint64(0), c.Count())
	require.Equal(t, uint64(math.MaxUint64), c.Min())
	require.Equal(t, uint64(0), c.Max())
}

func TestPoolsRecycleByClass(t *testing.T) {
	p := NewPools()
	c := p.Get(2)
	require.Equal(t, Precision(2), c.Precision())
	require.NoError(t, c.Record(7))

	p.Put(c)
	got := p.Get(2)
	// Recycled cells come back cleared and in the same class.
	require.Equal(t, Precision(2), got.Precision())
	require.Equal(t, uint64(0), got.Count())
}

func TestPoolsZeroPrecisionClass(t *testing.T) {
	p := NewPools()
	c := p.Get(0)
	require.Equal(t, Precision(0), c.Precision())
	require.NoError(t, c.Record(1))
	require.Equal(t, uint64(1), c.Count())
}
