// Package bench provides reproducible micro-benchmarks for statline.
// Run via:  go test ./bench -bench=. -benchmem -cpu 1,4,16
//
// The benchmarks intentionally use a single, fixed workload shape so results
// are comparable across versions:
//   • one metric name per variant (counter / gauge / histogram)
//   • two static tags, pre-sorted
//
// We measure:
//   1. CountHit        – counter hot path after warm-up (read-mostly)
//   2. GaugeHit        – gauge hot path after warm-up
//   3. HistogramHit    – histogram hot path (exclusive lock)
//   4. CountParallel   – highly concurrent counters (b.RunParallel)
//   5. CountOwnedKey   – owned-provenance helper (CountTags) cycling 256
//                        dynamic tags; only the first 256 calls miss
//
// Results are printed in ns/op + alloc/op so CI can diff via benchstat.
//
// NOTE: correctness tests live next to the packages; this file is *only*
// for performance.
//
// © 2025 statline authors. MIT License.

package bench

import (
	"strconv"
	"testing"
	"time"

	statline "github.com/statline/statline/pkg"
)

func newBenchCollector(b *testing.B) *statline.Collector {
	b.Helper()
	c, err := statline.New("", "",
		// A long interval keeps the flush worker out of the measurement.
		statline.WithFlushInterval(time.Hour),
		statline.WithCustomWriter(statline.NewCaptureWriter("", 1432)),
	)
	if err != nil {
		b.Fatalf("collector init: %v", err)
	}
	b.Cleanup(c.Shutdown)
	return c
}

func staticTags() []statline.Str {
	return []statline.Str{
		statline.Static("endpoint:api"),
		statline.Static("region:eu"),
	}
}

func BenchmarkCountHit(b *testing.B) {
	c := newBenchCollector(b)
	tags := staticTags()
	c.Count(statline.Static("bench.count"), tags) // warm-up insertion
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Count(statline.Static("bench.count"), tags)
	}
}

func BenchmarkGaugeHit(b *testing.B) {
	c := newBenchCollector(b)
	tags := staticTags()
	c.Gauge(statline.Static("bench.gauge"), 1, tags)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Gauge(statline.Static("bench.gauge"), uint64(i), tags)
	}
}

func BenchmarkHistogramHit(b *testing.B) {
	c := newBenchCollector(b)
	tags := staticTags()
	c.Histogram(statline.Static("bench.histogram"), 1, tags)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Histogram(statline.Static("bench.histogram"), uint64(i%1000+1), tags)
	}
}

func BenchmarkCountParallel(b *testing.B) {
	c := newBenchCollector(b)
	c.Count(statline.Static("bench.parallel"), staticTags())
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		tags := staticTags()
		for pb.Next() {
			c.Count(statline.Static("bench.parallel"), tags)
		}
	})
}

func BenchmarkCountOwnedKey(b *testing.B) {
	c := newBenchCollector(b)
	// Pre-build dynamic tag strings so the measurement captures the
	// recording path, not fmt.
	tags := make([]string, 256)
	for i := range tags {
		tags[i] = "worker:" + strconv.Itoa(i)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.CountTags("bench.owned", tags[i&255])
	}
}
