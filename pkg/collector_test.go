package statline

// collector_test.go exercises the end-to-end aggregation scenarios through a
// capture writer: counter totals, gauge averaging, histogram rollups, tag
// normalization, prefixing, zero-suppression eviction and shutdown
// semantics.  Most tests use an hour-long flush interval and rely on the
// shutdown-triggered final flush, so exactly one aggregation window is
// observed, deterministically.

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/statline/statline/internal/unsafehelpers"
)

// flushOnce records through a fresh collector and returns the lines of its
// single (shutdown-driven) flush.
func flushOnce(t *testing.T, prefix string, record func(c *Collector), opts ...Option) []string {
	t.Helper()
	w := NewCaptureWriter(prefix, 1432)
	opts = append(opts,
		WithCustomWriter(w),
		WithFlushInterval(time.Hour),
	)
	c, err := New("", "", opts...)
	require.NoError(t, err)
	record(c)
	c.Shutdown()
	return w.Lines()
}

// findLine returns the unique line for the given metric name.
func findLine(t *testing.T, lines []string, metric string) string {
	t.Helper()
	found := ""
	for _, line := range lines {
		if strings.HasPrefix(line, metric+":") {
			require.Empty(t, found, "duplicate line for %s", metric)
			found = line
		}
	}
	require.NotEmpty(t, found, "no line for %s in %v", metric, lines)
	return found
}

func TestCounterAggregation(t *testing.T) {
	lines := flushOnce(t, "", func(c *Collector) {
		tags := []Str{Static("page:home")}
		c.Count(Static("page.views"), tags)
		c.Count(Static("page.views"), tags)
		c.Count(Static("page.views"), tags)
	})
	require.Equal(t, "page.views:3|c|#page:home", findLine(t, lines, "page.views"))
}

func TestCountAdd(t *testing.T) {
	lines := flushOnce(t, "", func(c *Collector) {
		c.CountAdd(Static("bytes.sent"), 1024, []Str{Static("endpoint:api")})
		c.CountAdd(Static("bytes.sent"), 512, []Str{Static("endpoint:api")})
	})
	require.Equal(t, "bytes.sent:1536|c|#endpoint:api", findLine(t, lines, "bytes.sent"))
}

func TestTagSortNormalizesIdentity(t *testing.T) {
	lines := flushOnce(t, "", func(c *Collector) {
		c.Count(Static("multi"), []Str{
			Static("tag3:v3"), Static("tag1:v1"), Static("tag2:v2"),
		})
	})
	require.Equal(t, "multi:1|c|#tag1:v1,tag2:v2,tag3:v3", findLine(t, lines, "multi"))
}

func TestTagOrderIrrelevance(t *testing.T) {
	lines := flushOnce(t, "", func(c *Collector) {
		c.Count(Static("ordered"), []Str{Static("a:1"), Static("b:2")})
		c.Count(Static("ordered"), []Str{Static("b:2"), Static("a:1")})
	})
	require.Equal(t, "ordered:2|c|#a:1,b:2", findLine(t, lines, "ordered"))
}

func TestGaugeAveraging(t *testing.T) {
	lines := flushOnce(t, "", func(c *Collector) {
		tags := []Str{Static("pool:main")}
		c.Gauge(Static("connections"), 10, tags)
		c.Gauge(Static("connections"), 20, tags)
		c.Gauge(Static("connections"), 31, tags)
	})
	// floor((10+20+31)/3) == 20
	require.Equal(t, "connections:20|g|#pool:main", findLine(t, lines, "connections"))
}

func TestHistogramRollup(t *testing.T) {
	lines := flushOnce(t, "", func(c *Collector) {
		tags := []Str{Static("endpoint:/users")}
		for _, v := range []uint64{100, 200, 150, 300} {
			c.Histogram(Static("request.duration"), v, tags)
		}
	})

	require.Equal(t, "request.duration.count:4|c|#endpoint:/users",
		findLine(t, lines, "request.duration.count"))
	require.Equal(t, "request.duration.min:100|g|#endpoint:/users",
		findLine(t, lines, "request.duration.min"))
	require.Equal(t, "request.duration.max:300|g|#endpoint:/users",
		findLine(t, lines, "request.duration.max"))

	for _, suffix := range []string{".avg", ".99percentile"} {
		line := findLine(t, lines, "request.duration"+suffix)
		v := parseValue(t, line)
		require.GreaterOrEqual(t, v, uint64(100), "line %q", line)
		require.LessOrEqual(t, v, uint64(300), "line %q", line)
		require.True(t, strings.HasSuffix(line, "|g|#endpoint:/users"))
	}
}

func TestPrefixIsVerbatim(t *testing.T) {
	lines := flushOnce(t, "app.", func(c *Collector) {
		c.Count(Static("errors"), []Str{Static("type:500")})
	})
	require.Equal(t, "app.errors:1|c|#type:500", findLine(t, lines, "app.errors"))
}

func TestNoTagLineOmitsSection(t *testing.T) {
	lines := flushOnce(t, "", func(c *Collector) {
		c.Count(Static("heartbeat"), nil)
	})
	require.Equal(t, "heartbeat:1|c", findLine(t, lines, "heartbeat"))
}

func TestConvenienceHelpers(t *testing.T) {
	lines := flushOnce(t, "", func(c *Collector) {
		c.CountTags("helper.count", "a:1")
		c.CountAddTags("helper.add", 5, "a:1")
		c.GaugeTags("helper.gauge", 9)
		c.HistogramTags("helper.hist", 40, "a:1")
	})
	require.Equal(t, "helper.count:1|c|#a:1", findLine(t, lines, "helper.count"))
	require.Equal(t, "helper.add:5|c|#a:1", findLine(t, lines, "helper.add"))
	require.Equal(t, "helper.gauge:9|g", findLine(t, lines, "helper.gauge"))
	require.Equal(t, "helper.hist.count:1|c|#a:1", findLine(t, lines, "helper.hist.count"))
}

func TestHistogramPrecisionConfigIsHonored(t *testing.T) {
	lines := flushOnce(t, "", func(c *Collector) {
		c.Histogram(Static("precise"), 12345, nil)
		c.Histogram(Static("coarse"), 12345, nil)
	},
		WithHistogramPrecision("precise", 5),
		WithDefaultPrecision(1),
	)
	require.Equal(t, "precise.count:1|c", findLine(t, lines, "precise.count"))
	require.Equal(t, "coarse.count:1|c", findLine(t, lines, "coarse.count"))
	// Exact extrema are tracked outside the HDR buckets, so even the coarse
	// class reports them precisely.
	require.Equal(t, "coarse.min:12345|g", findLine(t, lines, "coarse.min"))
	require.Equal(t, "coarse.max:12345|g", findLine(t, lines, "coarse.max"))
	// The avg line comes from the HDR buckets, so it shows the class: exact
	// at precision 5, widened to the bucket's upper edge at precision 1.
	require.Equal(t, "precise.avg:12345|g", findLine(t, lines, "precise.avg"))
	require.NotEqual(t, "coarse.avg:12345|g", findLine(t, lines, "coarse.avg"))
}

func TestBorrowedTagsDoNotAliasCallerBuffer(t *testing.T) {
	buf := []byte("tag:original")
	lines := flushOnce(t, "", func(c *Collector) {
		c.Count(Static("borrowed"), []Str{Borrowed(unsafehelpers.BytesToString(buf))})
		// A Borrowed value is promoted by copy at insertion, so mutating the
		// caller's storage afterwards must not leak into the emitted line.
		copy(buf, "tag:mutated!")
	})
	require.Equal(t, "borrowed:1|c|#tag:original", findLine(t, lines, "borrowed"))
}

func TestZeroSuppressionEviction(t *testing.T) {
	const interval = 50 * time.Millisecond
	w := NewCaptureWriter("", 1432)
	c, err := New("", "",
		WithCustomWriter(w),
		WithFlushInterval(interval),
	)
	require.NoError(t, err)

	c.Count(Static("once"), []Str{Static("k:v")})

	// Wait for the first emission, then let several empty windows pass: the
	// key must emit nothing further and be garbage-collected.
	require.Eventually(t, func() bool {
		return len(w.Lines()) > 0
	}, 5*time.Second, 5*time.Millisecond)
	time.Sleep(5 * interval)
	c.Shutdown()

	count := 0
	for _, line := range w.Lines() {
		if strings.HasPrefix(line, "once:") {
			count++
		}
	}
	require.Equal(t, 1, count, "evicted key emitted again")
}

func TestShutdownFlushesAndIsIdempotent(t *testing.T) {
	w := NewCaptureWriter("", 1432)
	c, err := New("", "",
		WithCustomWriter(w),
		// Long interval: only the shutdown-triggered final flush can emit.
		WithFlushInterval(time.Hour),
	)
	require.NoError(t, err)

	c.Count(Static("final"), []Str{Static("k:v")})
	c.Shutdown()
	c.Shutdown() // second call is a no-op

	require.Contains(t, w.Lines(), "final:1|c|#k:v",
		"final flush lost the pre-shutdown recording")
}

func TestConfigValidation(t *testing.T) {
	_, err := New("", "", WithCustomWriter(NewCaptureWriter("", 1432)), WithMaxPacketSize(0))
	require.ErrorIs(t, err, errInvalidPacketSize)

	_, err = New("", "", WithCustomWriter(NewCaptureWriter("", 1432)), WithMaxBatchSize(0))
	require.ErrorIs(t, err, errInvalidBatchSize)

	_, err = New("", "", WithCustomWriter(NewCaptureWriter("", 1432)), WithFlushInterval(0))
	require.ErrorIs(t, err, errInvalidInterval)

	_, err = New("", "", WithWriter(WriterCustom))
	require.ErrorIs(t, err, errMissingWriter)

	_, err = New("", "",
		WithCustomWriter(NewCaptureWriter("", 1432)),
		WithDefaultPrecision(6))
	require.Error(t, err)

	_, err = New("", "",
		WithCustomWriter(NewCaptureWriter("", 1432)),
		WithHistogramPrecision("m", 9))
	require.Error(t, err)
}

func TestHashSeedKeepsIdentitiesApart(t *testing.T) {
	lines := flushOnce(t, "", func(c *Collector) {
		c.Count(Static("seeded"), []Str{Static("a:1")})
		c.Count(Static("seeded"), []Str{Static("a:2")})
	}, WithHashSeed(12345))
	require.Contains(t, lines, "seeded:1|c|#a:1")
	require.Contains(t, lines, "seeded:1|c|#a:2")
}

func parseValue(t *testing.T, line string) uint64 {
	t.Helper()
	colon := strings.IndexByte(line, ':')
	bar := strings.IndexByte(line, '|')
	require.True(t, colon > 0 && bar > colon, "malformed line %q", line)
	v, err := strconv.ParseUint(line[colon+1:bar], 10, 64)
	require.NoError(t, err)
	return v
}
