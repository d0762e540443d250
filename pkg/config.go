package statline

// config.go defines the internal configuration object and the set of
// functional options that can be passed to New.  All knobs are immutable
// once the Collector is constructed — there is no live reconfiguration, on
// purpose: hot-reload of flush intervals or writer backends would complicate
// the double-buffer correctness argument for no practical gain.
//
// Design notes
// ------------
// • All fields are initialised with sensible defaults in defaultConfig().
// • Options never allocate unless strictly necessary – they just capture
//   pointers to external objects (registry, logger …).
// • The struct is hidden from the public API: users can only influence
//   behaviour via Option.  This guarantees forward compatibility.
//
// © 2025 statline authors. MIT License.

import (
	"errors"
	"math/rand/v2"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/statline/statline/internal/histpool"
	"github.com/statline/statline/internal/wire"
)

// Precision is the significant-figures class of an HDR histogram (0..=5).
type Precision = histpool.Precision

// DefaultPrecision is used for metrics without an explicit histogram
// configuration.
const DefaultPrecision = histpool.DefaultPrecision

// WriterType selects the serialization backend used by the flush worker.
type WriterType uint8

const (
	// WriterSimple is the portable single-send writer.  The default.
	WriterSimple WriterType = iota
	// WriterLinuxBatch submits queued datagrams in one sendmmsg call.
	// Linux only.
	WriterLinuxBatch
	// WriterAppleBatch uses the macOS batched datagram path.  macOS only,
	// IPv4 destinations only.
	WriterAppleBatch
	// WriterCustom routes lines to a user-supplied LineWriter; no UDP
	// socket is bound.
	WriterCustom
)

// config bundles every knob that influences collector behaviour.
type config struct {
	maxPacketSize uint16
	maxBatchSize  uint32
	flushInterval time.Duration
	prefix        string

	writerType   WriterType
	customWriter wire.LineWriter

	histogramConfigs map[string]Precision
	defaultPrecision Precision

	hashSeed uint64

	// optional knobs
	logger   *zap.Logger
	registry *prometheus.Registry
}

func defaultConfig() *config {
	return &config{
		maxPacketSize:    1432, // safe MTU recommendation
		maxBatchSize:     10,
		flushInterval:    10 * time.Second,
		writerType:       WriterSimple,
		histogramConfigs: make(map[string]Precision),
		defaultPrecision: DefaultPrecision,
		hashSeed:         rand.Uint64(),
		logger:           zap.NewNop(),
		registry:         nil, // user must opt in to telemetry
	}
}

// Option is a functional option passed to New.
type Option func(*config)

// WithMaxPacketSize bounds a single datagram in bytes.  1432 is the
// recommended value for typical MTUs.
func WithMaxPacketSize(n uint16) Option {
	return func(c *config) { c.maxPacketSize = n }
}

// WithMaxBatchSize bounds the number of datagrams queued per batched send.
func WithMaxBatchSize(n uint32) Option {
	return func(c *config) { c.maxBatchSize = n }
}

// WithFlushInterval sets the aggregation window length.
func WithFlushInterval(d time.Duration) Option {
	return func(c *config) { c.flushInterval = d }
}

// WithPrefix prepends the string verbatim to every metric name.  Include a
// trailing dot if desired ("myapp." yields "myapp.metric").
func WithPrefix(p string) Option {
	return func(c *config) { c.prefix = p }
}

// WithWriter selects a built-in serialization backend.
func WithWriter(t WriterType) Option {
	return func(c *config) { c.writerType = t }
}

// WithCustomWriter installs a user-supplied LineWriter and implies
// WriterCustom.
func WithCustomWriter(w LineWriter) Option {
	return func(c *config) {
		c.writerType = WriterCustom
		c.customWriter = w
	}
}

// WithHistogramPrecision sets the precision class for one metric name.  The
// lookup happens once, on the key's first insertion.
func WithHistogramPrecision(metric string, p Precision) Option {
	return func(c *config) { c.histogramConfigs[metric] = p }
}

// WithDefaultPrecision sets the precision class used when a metric has no
// explicit configuration.
func WithDefaultPrecision(p Precision) Option {
	return func(c *config) { c.defaultPrecision = p }
}

// WithHashSeed fixes the seed mixed into key hashing.  The default is
// randomized per collector.
func WithHashSeed(seed uint64) Option {
	return func(c *config) { c.hashSeed = seed }
}

// WithLogger plugs an external zap.Logger.  On the recording path the
// collector logs only a histogram value that cannot be recorded; everything
// else is flush-time events and errors.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithTelemetry enables Prometheus self-telemetry for the flush pipeline.
// Passing nil disables it (default).
func WithTelemetry(reg *prometheus.Registry) Option {
	return func(c *config) { c.registry = reg }
}

/*
   ---------------- Validation ----------------
*/

var (
	errInvalidPacketSize = errors.New("statline: max packet size must be > 0")
	errInvalidBatchSize  = errors.New("statline: max batch size must be > 0")
	errInvalidInterval   = errors.New("statline: flush interval must be > 0")
	errMissingWriter     = errors.New("statline: WriterCustom requires a LineWriter")
)

// validate checks invariants common to every writer type; per-platform
// writer availability is checked at construction in New.
func (c *config) validate() error {
	if c.maxPacketSize == 0 {
		return errInvalidPacketSize
	}
	if c.maxBatchSize == 0 {
		return errInvalidBatchSize
	}
	if c.flushInterval <= 0 {
		return errInvalidInterval
	}
	if c.writerType == WriterCustom && c.customWriter == nil {
		return errMissingWriter
	}
	if c.defaultPrecision > histpool.MaxPrecision {
		return histpool.ErrInvalidPrecision
	}
	for _, p := range c.histogramConfigs {
		if p > histpool.MaxPrecision {
			return histpool.ErrInvalidPrecision
		}
	}
	return nil
}
