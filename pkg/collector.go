package statline

// collector.go is the public face of statline and the recording hot path.
// Application goroutines call the fire-and-forget recording operations;
// values are aggregated by identity (metric + sorted tag set) in the current
// Aggregator generation, and a single background worker periodically swaps
// the generation out, drains it and serializes rollups to the configured
// writer (see job.go).
//
// Hot-path discipline
// -------------------
// A recording call sorts the caller's tag slice IN PLACE (the deliberate
// trade that makes hashing deterministic without an allocated copy), hashes
// metric and tags once, and probes the matching shard.  Counters and gauges
// take the read-mostly route: shared lock + atomic update on a hit, lock
// upgrade with re-probe on a miss.  Histograms go straight to the exclusive
// lock since their cells are not atomic.  The hit path performs no heap
// allocation; the miss path materializes the key (promoting tags to owned
// storage) and, for histograms, draws a pooled cell.
//
// Recording operations never fail visibly and never block except on shard
// lock contention.
//
// © 2025 statline authors. MIT License.

import (
	"fmt"
	"io"
	"net"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/statline/statline/internal/agg"
	"github.com/statline/statline/internal/flexstr"
	"github.com/statline/statline/internal/histpool"
	"github.com/statline/statline/internal/wire"
)

// Collector aggregates metrics client-side and ships DogStatsD rollups from
// a background flush worker.  Safe for concurrent use by any number of
// goroutines.
type Collector struct {
	current atomic.Pointer[agg.Aggregator]

	seed             [8]byte
	histogramConfigs map[string]Precision
	defaultPrecision Precision

	log       *zap.Logger
	telemetry telemetrySink

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	closer    io.Closer // transport socket, nil for custom writers
}

// New binds a UDP socket to bindAddr, resolves dstAddr as the DogStatsD
// endpoint, and spawns the background flush worker.  With WithCustomWriter
// no socket is bound and both addresses may be empty.
func New(bindAddr, dstAddr string, opts ...Option) (*Collector, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	writer, closer, err := buildWriter(cfg, bindAddr, dstAddr)
	if err != nil {
		return nil, err
	}

	c := &Collector{
		closer:           closer,
		histogramConfigs: cfg.histogramConfigs,
		defaultPrecision: cfg.defaultPrecision,
		log:              cfg.logger,
		telemetry:        newTelemetrySink(cfg.registry),
		done:             make(chan struct{}),
	}
	for i := range c.seed {
		c.seed[i] = byte(cfg.hashSeed >> (8 * i))
	}
	c.current.Store(agg.NewAggregator())

	c.wg.Add(1)
	go c.runJob(writer, cfg.flushInterval)
	return c, nil
}

// buildWriter wires transport and serialization backend for the configured
// writer type.  The returned closer owns the socket and is released after
// the final flush.
func buildWriter(cfg *config, bindAddr, dstAddr string) (wire.LineWriter, io.Closer, error) {
	if cfg.writerType == WriterCustom {
		return cfg.customWriter, nil, nil
	}

	bind, err := net.ResolveUDPAddr("udp", bindAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("statline: resolving bind address: %w", err)
	}
	dst, err := net.ResolveUDPAddr("udp", dstAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("statline: resolving destination address: %w", err)
	}
	transport, err := wire.NewUDPTransport(bind, dst)
	if err != nil {
		return nil, nil, fmt.Errorf("statline: binding socket: %w", err)
	}

	var w wire.LineWriter
	switch cfg.writerType {
	case WriterSimple:
		w = wire.NewSimpleWriter(transport, cfg.prefix, cfg.maxPacketSize)
	case WriterLinuxBatch:
		w, err = wire.NewLinuxBatchWriter(transport, dst, cfg.prefix, cfg.maxBatchSize, cfg.maxPacketSize, cfg.logger)
	case WriterAppleBatch:
		w, err = wire.NewAppleBatchWriter(transport, dst, cfg.prefix, cfg.maxBatchSize, cfg.maxPacketSize, cfg.logger)
	default:
		err = fmt.Errorf("statline: unknown writer type %d", cfg.writerType)
	}
	if err != nil {
		_ = transport.Close()
		return nil, nil, err
	}
	return w, transport, nil
}

/*
   ---------------- Recording operations ----------------
*/

// Count increments a counter by one.  The tags slice is sorted in place.
func (c *Collector) Count(metric Str, tags []Str) {
	c.CountAdd(metric, 1, tags)
}

// CountAdd increments a counter by value.  The tags slice is sorted in
// place.
func (c *Collector) CountAdd(metric Str, value uint64, tags []Str) {
	slices.SortFunc(tags, flexstr.Compare)
	a := c.acquire()
	lk := c.lookupKey(metric, tags)

	if v, ok := a.Counts.Probe(&lk); ok {
		v.Add(value)
		a.Release()
		return
	}

	sh := a.Counts.Shard(lk.Hash)
	sh.Lock()
	if v, ok := sh.FindLocked(&lk); ok {
		// lost the race to a concurrent insertion
		v.Add(value)
	} else {
		v := new(atomic.Uint64)
		v.Add(value)
		sh.InsertLocked(lk.Materialize(), v)
	}
	sh.Unlock()
	a.Release()
}

// Gauge records a point-in-time measurement.  Multiple values for the same
// identity within one window are averaged on flush.  The tags slice is
// sorted in place.
func (c *Collector) Gauge(metric Str, value uint64, tags []Str) {
	slices.SortFunc(tags, flexstr.Compare)
	a := c.acquire()
	lk := c.lookupKey(metric, tags)

	if g, ok := a.Gauges.Probe(&lk); ok {
		g.Sum.Add(value)
		g.Count.Add(1)
		a.Release()
		return
	}

	sh := a.Gauges.Shard(lk.Hash)
	sh.Lock()
	g, ok := sh.FindLocked(&lk)
	if !ok {
		g = &agg.Gauge{}
		sh.InsertLocked(lk.Materialize(), g)
	}
	g.Sum.Add(value)
	g.Count.Add(1)
	sh.Unlock()
	a.Release()
}

// Histogram records a value for distribution tracking.  Percentiles are
// computed client-side at flush.  The tags slice is sorted in place.
func (c *Collector) Histogram(metric Str, value uint64, tags []Str) {
	slices.SortFunc(tags, flexstr.Compare)
	a := c.acquire()
	lk := c.lookupKey(metric, tags)

	// Exclusive-only path: cells are not atomic, so even the hit update
	// needs the shard's write lock.
	sh := a.Histograms.Shard(lk.Hash)
	sh.Lock()
	cell, ok := sh.FindLocked(&lk)
	if !ok {
		cell = a.Cell(c.precisionFor(metric.Str()))
		sh.InsertLocked(lk.Materialize(), cell)
	}
	err := cell.Record(value)
	sh.Unlock()
	a.Release()

	if err != nil {
		c.log.Error("failed to record histogram value",
			zap.String("metric", metric.Str()), zap.Error(err))
	}
}

/*
   ---------------- Convenience helpers ----------------
*/

// CountTags increments a counter by one using plain strings (owned
// provenance).  Allocates a tag slice per call; prefer Count with Static
// values on hot paths.
func (c *Collector) CountTags(metric string, tags ...string) {
	c.CountAdd(Owned(metric), 1, ownedTags(tags))
}

// CountAddTags increments a counter by value using plain strings.
func (c *Collector) CountAddTags(metric string, value uint64, tags ...string) {
	c.CountAdd(Owned(metric), value, ownedTags(tags))
}

// GaugeTags records a gauge value using plain strings.
func (c *Collector) GaugeTags(metric string, value uint64, tags ...string) {
	c.Gauge(Owned(metric), value, ownedTags(tags))
}

// HistogramTags records a histogram value using plain strings.
func (c *Collector) HistogramTags(metric string, value uint64, tags ...string) {
	c.Histogram(Owned(metric), value, ownedTags(tags))
}

func ownedTags(tags []string) []Str {
	out := make([]Str, len(tags))
	for i, t := range tags {
		out[i] = Owned(t)
	}
	return out
}

/*
   ---------------- Shutdown ----------------
*/

// Shutdown signals the flush worker, waits for one final swap-and-drain
// flush, and returns.  Idempotent; recordings racing past the final swap are
// harmlessly dropped.
func (c *Collector) Shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	c.wg.Wait()
	if c.closer != nil {
		_ = c.closer.Close()
	}
}

/*
   ---------------- Internals ----------------
*/

// acquire loads the current aggregator and registers a reference, re-reading
// the pointer to detect a swap that raced with the load.  The worker only
// treats a snapshot as drained once no such reference remains.
func (c *Collector) acquire() *agg.Aggregator {
	for {
		a := c.current.Load()
		a.Acquire()
		if c.current.Load() == a {
			return a
		}
		a.Release()
	}
}

// keySep delimits hashed components so ("ab","c") and ("a","bc") cannot
// collide structurally.
var keySep = [1]byte{0xff}

// lookupKey hashes seed, metric and the (already sorted) tags into the
// transient lookup identity borrowing the caller's strings.
func (c *Collector) lookupKey(metric Str, tags []Str) agg.LookupKey {
	var d xxhash.Digest
	d.Reset()
	_, _ = d.Write(c.seed[:])
	_, _ = d.Write(metric.Bytes())
	_, _ = d.Write(keySep[:])
	for _, t := range tags {
		_, _ = d.Write(t.Bytes())
		_, _ = d.Write(keySep[:])
	}
	return agg.LookupKey{Metric: metric, Tags: tags, Hash: d.Sum64()}
}

// precisionFor consults the fixed per-metric histogram configuration;
// called only on a key's first insertion.
func (c *Collector) precisionFor(metric string) histpool.Precision {
	if p, ok := c.histogramConfigs[metric]; ok {
		return p
	}
	return c.defaultPrecision
}
