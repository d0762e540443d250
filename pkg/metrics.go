package statline

// metrics.go contains a thin abstraction over Prometheus so that statline
// can be used with or without self-telemetry.  When the user passes a
// *prometheus.Registry via WithTelemetry, unlabeled metrics describing the
// flush pipeline are registered; otherwise a no-op sink is used and the
// worker does not pay for metric updates.
//
// All metrics are flush-worker-level — the recording hot path is never
// instrumented.  Metric names follow Prometheus best practices, suffixed
// with "_total" for counters.
//
// ┌─────────────────────────────────┬──────┐
// │ Metric                          │ Type │
// ├─────────────────────────────────┼──────┤
// │ statline_flushes_total          │ Ctr  │
// │ statline_lines_total            │ Ctr  │
// │ statline_flush_bytes_total      │ Ctr  │
// │ statline_dropped_lines_total    │ Ctr  │
// │ statline_send_errors_total      │ Ctr  │
// │ statline_evicted_keys_total     │ Ctr  │
// │ statline_flush_duration_seconds │ Gge  │
// └─────────────────────────────────┴──────┘
//
// © 2025 statline authors. MIT License.

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// telemetrySink is an internal interface abstracting away the concrete
// backend (Prometheus vs noop).  It is *not* exposed outside the package;
// the flush worker only knows about these methods.
type telemetrySink interface {
	incFlush(d time.Duration)
	addLines(n int)
	addBytes(n int)
	incDroppedLine()
	incSendError()
	addEvicted(n int)
}

/*
   ---------------- No-op implementation ----------------
*/

type noopTelemetry struct{}

func (noopTelemetry) incFlush(time.Duration) {}
func (noopTelemetry) addLines(int)           {}
func (noopTelemetry) addBytes(int)           {}
func (noopTelemetry) incDroppedLine()        {}
func (noopTelemetry) incSendError()          {}
func (noopTelemetry) addEvicted(int)         {}

/*
   ---------------- Prometheus implementation ----------------
*/

type promTelemetry struct {
	flushes  prometheus.Counter
	lines    prometheus.Counter
	bytes    prometheus.Counter
	dropped  prometheus.Counter
	sendErrs prometheus.Counter
	evicted  prometheus.Counter
	duration prometheus.Gauge
}

func newPromTelemetry(reg *prometheus.Registry) *promTelemetry {
	t := &promTelemetry{
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "statline",
			Name:      "flushes_total",
			Help:      "Number of completed flush cycles.",
		}),
		lines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "statline",
			Name:      "lines_total",
			Help:      "Number of metric lines rendered.",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "statline",
			Name:      "flush_bytes_total",
			Help:      "Bytes handed to the transport.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "statline",
			Name:      "dropped_lines_total",
			Help:      "Lines dropped because they exceeded the packet size.",
		}),
		sendErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "statline",
			Name:      "send_errors_total",
			Help:      "Transport errors observed during flushes.",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "statline",
			Name:      "evicted_keys_total",
			Help:      "Zero-contribution keys garbage-collected at flush.",
		}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "statline",
			Name:      "flush_duration_seconds",
			Help:      "Duration of the most recent flush cycle.",
		}),
	}
	reg.MustRegister(t.flushes, t.lines, t.bytes, t.dropped, t.sendErrs, t.evicted, t.duration)
	return t
}

func (t *promTelemetry) incFlush(d time.Duration) {
	t.flushes.Inc()
	t.duration.Set(d.Seconds())
}
func (t *promTelemetry) addLines(n int)   { t.lines.Add(float64(n)) }
func (t *promTelemetry) addBytes(n int)   { t.bytes.Add(float64(n)) }
func (t *promTelemetry) incDroppedLine()  { t.dropped.Inc() }
func (t *promTelemetry) incSendError()    { t.sendErrs.Inc() }
func (t *promTelemetry) addEvicted(n int) { t.evicted.Add(float64(n)) }

/*
   ---------------- Factory ----------------
*/

// newTelemetrySink decides which implementation to use.
func newTelemetrySink(reg *prometheus.Registry) telemetrySink {
	if reg == nil {
		return noopTelemetry{}
	}
	return newPromTelemetry(reg)
}
