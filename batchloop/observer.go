package batchloop

import (
	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/dustin/go-humanize"
	"github.com/forestrie/go-changelog/arena"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Observer is told about batch progress. Implementations must not retain
// anything from the batch, by the time they are called the scratch state may
// already be reused.
type Observer interface {
	// BatchStarted is called once the batch checkpoint has been taken.
	BatchStarted(batch int, usage arena.Usage)
	// BatchEmitted is called after the batch has been emitted and its memory
	// reclaimed.
	BatchEmitted(batch int, records int, bytes int, usage arena.Usage)
	// Failed is called once, with the first error of the invocation.
	Failed(batch int, state State, err error)
}

type NopObserver struct{}

func (NopObserver) BatchStarted(int, arena.Usage)           {}
func (NopObserver) BatchEmitted(int, int, int, arena.Usage) {}
func (NopObserver) Failed(int, State, error)                {}

// Observers fans every call out, in order.
type Observers []Observer

func (obs Observers) BatchStarted(batch int, usage arena.Usage) {
	for _, o := range obs {
		o.BatchStarted(batch, usage)
	}
}

func (obs Observers) BatchEmitted(batch int, records int, bytes int, usage arena.Usage) {
	for _, o := range obs {
		o.BatchEmitted(batch, records, bytes, usage)
	}
}

func (obs Observers) Failed(batch int, state State, err error) {
	for _, o := range obs {
		o.Failed(batch, state, err)
	}
}

// LogObserver reports arena use as each batch completes.
type LogObserver struct {
	log logger.Logger
}

func NewLogObserver(log logger.Logger) *LogObserver {
	return &LogObserver{log: log}
}

func (o *LogObserver) BatchStarted(batch int, usage arena.Usage) {}

func (o *LogObserver) BatchEmitted(batch int, records int, bytes int, usage arena.Usage) {
	o.log.Infof("batch %d: %d records, %s emitted, arena used %s, peak %s of %s",
		batch, records, humanize.Bytes(uint64(bytes)),
		humanize.Bytes(usage.Used), humanize.Bytes(usage.Peak), humanize.Bytes(usage.Capacity))
}

func (o *LogObserver) Failed(batch int, state State, err error) {
	o.log.Infof("batch %d failed in %s: %v", batch, state, err)
}

// MetricsObserver exports batch progress as prometheus metrics.
type MetricsObserver struct {
	Batches   prometheus.Counter
	Records   prometheus.Counter
	Bytes     prometheus.Counter
	Failures  *prometheus.CounterVec
	ArenaUsed prometheus.Gauge
	ArenaPeak prometheus.Gauge
}

const metricsNamespace = "changelog"

// NewMetricsObserver registers the metrics with reg. A nil reg registers
// with the prometheus default registerer.
func NewMetricsObserver(reg prometheus.Registerer) *MetricsObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &MetricsObserver{
		Batches: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "batches_emitted_total",
			Help:      "Batches emitted to the log channel.",
		}),
		Records: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "records_emitted_total",
			Help:      "Changelog records emitted to the log channel.",
		}),
		Bytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bytes_emitted_total",
			Help:      "Serialized bytes emitted to the log channel.",
		}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "invocation_failures_total",
			Help:      "Failed invocations by the step that failed.",
		}, []string{"state"}),
		ArenaUsed: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "arena_used_bytes",
			Help:      "Arena bytes in use.",
		}),
		ArenaPeak: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "arena_peak_bytes",
			Help:      "Most arena bytes ever in use by the invocation.",
		}),
	}
}

func (m *MetricsObserver) BatchStarted(batch int, usage arena.Usage) {
	m.ArenaUsed.Set(float64(usage.Used))
	m.ArenaPeak.Set(float64(usage.Peak))
}

func (m *MetricsObserver) BatchEmitted(batch int, records int, bytes int, usage arena.Usage) {
	m.Batches.Inc()
	m.Records.Add(float64(records))
	m.Bytes.Add(float64(bytes))
	m.ArenaUsed.Set(float64(usage.Used))
	m.ArenaPeak.Set(float64(usage.Peak))
}

func (m *MetricsObserver) Failed(batch int, state State, err error) {
	m.Failures.WithLabelValues(state.String()).Inc()
}
