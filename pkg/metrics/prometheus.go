package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	syncsTotal  *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	inFlight    prometheus.Gauge
	dedupSkips  prometheus.Counter
}

// New registers the sync engine collectors on reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		syncsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candlesync_operations_total",
				Help: "Sync operations by name and result",
			},
			[]string{"op", "result"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candlesync_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "candlesync_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"operation"},
		),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "candlesync_gapfill_in_flight",
			Help: "1 while a viewport gap-fill is running",
		}),
		dedupSkips: f.NewCounter(prometheus.CounterOpts{
			Name: "candlesync_gapfill_dedup_skips_total",
			Help: "Gap-fills skipped because the same request was last or one was in flight",
		}),
	}
}

// RecordSync counts a finished operation.
func (r *Recorder) RecordSync(op, result string) {
	r.syncsTotal.WithLabelValues(op, result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordInFlight(inFlight bool) {
	if inFlight {
		r.inFlight.Set(1)
		return
	}
	r.inFlight.Set(0)
}

func (r *Recorder) RecordDedupSkip() {
	r.dedupSkips.Inc()
}
