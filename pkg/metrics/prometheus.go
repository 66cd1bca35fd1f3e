package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes engine counters over Prometheus.
type Recorder struct {
	signalsCreated  *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	evaluations     *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
	openPositions   prometheus.Gauge
	latency         *prometheus.HistogramVec
}

// New registers the engine metrics on the default registry.
func New() *Recorder {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith registers on a caller-supplied registry. Tests use this to avoid
// duplicate registration.
func NewWith(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		signalsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_signals_created_total",
				Help: "Total signals created, by signal type",
			},
			[]string{"type"},
		),
		deliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_signal_deliveries_total",
				Help: "Signal delivery attempts, by outcome",
			},
			[]string{"outcome"},
		),
		evaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_evaluations_total",
				Help: "Strategy evaluations, by outcome",
			},
			[]string{"outcome"},
		),
		reconciliations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_reconciliations_total",
				Help: "Position reconciliation checks, by result",
			},
			[]string{"result"},
		),
		openPositions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "engine_open_positions",
				Help: "Locally tracked open positions",
			},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "engine_operation_duration_seconds",
				Help:    "Duration of engine operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordSignalCreated counts a new signal by type.
func (r *Recorder) RecordSignalCreated(signalType string) {
	r.signalsCreated.WithLabelValues(signalType).Inc()
}

// RecordDelivery counts a delivery attempt outcome (delivered, failed,
// expired, suppressed).
func (r *Recorder) RecordDelivery(outcome string) {
	r.deliveries.WithLabelValues(outcome).Inc()
}

// RecordEvaluation counts an evaluation outcome (decision, no_decision,
// error, skipped).
func (r *Recorder) RecordEvaluation(outcome string) {
	r.evaluations.WithLabelValues(outcome).Inc()
}

// RecordReconciliation counts one position check (synced, closed, error).
func (r *Recorder) RecordReconciliation(result string) {
	r.reconciliations.WithLabelValues(result).Inc()
}

// SetOpenPositions sets the open-position gauge.
func (r *Recorder) SetOpenPositions(n int) {
	r.openPositions.Set(float64(n))
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
