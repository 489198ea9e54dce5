package binning

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records run statistics on a caller-supplied registry.
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	runs         *prometheus.CounterVec
	features     prometheus.Counter
	weightErrors prometheus.Counter
	binsEmitted  prometheus.Counter
	duration     prometheus.Histogram
}

// NewMetrics registers binning metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spatialbin",
			Subsystem: "binning",
			Name:      "runs_total",
			Help:      "Total binning runs by outcome",
		}, []string{"outcome"}),

		features: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "spatialbin",
			Subsystem: "binning",
			Name:      "features_read_total",
			Help:      "Total input features read",
		}),

		weightErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "spatialbin",
			Subsystem: "binning",
			Name:      "weight_errors_total",
			Help:      "Features whose weight could not be evaluated and contributed zero",
		}),

		binsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "spatialbin",
			Subsystem: "binning",
			Name:      "bins_emitted_total",
			Help:      "Total bins written by committed runs",
		}),

		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "spatialbin",
			Subsystem: "binning",
			Name:      "run_duration_seconds",
			Help:      "Duration of binning runs",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),
	}
}

// observe records a finished run.
func (m *Metrics) observe(result *Result, err error, elapsed time.Duration) {
	if m == nil {
		return
	}

	outcome := "success"
	if err != nil {
		outcome = errorOutcome(err)
	}
	m.runs.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())

	if result == nil {
		return
	}
	m.features.Add(float64(result.FeaturesRead))
	m.weightErrors.Add(float64(result.WeightErrors))
	if err == nil {
		m.binsEmitted.Add(float64(result.Emitted))
	}
}
