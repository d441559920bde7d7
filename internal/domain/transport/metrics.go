package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/emsops/emsops/internal/platform/apperr"
)

// Metrics holds the report save counters. A nil *Metrics records nothing.
type Metrics struct {
	saves      *prometheus.CounterVec
	completion prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		saves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "emsops",
			Subsystem: "transport_report",
			Name:      "saves_total",
			Help:      "Transport report writes by operation and outcome",
		}, []string{"operation", "outcome"}),
		completion: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "emsops",
			Subsystem: "transport_report",
			Name:      "completion_percent",
			Help:      "Completion percentage of transport reports after each successful save",
			Buckets:   []float64{0, 25, 50, 75, 100},
		}),
	}
}

func (m *Metrics) save(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
	}
	m.saves.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) observeCompletion(pct int) {
	if m == nil {
		return
	}
	m.completion.Observe(float64(pct))
}
