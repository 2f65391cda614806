package unitindexer

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the indexer's prometheus collectors.
type Metrics struct {
	FilesIndexed  prometheus.Counter
	ParseFailures prometheus.Counter
	References    *prometheus.CounterVec
	IndexDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		FilesIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "semunit",
			Name:      "files_indexed_total",
			Help:      "Unit files scanned successfully.",
		}),
		ParseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "semunit",
			Name:      "parse_failures_total",
			Help:      "Unit files that could not be read or parsed.",
		}),
		References: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "semunit",
			Name:      "references_total",
			Help:      "Unit references extracted, by role.",
		}, []string{"role"}),
		IndexDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "semunit",
			Name:      "index_duration_seconds",
			Help:      "Duration of full index runs.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if reg == nil {
		return m, nil
	}

	for _, c := range []prometheus.Collector{m.FilesIndexed, m.ParseFailures, m.References, m.IndexDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}
