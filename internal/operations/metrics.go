package operations

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// Metrics holds the collectors updated by an Operator. A nil *Metrics is a
// no-op.
type Metrics struct {
	dumps        *prometheus.CounterVec
	restores     *prometheus.CounterVec
	dumpDuration prometheus.Histogram
	dumpSize     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		dumps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snapdump",
			Name:      "dumps_total",
			Help:      "Dumps attempted, by result.",
		}, []string{"result"}),
		restores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snapdump",
			Name:      "restores_total",
			Help:      "Restores attempted, by result.",
		}, []string{"result"}),
		dumpDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "snapdump",
			Name:      "dump_duration_seconds",
			Help:      "Time from snapshot to finished dump.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		dumpSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "snapdump",
			Name:      "last_dump_size_bytes",
			Help:      "Size of the last successful plain SQL dump.",
		}),
	}
	for _, c := range []prometheus.Collector{m.dumps, m.restores, m.dumpDuration, m.dumpSize} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeDump(d time.Duration, sizeBytes int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.dumps.WithLabelValues(resultFailure).Inc()
		return
	}
	m.dumps.WithLabelValues(resultSuccess).Inc()
	m.dumpDuration.Observe(d.Seconds())
	m.dumpSize.Set(float64(sizeBytes))
}

func (m *Metrics) observeRestore(err error) {
	if m == nil {
		return
	}
	result := resultSuccess
	if err != nil {
		result = resultFailure
	}
	m.restores.WithLabelValues(result).Inc()
}

// WriteTextfile dumps every metric gathered by g to path in the text format
// read by node_exporter's textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
