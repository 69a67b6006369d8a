package failover

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	pebblestore "github.com/rfoltyns/esfailover/internal/storage/pebble"
)

// StoreMetrics records pebble operation latencies and sizes. It is both the
// storage metrics hook and a prometheus collector.
type StoreMetrics struct {
	latency *prometheus.HistogramVec
	size    *prometheus.HistogramVec
}

var (
	_ pebblestore.MetricsHook = (*StoreMetrics)(nil)
	_ prometheus.Collector    = (*StoreMetrics)(nil)
)

func NewStoreMetrics() *StoreMetrics {
	return &StoreMetrics{
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Latency of store reads, writes and batch commits.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 10),
		}, []string{"op"}),
		size: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "store",
			Name:      "operation_bytes",
			Help:      "Value bytes moved by store reads, writes and batch commits.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
		}, []string{"op"}),
	}
}

// RegisterStoreMetrics registers a StoreMetrics on reg, or returns the one
// already registered there.
func RegisterStoreMetrics(reg prometheus.Registerer) (*StoreMetrics, error) {
	m := NewStoreMetrics()
	if err := reg.Register(m); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*StoreMetrics); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return m, nil
}

func (m *StoreMetrics) ObserveWrite(elapsed time.Duration, bytes int) {
	m.observe("write", elapsed, bytes)
}

func (m *StoreMetrics) ObserveRead(elapsed time.Duration, bytes int) {
	m.observe("read", elapsed, bytes)
}

func (m *StoreMetrics) ObserveBatchCommit(elapsed time.Duration, _ int, bytes int) {
	m.observe("batch_commit", elapsed, bytes)
}

func (m *StoreMetrics) observe(op string, elapsed time.Duration, bytes int) {
	m.latency.WithLabelValues(op).Observe(elapsed.Seconds())
	m.size.WithLabelValues(op).Observe(float64(bytes))
}

func (m *StoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.latency.Describe(ch)
	m.size.Describe(ch)
}

func (m *StoreMetrics) Collect(ch chan<- prometheus.Metric) {
	m.latency.Collect(ch)
	m.size.Collect(ch)
}
