package failover

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rfoltyns/esfailover/internal/keyseq"
	logpkg "github.com/rfoltyns/esfailover/pkg/log"
)

const metricsNamespace = "esfailover"

type counters struct {
	stored        atomic.Int64
	storeFailures atomic.Int64
	retried       atomic.Int64
	orphaned      atomic.Int64
	foreign       atomic.Int64
}

// Stats is a point-in-time view of a policy.
type Stats struct {
	Stored        int64 `json:"stored"`
	StoreFailures int64 `json:"store_failures"`
	Retried       int64 `json:"retried"`
	Orphaned      int64 `json:"orphaned"`
	Foreign       int64 `json:"foreign"`
	Size          int64 `json:"size"`
	Available     int64 `json:"available"`
}

type statsSource struct {
	c       *counters
	store   keyseq.Store
	current func() *keyseq.KeySequence
}

func (s statsSource) snapshot() Stats {
	st := Stats{
		Stored:        s.c.stored.Load(),
		StoreFailures: s.c.storeFailures.Load(),
		Retried:       s.c.retried.Load(),
		Orphaned:      s.c.orphaned.Load(),
		Foreign:       s.c.foreign.Load(),
		Size:          s.store.Size(),
	}
	if seq := s.current(); seq != nil {
		st.Available = seq.ReaderKeysAvailable()
	}
	return st
}

func (s statsSource) collectors(seqID int64) []prometheus.Collector {
	labels := prometheus.Labels{"seq_id": strconv.FormatInt(seqID, 10)}
	counter := func(name, help string, v *atomic.Int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return float64(v.Load()) })
	}
	gauge := func(name, help string, fn func() float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, fn)
	}
	return []prometheus.Collector{
		counter("items_stored_total", "Failed items written to the store.", &s.c.stored),
		counter("store_failures_total", "Failed items that could not be stored.", &s.c.storeFailures),
		counter("items_retried_total", "Items handed to retry listeners.", &s.c.retried),
		counter("orphaned_keys_total", "Reader keys with no stored value.", &s.c.orphaned),
		counter("foreign_values_total", "Reader keys holding values that are not failed items.", &s.c.foreign),
		gauge("store_entries", "Live keys in the store.", func() float64 { return float64(s.store.Size()) }),
		gauge("available_keys", "Items waiting for retry.", func() float64 {
			if seq := s.current(); seq != nil {
				return float64(seq.ReaderKeysAvailable())
			}
			return 0
		}),
	}
}

// monitor logs a stats snapshot on every run.
type monitor struct {
	src statsSource
	log logpkg.Logger
}

func (m *monitor) Run() {
	st := m.src.snapshot()
	m.log.Info("failover stats",
		logpkg.Int64("stored", st.Stored),
		logpkg.Int64("store_failures", st.StoreFailures),
		logpkg.Int64("retried", st.Retried),
		logpkg.Int64("orphaned", st.Orphaned),
		logpkg.Int64("foreign", st.Foreign),
		logpkg.Int64("size", st.Size),
		logpkg.Int64("available", st.Available),
	)
}
