package journal

import (
	"github.com/cockroachdb/pebble"
	"github.com/prometheus/client_golang/prometheus"
)

type pebbleMetric struct {
	desc  *prometheus.Desc
	kind  prometheus.ValueType
	value func(m *pebble.Metrics) float64
}

func newPebbleMetric(name, help string, kind prometheus.ValueType, value func(m *pebble.Metrics) float64) pebbleMetric {
	return pebbleMetric{
		desc:  prometheus.NewDesc("statesync_journal_pebble_"+name, help, nil, nil),
		kind:  kind,
		value: value,
	}
}

// pebbleCollector reports compaction, memtable and WAL figures of the
// journal store.
type pebbleCollector struct {
	journal *Journal
	metrics []pebbleMetric
}

func newPebbleCollector(j *Journal) *pebbleCollector {
	return &pebbleCollector{
		journal: j,
		metrics: []pebbleMetric{
			newPebbleMetric("compaction_count_total", "Total number of compactions performed",
				prometheus.CounterValue, func(m *pebble.Metrics) float64 { return float64(m.Compact.Count) }),
			newPebbleMetric("compaction_estimated_debt_bytes", "Estimated bytes to compact to reach a stable state",
				prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.Compact.EstimatedDebt) }),
			newPebbleMetric("memtable_size_bytes", "Current size of the memtables",
				prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.MemTable.Size) }),
			newPebbleMetric("memtable_count", "Current count of memtables",
				prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.MemTable.Count) }),
			newPebbleMetric("wal_files", "Number of live WAL files",
				prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.WAL.Files) }),
			newPebbleMetric("wal_size_bytes", "Size of the live WAL data",
				prometheus.GaugeValue, func(m *pebble.Metrics) float64 { return float64(m.WAL.Size) }),
			newPebbleMetric("wal_bytes_in_total", "Logical bytes written to the WAL",
				prometheus.CounterValue, func(m *pebble.Metrics) float64 { return float64(m.WAL.BytesIn) }),
			newPebbleMetric("wal_bytes_written_total", "Physical bytes written to the WAL",
				prometheus.CounterValue, func(m *pebble.Metrics) float64 { return float64(m.WAL.BytesWritten) }),
		},
	}
}

func (pc *pebbleCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range pc.metrics {
		ch <- m.desc
	}
}

func (pc *pebbleCollector) Collect(ch chan<- prometheus.Metric) {
	metrics := pc.journal.metrics()
	if metrics == nil {
		return
	}
	for _, m := range pc.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.kind, m.value(metrics))
	}
}
