package statesync

import (
	"github.com/colyseus/colyseus-unity-sdk-sub001/callbacks"
	"github.com/prometheus/client_golang/prometheus"
)

var DecodedMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "statesync",
	Subsystem: "decoder",
	Name:      "messages",
}, []string{"result"})

var DecodedBytes = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "statesync",
	Subsystem: "decoder",
	Name:      "bytes",
})

var EmittedChanges = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "statesync",
	Subsystem: "decoder",
	Name:      "changes",
})

var SkippedBytes = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "statesync",
	Subsystem: "decoder",
	Name:      "skipped_bytes",
	Help:      "Bytes skipped over unknown field indexes (schema skew)",
})

var TrackedRefs = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "statesync",
	Subsystem: "refs",
	Name:      "tracked",
})

var CollectedRefs = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "statesync",
	Subsystem: "refs",
	Name:      "collected",
})

var DecodeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
	Namespace: "statesync",
	Subsystem: "decoder",
	Name:      "duration_us",
	Buckets:   []float64{0, 10, 50, 100, 500, 1000, 5000, 20000},
})

var HandshakeCacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "statesync",
	Subsystem: "handshake",
	Name:      "cache",
}, []string{"result"})

func Metrics() []prometheus.Collector {
	return []prometheus.Collector{
		DecodedMessages,
		DecodedBytes,
		EmittedChanges,
		SkippedBytes,
		TrackedRefs,
		CollectedRefs,
		DecodeDuration,
		HandshakeCacheHits,
		callbacks.CallbackPanics,
	}
}
