package room

import "github.com/prometheus/client_golang/prometheus"

var FramesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "statesync",
	Subsystem: "room",
	Name:      "frames_received",
}, []string{"code"})

var FramesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "statesync",
	Subsystem: "room",
	Name:      "frames_sent",
}, []string{"code"})

var FrameErrors = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "statesync",
	Subsystem: "room",
	Name:      "frame_errors",
	Help:      "Inbound frames that failed to process",
})

func Metrics() []prometheus.Collector {
	return []prometheus.Collector{FramesReceived, FramesSent, FrameErrors}
}
