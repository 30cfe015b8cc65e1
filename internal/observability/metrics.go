package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	lrcpPacketsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "protoctl",
			Subsystem: "lrcp",
			Name:      "packets_received_total",
			Help:      "Decoded LRCP packets by message kind.",
		},
		[]string{"kind"},
	)
	lrcpPacketsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "protoctl",
			Subsystem: "lrcp",
			Name:      "packets_dropped_total",
			Help:      "Inbound datagrams discarded before session processing.",
		},
		[]string{"reason"},
	)
	lrcpSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "protoctl",
			Subsystem: "lrcp",
			Name:      "sessions_active",
			Help:      "Sessions currently held in the dispatcher table.",
		},
	)
	lrcpRetransmits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "protoctl",
			Subsystem: "lrcp",
			Name:      "retransmits_total",
			Help:      "Data chunks resent by retransmission supervisors.",
		},
	)
	lrcpLinesReversed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "protoctl",
			Subsystem: "lrcp",
			Name:      "lines_reversed_total",
			Help:      "Complete lines flushed through the reverse transform.",
		},
	)
	tcpConnections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "protoctl",
			Subsystem: "tcp",
			Name:      "connections_total",
			Help:      "Accepted TCP connections by service.",
		},
		[]string{"service"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			lrcpPacketsReceived,
			lrcpPacketsDropped,
			lrcpSessionsActive,
			lrcpRetransmits,
			lrcpLinesReversed,
			tcpConnections,
		)
	})
}

func RecordPacketReceived(kind string) {
	RegisterMetrics()
	lrcpPacketsReceived.WithLabelValues(kind).Inc()
}

func RecordPacketDropped(reason string) {
	RegisterMetrics()
	lrcpPacketsDropped.WithLabelValues(reason).Inc()
}

func RecordSessionOpened() {
	RegisterMetrics()
	lrcpSessionsActive.Inc()
}

func RecordSessionClosed() {
	RegisterMetrics()
	lrcpSessionsActive.Dec()
}

func RecordRetransmit() {
	RegisterMetrics()
	lrcpRetransmits.Inc()
}

func RecordLineReversed() {
	RegisterMetrics()
	lrcpLinesReversed.Inc()
}

func RecordConnection(service string) {
	RegisterMetrics()
	tcpConnections.WithLabelValues(service).Inc()
}
