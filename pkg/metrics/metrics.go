// Package metrics exposes the Prometheus counters and gauges the station
// core publishes alongside its protocol engine: dntxed confirmations, DC and
// CCA rejections, time-sync quality, and RX forwarder backpressure stalls.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// DntxedTotal counts downlink-transmitted confirmations emitted to the LNS.
	DntxedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "s2e",
		Name:      "dntxed_total",
		Help:      "Total number of dntxed confirmations emitted to the LNS.",
	})

	// TxDroppedTotal counts TX jobs dropped without emitting a dntxed, by reason.
	TxDroppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "s2e",
		Name:      "tx_dropped_total",
		Help:      "Total number of TX jobs dropped, by reason.",
	}, []string{"reason"})

	// DCBlockedTotal counts duty-cycle/CCA rejections of a candidate transmission.
	DCBlockedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "s2e",
		Name:      "dc_blocked_total",
		Help:      "Total number of transmissions rejected by duty-cycle or CCA governance.",
	}, []string{"region", "kind"})

	// TimesyncQualityUS reports the most recent time-sync sample quality in microseconds.
	TimesyncQualityUS = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "s2e",
		Name:      "timesync_quality_us",
		Help:      "Quality (bracketing interval, microseconds) of the most recent radio time-sync sample.",
	}, []string{"txunit"})

	// RXForwardStalledTotal counts uplink forward attempts stalled by WebSocket backpressure.
	RXForwardStalledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "s2e",
		Name:      "rx_forward_stalled_total",
		Help:      "Total number of uplink forward attempts deferred due to WebSocket backpressure.",
	})

	// MirrorDroppedTotal counts RX jobs dropped as mirror duplicates.
	MirrorDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "s2e",
		Name:      "mirror_dropped_total",
		Help:      "Total number of RX jobs dropped as mirror-frame duplicates.",
	})
)

// MustRegister registers all station metrics on reg.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		DntxedTotal,
		TxDroppedTotal,
		DCBlockedTotal,
		TimesyncQualityUS,
		RXForwardStalledTotal,
		MirrorDroppedTotal,
	)
}
