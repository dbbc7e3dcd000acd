package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds every collector the agent exposes on /metrics.
var Registry = prometheus.NewRegistry()

var (
	// FramesRouted counts frames handed to the arbiter by outcome:
	// parsed, rejected, unclaimed, pinned_mismatch.
	FramesRouted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bms_frames_routed_total",
			Help: "Total number of CAN frames routed by the protocol arbiter.",
		},
		[]string{"outcome"},
	)

	// FramesDropped counts frames lost because the receive queue was full.
	FramesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bms_frames_dropped_total",
			Help: "Total number of CAN frames dropped before routing.",
		},
		[]string{"source"},
	)

	FramesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bms_frames_received_total",
			Help: "Total number of CAN frames read from the transport.",
		},
		[]string{"source"},
	)

	// ProtocolMatches counts successful parses attributed to a protocol during arbitration.
	ProtocolMatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bms_protocol_matches_total",
			Help: "Total number of successful parses per protocol during arbitration.",
		},
		[]string{"protocol"},
	)

	ProtocolDetections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bms_protocol_detections_total",
			Help: "Number of times a protocol was promoted to active by auto-detection.",
		},
		[]string{"protocol"},
	)

	// ActiveProtocol is 1 for the protocol currently feeding the snapshot, 0 otherwise.
	ActiveProtocol = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bms_active_protocol",
			Help: "The active BMS protocol (1=active).",
		},
		[]string{"protocol"},
	)

	// Connected reports battery link liveness (1=Connected, 0=Stale).
	Connected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bms_connected",
			Help: "Whether a fresh BMS snapshot is available (1=Connected, 0=Stale).",
		},
	)

	// Battery carries the latest snapshot values by quantity:
	// voltage, current, soc, temperature, cycles.
	Battery = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bms_battery_value",
			Help: "Latest decoded battery value per quantity.",
		},
		[]string{"quantity"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		FramesRouted,
		FramesDropped,
		FramesReceived,
		ProtocolMatches,
		ProtocolDetections,
		ActiveProtocol,
		Connected,
		Battery,
	)
}
