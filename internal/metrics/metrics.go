// Package metrics exposes the ambient Prometheus counters and gauges for
// the scheduler, connection pipeline, and reorder stages. Grounded on the
// teacher's controller/metrics.go promauto package-level-var pattern,
// generalized from the teacher's namespace to this module's.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "avtransport"

var (
	// PacketsScheduled counts packets handed to the scheduler's Push, by
	// stream id (as a string label) before segmentation.
	PacketsScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_scheduled_total",
			Help:      "Packets accepted by the scheduler, before segmentation",
		},
		[]string{"stream_id"},
	)

	// SegmentsEmitted counts wire units (whole packets and generic
	// segments) staged for transport.
	SegmentsEmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_emitted_total",
			Help:      "Wire units staged for a transport back-end",
		},
	)

	// BytesOnWire counts payload bytes written by a transport back-end's
	// WritePkt/WriteVec.
	BytesOnWire = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_on_wire_total",
			Help:      "Bytes written to a transport back-end",
		},
	)

	// MergerCompletions counts logical packets the merger finished
	// reassembling from generic segments.
	MergerCompletions = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merger_completions_total",
			Help:      "Logical packets completed by the merger",
		},
	)

	// ReorderDrops mirrors reorder.Buffer.Drops as a gauge, sampled by the
	// caller after each Push (the counter itself lives on the Buffer so
	// the package stays free of a metrics import).
	ReorderDrops = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reorder_drops",
			Help:      "Segments dropped by the reorder buffer under ceiling pressure",
		},
	)

	// ActiveConnections tracks live conn.Connection instances.
	ActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Connections created and not yet destroyed",
		},
	)

	// FECRecoveries counts fec.Decode calls whose block was (or was made)
	// parity-consistent within budget.
	FECRecoveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fec_recoveries_total",
			Help:      "FEC decode calls that verified or corrected a block within budget",
		},
	)
)
