package blockmodel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the optional Prometheus instruments of a State. One Metrics
// value may be shared by several states.
type Metrics struct {
	MovesCommitted    prometheus.Counter
	BarrierRejections prometheus.Counter
	VirtualMoves      prometheus.Counter
	Entropy           prometheus.Gauge
}

// NewMetrics registers the instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MovesCommitted: f.NewCounter(
			prometheus.CounterOpts{
				Name: "overlap_sbm_moves_committed_total",
				Help: "Number of half-edge moves committed",
			},
		),
		BarrierRejections: f.NewCounter(
			prometheus.CounterOpts{
				Name: "overlap_sbm_barrier_rejections_total",
				Help: "Number of moves rejected for crossing a barrier label",
			},
		),
		VirtualMoves: f.NewCounter(
			prometheus.CounterOpts{
				Name: "overlap_sbm_virtual_moves_total",
				Help: "Number of virtual moves evaluated",
			},
		),
		Entropy: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "overlap_sbm_entropy",
				Help: "Last computed description length in nats",
			},
		),
	}
}
