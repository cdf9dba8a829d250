// Package metrics holds Prometheus metrics for the sync server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dkeye/WatchSync/internal/domain"
)

type Metrics struct {
	RoomsActive      prometheus.Gauge
	RoomsSynced      prometheus.Gauge
	Connections      prometheus.Gauge
	PlaybackActions  *prometheus.CounterVec
	Corrections      *prometheus.CounterVec
	Drift            prometheus.Histogram
	TickDuration     prometheus.Histogram
	BackpressureDrop prometheus.Counter
}

// New registers every metric on reg. Tests pass a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RoomsActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "watchsync_rooms_active",
			Help: "Number of live rooms",
		}),
		RoomsSynced: f.NewGauge(prometheus.GaugeOpts{
			Name: "watchsync_rooms_synced",
			Help: "Rooms whose members were all within tolerance on the last tick",
		}),
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Name: "watchsync_ws_connections",
			Help: "Active signal WebSocket connections",
		}),
		PlaybackActions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "watchsync_playback_actions_total",
			Help: "Playback actions by type and outcome",
		}, []string{"action", "result"}),
		Corrections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "watchsync_corrections_total",
			Help: "Targeted corrections sent, by mode",
		}, []string{"mode"}),
		Drift: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "watchsync_member_drift_seconds",
			Help:    "Absolute drift of fresh member reports",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		TickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "watchsync_tick_duration_seconds",
			Help:    "Time spent evaluating all rooms in one tick",
			Buckets: prometheus.DefBuckets,
		}),
		BackpressureDrop: f.NewCounter(prometheus.CounterOpts{
			Name: "watchsync_backpressure_drops_total",
			Help: "Frames that could not be queued for a slow member",
		}),
	}
}

// Nop returns metrics bound to a throwaway registry.
func Nop() *Metrics { return New(prometheus.NewRegistry()) }

func (m *Metrics) RecordAction(t domain.ActionType, applied bool) {
	result := "applied"
	if !applied {
		result = "dropped"
	}
	m.PlaybackActions.WithLabelValues(string(t), result).Inc()
}

func (m *Metrics) RecordCorrection(mode domain.CorrectionMode) {
	m.Corrections.WithLabelValues(string(mode)).Inc()
}
