// Package telemetry exposes scheduler counters and gauges over Prometheus.
package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	PicksTotal       = prometheus.NewCounter(prometheus.CounterOpts{Name: "ticketd_picks_total", Help: "Tasks successfully picked"})
	PickConflicts    = prometheus.NewCounter(prometheus.CounterOpts{Name: "ticketd_pick_conflicts_total", Help: "Picks rejected by the store's conditional update"})
	EscalationsTotal = prometheus.NewCounter(prometheus.CounterOpts{Name: "ticketd_escalations_total", Help: "Stalled tasks escalated into blocked tickets"})
	RefreshFailures  = prometheus.NewCounter(prometheus.CounterOpts{Name: "ticketd_refresh_failures_total", Help: "Queue refreshes that failed to list the store"})
	QueueDepthGauge  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "ticketd_queue_depth", Help: "Pending tasks in the queue"})
	PickedInFlight   = prometheus.NewGauge(prometheus.GaugeOpts{Name: "ticketd_picked_inflight", Help: "Tasks currently picked and in flight"})
)

// Handler exposes the /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			PicksTotal,
			PickConflicts,
			EscalationsTotal,
			RefreshFailures,
			QueueDepthGauge,
			PickedInFlight,
		)
	})
	return promhttp.Handler()
}
