package scaler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics are the scaler's exported control-loop counters, labeled by scaler
// kind so one registry can serve every Scaler instance in a process.
type metrics struct {
	ticks    *prometheus.CounterVec
	tickFail *prometheus.CounterVec
	placed   *prometheus.CounterVec
	deferred *prometheus.CounterVec
	freed    *prometheus.CounterVec
	zombies  *prometheus.CounterVec
}

var defaultMetrics = newMetrics(prometheus.DefaultRegisterer)

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		ticks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "thorium_scaler_ticks_total",
			Help: "Completed scheduling ticks, by scaler kind.",
		}, []string{"scaler"}),
		tickFail: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "thorium_scaler_tick_errors_total",
			Help: "Scheduling ticks that returned an error, by scaler kind.",
		}, []string{"scaler"}),
		placed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "thorium_scaler_placements_total",
			Help: "Workers placed by the allocator, by scaler kind.",
		}, []string{"scaler"}),
		deferred: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "thorium_scaler_deferred_total",
			Help: "Candidates deferred to a later tick for lack of capacity, by scaler kind.",
		}, []string{"scaler"}),
		freed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "thorium_scaler_terminal_freed_total",
			Help: "Workers cleared from a terminal state, by scaler kind.",
		}, []string{"scaler"}),
		zombies: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "thorium_scaler_zombies_reset_total",
			Help: "Workers reset after missing their heartbeat horizon, by scaler kind.",
		}, []string{"scaler"}),
	}
}
